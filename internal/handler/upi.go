package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/checkout"
)

// maxParallelQR bounds concurrent QR renders per request.
const maxParallelQR = 4

// checkoutItem is an element of the products array. Clients send either a
// bare product id, which counts as one unit, or an object with a quantity.
type checkoutItem checkout.Item

func (c *checkoutItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return apperr.Validation("invalid product id")
		}
		*c = checkoutItem{ProductID: id, Quantity: 1}
		return nil
	}

	var obj struct {
		ProductID string `json:"productId"`
		Quantity  *int   `json:"quantity"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return apperr.Validation("products must be ids or {productId, quantity} objects")
	}
	*c = checkoutItem{ProductID: obj.ProductID, Quantity: 1}
	if obj.Quantity != nil {
		c.Quantity = *obj.Quantity
	}
	return nil
}

type paymentRequestsRequest struct {
	Products []checkoutItem `json:"products"`
}

type paymentItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     money  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type paymentGroupResponse struct {
	SellerID   string                `json:"sellerId"`
	SellerName string                `json:"sellerName"`
	Total      money                 `json:"total"`
	URI        string                `json:"upiUri"`
	QRCode     string                `json:"qrCode"`
	Products   []paymentItemResponse `json:"products"`
}

// CreatePaymentRequests groups the selected products by seller and returns
// one UPI QR code per seller.
func (h *Handler) CreatePaymentRequests(w http.ResponseWriter, r *http.Request) {
	var req paymentRequestsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	items := make([]checkout.Item, len(req.Products))
	for i, p := range req.Products {
		items[i] = checkout.Item(p)
	}

	ctx := r.Context()
	groups, err := h.checkout.BuildPaymentGroups(ctx, items)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]paymentGroupResponse, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQR)
	for i, group := range groups {
		g.Go(func() error {
			pr, err := h.encoder.Encode(gctx, group)
			if err != nil {
				return err
			}
			out[i] = toPaymentGroup(group, pr.URI, pr.QRCode)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func toPaymentGroup(g checkout.PaymentGroup, uri, qr string) paymentGroupResponse {
	items := make([]paymentItemResponse, len(g.Items))
	for i, it := range g.Items {
		items[i] = paymentItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     money(it.Price),
			Quantity:  it.Quantity,
		}
	}
	return paymentGroupResponse{
		SellerID:   g.SellerID,
		SellerName: g.SellerName,
		Total:      money(g.Total),
		URI:        uri,
		QRCode:     qr,
		Products:   items,
	}
}

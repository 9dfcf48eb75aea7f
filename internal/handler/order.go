package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/domain/order"
)

type orderLineRequest struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type placeOrderRequest struct {
	Products      []orderLineRequest `json:"products"`
	Amount        *decimal.Decimal   `json:"amount"`
	Paid          bool               `json:"paid"`
	TransactionID string             `json:"transactionId"`
}

// PlaceOrder records a confirmed order for the caller and clears the ordered
// products from the cart.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	lines := make([]order.LineRequest, len(req.Products))
	for i, p := range req.Products {
		lines[i] = order.LineRequest(p)
	}
	o, err := h.orders.Finalize(r.Context(), order.FinalizeRequest{
		UserID:        principal(r).UserID,
		Lines:         lines,
		Amount:        req.Amount,
		Paid:          req.Paid,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrder(*o))
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrders(orders))
}

type clearOrdersResponse struct {
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

// ClearOrders deletes the caller's order history.
func (h *Handler) ClearOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.orders.ClearHistory(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, clearOrdersResponse{
		Message: "All orders have been cleared successfully.",
		Deleted: n,
	})
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

// UpdateOrderStatus moves an order along its fulfilment lifecycle.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p := principal(r)
	o, err := h.orders.UpdateStatus(r.Context(), order.Actor{UserID: p.UserID, Admin: p.IsAdmin()}, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrder(*o))
}

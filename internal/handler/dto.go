package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

// money renders a decimal as a JSON number with two fractional digits.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

type productResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Price      money     `json:"price"`
	Image      string    `json:"image"`
	SellerID   string    `json:"sellerId"`
	Rating     float64   `json:"rating"`
	NumReviews int       `json:"numReviews"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (h *Handler) toProduct(p product.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Price:      money(p.Price),
		Image:      h.imageURL(p.Image),
		SellerID:   p.SellerID,
		Rating:     p.Rating,
		NumReviews: p.NumReviews,
		CreatedAt:  p.CreatedAt,
	}
}

type reviewResponse struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func toReviews(rs []product.Review) []reviewResponse {
	out := make([]reviewResponse, len(rs))
	for i, r := range rs {
		out[i] = reviewResponse(r)
	}
	return out
}

func (h *Handler) toProducts(ps []product.Product) []productResponse {
	out := make([]productResponse, len(ps))
	for i, p := range ps {
		out[i] = h.toProduct(p)
	}
	return out
}

// sellerResponse is the public storefront profile.
type sellerResponse struct {
	ID           string    `json:"id"`
	BusinessName string    `json:"businessName"`
	Description  string    `json:"description,omitempty"`
	Verified     bool      `json:"verified"`
	Rating       float64   `json:"rating"`
	NumReviews   int       `json:"numReviews"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ownSellerResponse adds the fields only the owner and admins see.
type ownSellerResponse struct {
	sellerResponse
	UserID    string `json:"userId"`
	GSTNumber string `json:"gstNumber,omitempty"`
	UPIID     string `json:"upiId"`
}

func toSeller(s seller.Seller) sellerResponse {
	return sellerResponse{
		ID:           s.ID,
		BusinessName: s.BusinessName,
		Description:  s.Description,
		Verified:     s.Verified,
		Rating:       s.Rating,
		NumReviews:   s.NumReviews,
		CreatedAt:    s.CreatedAt,
	}
}

func toOwnSeller(s seller.Seller) ownSellerResponse {
	return ownSellerResponse{
		sellerResponse: toSeller(s),
		UserID:         s.UserID,
		GSTNumber:      s.GSTNumber,
		UPIID:          s.PayoutAddress,
	}
}

type cartLineResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     money  `json:"price"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) toCart(views []cart.View) []cartLineResponse {
	out := make([]cartLineResponse, len(views))
	for i, v := range views {
		out[i] = cartLineResponse{
			ProductID: v.ProductID,
			Name:      v.Name,
			Price:     money(v.Price),
			Image:     h.imageURL(v.Image),
			Quantity:  v.Quantity,
		}
	}
	return out
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     money  `json:"price"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	Products      []orderLineResponse `json:"products"`
	Amount        money               `json:"amount"`
	Status        order.Status        `json:"status"`
	TransactionID string              `json:"transactionId,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func toOrder(o order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     money(l.Price),
		}
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Products:      lines,
		Amount:        money(o.Total),
		Status:        o.Status,
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toOrders(os []order.Order) []orderResponse {
	out := make([]orderResponse, len(os))
	for i, o := range os {
		out[i] = toOrder(o)
	}
	return out
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUsers(us []user.User) []userResponse {
	out := make([]userResponse, len(us))
	for i, u := range us {
		out[i] = userResponse(u)
	}
	return out
}

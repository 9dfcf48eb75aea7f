package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/product"
)

// ListProducts returns the catalog, optionally narrowed to one seller.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), product.Filter{SellerID: r.URL.Query().Get("seller")})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toProducts(products))
}

// SearchProducts finds products by name.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toProducts(products))
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toProduct(*p))
}

type createProductRequest struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Image string           `json:"image"`
}

// CreateProduct lists a product under the caller's storefront.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Price == nil {
		respondError(w, r, apperr.Validation("price required"))
		return
	}

	p, err := h.products.Create(r.Context(), principal(r).UserID, product.CreateRequest{
		Name:  req.Name,
		Price: *req.Price,
		Image: req.Image,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.toProduct(*p))
}

// DeleteProduct removes one of the caller's products.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), principal(r).UserID, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// AddReview records the caller's review of a product they bought.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	var req addReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := h.users.GetByID(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.products.AddReview(r.Context(), chi.URLParam(r, "id"), product.ReviewRequest{
		UserID:   u.ID,
		Username: u.Username,
		Rating:   req.Rating,
		Comment:  req.Comment,
	}); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, messageResponse{Message: "Review added successfully"})
}

// ListReviews returns a product's reviews, oldest first.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.products.Reviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReviews(reviews))
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetCart returns the caller's cart with live catalog data.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	views, err := h.carts.View(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toCart(views))
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds units of a product to the caller's cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	views, err := h.carts.Add(r.Context(), principal(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toCart(views))
}

type updateCartLineRequest struct {
	Delta int `json:"delta"`
}

// UpdateCartLine changes the quantity of a cart line by delta.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	var req updateCartLineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	views, err := h.carts.Update(r.Context(), principal(r).UserID, chi.URLParam(r, "productId"), req.Delta)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toCart(views))
}

type cartEnvelope struct {
	Cart []cartLineResponse `json:"cart"`
}

// RemoveFromCart drops a product from the caller's cart. Removing an absent
// product succeeds.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	views, err := h.carts.Remove(r.Context(), principal(r).UserID, chi.URLParam(r, "productId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartEnvelope{Cart: h.toCart(views)})
}

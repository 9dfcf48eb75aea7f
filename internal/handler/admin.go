package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
)

type statsResponse struct {
	TotalOrders    int64 `json:"totalOrders"`
	TotalRevenue   money `json:"totalRevenue"`
	TotalUsers     int64 `json:"totalUsers"`
	TotalProducts  int64 `json:"totalProducts"`
	PendingSellers int64 `json:"pendingSellers"`
}

// AdminStats returns marketplace totals.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.admin.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{
		TotalOrders:    s.TotalOrders,
		TotalRevenue:   money(s.TotalRevenue),
		TotalUsers:     s.TotalUsers,
		TotalProducts:  s.TotalProducts,
		PendingSellers: s.PendingSellers,
	})
}

func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUsers(users))
}

func (h *Handler) AdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), product.Filter{})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toProducts(products))
}

func (h *Handler) AdminSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.sellers.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOwnSellers(sellers))
}

// ApproveSeller verifies a pending storefront.
func (h *Handler) ApproveSeller(w http.ResponseWriter, r *http.Request) {
	s, err := h.sellers.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOwnSeller(*s))
}

func toOwnSellers(ss []seller.Seller) []ownSellerResponse {
	out := make([]ownSellerResponse, len(ss))
	for i, s := range ss {
		out[i] = toOwnSeller(s)
	}
	return out
}

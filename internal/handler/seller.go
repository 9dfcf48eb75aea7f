package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/makehive/marketplace/internal/domain/seller"
)

type registerSellerRequest struct {
	BusinessName string `json:"businessName"`
	Description  string `json:"description"`
	GSTNumber    string `json:"gstNumber"`
	UPIID        string `json:"upiId"`
}

// RegisterSeller opens a storefront for the caller.
func (h *Handler) RegisterSeller(w http.ResponseWriter, r *http.Request) {
	var req registerSellerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s, err := h.sellers.Register(r.Context(), principal(r).UserID, seller.RegisterRequest{
		BusinessName:  req.BusinessName,
		Description:   req.Description,
		GSTNumber:     req.GSTNumber,
		PayoutAddress: req.UPIID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOwnSeller(*s))
}

// MySeller returns the caller's storefront including payout details.
func (h *Handler) MySeller(w http.ResponseWriter, r *http.Request) {
	s, err := h.sellers.Mine(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOwnSeller(*s))
}

type updatePayoutRequest struct {
	UPIID string `json:"upiId"`
}

// UpdatePayout sets the UPI id the caller's storefront is paid into.
func (h *Handler) UpdatePayout(w http.ResponseWriter, r *http.Request) {
	var req updatePayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s, err := h.sellers.UpdatePayout(r.Context(), principal(r).UserID, req.UPIID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOwnSeller(*s))
}

// GetSeller returns a public storefront profile. Payout details are omitted.
func (h *Handler) GetSeller(w http.ResponseWriter, r *http.Request) {
	s, err := h.sellers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSeller(*s))
}

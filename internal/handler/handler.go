// Package handler implements the marketplace REST API on top of the domain
// services.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/auth"
	"github.com/makehive/marketplace/internal/domain/admin"
	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/checkout"
	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/upi"
	"github.com/makehive/marketplace/internal/domain/user"
)

// maxBodySize limits request bodies.
const maxBodySize = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Deps are the domain collaborators of the Handler.
type Deps struct {
	Products *product.Service
	Sellers  *seller.Service
	Carts    *cart.Service
	Orders   *order.Service
	Admin    *admin.Service
	Users    user.Repository
	Checkout *checkout.Aggregator
	Encoder  *upi.Encoder
}

// Handler serves the REST API, delegating business logic to the domain
// services.
type Handler struct {
	products     *product.Service
	sellers      *seller.Service
	carts        *cart.Service
	orders       *order.Service
	admin        *admin.Service
	users        user.Repository
	checkout     *checkout.Aggregator
	encoder      *upi.Encoder
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, deps Deps) *Handler {
	return &Handler{
		products:     deps.Products,
		sellers:      deps.Sellers,
		carts:        deps.Carts,
		orders:       deps.Orders,
		admin:        deps.Admin,
		users:        deps.Users,
		checkout:     deps.Checkout,
		encoder:      deps.Encoder,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router. Endpoints that act on behalf of a user
// require a bearer token accepted by verifier.
func (h *Handler) Routes(verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, apperr.NotFound("route %s not found", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, apperr.Body{Kind: "method_not_allowed", Message: "method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/search", h.SearchProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/products/{id}/reviews", h.ListReviews)
		r.Get("/sellers/{id}", h.GetSeller)

		r.Group(func(r chi.Router) {
			r.Use(verifier.Middleware)

			r.Post("/products", h.CreateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/products/{id}/reviews", h.AddReview)

			r.Post("/sellers", h.RegisterSeller)
			r.Get("/sellers/me", h.MySeller)
			r.Put("/sellers/me/payout", h.UpdatePayout)

			r.Get("/cart", h.GetCart)
			r.Post("/cart", h.AddToCart)
			r.Patch("/cart/{productId}", h.UpdateCartLine)
			r.Delete("/cart/{productId}", h.RemoveFromCart)

			r.Post("/upi", h.CreatePaymentRequests)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.ListOrders)
			r.Delete("/orders/all", h.ClearOrders)
			r.Patch("/orders/{id}/status", h.UpdateOrderStatus)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/stats", h.AdminStats)
				r.Get("/orders", h.AdminOrders)
				r.Get("/users", h.AdminUsers)
				r.Get("/products", h.AdminProducts)
				r.Get("/sellers", h.AdminSellers)
				r.Put("/sellers/{id}/approve", h.ApproveSeller)
			})
		})
	})
	return r
}

// principal returns the authenticated caller. Routes using it are mounted
// behind the auth middleware.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body required")
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apperr.WriteHTTP(w, r, err)
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(image string) string {
	if image == "" || h.imageBaseURL == "" {
		return image
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") || strings.HasPrefix(image, "data:") {
		return image
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(image, "/")
}

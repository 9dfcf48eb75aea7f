package cart

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/product"
)

// Service manages shopper carts.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Add puts quantity units of productID into the user's cart and returns the
// updated view.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) ([]View, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperr.Validation("productId required")
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 || quantity > MaxQuantity {
		return nil, apperr.Validation("quantity must be between 1 and %d", MaxQuantity)
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	if err := s.apply(ctx, userID, productID, quantity); err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

// Update changes the quantity of an existing line by delta. Dropping below
// one removes the line. Products not already in the cart are rejected.
func (s *Service) Update(ctx context.Context, userID, productID string, delta int) ([]View, error) {
	if delta == 0 {
		return nil, apperr.Validation("delta must not be zero")
	}
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart lines")
	}
	if !slices.ContainsFunc(lines, func(l Line) bool { return l.ProductID == productID }) {
		return nil, apperr.NotFound("product %s is not in the cart", productID)
	}
	if err := s.apply(ctx, userID, productID, delta); err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

func (s *Service) apply(ctx context.Context, userID, productID string, delta int) error {
	if _, err := s.carts.Upsert(ctx, userID, productID, delta); err != nil {
		if errors.Is(err, ErrQuantityLimit) {
			return err
		}
		return errors.Wrap(err, "upsert cart line")
	}
	return nil
}

// Remove deletes productID from the cart and returns the updated view.
func (s *Service) Remove(ctx context.Context, userID, productID string) ([]View, error) {
	if err := s.carts.Remove(ctx, userID, productID); err != nil {
		return nil, errors.Wrap(err, "remove cart line")
	}
	return s.View(ctx, userID)
}

// View returns the cart joined with current catalog data. Lines whose
// product no longer exists are omitted.
func (s *Service) View(ctx context.Context, userID string) ([]View, error) {
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart lines")
	}
	if len(lines) == 0 {
		return []View{}, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	views := make([]View, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			zctx.From(ctx).Debug("Cart references missing product", zap.String("product_id", l.ProductID))
			continue
		}
		views = append(views, View{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Quantity:  l.Quantity,
		})
	}
	return views, nil
}

// Package admin provides marketplace-wide moderation views.
package admin

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

// Stats is the admin dashboard summary.
type Stats struct {
	TotalOrders    int64
	TotalRevenue   decimal.Decimal
	TotalUsers     int64
	TotalProducts  int64
	PendingSellers int64
}

// Service computes admin summaries.
type Service struct {
	orders   order.Repository
	users    user.Repository
	products product.Repository
	sellers  seller.Repository
}

func NewService(orders order.Repository, users user.Repository, products product.Repository, sellers seller.Repository) *Service {
	return &Service{orders: orders, users: users, products: products, sellers: sellers}
}

// Stats gathers counts and earned revenue. Revenue only counts orders that
// have been paid and not cancelled or refunded.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.TotalOrders, err = s.orders.Count(gctx)
		return errors.Wrap(err, "count orders")
	})
	g.Go(func() (err error) {
		st.TotalRevenue, err = s.orders.Revenue(gctx, order.RevenueStatuses...)
		return errors.Wrap(err, "sum revenue")
	})
	g.Go(func() (err error) {
		st.TotalUsers, err = s.users.Count(gctx)
		return errors.Wrap(err, "count users")
	})
	g.Go(func() (err error) {
		st.TotalProducts, err = s.products.Count(gctx)
		return errors.Wrap(err, "count products")
	})
	g.Go(func() (err error) {
		st.PendingSellers, err = s.sellers.CountPending(gctx)
		return errors.Wrap(err, "count pending sellers")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}

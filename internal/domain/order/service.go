package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

// Sentinel errors for order validation.
var (
	ErrEmptyLines    = apperr.Validation("no products in order")
	ErrAmountMissing = apperr.Validation("amount required")
)

// DefaultNotifyTimeout bounds the confirmation notification.
const DefaultNotifyTimeout = 5 * time.Second

// LineRequest is a line as submitted by the buyer.
type LineRequest struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// FinalizeRequest holds the input for recording an order.
type FinalizeRequest struct {
	UserID string
	Lines  []LineRequest
	// Amount is the total the buyer agreed to pay.
	Amount        *decimal.Decimal
	Paid          bool
	TransactionID string
}

// Actor is the caller of a status change.
type Actor struct {
	UserID string
	Admin  bool
}

// Service encapsulates order recording and fulfilment.
type Service struct {
	orders        Repository
	users         user.Repository
	products      product.Repository
	sellers       seller.Repository
	notifier      Notifier
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	users user.Repository,
	products product.Repository,
	sellers seller.Repository,
	notifier Notifier,
	notifyTimeout time.Duration,
) *Service {
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}
	return &Service{
		orders:        orders,
		users:         users,
		products:      products,
		sellers:       sellers,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// Finalize validates the submitted lines against the claimed amount and the
// live catalog, persists the order, clears the ordered products from the
// cart and notifies the buyer.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}
	if req.Amount == nil {
		return nil, ErrAmountMissing
	}

	computed := decimal.Zero
	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.ProductID == "" {
			return nil, apperr.Validation("productId required")
		}
		if l.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1 for product %s", l.ProductID)
		}
		if l.Price.IsNegative() {
			return nil, apperr.Validation("price must not be negative for product %s", l.ProductID)
		}
		computed = computed.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		ids = append(ids, l.ProductID)
	}
	// Exact comparison; sub-cent differences are mismatches too.
	if !req.Amount.Equal(computed) {
		return nil, &TotalMismatchError{Claimed: *req.Amount, Computed: computed}
	}

	u, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(req.Lines))
	for i, l := range req.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %s not found", l.ProductID)
		}
		if !p.Price.Equal(l.Price) {
			return nil, apperr.Validation("price of %s changed to %s", p.Name, p.Price.StringFixed(2))
		}
		lines[i] = Line{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			Price:     p.Price,
		}
	}

	status := StatusCreated
	if req.Paid {
		status = StatusPaid
	}
	now := s.now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        u.ID,
		Lines:         lines,
		Total:         computed,
		Status:        status,
		TransactionID: req.TransactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Finalize(ctx, o); err != nil {
		return nil, errors.Wrap(err, "finalize order")
	}

	lg := zctx.From(ctx)
	lg.Info("Order recorded",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("status", string(o.Status)),
	)

	s.notify(ctx, *u, o)
	return o, nil
}

func (s *Service) notify(ctx context.Context, u user.User, o *Order) {
	if s.notifier == nil {
		return
	}
	// The order is already durable; a cancelled request must not stop the
	// notification.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyOrderConfirmed(nctx, u, o); err != nil {
		zctx.From(ctx).Warn("Order confirmation failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ListAll returns every order, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ClearHistory removes all of the user's orders.
func (s *Service) ClearHistory(ctx context.Context, userID string) (int64, error) {
	n, err := s.orders.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete orders")
	}
	zctx.From(ctx).Info("Order history cleared", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}

// UpdateStatus moves an order along its lifecycle on behalf of actor.
//
// Buyers may mark their own order paid or cancelled. Sellers owning any line
// drive fulfilment. Admins may apply any legal transition.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, orderID string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, apperr.Validation("unknown status %q", to)
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, apperr.Validation("cannot change order from %s to %s", o.Status, to)
	}
	if err := s.authorize(ctx, actor, o, to); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.String("actor", actor.UserID),
	)
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	return o, nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, o *Order, to Status) error {
	if actor.Admin {
		return nil
	}
	if actor.UserID == o.UserID && (to == StatusPaid || to == StatusCancelled) {
		return nil
	}
	switch to {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		sel, err := s.sellers.GetByUserID(ctx, actor.UserID)
		if errors.Is(err, seller.ErrNotFound) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "get seller")
		}
		if o.HasSeller(sel.ID) {
			return nil
		}
	}
	return apperr.Forbidden("not allowed to set order %s to %s", o.ID, to)
}

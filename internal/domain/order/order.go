package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/user"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusCreated    Status = "created"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// RevenueStatuses are the states whose totals count as earned revenue.
var RevenueStatuses = []Status{StatusPaid, StatusProcessing, StatusShipped, StatusDelivered}

// PurchaseVoidStatuses are statuses of orders that no longer count as a
// purchase.
var PurchaseVoidStatuses = []Status{StatusCancelled, StatusRefunded}

var transitions = map[Status][]Status{
	StatusCreated:    {StatusPaid, StatusProcessing, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Line is a purchased product with its price and seller captured at
// purchase time.
type Line struct {
	ProductID string          `json:"product_id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns Price × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a persisted purchase record.
type Order struct {
	ID            string
	UserID        string
	Lines         []Line
	Total         decimal.Decimal
	Status        Status
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductIDs returns the distinct product ids in the order, in line order.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// HasSeller reports whether any line belongs to sellerID.
func (o *Order) HasSeller(sellerID string) bool {
	for _, l := range o.Lines {
		if l.SellerID == sellerID {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = apperr.NotFound("order not found")

// ErrStatusChanged is returned by UpdateStatus when the order left the
// expected state concurrently.
var ErrStatusChanged = apperr.Conflict("order status changed concurrently")

// TotalMismatchError is returned when the client-claimed amount differs from
// the sum of the order lines.
type TotalMismatchError struct {
	Claimed  decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("amount %s does not match order total %s",
		e.Claimed.String(), e.Computed.String())
}

func (e *TotalMismatchError) Kind() apperr.Kind { return apperr.KindValidation }

// Repository defines persistence operations for orders.
type Repository interface {
	// Finalize inserts o and removes its products from the owner's cart.
	// The cart clear removes exactly the products in o.
	Finalize(ctx context.Context, o *Order) error
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// List returns all orders, newest first.
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from one status to another. It returns
	// ErrStatusChanged when the order is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// HasPurchased reports whether userID has an order for productID that
	// is not in one of PurchaseVoidStatuses.
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
	// DeleteByUser removes the user's order history and returns how many
	// orders were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// Revenue sums totals of orders in the given statuses.
	Revenue(ctx context.Context, statuses ...Status) (decimal.Decimal, error)
	Count(ctx context.Context) (int64, error)
}

// Notifier announces confirmed orders to the buyer.
type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, u user.User, o *Order) error
}

package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/apperr"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 99

// ErrQuantityLimit is returned when a change would take a line outside
// 1..MaxQuantity.
var ErrQuantityLimit = apperr.Validation("quantity must be between 1 and %d", MaxQuantity)

// Line is a product reference and quantity held in a user's cart. Display
// fields are never stored on the line; they are resolved from the catalog
// at read time.
type Line struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// View is a cart line joined with live catalog data.
type View struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Image     string
	Quantity  int
}

// Repository defines persistence operations for carts. Every method must
// be atomic per user.
type Repository interface {
	// Lines returns the user's cart lines in insertion order.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Upsert adds delta to the line for productID, creating it when absent.
	// A resulting quantity below 1 removes the line. A resulting quantity
	// above MaxQuantity leaves the line unchanged and returns
	// ErrQuantityLimit; the check and the write are one atomic step.
	// Returns the resulting quantity (0 when removed). Returns
	// user.ErrNotFound for unknown users.
	Upsert(ctx context.Context, userID, productID string, delta int) (int, error)
	// Remove deletes the lines for productIDs. Absent lines are ignored, so
	// repeated calls converge on the same state.
	Remove(ctx context.Context, userID string, productIDs ...string) error
}

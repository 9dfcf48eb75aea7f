package seller

import (
	"context"
	"regexp"
	"time"

	"github.com/makehive/marketplace/internal/apperr"
)

var (
	// ErrNotFound is returned when a requested seller does not exist.
	ErrNotFound = apperr.NotFound("seller not found")
	// ErrAlreadyRegistered is returned when a user registers a second storefront.
	ErrAlreadyRegistered = apperr.Conflict("user already has a storefront")
)

// Seller is a marketplace vendor that owns products and receives payments.
type Seller struct {
	ID           string
	UserID       string
	BusinessName string
	Description  string
	GSTNumber    string
	// PayoutAddress is the UPI id buyers pay into. Empty until the seller
	// completes payment setup.
	PayoutAddress string
	Verified      bool
	CreatedAt     time.Time
	// Rating is the review-weighted mean over the seller's products.
	Rating     float64
	NumReviews int
}

// Repository defines persistence operations for sellers.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Seller, error)
	GetByUserID(ctx context.Context, userID string) (*Seller, error)
	// GetByIDs returns the sellers that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]Seller, error)
	List(ctx context.Context) ([]Seller, error)
	Create(ctx context.Context, s *Seller) error
	UpdatePayout(ctx context.Context, id, address string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	SetRating(ctx context.Context, id string, rating float64, numReviews int) error
	CountPending(ctx context.Context) (int64, error)
}

// upiPattern matches a UPI virtual payment address such as "shop.name@okbank".
var upiPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{2,256}@[A-Za-z][A-Za-z0-9]{1,63}$`)

// ValidPayoutAddress reports whether addr is a well-formed UPI id.
func ValidPayoutAddress(addr string) bool {
	return upiPattern.MatchString(addr)
}

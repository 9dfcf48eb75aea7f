package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.NotFound("product not found")
	// ErrAlreadyReviewed is returned for a second review by the same user.
	ErrAlreadyReviewed = apperr.Conflict("you have already reviewed this product")
)

// Product represents a catalog item listed by a seller.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Image    string
	SellerID string
	// Rating is the mean of all review ratings, 0 without reviews.
	Rating     float64
	NumReviews int
	CreatedAt  time.Time
}

// Review is a buyer's rating of a product. A user reviews a product at
// most once.
type Review struct {
	UserID    string
	Username  string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Filter narrows List results. Zero value lists everything.
type Filter struct {
	SellerID string
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Unknown ids are silently absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Search(ctx context.Context, query string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	// Delete removes the product only when it belongs to sellerID.
	// It returns ErrNotFound otherwise.
	Delete(ctx context.Context, id, sellerID string) error
	Count(ctx context.Context) (int64, error)
	// AddReview stores r and recomputes the product's Rating and NumReviews
	// in the same atomic step. It returns ErrAlreadyReviewed when r.UserID
	// already reviewed the product and ErrNotFound for unknown products.
	AddReview(ctx context.Context, productID string, r Review) error
	// Reviews returns the product's reviews, oldest first.
	Reviews(ctx context.Context, productID string) ([]Review, error)
}

// Purchases reports whether a user bought a product.
type Purchases interface {
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

// Searcher is an external full-text index over the catalog.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Product, error)
}

// Indexer keeps an external search index in sync with catalog writes.
type Indexer interface {
	Index(ctx context.Context, p Product) error
	Remove(ctx context.Context, id string) error
}

package product

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/seller"
)

// CreateRequest holds the listing details supplied by a seller.
type CreateRequest struct {
	Name  string
	Price decimal.Decimal
	Image string
}

// MaxCommentLength caps a review comment, in runes.
const MaxCommentLength = 2000

// ReviewRequest holds a buyer's review of a product.
type ReviewRequest struct {
	UserID   string
	Username string
	Rating   int
	Comment  string
}

// Service encapsulates catalog reads, seller listing management and
// product reviews.
type Service struct {
	products  Repository
	sellers   seller.Repository
	purchases Purchases
	searcher  Searcher
	indexer   Indexer
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithSearch routes Search through an external index and keeps it updated
// on writes. Store search is used when the index fails.
func WithSearch(s Searcher, i Indexer) Option {
	return func(svc *Service) {
		svc.searcher = s
		svc.indexer = i
	}
}

// NewService creates a product Service. purchases gates reviews to buyers.
func NewService(products Repository, sellers seller.Repository, purchases Purchases, opts ...Option) *Service {
	s := &Service{products: products, sellers: sellers, purchases: purchases, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns catalog products matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	return s.products.List(ctx, f)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// Search finds products whose name matches query.
func (s *Service) Search(ctx context.Context, query string) ([]Product, error) {
	query = strings.TrimSpace(query)
	if s.searcher != nil && query != "" {
		found, err := s.searcher.Search(ctx, query)
		if err == nil {
			return found, nil
		}
		zctx.From(ctx).Warn("Search index failed, using store", zap.Error(err))
	}
	return s.products.Search(ctx, query)
}

// Create lists a new product under the storefront owned by userID.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("product name required")
	}
	if req.Price.IsNegative() {
		return nil, apperr.Validation("price must not be negative")
	}

	sl, err := s.sellers.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, seller.ErrNotFound) {
			return nil, apperr.Forbidden("register a storefront before listing products")
		}
		return nil, errors.Wrap(err, "lookup seller")
	}
	if !sl.Verified {
		return nil, apperr.Forbidden("storefront %s is awaiting approval", sl.ID)
	}

	p := &Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     req.Price.Round(2),
		Image:     strings.TrimSpace(req.Image),
		SellerID:  sl.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, *p); err != nil {
			zctx.From(ctx).Warn("Index product failed", zap.String("product_id", p.ID), zap.Error(err))
		}
	}
	return p, nil
}

// Delete removes a product owned by the storefront of userID.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	sl, err := s.sellers.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, seller.ErrNotFound) {
			return apperr.Forbidden("only sellers can delete products")
		}
		return errors.Wrap(err, "lookup seller")
	}
	if err := s.products.Delete(ctx, id, sl.ID); err != nil {
		return err
	}

	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, id); err != nil {
			zctx.From(ctx).Warn("Remove product from index failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	return nil
}

// AddReview records a review by a buyer of the product and refreshes the
// product and seller ratings.
func (s *Service) AddReview(ctx context.Context, productID string, req ReviewRequest) error {
	if req.Rating < 1 || req.Rating > 5 {
		return apperr.Validation("rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return apperr.Validation("comment must be at most %d characters", MaxCommentLength)
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	bought, err := s.purchases.HasPurchased(ctx, req.UserID, p.ID)
	if err != nil {
		return errors.Wrap(err, "check purchase")
	}
	if !bought {
		return apperr.Forbidden("you can only review products you have purchased")
	}

	if err := s.products.AddReview(ctx, p.ID, Review{
		UserID:    req.UserID,
		Username:  req.Username,
		Rating:    req.Rating,
		Comment:   comment,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return err
	}

	lg := zctx.From(ctx)
	lg.Info("Review added",
		zap.String("product_id", p.ID),
		zap.String("user_id", req.UserID),
		zap.Int("rating", req.Rating),
	)

	// The review is stored; a failed refresh is repaired by the next review.
	if err := s.refreshSellerRating(ctx, p.SellerID); err != nil {
		lg.Warn("Refresh seller rating failed", zap.String("seller_id", p.SellerID), zap.Error(err))
	}
	if s.indexer != nil {
		if err := s.reindex(ctx, p.ID); err != nil {
			lg.Warn("Reindex product failed", zap.String("product_id", p.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) reindex(ctx context.Context, id string) error {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.indexer.Index(ctx, *p)
}

// Reviews returns a product's reviews, oldest first.
func (s *Service) Reviews(ctx context.Context, productID string) ([]Review, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.products.Reviews(ctx, productID)
}

func (s *Service) refreshSellerRating(ctx context.Context, sellerID string) error {
	products, err := s.products.List(ctx, Filter{SellerID: sellerID})
	if err != nil {
		return errors.Wrap(err, "list seller products")
	}
	rating, n := SellerRating(products)
	if err := s.sellers.SetRating(ctx, sellerID, rating, n); err != nil {
		return errors.Wrap(err, "set seller rating")
	}
	return nil
}

// SellerRating is the mean product rating weighted by review count, and the
// total review count.
func SellerRating(products []Product) (rating float64, numReviews int) {
	var sum float64
	for _, p := range products {
		sum += p.Rating * float64(p.NumReviews)
		numReviews += p.NumReviews
	}
	if numReviews == 0 {
		return 0, 0
	}
	return sum / float64(numReviews), numReviews
}

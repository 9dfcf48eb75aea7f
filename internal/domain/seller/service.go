package seller

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/apperr"
)

// RegisterRequest holds the storefront details supplied by a user.
type RegisterRequest struct {
	BusinessName  string
	Description   string
	GSTNumber     string
	PayoutAddress string
}

// Service encapsulates storefront registration and moderation.
type Service struct {
	sellers    Repository
	autoVerify bool
	now        func() time.Time
}

// NewService creates a seller Service. When autoVerify is set, new
// storefronts can list products immediately; otherwise an admin must
// approve them first.
func NewService(sellers Repository, autoVerify bool) *Service {
	return &Service{sellers: sellers, autoVerify: autoVerify, now: time.Now}
}

// Register creates a storefront owned by userID.
func (s *Service) Register(ctx context.Context, userID string, req RegisterRequest) (*Seller, error) {
	name := strings.TrimSpace(req.BusinessName)
	if name == "" {
		return nil, apperr.Validation("business name required")
	}
	addr := strings.TrimSpace(req.PayoutAddress)
	if addr != "" && !ValidPayoutAddress(addr) {
		return nil, apperr.Validation("invalid UPI id %q", addr)
	}

	_, err := s.sellers.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		return nil, ErrAlreadyRegistered
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "lookup existing storefront")
	}

	sl := &Seller{
		ID:            uuid.New().String(),
		UserID:        userID,
		BusinessName:  name,
		Description:   strings.TrimSpace(req.Description),
		GSTNumber:     strings.TrimSpace(req.GSTNumber),
		PayoutAddress: addr,
		Verified:      s.autoVerify,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.sellers.Create(ctx, sl); err != nil {
		return nil, errors.Wrap(err, "create seller")
	}

	zctx.From(ctx).Info("Seller registered",
		zap.String("seller_id", sl.ID),
		zap.String("user_id", userID),
		zap.Bool("verified", sl.Verified),
	)
	return sl, nil
}

// Mine returns the storefront owned by userID.
func (s *Service) Mine(ctx context.Context, userID string) (*Seller, error) {
	return s.sellers.GetByUserID(ctx, userID)
}

// Get returns a storefront by id.
func (s *Service) Get(ctx context.Context, id string) (*Seller, error) {
	return s.sellers.GetByID(ctx, id)
}

// List returns every storefront.
func (s *Service) List(ctx context.Context) ([]Seller, error) {
	return s.sellers.List(ctx)
}

// UpdatePayout sets the UPI id of the storefront owned by userID.
func (s *Service) UpdatePayout(ctx context.Context, userID, address string) (*Seller, error) {
	address = strings.TrimSpace(address)
	if !ValidPayoutAddress(address) {
		return nil, apperr.Validation("invalid UPI id %q", address)
	}

	sl, err := s.sellers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sellers.UpdatePayout(ctx, sl.ID, address); err != nil {
		return nil, errors.Wrap(err, "update payout")
	}
	sl.PayoutAddress = address
	return sl, nil
}

// Approve marks a storefront verified.
func (s *Service) Approve(ctx context.Context, id string) (*Seller, error) {
	if err := s.sellers.SetVerified(ctx, id, true); err != nil {
		return nil, err
	}
	return s.sellers.GetByID(ctx, id)
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

const (
	sellerInsertColumns = `id, user_id, business_name, description, gst_number, payout_address, verified, created_at`
	sellerColumns       = sellerInsertColumns + `, rating, num_reviews`

	getSellerSQL       = `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1`
	getSellerByUserSQL = `SELECT ` + sellerColumns + ` FROM sellers WHERE user_id = $1`
	getSellersByIDsSQL = `SELECT ` + sellerColumns + ` FROM sellers WHERE id = ANY($1)`
	listSellersSQL     = `SELECT ` + sellerColumns + ` FROM sellers ORDER BY created_at DESC`
	createSellerSQL    = `INSERT INTO sellers (` + sellerInsertColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	updatePayoutSQL    = `UPDATE sellers SET payout_address = $2 WHERE id = $1`
	setVerifiedSQL     = `UPDATE sellers SET verified = $2 WHERE id = $1`
	setRatingSQL       = `UPDATE sellers SET rating = $2, num_reviews = $3 WHERE id = $1`
	countPendingSQL    = `SELECT count(*) FROM sellers WHERE NOT verified`
)

var _ seller.Repository = (*SellerRepository)(nil)

// SellerRepository implements seller.Repository backed by PostgreSQL.
type SellerRepository struct {
	pool *pgxpool.Pool
}

// NewSellerRepository returns a SellerRepository that uses the given pool.
func NewSellerRepository(pool *pgxpool.Pool) *SellerRepository {
	return &SellerRepository{pool: pool}
}

func (r *SellerRepository) GetByID(ctx context.Context, id string) (*seller.Seller, error) {
	return r.getOne(ctx, getSellerSQL, id)
}

func (r *SellerRepository) GetByUserID(ctx context.Context, userID string) (*seller.Seller, error) {
	return r.getOne(ctx, getSellerByUserSQL, userID)
}

func (r *SellerRepository) getOne(ctx context.Context, query, arg string) (*seller.Seller, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, storeErr(err, "get seller")
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSeller)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, seller.ErrNotFound
		}
		return nil, storeErr(err, "get seller")
	}
	return &s, nil
}

func (r *SellerRepository) GetByIDs(ctx context.Context, ids []string) ([]seller.Seller, error) {
	rows, err := r.pool.Query(ctx, getSellersByIDsSQL, ids)
	if err != nil {
		return nil, storeErr(err, "get sellers by ids")
	}
	sellers, err := pgx.CollectRows(rows, scanSeller)
	if err != nil {
		return nil, storeErr(err, "get sellers by ids")
	}
	return sellers, nil
}

func (r *SellerRepository) List(ctx context.Context) ([]seller.Seller, error) {
	rows, err := r.pool.Query(ctx, listSellersSQL)
	if err != nil {
		return nil, storeErr(err, "list sellers")
	}
	sellers, err := pgx.CollectRows(rows, scanSeller)
	if err != nil {
		return nil, storeErr(err, "list sellers")
	}
	return sellers, nil
}

func (r *SellerRepository) Create(ctx context.Context, s *seller.Seller) error {
	_, err := r.pool.Exec(ctx, createSellerSQL,
		s.ID, s.UserID, s.BusinessName, s.Description, s.GSTNumber,
		s.PayoutAddress, s.Verified, s.CreatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return seller.ErrAlreadyRegistered
		case codeForeignKeyViolation:
			return user.ErrNotFound
		}
		return storeErr(err, "create seller")
	}
	return nil
}

func (r *SellerRepository) UpdatePayout(ctx context.Context, id, address string) error {
	return r.update(ctx, updatePayoutSQL, "update payout", id, address)
}

func (r *SellerRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	return r.update(ctx, setVerifiedSQL, "set verified", id, verified)
}

func (r *SellerRepository) SetRating(ctx context.Context, id string, rating float64, numReviews int) error {
	return r.update(ctx, setRatingSQL, "set rating", id, rating, numReviews)
}

func (r *SellerRepository) update(ctx context.Context, query, op string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return storeErr(err, op)
	}
	if tag.RowsAffected() == 0 {
		return seller.ErrNotFound
	}
	return nil
}

func (r *SellerRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countPendingSQL).Scan(&n); err != nil {
		return 0, storeErr(err, "count pending sellers")
	}
	return n, nil
}

func scanSeller(row pgx.CollectableRow) (seller.Seller, error) {
	var s seller.Seller
	err := row.Scan(
		&s.ID, &s.UserID, &s.BusinessName, &s.Description, &s.GSTNumber,
		&s.PayoutAddress, &s.Verified, &s.CreatedAt, &s.Rating, &s.NumReviews,
	)
	return s, err
}

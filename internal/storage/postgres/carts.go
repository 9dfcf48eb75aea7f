package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/user"
)

const (
	cartLinesSQL = `SELECT product_id, quantity, added_at FROM cart_lines
		WHERE user_id = $1 ORDER BY added_at, product_id`

	upsertCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		WHERE cart_lines.quantity + EXCLUDED.quantity <= $4
		RETURNING quantity`

	deleteCartLineSQL  = `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`
	deleteCartLinesSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = ANY($2)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Each line
// is a row keyed by (user_id, product_id), so concurrent updates to one line
// serialize on its row lock.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, cartLinesSQL, userID)
	if err != nil {
		return nil, storeErr(err, "get cart lines")
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity, &l.AddedAt)
		return l, err
	})
	if err != nil {
		return nil, storeErr(err, "get cart lines")
	}
	return lines, nil
}

func (r *CartRepository) Upsert(ctx context.Context, userID, productID string, delta int) (qty int, err error) {
	if delta > cart.MaxQuantity {
		return 0, cart.ErrQuantityLimit
	}
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upsertCartLineSQL, userID, productID, delta, cart.MaxQuantity).Scan(&qty)
		if errors.Is(err, pgx.ErrNoRows) {
			// The conflict update was filtered out by the bound.
			return cart.ErrQuantityLimit
		}
		if err != nil {
			return err
		}
		if qty < 1 {
			qty = 0
			_, err := tx.Exec(ctx, deleteCartLineSQL, userID, productID)
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, cart.ErrQuantityLimit) {
			return 0, err
		}
		if pgCode(err) == codeForeignKeyViolation {
			return 0, user.ErrNotFound
		}
		return 0, storeErr(err, "upsert cart line")
	}
	return qty, nil
}

func (r *CartRepository) Remove(ctx context.Context, userID string, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, deleteCartLinesSQL, userID, productIDs); err != nil {
		return storeErr(err, "remove cart lines")
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/user"
)

const (
	orderColumns = `id, user_id, lines, total, status, transaction_id, created_at, updated_at`

	createOrderSQL     = `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	listUserOrdersSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`
	listOrdersSQL      = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id`
	getOrderSQL        = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	updateStatusSQL    = `UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`
	orderExistsSQL     = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
	deleteUserOrderSQL = `DELETE FROM orders WHERE user_id = $1`
	revenueSQL         = `SELECT COALESCE(sum(total), 0) FROM orders WHERE status = ANY($1)`
	countOrdersSQL     = `SELECT count(*) FROM orders`
	hasPurchasedSQL    = `SELECT EXISTS (SELECT 1 FROM orders
		WHERE user_id = $1 AND lines @> jsonb_build_array(jsonb_build_object('product_id', $2::text))
		AND NOT (status = ANY($3)))`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Finalize persists o and clears its products from the owner's cart in one
// transaction. Lines are serialized to JSON for the JSONB column.
func (r *OrderRepository) Finalize(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.UserID, linesJSON, o.Total, string(o.Status),
			o.TransactionID, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, deleteCartLinesSQL, o.UserID, o.ProductIDs())
		return err
	})
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return user.ErrNotFound
		}
		return storeErr(err, "finalize order")
	}
	return nil
}

func (r *OrderRepository) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	void := make([]string, len(order.PurchaseVoidStatuses))
	for i, st := range order.PurchaseVoidStatuses {
		void[i] = string(st)
	}
	var ok bool
	if err := r.pool.QueryRow(ctx, hasPurchasedSQL, userID, productID, void).Scan(&ok); err != nil {
		return false, storeErr(err, "check purchase")
	}
	return ok, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, storeErr(err, "list user orders")
	}
	return collectOrders(rows, "list user orders")
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, storeErr(err, "list orders")
	}
	return collectOrders(rows, "list orders")
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, storeErr(err, "get order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, storeErr(err, "get order")
	}
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, id, string(from), string(to))
	if err != nil {
		return storeErr(err, "update order status")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return storeErr(err, "check order")
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusChanged
}

func (r *OrderRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteUserOrderSQL, userID)
	if err != nil {
		return 0, storeErr(err, "delete user orders")
	}
	return tag.RowsAffected(), nil
}

func (r *OrderRepository) Revenue(ctx context.Context, statuses ...order.Status) (decimal.Decimal, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, revenueSQL, names).Scan(&total); err != nil {
		return decimal.Zero, storeErr(err, "sum revenue")
	}
	return total, nil
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countOrdersSQL).Scan(&n); err != nil {
		return 0, storeErr(err, "count orders")
	}
	return n, nil
}

func collectOrders(rows pgx.Rows, op string) ([]order.Order, error) {
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, storeErr(err, op)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		status    string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &o.Total, &status,
		&o.TransactionID, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, errors.Wrapf(err, "unmarshal lines of order %s", o.ID)
	}
	return o, nil
}

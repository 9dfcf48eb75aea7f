package postgres

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

const (
	productColumns = `id, name, price, image, seller_id, created_at, rating, num_reviews`

	listProductsSQL     = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`
	listBySellerSQL     = `SELECT ` + productColumns + ` FROM products WHERE seller_id = $1 ORDER BY created_at DESC, id`
	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	searchProductsSQL   = `SELECT ` + productColumns + ` FROM products WHERE name ILIKE $1 ORDER BY name, id`
	createProductSQL    = `INSERT INTO products (id, name, price, image, seller_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	deleteProductSQL    = `DELETE FROM products WHERE id = $1 AND seller_id = $2`
	countProductsSQL    = `SELECT count(*) FROM products`

	lockProductSQL   = `SELECT 1 FROM products WHERE id = $1 FOR UPDATE`
	insertReviewSQL  = `INSERT INTO product_reviews (product_id, user_id, username, rating, comment, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	refreshRatingSQL = `UPDATE products SET (rating, num_reviews) =
		(SELECT COALESCE(avg(rating), 0)::float8, count(*) FROM product_reviews WHERE product_id = $1)
		WHERE id = $1`
	listReviewsSQL = `SELECT user_id, username, rating, comment, created_at FROM product_reviews
		WHERE product_id = $1 ORDER BY created_at, user_id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns catalog products, newest first.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if f.SellerID != "" {
		rows, err = r.pool.Query(ctx, listBySellerSQL, f.SellerID)
	} else {
		rows, err = r.pool.Query(ctx, listProductsSQL)
	}
	if err != nil {
		return nil, storeErr(err, "list products")
	}
	return collectProducts(rows, "list products")
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, storeErr(err, "get product")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, storeErr(err, "get product")
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, storeErr(err, "get products by ids")
	}
	return collectProducts(rows, "get products by ids")
}

// Search returns products whose name contains query, case-insensitively.
func (r *ProductRepository) Search(ctx context.Context, query string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, searchProductsSQL, likePattern(query))
	if err != nil {
		return nil, storeErr(err, "search products")
	}
	return collectProducts(rows, "search products")
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL, p.ID, p.Name, p.Price, p.Image, p.SellerID, p.CreatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return seller.ErrNotFound
		}
		return storeErr(err, "create product")
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id, sellerID string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id, sellerID)
	if err != nil {
		return storeErr(err, "delete product")
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countProductsSQL).Scan(&n); err != nil {
		return 0, storeErr(err, "count products")
	}
	return n, nil
}

// AddReview inserts r and recomputes the product's rating in one
// transaction. The product row is locked first so concurrent reviews
// recompute in turn and each sees the others.
func (r *ProductRepository) AddReview(ctx context.Context, productID string, rv product.Review) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, lockProductSQL, productID).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return product.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, insertReviewSQL,
			productID, rv.UserID, rv.Username, rv.Rating, rv.Comment, rv.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, refreshRatingSQL, productID)
		return err
	})
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return err
		}
		switch pgCode(err) {
		case codeUniqueViolation:
			return product.ErrAlreadyReviewed
		case codeForeignKeyViolation:
			return user.ErrNotFound
		}
		return storeErr(err, "add review")
	}
	return nil
}

func (r *ProductRepository) Reviews(ctx context.Context, productID string) ([]product.Review, error) {
	rows, err := r.pool.Query(ctx, listReviewsSQL, productID)
	if err != nil {
		return nil, storeErr(err, "list reviews")
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Review, error) {
		var rv product.Review
		err := row.Scan(&rv.UserID, &rv.Username, &rv.Rating, &rv.Comment, &rv.CreatedAt)
		return rv, err
	})
	if err != nil {
		return nil, storeErr(err, "list reviews")
	}
	return reviews, nil
}

func collectProducts(rows pgx.Rows, op string) ([]product.Product, error) {
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storeErr(err, op)
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Image, &p.SellerID, &p.CreatedAt, &p.Rating, &p.NumReviews)
	p.Price = price
	return p, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring ILIKE pattern matching query literally.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

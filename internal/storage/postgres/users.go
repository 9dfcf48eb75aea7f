package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/user"
)

const (
	userColumns = `id, username, email, role, created_at`

	getUserSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	listUsersSQL  = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	countUsersSQL = `SELECT count(*) FROM users`
	createUserSQL = `INSERT INTO users (id, username, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, id)
	if err != nil {
		return nil, storeErr(err, "get user")
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, storeErr(err, "get user")
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, listUsersSQL)
	if err != nil {
		return nil, storeErr(err, "list users")
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, storeErr(err, "list users")
	}
	return users, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countUsersSQL).Scan(&n); err != nil {
		return 0, storeErr(err, "count users")
	}
	return n, nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, createUserSQL, u.ID, u.Username, u.Email, string(u.Role), u.CreatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return apperr.Conflict("user %s already exists", u.Username)
		}
		return storeErr(err, "create user")
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.CreatedAt)
	u.Role = user.Role(role)
	return u, err
}

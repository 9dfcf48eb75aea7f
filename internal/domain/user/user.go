// Package user holds the read model of marketplace accounts. Accounts are
// created by the external sign-up flow; this service only reads them.
package user

import (
	"context"
	"time"

	"github.com/makehive/marketplace/internal/apperr"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = apperr.NotFound("user not found")

// Role is the authorization role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a marketplace account.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Repository defines persistence operations for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int64, error)
	// Create inserts a user. Used by seeding only.
	Create(ctx context.Context, u *User) error
}

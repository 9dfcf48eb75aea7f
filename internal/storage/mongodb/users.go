package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

type userDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Email     string    `bson:"email"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d userDoc) user() user.User {
	return user.User{
		ID:        d.ID,
		Username:  d.Username,
		Email:     d.Email,
		Role:      user.Role(d.Role),
		CreatedAt: d.CreatedAt,
	}
}

// withoutCart keeps embedded carts out of user reads.
var withoutCart = bson.M{"cart": 0}

// UserRepository implements user.Repository backed by MongoDB.
type UserRepository struct {
	c *mongo.Collection
}

// NewUserRepository returns a UserRepository over db.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{c: db.Collection(usersCollection)}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var d userDoc
	err := r.c.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutCart)).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, storeErr(err, "get user")
	}
	u := d.user()
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]user.User, error) {
	opts := options.Find().SetProjection(withoutCart).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storeErr(err, "list users")
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr(err, "list users")
	}
	users := make([]user.User, len(docs))
	for i, d := range docs {
		users[i] = d.user()
	}
	return users, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.c, bson.M{}, "count users")
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.c.InsertOne(ctx, bson.M{
		"_id":        u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"role":       string(u.Role),
		"created_at": u.CreatedAt,
		"cart":       bson.A{},
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("user %s already exists", u.Username)
		}
		return storeErr(err, "create user")
	}
	return nil
}

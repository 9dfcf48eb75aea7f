package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/user"
)

var _ cart.Repository = (*CartRepository)(nil)

type cartLineDoc struct {
	ProductID string    `bson:"product_id"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

type cartDoc struct {
	Cart []cartLineDoc `bson:"cart"`
}

// CartRepository implements cart.Repository on the cart array embedded in
// user documents. Every write is a conditional single-document update.
type CartRepository struct {
	c   *mongo.Collection
	now func() time.Time
}

// NewCartRepository returns a CartRepository over db.
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{c: db.Collection(usersCollection), now: time.Now}
}

func (r *CartRepository) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	var d cartDoc
	err := r.c.FindOne(ctx, bson.M{"_id": userID}, options.FindOne().SetProjection(bson.M{"cart": 1})).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, storeErr(err, "get cart lines")
	}
	lines := make([]cart.Line, len(d.Cart))
	for i, l := range d.Cart {
		lines[i] = cart.Line(l)
	}
	return lines, nil
}

// Upsert increments an existing line in place or pushes a new one. The
// increment only matches a line that stays within cart.MaxQuantity, and the
// push is guarded so two concurrent first-adds cannot both append; the loser
// retries as an increment.
func (r *CartRepository) Upsert(ctx context.Context, userID, productID string, delta int) (int, error) {
	if delta > cart.MaxQuantity {
		return 0, cart.ErrQuantityLimit
	}
	for attempt := 0; attempt < 2; attempt++ {
		qty, found, err := r.increment(ctx, userID, productID, delta)
		if err != nil {
			return 0, err
		}
		if found {
			if qty < 1 {
				return 0, r.pullEmpty(ctx, userID, productID)
			}
			return qty, nil
		}

		if delta < 1 {
			return 0, r.ensureUser(ctx, userID)
		}
		res, err := r.c.UpdateOne(ctx,
			bson.M{"_id": userID, "cart.product_id": bson.M{"$ne": productID}},
			bson.M{"$push": bson.M{"cart": cartLineDoc{ProductID: productID, Quantity: delta, AddedAt: r.now().UTC()}}},
		)
		if err != nil {
			return 0, storeErr(err, "push cart line")
		}
		if res.MatchedCount == 1 {
			return delta, nil
		}
		if err := r.ensureUser(ctx, userID); err != nil {
			return 0, err
		}
		// The line exists: either it is too full for delta or it appeared
		// concurrently and the increment is retried.
		full, err := count(ctx, r.c, bson.M{
			"_id":  userID,
			"cart": bson.M{"$elemMatch": bson.M{"product_id": productID, "quantity": bson.M{"$gt": cart.MaxQuantity - delta}}},
		}, "check cart line")
		if err != nil {
			return 0, err
		}
		if full > 0 {
			return 0, cart.ErrQuantityLimit
		}
	}
	return 0, apperr.Conflict("cart changed concurrently, retry")
}

func (r *CartRepository) increment(ctx context.Context, userID, productID string, delta int) (qty int, found bool, err error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"cart": bson.M{"$elemMatch": bson.M{"product_id": productID}}})
	var d cartDoc
	err = r.c.FindOneAndUpdate(ctx,
		bson.M{
			"_id":  userID,
			"cart": bson.M{"$elemMatch": bson.M{"product_id": productID, "quantity": bson.M{"$lte": cart.MaxQuantity - delta}}},
		},
		bson.M{"$inc": bson.M{"cart.$.quantity": delta}},
		opts,
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr(err, "increment cart line")
	}
	if len(d.Cart) == 0 {
		return 0, false, nil
	}
	return d.Cart[0].Quantity, true, nil
}

func (r *CartRepository) pullEmpty(ctx context.Context, userID, productID string) error {
	_, err := r.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"cart": bson.M{"product_id": productID, "quantity": bson.M{"$lt": 1}}}},
	)
	if err != nil {
		return storeErr(err, "pull cart line")
	}
	return nil
}

func (r *CartRepository) ensureUser(ctx context.Context, userID string) error {
	n, err := count(ctx, r.c, bson.M{"_id": userID}, "check user")
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Remove pulls the lines for productIDs. Pulling absent lines is a no-op, so
// the call is safe to repeat.
func (r *CartRepository) Remove(ctx context.Context, userID string, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"cart": bson.M{"product_id": bson.M{"$in": productIDs}}}},
	)
	if err != nil {
		return storeErr(err, "remove cart lines")
	}
	return nil
}

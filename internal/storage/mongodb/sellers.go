package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/makehive/marketplace/internal/domain/seller"
)

var _ seller.Repository = (*SellerRepository)(nil)

type sellerDoc struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	BusinessName  string    `bson:"business_name"`
	Description   string    `bson:"description"`
	GSTNumber     string    `bson:"gst_number"`
	PayoutAddress string    `bson:"payout_address"`
	Verified      bool      `bson:"verified"`
	CreatedAt     time.Time `bson:"created_at"`
	Rating        float64   `bson:"rating"`
	NumReviews    int       `bson:"num_reviews"`
}

func (d sellerDoc) seller() seller.Seller {
	return seller.Seller(d)
}

// SellerRepository implements seller.Repository backed by MongoDB.
type SellerRepository struct {
	c *mongo.Collection
}

// NewSellerRepository returns a SellerRepository over db.
func NewSellerRepository(db *mongo.Database) *SellerRepository {
	return &SellerRepository{c: db.Collection(sellersCollection)}
}

func (r *SellerRepository) GetByID(ctx context.Context, id string) (*seller.Seller, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *SellerRepository) GetByUserID(ctx context.Context, userID string) (*seller.Seller, error) {
	return r.findOne(ctx, bson.M{"user_id": userID})
}

func (r *SellerRepository) findOne(ctx context.Context, filter bson.M) (*seller.Seller, error) {
	var d sellerDoc
	if err := r.c.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, seller.ErrNotFound
		}
		return nil, storeErr(err, "get seller")
	}
	s := d.seller()
	return &s, nil
}

func (r *SellerRepository) GetByIDs(ctx context.Context, ids []string) ([]seller.Seller, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, "get sellers by ids")
}

func (r *SellerRepository) List(ctx context.Context) ([]seller.Seller, error) {
	return r.find(ctx, bson.M{}, "list sellers")
}

func (r *SellerRepository) find(ctx context.Context, filter bson.M, op string) ([]seller.Seller, error) {
	cur, err := r.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, storeErr(err, op)
	}
	var docs []sellerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr(err, op)
	}
	sellers := make([]seller.Seller, len(docs))
	for i, d := range docs {
		sellers[i] = d.seller()
	}
	return sellers, nil
}

func (r *SellerRepository) Create(ctx context.Context, s *seller.Seller) error {
	if _, err := r.c.InsertOne(ctx, sellerDoc(*s)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return seller.ErrAlreadyRegistered
		}
		return storeErr(err, "create seller")
	}
	return nil
}

func (r *SellerRepository) UpdatePayout(ctx context.Context, id, address string) error {
	return r.set(ctx, id, bson.M{"payout_address": address}, "update payout")
}

func (r *SellerRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	return r.set(ctx, id, bson.M{"verified": verified}, "set verified")
}

func (r *SellerRepository) SetRating(ctx context.Context, id string, rating float64, numReviews int) error {
	return r.set(ctx, id, bson.M{"rating": rating, "num_reviews": numReviews}, "set rating")
}

func (r *SellerRepository) set(ctx context.Context, id string, fields bson.M, op string) error {
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return storeErr(err, op)
	}
	if res.MatchedCount == 0 {
		return seller.ErrNotFound
	}
	return nil
}

func (r *SellerRepository) CountPending(ctx context.Context) (int64, error) {
	return count(ctx, r.c, bson.M{"verified": false}, "count pending sellers")
}

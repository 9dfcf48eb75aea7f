package mongodb

import (
	"context"
	"regexp"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/makehive/marketplace/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type productDoc struct {
	ID         string               `bson:"_id"`
	Name       string               `bson:"name"`
	Price      primitive.Decimal128 `bson:"price"`
	Image      string               `bson:"image"`
	SellerID   string               `bson:"seller_id"`
	Rating     float64              `bson:"rating"`
	NumReviews int                  `bson:"num_reviews"`
	CreatedAt  time.Time            `bson:"created_at"`
}

type reviewDoc struct {
	UserID    string    `bson:"user_id"`
	Username  string    `bson:"username"`
	Rating    int       `bson:"rating"`
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"created_at"`
}

// Reviews are embedded in the product document and left out of catalog
// reads.
var withoutReviews = bson.M{"reviews": 0}

func (d productDoc) product() (product.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return product.Product{}, err
	}
	return product.Product{
		ID:         d.ID,
		Name:       d.Name,
		Price:      price,
		Image:      d.Image,
		SellerID:   d.SellerID,
		Rating:     d.Rating,
		NumReviews: d.NumReviews,
		CreatedAt:  d.CreatedAt,
	}, nil
}

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	c *mongo.Collection
}

// NewProductRepository returns a ProductRepository over db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{c: db.Collection(productsCollection)}
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}

func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	filter := bson.M{}
	if f.SellerID != "" {
		filter["seller_id"] = f.SellerID
	}
	return r.find(ctx, filter, options.Find().SetSort(newestFirst), "list products")
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var d productDoc
	err := r.c.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutReviews)).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, storeErr(err, "get product")
	}
	p, err := d.product()
	if err != nil {
		return nil, storeErr(err, "get product")
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find(), "get products by ids")
}

// Search returns products whose name contains query, case-insensitively.
func (r *ProductRepository) Search(ctx context.Context, query string) ([]product.Product, error) {
	filter := bson.M{"name": primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts, "search products")
}

func (r *ProductRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions, op string) ([]product.Product, error) {
	cur, err := r.c.Find(ctx, filter, opts.SetProjection(withoutReviews))
	if err != nil {
		return nil, storeErr(err, op)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr(err, op)
	}
	products := make([]product.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.product()
		if err != nil {
			return nil, storeErr(err, op)
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return err
	}
	_, err = r.c.InsertOne(ctx, productDoc{
		ID:        p.ID,
		Name:      p.Name,
		Price:     price,
		Image:     p.Image,
		SellerID:  p.SellerID,
		CreatedAt: p.CreatedAt,
	})
	if err != nil {
		return storeErr(err, "create product")
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id, sellerID string) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id, "seller_id": sellerID})
	if err != nil {
		return storeErr(err, "delete product")
	}
	if res.DeletedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.c, bson.M{}, "count products")
}

// AddReview appends the review and recomputes the rating in one pipeline
// update. The filter skips products the user already reviewed.
func (r *ProductRepository) AddReview(ctx context.Context, productID string, rv product.Review) error {
	doc := reviewDoc{
		UserID:    rv.UserID,
		Username:  rv.Username,
		Rating:    rv.Rating,
		Comment:   rv.Comment,
		CreatedAt: rv.CreatedAt,
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"reviews": bson.M{"$concatArrays": bson.A{
			bson.M{"$ifNull": bson.A{"$reviews", bson.A{}}},
			bson.A{bson.M{"$literal": doc}},
		}}}}},
		{{Key: "$set", Value: bson.M{
			"num_reviews": bson.M{"$size": "$reviews"},
			"rating":      bson.M{"$avg": "$reviews.rating"},
		}}},
	}
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": productID, "reviews.user_id": bson.M{"$ne": rv.UserID}}, update)
	if err != nil {
		return storeErr(err, "add review")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := count(ctx, r.c, bson.M{"_id": productID}, "check product")
	if err != nil {
		return err
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return product.ErrAlreadyReviewed
}

func (r *ProductRepository) Reviews(ctx context.Context, productID string) ([]product.Review, error) {
	var d struct {
		Reviews []reviewDoc `bson:"reviews"`
	}
	err := r.c.FindOne(ctx, bson.M{"_id": productID}, options.FindOne().SetProjection(bson.M{"reviews": 1})).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, storeErr(err, "list reviews")
	}
	reviews := make([]product.Review, len(d.Reviews))
	for i, rv := range d.Reviews {
		reviews[i] = product.Review(rv)
	}
	return reviews, nil
}

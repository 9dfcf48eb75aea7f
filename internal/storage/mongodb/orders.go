package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const (
	clearCartAttempts = 3
	clearCartBackoff  = 50 * time.Millisecond
)

type orderLineDoc struct {
	ProductID string               `bson:"product_id"`
	SellerID  string               `bson:"seller_id"`
	Name      string               `bson:"name"`
	Quantity  int                  `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
}

type orderDoc struct {
	ID            string               `bson:"_id"`
	UserID        string               `bson:"user_id"`
	Lines         []orderLineDoc       `bson:"lines"`
	Total         primitive.Decimal128 `bson:"total"`
	Status        string               `bson:"status"`
	TransactionID string               `bson:"transaction_id,omitempty"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

func toOrderDoc(o *order.Order) (orderDoc, error) {
	total, err := toDecimal128(o.Total)
	if err != nil {
		return orderDoc{}, err
	}
	d := orderDoc{
		ID:            o.ID,
		UserID:        o.UserID,
		Lines:         make([]orderLineDoc, len(o.Lines)),
		Total:         total,
		Status:        string(o.Status),
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for i, l := range o.Lines {
		price, err := toDecimal128(l.Price)
		if err != nil {
			return orderDoc{}, err
		}
		d.Lines[i] = orderLineDoc{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     price,
		}
	}
	return d, nil
}

func (d orderDoc) order() (order.Order, error) {
	total, err := fromDecimal128(d.Total)
	if err != nil {
		return order.Order{}, err
	}
	o := order.Order{
		ID:            d.ID,
		UserID:        d.UserID,
		Lines:         make([]order.Line, len(d.Lines)),
		Total:         total,
		Status:        order.Status(d.Status),
		TransactionID: d.TransactionID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	for i, l := range d.Lines {
		price, err := fromDecimal128(l.Price)
		if err != nil {
			return order.Order{}, err
		}
		o.Lines[i] = order.Line{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     price,
		}
	}
	return o, nil
}

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	orders *mongo.Collection
	carts  *CartRepository
}

// NewOrderRepository returns an OrderRepository over db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		orders: db.Collection(ordersCollection),
		carts:  NewCartRepository(db),
	}
}

// Finalize inserts o and then pulls its products from the owner's cart.
// The insert is the record: a cart clear that keeps failing after retries
// is logged and the order stands. The pull is idempotent, so retrying it
// cannot remove more than the ordered products.
func (r *OrderRepository) Finalize(ctx context.Context, o *order.Order) error {
	if err := r.carts.ensureUser(ctx, o.UserID); err != nil {
		return err
	}
	d, err := toOrderDoc(o)
	if err != nil {
		return storeErr(err, "finalize order")
	}
	if _, err := r.orders.InsertOne(ctx, d); err != nil {
		return storeErr(err, "insert order")
	}

	ids := o.ProductIDs()
	backoff := clearCartBackoff
	for attempt := 1; ; attempt++ {
		err := r.carts.Remove(ctx, o.UserID, ids...)
		if err == nil {
			return nil
		}
		if attempt == clearCartAttempts || ctx.Err() != nil {
			zctx.From(ctx).Error("Failed to clear cart after order",
				zap.String("order_id", o.ID),
				zap.String("user_id", o.UserID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return nil
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (r *OrderRepository) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	void := make([]string, len(order.PurchaseVoidStatuses))
	for i, st := range order.PurchaseVoidStatuses {
		void[i] = string(st)
	}
	n, err := r.orders.CountDocuments(ctx, bson.M{
		"user_id":          userID,
		"lines.product_id": productID,
		"status":           bson.M{"$nin": void},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeErr(err, "check purchase")
	}
	return n > 0, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.find(ctx, bson.M{"user_id": userID}, "list user orders")
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.find(ctx, bson.M{}, "list orders")
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, op string) ([]order.Order, error) {
	cur, err := r.orders.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, storeErr(err, op)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr(err, op)
	}
	orders := make([]order.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.order()
		if err != nil {
			return nil, storeErr(err, op)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var d orderDoc
	if err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, storeErr(err, "get order")
	}
	o, err := d.order()
	if err != nil {
		return nil, storeErr(err, "get order")
	}
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	res, err := r.orders.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return storeErr(err, "update order status")
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := count(ctx, r.orders, bson.M{"_id": id}, "check order")
	if err != nil {
		return err
	}
	if n == 0 {
		return order.ErrNotFound
	}
	return order.ErrStatusChanged
}

func (r *OrderRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.orders.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, storeErr(err, "delete user orders")
	}
	return res.DeletedCount, nil
}

func (r *OrderRepository) Revenue(ctx context.Context, statuses ...order.Status) (decimal.Decimal, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": bson.M{"$in": names}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$total"}}}},
	}
	cur, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, storeErr(err, "sum revenue")
	}
	var out []struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return decimal.Zero, storeErr(err, "sum revenue")
	}
	if len(out) == 0 {
		return decimal.Zero, nil
	}
	total, err := fromDecimal128(out[0].Total)
	if err != nil {
		return decimal.Zero, storeErr(err, "sum revenue")
	}
	return total, nil
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.orders, bson.M{}, "count orders")
}

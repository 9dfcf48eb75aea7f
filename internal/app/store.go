package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
	"github.com/makehive/marketplace/internal/storage/mongodb"
	"github.com/makehive/marketplace/internal/storage/postgres"
	"github.com/makehive/marketplace/pkg/health"
)

// Store bundles the repositories of one backend.
type Store struct {
	Driver   string
	Users    user.Repository
	Sellers  seller.Repository
	Products product.Repository
	Carts    cart.Repository
	Orders   order.Repository

	// Check pings the backend for readiness.
	Check health.CheckFunc
	close func()
}

// Close releases the backend connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects to the configured backend and prepares its schema.
func OpenStore(ctx context.Context, cfg *Config) (*Store, error) {
	switch cfg.driver() {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Store{
			Driver:   DriverPostgres,
			Users:    postgres.NewUserRepository(pool),
			Sellers:  postgres.NewSellerRepository(pool),
			Products: postgres.NewProductRepository(pool),
			Carts:    postgres.NewCartRepository(pool),
			Orders:   postgres.NewOrderRepository(pool),
			Check:    health.PingCheck(pool),
			close:    pool.Close,
		}, nil
	case DriverMongo:
		db, err := mongodb.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongo")
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(ctx)
		}
		if err := mongodb.CreateIndexes(ctx, db); err != nil {
			disconnect()
			return nil, errors.Wrap(err, "create indexes")
		}
		return &Store{
			Driver:   DriverMongo,
			Users:    mongodb.NewUserRepository(db),
			Sellers:  mongodb.NewSellerRepository(db),
			Products: mongodb.NewProductRepository(db),
			Carts:    mongodb.NewCartRepository(db),
			Orders:   mongodb.NewOrderRepository(db),
			Check: func(ctx context.Context) error {
				return db.Client().Ping(ctx, readpref.Primary())
			},
			close: disconnect,
		}, nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

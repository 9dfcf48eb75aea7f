//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("makehive"),
		tcpostgres.WithUsername("makehive"),
		tcpostgres.WithPassword("makehive"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// Applying twice is a no-op.
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

type fixture struct {
	users    *UserRepository
	sellers  *SellerRepository
	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository

	buyer  user.User
	seller seller.Seller
	honey  product.Product
	wax    product.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	f := &fixture{
		users:    NewUserRepository(pool),
		sellers:  NewSellerRepository(pool),
		products: NewProductRepository(pool),
		carts:    NewCartRepository(pool),
		orders:   NewOrderRepository(pool),
	}

	owner := user.User{ID: uuid.NewString(), Username: "beekeeper", Email: "bee@example.com", Role: user.RoleUser, CreatedAt: now}
	f.buyer = user.User{ID: uuid.NewString(), Username: "asha", Email: "asha@example.com", Role: user.RoleUser, CreatedAt: now}
	require.NoError(t, f.users.Create(ctx, &owner))
	require.NoError(t, f.users.Create(ctx, &f.buyer))

	f.seller = seller.Seller{ID: uuid.NewString(), UserID: owner.ID, BusinessName: "Bee Farm", PayoutAddress: "bees@okaxis", CreatedAt: now}
	require.NoError(t, f.sellers.Create(ctx, &f.seller))

	f.honey = product.Product{ID: uuid.NewString(), Name: "Wildflower Honey", Price: decimal.RequireFromString("249.50"), SellerID: f.seller.ID, CreatedAt: now}
	f.wax = product.Product{ID: uuid.NewString(), Name: "Beeswax 100% pure", Price: decimal.NewFromInt(80), SellerID: f.seller.ID, CreatedAt: now.Add(time.Second)}
	require.NoError(t, f.products.Create(ctx, &f.honey))
	require.NoError(t, f.products.Create(ctx, &f.wax))
	return f
}

func TestPostgres(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("Users", func(t *testing.T) {
		got, err := f.users.GetByID(ctx, f.buyer.ID)
		require.NoError(t, err)
		assert.Equal(t, f.buyer.Email, got.Email)

		_, err = f.users.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, user.ErrNotFound)

		n, err := f.users.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("Sellers", func(t *testing.T) {
		dup := seller.Seller{ID: uuid.NewString(), UserID: f.seller.UserID, BusinessName: "Again", CreatedAt: time.Now()}
		assert.ErrorIs(t, f.sellers.Create(ctx, &dup), seller.ErrAlreadyRegistered)

		pending, err := f.sellers.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), pending)

		require.NoError(t, f.sellers.SetVerified(ctx, f.seller.ID, true))
		require.NoError(t, f.sellers.UpdatePayout(ctx, f.seller.ID, "farm@okhdfc"))
		got, err := f.sellers.GetByUserID(ctx, f.seller.UserID)
		require.NoError(t, err)
		assert.True(t, got.Verified)
		assert.Equal(t, "farm@okhdfc", got.PayoutAddress)

		assert.ErrorIs(t, f.sellers.SetVerified(ctx, "missing", true), seller.ErrNotFound)

		found, err := f.sellers.GetByIDs(ctx, []string{f.seller.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("Products", func(t *testing.T) {
		got, err := f.products.GetByID(ctx, f.honey.ID)
		require.NoError(t, err)
		assert.True(t, f.honey.Price.Equal(got.Price))

		list, err := f.products.List(ctx, product.Filter{SellerID: f.seller.ID})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, f.wax.ID, list[0].ID)

		found, err := f.products.Search(ctx, "HONEY")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, f.honey.ID, found[0].ID)

		// Wildcards in the query are literal.
		found, err = f.products.Search(ctx, "100%")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, f.wax.ID, found[0].ID)

		batch, err := f.products.GetByIDs(ctx, []string{f.honey.ID, "gone"})
		require.NoError(t, err)
		assert.Len(t, batch, 1)

		assert.ErrorIs(t, f.products.Delete(ctx, f.honey.ID, "other-seller"), product.ErrNotFound)
	})

	t.Run("Carts", func(t *testing.T) {
		qty, err := f.carts.Upsert(ctx, f.buyer.ID, f.honey.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, qty)

		qty, err = f.carts.Upsert(ctx, f.buyer.ID, f.honey.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, qty)

		_, err = f.carts.Upsert(ctx, f.buyer.ID, f.wax.ID, 1)
		require.NoError(t, err)

		qty, err = f.carts.Upsert(ctx, f.buyer.ID, f.wax.ID, -1)
		require.NoError(t, err)
		assert.Zero(t, qty)

		lines, err := f.carts.Lines(ctx, f.buyer.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, f.honey.ID, lines[0].ProductID)

		_, err = f.carts.Upsert(ctx, "ghost", f.honey.ID, 1)
		assert.ErrorIs(t, err, user.ErrNotFound)

		require.NoError(t, f.carts.Remove(ctx, f.buyer.ID, f.wax.ID))
		require.NoError(t, f.carts.Remove(ctx, f.buyer.ID, f.wax.ID))
	})

	t.Run("ConcurrentUpsert", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.carts.Upsert(ctx, f.buyer.ID, f.wax.ID, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		lines, err := f.carts.Lines(ctx, f.buyer.ID)
		require.NoError(t, err)
		for _, l := range lines {
			if l.ProductID == f.wax.ID {
				assert.Equal(t, 10, l.Quantity)
			}
		}
	})

	t.Run("QuantityLimit", func(t *testing.T) {
		require.NoError(t, f.carts.Remove(ctx, f.buyer.ID, f.honey.ID))

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.carts.Upsert(ctx, f.buyer.ID, f.honey.ID, 10)
				if errors.Is(err, cart.ErrQuantityLimit) {
					return
				}
				assert.NoError(t, err)
				mu.Lock()
				accepted++
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 9, accepted)

		_, err := f.carts.Upsert(ctx, f.buyer.ID, f.honey.ID, cart.MaxQuantity+1)
		assert.ErrorIs(t, err, cart.ErrQuantityLimit)

		lines, err := f.carts.Lines(ctx, f.buyer.ID)
		require.NoError(t, err)
		for _, l := range lines {
			if l.ProductID == f.honey.ID {
				assert.Equal(t, 90, l.Quantity)
			}
		}
	})

	t.Run("Orders", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		o := &order.Order{
			ID:     uuid.NewString(),
			UserID: f.buyer.ID,
			Lines: []order.Line{
				{ProductID: f.honey.ID, SellerID: f.seller.ID, Name: f.honey.Name, Quantity: 2, Price: f.honey.Price},
			},
			Total:     decimal.RequireFromString("499.00"),
			Status:    order.StatusPaid,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, f.orders.Finalize(ctx, o))

		// Only the ordered product left the cart.
		lines, err := f.carts.Lines(ctx, f.buyer.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, f.wax.ID, lines[0].ProductID)

		got, err := f.orders.GetByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, f.seller.ID, got.Lines[0].SellerID)
		assert.True(t, o.Total.Equal(got.Total))

		require.NoError(t, f.orders.UpdateStatus(ctx, o.ID, order.StatusPaid, order.StatusProcessing))
		assert.ErrorIs(t, f.orders.UpdateStatus(ctx, o.ID, order.StatusPaid, order.StatusCancelled), order.ErrStatusChanged)
		assert.ErrorIs(t, f.orders.UpdateStatus(ctx, "missing", order.StatusPaid, order.StatusCancelled), order.ErrNotFound)

		revenue, err := f.orders.Revenue(ctx, order.RevenueStatuses...)
		require.NoError(t, err)
		assert.Equal(t, "499.00", revenue.StringFixed(2))

		bought, err := f.orders.HasPurchased(ctx, f.buyer.ID, f.honey.ID)
		require.NoError(t, err)
		assert.True(t, bought)
		bought, err = f.orders.HasPurchased(ctx, f.buyer.ID, f.wax.ID)
		require.NoError(t, err)
		assert.False(t, bought)

		review := product.Review{UserID: f.buyer.ID, Username: f.buyer.Username, Rating: 4, Comment: "$rich", CreatedAt: now}
		require.NoError(t, f.products.AddReview(ctx, f.honey.ID, review))
		assert.ErrorIs(t, f.products.AddReview(ctx, f.honey.ID, review), product.ErrAlreadyReviewed)
		assert.ErrorIs(t, f.products.AddReview(ctx, "missing", review), product.ErrNotFound)

		rated, err := f.products.GetByID(ctx, f.honey.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, rated.NumReviews)
		assert.InDelta(t, 4.0, rated.Rating, 1e-9)

		reviews, err := f.products.Reviews(ctx, f.honey.ID)
		require.NoError(t, err)
		require.Len(t, reviews, 1)
		assert.Equal(t, "$rich", reviews[0].Comment)
		assert.Equal(t, f.buyer.Username, reviews[0].Username)

		require.NoError(t, f.sellers.SetRating(ctx, f.seller.ID, 4, 1))
		s, err := f.sellers.GetByID(ctx, f.seller.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, s.NumReviews)
		assert.InDelta(t, 4.0, s.Rating, 1e-9)

		// Cancelled orders no longer count as a purchase.
		require.NoError(t, f.orders.UpdateStatus(ctx, o.ID, order.StatusProcessing, order.StatusCancelled))
		bought, err = f.orders.HasPurchased(ctx, f.buyer.ID, f.honey.ID)
		require.NoError(t, err)
		assert.False(t, bought)

		ghost := *o
		ghost.ID = uuid.NewString()
		ghost.UserID = "ghost"
		assert.ErrorIs(t, f.orders.Finalize(ctx, &ghost), user.ErrNotFound)

		mine, err := f.orders.ListByUser(ctx, f.buyer.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		n, err := f.orders.DeleteByUser(ctx, f.buyer.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		count, err := f.orders.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/makehive/marketplace/internal/auth"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/upi"
	"github.com/makehive/marketplace/internal/domain/user"
	"github.com/makehive/marketplace/internal/notify"
)

const testSecret = "integration-secret"

func postgresConfig(t *testing.T) *Config {
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
	return &Config{Store: StoreConfig{Driver: DriverPostgres, PostgresURL: dsn}}
}

func mongoConfig(t *testing.T) *Config {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcmongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	return &Config{Store: StoreConfig{Driver: "mongodb", MongoURI: uri, MongoDatabase: "makehive"}}
}

type apiClient struct {
	t      *testing.T
	srv    *httptest.Server
	signer *auth.Signer
}

func (c *apiClient) do(method, path, userID string, body any) (int, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, r)
	require.NoError(c.t, err)
	if userID != "" {
		token, err := c.signer.Sign(userID, user.RoleUser, time.Hour)
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer func() { _ = res.Body.Close() }()
	data, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)
	return res.StatusCode, data
}

func seedStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, u := range []user.User{
		{ID: "u-buyer", Username: "asha", Email: "asha@example.com", Role: user.RoleUser, CreatedAt: now},
		{ID: "u-owner", Username: "meera", Email: "meera@example.com", Role: user.RoleUser, CreatedAt: now},
	} {
		require.NoError(t, s.Users.Create(ctx, &u))
	}
	require.NoError(t, s.Sellers.Create(ctx, &seller.Seller{
		ID: "s-hive", UserID: "u-owner", BusinessName: "Meera's Hive",
		PayoutAddress: "meerashive@okaxis", Verified: true, CreatedAt: now,
	}))
	for _, p := range []product.Product{
		{ID: "p-honey", Name: "Wildflower Honey", Price: decimal.RequireFromString("349.00"), SellerID: "s-hive", CreatedAt: now},
		{ID: "p-wax", Name: "Beeswax Candle", Price: decimal.RequireFromString("180.00"), SellerID: "s-hive", CreatedAt: now.Add(time.Second)},
	} {
		require.NoError(t, s.Products.Create(ctx, &p))
	}
}

func TestCheckoutFlow(t *testing.T) {
	for _, tt := range []struct {
		name   string
		config func(*testing.T) *Config
	}{
		{"Postgres", postgresConfig},
		{"Mongo", mongoConfig},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := tt.config(t)
			cfg.UPI = UPIConfig{Scheme: "upi", Currency: "INR", QRSize: 128}
			cfg.Sellers.AutoVerify = true

			store, err := OpenStore(ctx, cfg)
			require.NoError(t, err)
			t.Cleanup(store.Close)
			require.NoError(t, store.Check(ctx))
			seedStore(t, store)

			h := newHandler(cfg, store, upi.NewQRRenderer(cfg.UPI.QRSize, cfg.UPI.QRLevel), notify.Log{})
			srv := httptest.NewServer(h.Routes(auth.NewVerifier([]byte(testSecret), "")))
			t.Cleanup(srv.Close)
			c := &apiClient{t: t, srv: srv, signer: auth.NewSigner([]byte(testSecret), "")}

			code, body := c.do(http.MethodGet, "/api/products", "", nil)
			require.Equal(t, http.StatusOK, code, string(body))
			var products []struct {
				ID string `json:"id"`
			}
			require.NoError(t, json.Unmarshal(body, &products))
			require.Len(t, products, 2)
			assert.Equal(t, "p-wax", products[0].ID)

			code, body = c.do(http.MethodPost, "/api/cart", "u-buyer", map[string]any{"productId": "p-honey", "quantity": 2})
			require.Equal(t, http.StatusOK, code, string(body))
			code, body = c.do(http.MethodPost, "/api/cart", "u-buyer", map[string]any{"productId": "p-wax", "quantity": 1})
			require.Equal(t, http.StatusOK, code, string(body))

			code, body = c.do(http.MethodPost, "/api/upi", "u-buyer", map[string]any{
				"products": []any{map[string]any{"productId": "p-honey", "quantity": 2}},
			})
			require.Equal(t, http.StatusOK, code, string(body))
			var groups []struct {
				SellerID string `json:"sellerId"`
				UPIURI   string `json:"upiUri"`
				QRCode   string `json:"qrCode"`
			}
			require.NoError(t, json.Unmarshal(body, &groups))
			require.Len(t, groups, 1)
			assert.Equal(t, "s-hive", groups[0].SellerID)
			assert.Equal(t, "upi://pay?pa=meerashive@okaxis&pn=Meera%27s%20Hive&am=698.00&cu=INR", groups[0].UPIURI)
			assert.NotEmpty(t, groups[0].QRCode)

			code, body = c.do(http.MethodPost, "/api/orders", "u-buyer", map[string]any{
				"products":      []any{map[string]any{"productId": "p-honey", "quantity": 2, "price": 349}},
				"amount":        698,
				"paid":          true,
				"transactionId": "UTR42",
			})
			require.Equal(t, http.StatusCreated, code, string(body))

			code, body = c.do(http.MethodGet, "/api/cart", "u-buyer", nil)
			require.Equal(t, http.StatusOK, code, string(body))
			assert.Contains(t, string(body), "p-wax")
			assert.NotContains(t, string(body), "p-honey")

			code, body = c.do(http.MethodGet, "/api/orders", "u-buyer", nil)
			require.Equal(t, http.StatusOK, code, string(body))
			var orders []struct {
				Amount json.Number `json:"amount"`
				Status string      `json:"status"`
			}
			require.NoError(t, json.Unmarshal(body, &orders))
			require.Len(t, orders, 1)
			assert.Equal(t, "698.00", orders[0].Amount.String())
			assert.Equal(t, "paid", orders[0].Status)

			code, body = c.do(http.MethodPost, "/api/products/p-wax/reviews", "u-buyer", map[string]any{"rating": 5})
			require.Equal(t, http.StatusForbidden, code, string(body))
			code, body = c.do(http.MethodPost, "/api/products/p-honey/reviews", "u-buyer", map[string]any{"rating": 4, "comment": "Rich"})
			require.Equal(t, http.StatusCreated, code, string(body))
			code, body = c.do(http.MethodPost, "/api/products/p-honey/reviews", "u-buyer", map[string]any{"rating": 2})
			require.Equal(t, http.StatusConflict, code, string(body))

			code, body = c.do(http.MethodGet, "/api/products/p-honey", "", nil)
			require.Equal(t, http.StatusOK, code, string(body))
			var rated struct {
				Rating     float64 `json:"rating"`
				NumReviews int     `json:"numReviews"`
			}
			require.NoError(t, json.Unmarshal(body, &rated))
			assert.Equal(t, 1, rated.NumReviews)
			assert.InDelta(t, 4.0, rated.Rating, 1e-9)

			code, body = c.do(http.MethodGet, "/api/sellers/s-hive", "", nil)
			require.Equal(t, http.StatusOK, code, string(body))
			require.NoError(t, json.Unmarshal(body, &rated))
			assert.Equal(t, 1, rated.NumReviews)
			assert.InDelta(t, 4.0, rated.Rating, 1e-9)
		})
	}
}

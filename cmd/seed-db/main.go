package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/app"
	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

type catalog struct {
	Users    []userJSON    `json:"users"`
	Sellers  []sellerJSON  `json:"sellers"`
	Products []productJSON `json:"products"`
}

type userJSON struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     user.Role `json:"role"`
}

type sellerJSON struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	BusinessName string `json:"businessName"`
	Description  string `json:"description"`
	GSTNumber    string `json:"gstNumber"`
	UPIID        string `json:"upiId"`
	Verified     bool   `json:"verified"`
}

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	SellerID string          `json:"sellerId"`
}

func main() {
	var (
		driver      string
		postgresURL string
		mongoURI    string
		mongoDB     string
		file        string
	)

	flag.StringVar(&driver, "driver", app.DriverPostgres, "store driver: postgres or mongo")
	flag.StringVar(&postgresURL, "postgres-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI (or MONGODB_URI env)")
	flag.StringVar(&mongoDB, "mongo-database", "makehive", "MongoDB database name")
	flag.StringVar(&file, "file", "db/seed/catalog.json", "path to the catalog JSON file; .gz files are decompressed")
	flag.Parse()

	if postgresURL == "" {
		postgresURL = os.Getenv("DATABASE_URL")
	}
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := &app.Config{Store: app.StoreConfig{
		Driver:        driver,
		PostgresURL:   postgresURL,
		MongoURI:      mongoURI,
		MongoDatabase: mongoDB,
	}}
	if err := run(ctx, cfg, file); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg *app.Config, file string) error {
	c, err := readCatalog(file)
	if err != nil {
		return err
	}

	slog.Info("connecting to store", slog.String("driver", cfg.Store.Driver))
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer store.Close()

	if err := seedUsers(ctx, store.Users, c.Users); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedSellers(ctx, store.Sellers, c.Sellers); err != nil {
		return errors.Wrap(err, "seed sellers")
	}
	if err := seedProducts(ctx, store.Products, c.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	return nil
}

func readCatalog(path string) (*catalog, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var c catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate rejects prices the order total check could never match once
// stored at two decimal places.
func (c *catalog) validate() error {
	for _, p := range c.Products {
		if p.Price.IsNegative() {
			return errors.Errorf("product %s: negative price %s", p.ID, p.Price)
		}
		if !p.Price.Equal(p.Price.Round(2)) {
			return errors.Errorf("product %s: price %s has more than two decimal places", p.ID, p.Price)
		}
	}
	return nil
}

// exists reports whether err means the record is already present, which
// makes reruns of the seed a no-op.
func exists(err error) bool {
	return apperr.KindOf(err) == apperr.KindConflict
}

func seedUsers(ctx context.Context, repo user.Repository, users []userJSON) error {
	slog.Info("inserting users", slog.Int("count", len(users)))

	for _, u := range users {
		role := u.Role
		if role == "" {
			role = user.RoleUser
		}
		err := repo.Create(ctx, &user.User{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Role:      role,
			CreatedAt: time.Now().UTC(),
		})
		if exists(err) {
			slog.Info("user already present", slog.String("id", u.ID))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create user %s", u.ID)
		}
		slog.Info("inserted user", slog.String("id", u.ID), slog.String("username", u.Username))
	}
	return nil
}

func seedSellers(ctx context.Context, repo seller.Repository, sellers []sellerJSON) error {
	slog.Info("inserting sellers", slog.Int("count", len(sellers)))

	for _, s := range sellers {
		err := repo.Create(ctx, &seller.Seller{
			ID:            s.ID,
			UserID:        s.UserID,
			BusinessName:  s.BusinessName,
			Description:   s.Description,
			GSTNumber:     s.GSTNumber,
			PayoutAddress: s.UPIID,
			Verified:      s.Verified,
			CreatedAt:     time.Now().UTC(),
		})
		if exists(err) {
			slog.Info("seller already present", slog.String("id", s.ID))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create seller %s", s.ID)
		}
		slog.Info("inserted seller", slog.String("id", s.ID), slog.String("business_name", s.BusinessName))
	}
	return nil
}

func seedProducts(ctx context.Context, repo product.Repository, products []productJSON) error {
	slog.Info("inserting products", slog.Int("count", len(products)))

	for i, p := range products {
		if _, err := repo.GetByID(ctx, p.ID); err == nil {
			slog.Info("product already present", slog.String("id", p.ID))
			continue
		} else if !errors.Is(err, product.ErrNotFound) {
			return errors.Wrapf(err, "get product %s", p.ID)
		}

		// Keep catalog order as newest-first order.
		created := time.Now().UTC().Add(-time.Duration(i) * time.Second)
		if err := repo.Create(ctx, &product.Product{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			SellerID:  p.SellerID,
			CreatedAt: created,
		}); err != nil {
			return errors.Wrapf(err, "create product %s", p.ID)
		}
		slog.Info("inserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/auth"
	"github.com/makehive/marketplace/internal/domain/admin"
	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/checkout"
	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/upi"
	"github.com/makehive/marketplace/internal/handler"
	"github.com/makehive/marketplace/internal/notify"
	"github.com/makehive/marketplace/internal/qrcache"
	"github.com/makehive/marketplace/internal/search"
	"github.com/makehive/marketplace/pkg/health"
	"github.com/makehive/marketplace/pkg/httpmiddleware"
)

const serviceName = "makehive-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.driver()),
	)

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer store.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(store.Driver, 5*time.Second, store.Check)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// QR rendering, cached in Redis when configured.
	var renderer upi.Renderer = upi.NewQRRenderer(cfg.UPI.QRSize, cfg.UPI.QRLevel)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		cache := qrcache.New(rdb, cfg.Redis.TTL)
		renderer = upi.NewCachedRenderer(renderer, cache)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(cache))
		lg.Info("QR cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Order notifications go to Kafka behind a breaker, or to the log.
	var notifier order.Notifier = notify.Log{}
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer func() {
			if err := w.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		notifier = notify.NewBreaker(notify.NewKafka(w), notify.BreakerConfig{
			Failures: cfg.Kafka.BreakerFailures,
			Cooldown: cfg.Kafka.BreakerCooldown,
		}, lg)
		healthSvc.Register(health.Readiness, health.Check{
			Name:    "kafka",
			Timeout: 2 * time.Second,
			Func:    health.DialCheck(cfg.Kafka.Brokers...),
			// A broker outage degrades notifications only.
			FailureThreshold: 10,
		})
		lg.Info("Order notifications enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	var productOpts []product.Option
	if len(cfg.Search.Addresses) > 0 {
		es, err := search.NewClient(ctx, search.Config{
			Addresses: cfg.Search.Addresses,
			Username:  cfg.Search.Username,
			Password:  cfg.Search.Password,
		})
		if err != nil {
			return errors.Wrap(err, "connect elasticsearch")
		}
		idx := search.New(es, cfg.Search.Index, cfg.Search.Size)
		productOpts = append(productOpts, product.WithSearch(idx, idx))
		healthSvc.AddReadinessCheck("elasticsearch", 2*time.Second, health.PingCheck(idx))
		lg.Info("Search index enabled", zap.String("index", cfg.Search.Index))
	}

	h := newHandler(cfg, store, renderer, notifier, productOpts...)
	verifier := auth.NewVerifier([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Router: health endpoints next to the API.
	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/", h.Routes(verifier))
	routeFinder := httpmiddleware.MakeRouteFinder(root)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: rateLimitKey(verifier),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// rateLimitKey limits authenticated callers per user and everyone else per
// client address.
func rateLimitKey(v *auth.Verifier) func(*http.Request) string {
	return func(r *http.Request) string {
		if p, err := v.Authenticate(r); err == nil {
			return "user:" + p.UserID
		}
		return "ip:" + httpmiddleware.ClientIP(r)
	}
}

// newHandler builds the domain services over store and the API handler
// serving them.
func newHandler(cfg *Config, store *Store, renderer upi.Renderer, notifier order.Notifier, opts ...product.Option) *handler.Handler {
	missing := checkout.SkipMissing
	if cfg.Checkout.StrictProducts {
		missing = checkout.FailOnMissing
	}
	return handler.NewHandler(handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL}, handler.Deps{
		Products: product.NewService(store.Products, store.Sellers, store.Orders, opts...),
		Sellers:  seller.NewService(store.Sellers, cfg.Sellers.AutoVerify),
		Carts:    cart.NewService(store.Carts, store.Products),
		Orders: order.NewService(store.Orders, store.Users, store.Products, store.Sellers,
			notifier, cfg.Kafka.Timeout),
		Admin:    admin.NewService(store.Orders, store.Users, store.Products, store.Sellers),
		Users:    store.Users,
		Checkout: checkout.NewAggregator(store.Products, store.Sellers, missing),
		Encoder:  upi.NewEncoder(cfg.UPI.Scheme, cfg.UPI.Currency, renderer),
	})
}

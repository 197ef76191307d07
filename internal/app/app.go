package app

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/admin"
	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/cart"
	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/internal/domain/product"
	"github.com/xenking/tshirt-store/internal/gateway/razorpay"
	"github.com/xenking/tshirt-store/internal/handler"
	"github.com/xenking/tshirt-store/internal/messaging/kafka"
	"github.com/xenking/tshirt-store/internal/storage/files"
	"github.com/xenking/tshirt-store/internal/storage/memory"
	"github.com/xenking/tshirt-store/internal/storage/postgres"
	"github.com/xenking/tshirt-store/internal/storage/rediscache"
	"github.com/xenking/tshirt-store/pkg/health"
	"github.com/xenking/tshirt-store/pkg/httpmiddleware"
)

// repositories is the persistence backend selected by the configuration.
type repositories struct {
	users    auth.Repository
	products product.Repository
	carts    cart.Repository
	orders   order.Repository
	tx       order.Transactor
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	repos, closeRepos, err := openRepositories(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeRepos()

	if cfg.RedisURL != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.WithFailureThreshold(3))
		repos.products = rediscache.NewProductCache(repos.products, rdb, rediscache.DefaultTTL, lg.Named("cache"))
		lg.Info("Product cache enabled")
	}

	var events order.EventPublisher = order.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, lg.Named("events"))
		if err != nil {
			return errors.Wrap(err, "create event publisher")
		}
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		events = pub
		lg.Info("Order events enabled", zap.String("topic", cfg.KafkaTopic))
	}

	images, err := files.New(cfg.Uploads.Dir, cfg.Uploads.URLPrefix)
	if err != nil {
		return errors.Wrap(err, "create image store")
	}

	gateway := razorpay.New(razorpay.Config{
		KeyID:     cfg.Payment.KeyID,
		KeySecret: cfg.Payment.KeySecret,
		BaseURL:   cfg.Payment.BaseURL,
		Timeout:   cfg.Payment.Timeout,
	},
		razorpay.WithLogger(lg.Named("razorpay")),
		razorpay.WithTracerProvider(m.TracerProvider()),
	)

	// Domain services.
	tokens := auth.NewTokenIssuer([]byte(cfg.JWT.Secret), cfg.JWT.TTL)
	carts := cart.NewService(repos.carts, repos.products)
	orders, err := order.NewService(
		order.Config{Currency: cfg.Payment.Currency, GatewayKeyID: cfg.Payment.KeyID},
		repos.orders, carts, gateway, repos.tx,
		order.WithLogger(lg.Named("checkout")),
		order.WithEvents(events),
		order.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, MaxUploadBytes: cfg.Uploads.MaxBytes},
		handler.Services{
			Accounts:  auth.NewService(repos.users, auth.BcryptHasher{}, tokens, lg.Named("accounts")),
			Gate:      auth.NewGate(tokens, repos.users),
			Catalog:   product.NewService(repos.products, images, lg.Named("catalog")),
			Carts:     carts,
			Orders:    orders,
			Dashboard: admin.NewService(repos.products, repos.users, repos.orders),
		},
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(newRouter(h, healthSvc, images.Dir(), cfg.Uploads.URLPrefix),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isProbe,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("store-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
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

// openRepositories connects the configured storage backend and registers
// its readiness check.
func openRepositories(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*repositories, func(), error) {
	if cfg.InMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		st := memory.NewStore()
		return &repositories{
			users:    st.Users,
			products: st.Products,
			carts:    st.Carts,
			orders:   st.Orders,
			tx:       st.Tx,
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool), health.WithFailureThreshold(2))

	return &repositories{
		users:    postgres.NewUserRepository(pool),
		products: postgres.NewProductRepository(pool),
		carts:    postgres.NewCartRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		tx:       postgres.NewTxManager(pool),
	}, pool.Close, nil
}

// newRouter mounts the API, the health probes and the uploaded images on
// one chi router.
func newRouter(h *handler.Handler, hs *health.Health, uploadDir, uploadPrefix string) chi.Router {
	r := chi.NewRouter()
	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)

	prefix := "/" + strings.Trim(uploadPrefix, "/")
	r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(uploadFS{http.Dir(uploadDir)})))

	r.Mount("/api", h.Routes())
	return r
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

// uploadFS serves files only; directory listings are hidden.
type uploadFS struct {
	fs http.FileSystem
}

func (u uploadFS) Open(name string) (http.File, error) {
	f, err := u.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

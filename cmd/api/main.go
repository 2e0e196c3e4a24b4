package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/pesan-antar/internal/app"
	"github.com/noah-isme/pesan-antar/internal/auth"
	"github.com/noah-isme/pesan-antar/internal/backend"
	"github.com/noah-isme/pesan-antar/internal/cart"
	"github.com/noah-isme/pesan-antar/internal/checkout"
	"github.com/noah-isme/pesan-antar/internal/common"
	"github.com/noah-isme/pesan-antar/internal/config"
	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/delivery"
	"github.com/noah-isme/pesan-antar/internal/events"
	"github.com/noah-isme/pesan-antar/internal/health"
	"github.com/noah-isme/pesan-antar/internal/obs"
	"github.com/noah-isme/pesan-antar/internal/ratelimit"
	"github.com/noah-isme/pesan-antar/internal/resilience"
	"github.com/noah-isme/pesan-antar/internal/security"
	"github.com/noah-isme/pesan-antar/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().
		Str("env", cfg.AppEnv).
		Str("backend_mode", cfg.BackendMode).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "pesan-antar-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	deps, err := app.Open(ctx, cfg, logger, "pesan-antar-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	if cfg.Local() && cfg.RunMigrations {
		m, err := db.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("init migrations")
		}
		if err := db.Up(m); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pesan")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, deps.Registry)
	if err := resilience.RegisterMetrics(deps.Registry); err != nil {
		logger.Error().Err(err).Msg("register breaker metrics")
	}

	c := build(deps)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, deps.Registry)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: envInt("SECURE_HSTS_MAX_AGE", 0)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 64<<10))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Probes: c.probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	authMiddleware := auth.Middleware{Verifier: auth.Verifier{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		ClockSkew: 30 * time.Second,
	}}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	applyLimit := ratelimit.Handler{
		Limiter: c.limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByUser("voucher-apply"),
			Window: cfg.VoucherApplyWindow,
			Max:    cfg.VoucherApplyLimit,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/delivery-fee", c.deliveryHandler.Fee)

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)

			authR.Get("/vouchers", c.voucherHandler.List)
			authR.With(applyLimit.Middleware).Post("/vouchers/apply", c.voucherHandler.Apply)

			authR.Route("/cart", func(ct chi.Router) {
				ct.Get("/", c.cartHandler.Get)
				ct.Delete("/", c.cartHandler.Clear)
				ct.Post("/items", c.cartHandler.AddItem)
				ct.Patch("/items/{itemID}", c.cartHandler.UpdateItem)
				ct.Delete("/items/{itemID}", c.cartHandler.RemoveItem)
			})

			authR.Route("/checkout", func(co chi.Router) {
				co.Get("/", c.checkoutHandler.Get)
				co.Put("/address", c.checkoutHandler.SetAddress)
				co.Put("/tip", c.checkoutHandler.SetTip)
				co.With(applyLimit.Middleware).Post("/vouchers", c.checkoutHandler.ApplyVoucher)
				co.Delete("/vouchers/{type}", c.checkoutHandler.RemoveVoucher)
				co.With(idem.Middleware).Post("/submit", c.checkoutHandler.Submit)
			})
		})

		if c.voucherHandler.Admin != nil {
			v.Route("/admin", func(admin chi.Router) {
				admin.Use(authMiddleware.RequireAuth)
				admin.Use(auth.RequireRole("admin"))
				admin.Post("/vouchers", c.voucherHandler.Create)
				admin.Put("/vouchers/{code}", c.voucherHandler.Update)
			})
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

type components struct {
	voucherHandler  *voucher.Handler
	deliveryHandler *delivery.Handler
	cartHandler     *cart.Handler
	checkoutHandler *checkout.Handler
	limiter         ratelimit.Limiter
	probes          []health.Probe
}

// build wires the domain services for the configured backend mode.
func build(deps *app.Dependencies) components {
	cfg := deps.Config
	logger := deps.Logger

	var (
		vouchers    voucher.Backend
		adminSvc    *voucher.Service
		baseQuoter  delivery.Quoter
		orders      checkout.OrderSubmitter
		menu        cart.MenuLookup
		tasks       checkout.TaskEnqueuer
		eventStore  events.EventStore
		quoteSource string
		probes      = []health.Probe{health.Redis(deps.Redis, envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300))}
	)

	if cfg.Local() {
		adminSvc = &voucher.Service{Q: deps.Queries, Validate: deps.Validator, CurrencySymbol: cfg.CurrencySymbol}
		vouchers = adminSvc
		baseQuoter = delivery.DistanceQuoter{
			Restaurants:   deps.Queries,
			BaseFee:       cfg.DeliveryBaseFee,
			PerKmFee:      cfg.DeliveryPerKmFee,
			MaxDistanceKm: cfg.DeliveryMaxKm,
			SpeedKmh:      cfg.RiderSpeedKmh,
			PrepMinutes:   cfg.KitchenPrepMinutes,
		}
		orders = checkout.PostgresOrders{Pool: deps.DB, Q: deps.Queries}
		menu = cart.Menu{Q: deps.Queries}
		tasks = deps.Tasks
		eventStore = deps.Queries
		quoteSource = config.BackendLocal
		probes = append(probes, health.Postgres(deps.DB, envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500)))
	} else {
		api := backend.New(backend.Options{
			BaseURL:      cfg.BackendBaseURL,
			Target:       "order-backend",
			Timeout:      cfg.BackendTimeout,
			MaxAttempts:  cfg.BackendMaxRetries,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenFor:      cfg.BreakerOpenFor,
			Logger:       logger,
		})
		vouchers = voucher.RemoteClient{API: api}
		baseQuoter = delivery.RemoteClient{API: api}
		orders = checkout.RemoteOrders{API: api}
		quoteSource = config.BackendRemote
		probes = append(probes, health.Breaker("backend", api.HTTP.Breaker))
	}

	quoter := delivery.Instrumented{
		Source: quoteSource,
		Next: delivery.CachedQuoter{
			Next:   baseQuoter,
			Cache:  delivery.NewCache(deps.Redis, "quote:", cfg.QuoteCacheTTL),
			Logger: logger.With().Str("component", "delivery").Logger(),
		},
	}

	locker := deps.Locker()
	cartSvc := &cart.Service{
		Store:    &cart.Store{R: deps.Redis, TTL: cfg.CartTTL},
		Menu:     menu,
		Lock:     locker,
		Validate: deps.Validator,
	}
	bus := &events.Bus{
		Store:     eventStore,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}},
	}
	checkoutSvc := &checkout.Service{
		Carts:          cartSvc,
		Sessions:       &checkout.SessionStore{R: deps.Redis, TTL: cfg.SessionTTL, Lock: locker},
		Vouchers:       vouchers,
		BackendName:    quoteSource,
		Quoter:         quoter,
		Orders:         orders,
		Tasks:          tasks,
		Events:         bus,
		Validate:       deps.Validator,
		CurrencySymbol: cfg.CurrencySymbol,
		QuoteTimeout:   cfg.QuoteTimeout,
		SettleMaxRetry: cfg.SettleTaskMaxRetry,
		Logger:         logger.With().Str("component", "checkout").Logger(),
	}

	limiter, err := deps.RateLimiter()
	if err != nil {
		logger.Error().Err(err).Msg("initialise rate limiter")
	}

	return components{
		voucherHandler:  &voucher.Handler{Backend: vouchers, Admin: adminSvc, CurrencySymbol: cfg.CurrencySymbol},
		deliveryHandler: &delivery.Handler{Quoter: quoter, Timeout: cfg.QuoteTimeout},
		cartHandler:     &cart.Handler{Svc: cartSvc},
		checkoutHandler: &checkout.Handler{Svc: checkoutSvc},
		limiter:         limiter,
		probes:          probes,
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/config"
	"github.com/clinic/booking/internal/domain/availability"
	"github.com/clinic/booking/internal/domain/directory"
	"github.com/clinic/booking/internal/domain/scheduling"
	"github.com/clinic/booking/internal/platform/db"
	"github.com/clinic/booking/internal/platform/lock"
	"github.com/clinic/booking/internal/platform/metrics"
	"github.com/clinic/booking/internal/platform/middleware"
)

// app holds the wired services and the resources they own.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	pool         *pgxpool.Pool
	redis        *redis.Client
	registry     *prometheus.Registry
	checks       []db.Check
	availability *availability.Service
	scheduling   *scheduling.Service
}

type stores struct {
	rules        availability.RuleRepository
	exceptions   availability.ExceptionRepository
	directory    directory.Repository
	appointments scheduling.AppointmentRepository
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, seedPath string) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	client, err := newRedisClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.redis = client
	if client != nil {
		a.checks = append(a.checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}

	s, err := a.openStores(ctx, seedPath)
	if err != nil {
		a.close()
		return nil, err
	}

	locker, err := newLocker(cfg, client)
	if err != nil {
		a.close()
		return nil, err
	}

	var m *metrics.BookingMetrics
	if cfg.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewBookingMetrics(a.registry)
	}

	a.availability = availability.NewService(s.rules, s.exceptions, logger)
	a.scheduling = scheduling.NewService(s.rules, s.exceptions, s.appointments, s.directory, scheduling.Options{
		DefaultWindowDays:        cfg.DefaultBookingWindowDays,
		DefaultMinutesPerPatient: cfg.DefaultMinutesPerPatient,
		MaxRetries:               cfg.AllocationMaxRetries,
		Location:                 cfg.Location(),
		Locker:                   locker,
		Metrics:                  m,
		Logger:                   logger,
	})
	return a, nil
}

func (a *app) openStores(ctx context.Context, seedPath string) (stores, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		avail := availability.NewMemoryStore()
		dir := directory.NewMemoryRepo()
		if seedPath != "" {
			f, err := os.Open(seedPath)
			if err != nil {
				return stores{}, fmt.Errorf("open seed: %w", err)
			}
			defer f.Close()
			if err := dir.LoadSeed(f); err != nil {
				return stores{}, err
			}
		}
		a.logger.Warn().Msg("using in-memory store; bookings are lost on restart")
		return stores{
			rules:        avail.Rules(),
			exceptions:   avail.Exceptions(),
			directory:    dir,
			appointments: scheduling.NewMemoryLedger(),
		}, nil

	default:
		pool, err := db.NewPool(ctx, poolConfig(a.cfg))
		if err != nil {
			return stores{}, err
		}
		a.pool = pool
		a.checks = append([]db.Check{db.PoolCheck(pool)}, a.checks...)
		a.logger.Info().Msg("connected to database")

		var dir directory.Repository = directory.NewRepoPG(pool)
		if a.redis != nil && a.cfg.DirectoryCacheTTL > 0 {
			dir = directory.NewCachedRepo(dir, a.redis, a.cfg.DirectoryCacheTTL, a.logger)
		}
		return stores{
			rules:        availability.NewRuleRepoPG(pool),
			exceptions:   availability.NewExceptionRepoPG(pool),
			directory:    dir,
			appointments: scheduling.NewAppointmentRepoPG(pool),
		}, nil
	}
}

// newRedisClient returns nil when REDIS_URL is unset. An unreachable Redis
// is fatal only when the lock depends on it.
func newRedisClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if cfg.LockMode == config.LockRedis {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Warn().Err(err).Msg("redis not available; directory cache disabled")
		return nil, nil
	}
	return client, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "booking-server",
	}
}

func newLocker(cfg *config.Config, client *redis.Client) (lock.Locker, error) {
	switch cfg.LockMode {
	case config.LockRedis:
		if client == nil {
			return nil, fmt.Errorf("LOCK_MODE=redis needs a reachable REDIS_URL")
		}
		return lock.NewRedisLocker(client, cfg.LockTTL, lock.WithPrefix("booking:lock:")), nil
	case config.LockNone:
		return lock.Noop{}, nil
	default:
		return lock.NewKeyedMutex(), nil
	}
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID(a.logger))
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Tracing())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, "traceparent"},
	}))
	e.Use(echomw.BodyLimit("256K"))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	e.GET("/health", db.HealthHandler(time.Second))
	e.GET("/health/db", db.HealthHandler(5*time.Second, a.checks...))
	if a.pool != nil {
		e.GET("/health/db/pool", db.PoolStatsHandler(a.pool))
	}
	if a.registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if a.cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = a.cfg.RateLimitRPS
		rateLimitCfg.BurstSize = a.cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	availability.NewHandler(a.availability).RegisterRoutes(apiV1)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(apiV1)

	return e
}

func runServer(cfg *config.Config, logger zerolog.Logger, seedPath string) error {
	a, err := newApp(context.Background(), cfg, logger, seedPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	e := a.router()
	logger.Info().
		Str("store", cfg.Store).
		Str("lock_mode", cfg.LockMode).
		Str("timezone", cfg.Location().String()).
		Msg("booking engine ready")

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

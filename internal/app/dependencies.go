// Package app opens the infrastructure shared by the API and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/pesan-antar/internal/config"
	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/lock"
	"github.com/noah-isme/pesan-antar/internal/obs"
	"github.com/noah-isme/pesan-antar/internal/ratelimit"
)

// Dependencies holds the connections and shared singletons of one process. DB and
// Queries are nil when the service runs against a remote backend.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Queries   *db.Queries
	Redis     *redis.Client
	Validator *validator.Validate
	Tasks     *asynq.Client
	Registry  *prometheus.Registry
}

// Open connects to Postgres (local mode only) and Redis and prepares the task client
// and metrics registry. application names the process to Postgres.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, application string) (*Dependencies, error) {
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: validator.New(),
		Registry:  prometheus.NewRegistry(),
	}
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if cfg.Local() {
		pool, err := openPostgres(ctx, cfg.DatabaseURL, application)
		if err != nil {
			return nil, err
		}
		deps.DB = pool
		deps.Queries = db.New(pool)
	}

	client, err := openRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Redis = client

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("parse redis uri for tasks: %w", err)
	}
	deps.Tasks = asynq.NewClient(connOpt)
	return deps, nil
}

func openPostgres(ctx context.Context, url, application string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = application

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConnOpt returns the asynq connection options for the configured Redis.
func (d *Dependencies) RedisConnOpt() (asynq.RedisConnOpt, error) {
	return asynq.ParseRedisURI(d.Config.RedisURL)
}

// Locker returns the Redis lock shared by cart and checkout mutations.
func (d *Dependencies) Locker() lock.Locker {
	return lock.Locker{R: d.Redis, RetryBackoff: 25 * time.Millisecond, MaxWait: 3 * time.Second}
}

// RateLimiter builds the limiter selected by RATE_LIMIT_STRATEGY.
func (d *Dependencies) RateLimiter() (ratelimit.Limiter, error) {
	switch d.Config.RateLimitStrategy {
	case "fixed":
		store, err := NewLimiterStore(d.Redis)
		if err != nil {
			return nil, err
		}
		return ratelimit.Fixed{Store: store}, nil
	default:
		return ratelimit.SlidingWindow{Client: d.Redis, Prefix: "rl:"}, nil
	}
}

// NewLimiterStore wires a fixed-window limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return nil, errors.New("limiter store requires redis")
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "rlf"})
}

// Close releases every opened connection.
func (d *Dependencies) Close() {
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

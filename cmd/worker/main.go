package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/pesan-antar/internal/app"
	"github.com/noah-isme/pesan-antar/internal/config"
	"github.com/noah-isme/pesan-antar/internal/obs"
	"github.com/noah-isme/pesan-antar/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	if !cfg.Local() {
		logger.Info().Msg("voucher settlement is owned by the remote backend; worker has nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger, "pesan-antar-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "pesan"), deps.Registry)

	connOpt, err := deps.RedisConnOpt()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri")
	}
	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{"settlement": 1},
		ShutdownTimeout: 20 * time.Second,
		Logger:          asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).Str("type", task.Type()).Int("retried", retried).Int("max_retry", maxRetry).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(voucher.TaskSettle, voucher.SettleHandler{
		Svc: &voucher.Service{
			Q:              deps.Queries,
			Tx:             voucher.PgTransactor{Pool: deps.DB, Q: deps.Queries},
			Validate:       deps.Validator,
			CurrencySymbol: cfg.CurrencySymbol,
		},
		Logger: logger,
	})

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/pesan-antar/internal/common"
	"github.com/noah-isme/pesan-antar/internal/resilience"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the process-wide readiness flag. The API clears it when shutdown
// begins so load balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Probe is a single named readiness dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe and reports 503 when any fails or the process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Probes)+1)
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting down"
	}
	for _, p := range h.Probes {
		if err := p.run(r.Context()); err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (p Probe) run(ctx context.Context) error {
	if p.Check == nil {
		return errors.New("not configured")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}

// Postgres probes the pool with a ping.
func Postgres(pool *pgxpool.Pool, timeout time.Duration) Probe {
	return Probe{Name: "db", Timeout: timeout, Check: func(ctx context.Context) error {
		if pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}}
}

// Redis probes the client with PING.
func Redis(client redis.UniversalClient, timeout time.Duration) Probe {
	return Probe{Name: "redis", Timeout: timeout, Check: func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}}
}

// Breaker reports a remote backend as unavailable while its circuit is open.
func Breaker(name string, b *resilience.Breaker) Probe {
	return Probe{Name: name, Check: func(context.Context) error {
		if b == nil {
			return nil
		}
		if b.State() == resilience.Open {
			return errors.New("circuit open")
		}
		return nil
	}}
}

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper storing keys under prefix.
func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// CachedQuoter serves quotes from Redis before falling through to Next. Cache failures
// are logged and never fail the quote.
type CachedQuoter struct {
	Next   Quoter
	Cache  *Cache
	Logger zerolog.Logger
}

// Quote implements Quoter.
func (c CachedQuoter) Quote(ctx context.Context, req QuoteRequest) (pricing.DeliveryQuote, error) {
	if err := req.Validate(); err != nil {
		return pricing.DeliveryQuote{}, err
	}
	key := req.Key()
	var cached pricing.DeliveryQuote
	hit, err := c.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("quote_cache_read_failed")
	}
	if hit {
		return cached, nil
	}
	q, err := c.Next.Quote(ctx, req)
	if err != nil {
		return pricing.DeliveryQuote{}, err
	}
	if err := c.Cache.SetJSON(ctx, key, q); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("quote_cache_write_failed")
	}
	return q, nil
}

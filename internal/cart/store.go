package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists carts as JSON in Redis. Every save refreshes the TTL.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 72 * time.Hour
	}
	return s.TTL
}

// Key returns the Redis key of a user's cart.
func Key(userID string) string {
	return "cart:user:" + userID
}

// Load returns the user's cart. A missing cart is returned empty.
func (s *Store) Load(ctx context.Context, userID string) (Cart, error) {
	raw, err := s.R.Get(ctx, Key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, nil
		}
		return Cart{}, err
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Save writes the cart. An empty cart deletes the key.
func (s *Store) Save(ctx context.Context, userID string, c Cart) error {
	if c.Empty() {
		return s.Delete(ctx, userID)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, Key(userID), raw, s.ttl()).Err()
}

// Delete removes the user's cart.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.R.Del(ctx, Key(userID)).Err()
}

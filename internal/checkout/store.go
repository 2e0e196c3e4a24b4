package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serialises mutations of one user's session.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// SessionStore keeps sessions as JSON in Redis.
type SessionStore struct {
	R    *redis.Client
	TTL  time.Duration
	Lock Locker
	Now  func() time.Time
}

// SessionKey returns the Redis key of a user's session.
func SessionKey(userID string) string {
	return "checkout:session:" + userID
}

func (s *SessionStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 2 * time.Hour
	}
	return s.TTL
}

// Load returns the user's session, or a new one when none is stored.
func (s *SessionStore) Load(ctx context.Context, userID string) (Session, error) {
	raw, err := s.R.Get(ctx, SessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewSession(), nil
		}
		return Session{}, err
	}
	sess := NewSession()
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, err
	}
	sess.ensure()
	return sess, nil
}

// Update loads the session, applies fn and saves the result while holding the user's lock.
// When fn fails nothing is written.
func (s *SessionStore) Update(ctx context.Context, userID string, fn func(*Session) error) (Session, error) {
	var out Session
	run := func(ctx context.Context) error {
		sess, err := s.Load(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		if s.Now != nil {
			sess.UpdatedAt = s.Now()
		} else {
			sess.UpdatedAt = time.Now().UTC()
		}
		raw, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		if err := s.R.Set(ctx, SessionKey(userID), raw, s.ttl()).Err(); err != nil {
			return err
		}
		out = sess
		return nil
	}
	if s.Lock == nil {
		return out, run(ctx)
	}
	err := s.Lock.WithLock(ctx, "lock:"+SessionKey(userID), 5*time.Second, run)
	return out, err
}

// Hold runs fn while holding the user's session lock. fn must not call Update for the same
// user; the lock is not reentrant.
func (s *SessionStore) Hold(ctx context.Context, userID string, ttl time.Duration, fn func(context.Context) error) error {
	if s.Lock == nil {
		return fn(ctx)
	}
	return s.Lock.WithLock(ctx, "lock:"+SessionKey(userID), ttl, fn)
}

// Delete removes the user's session.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	return s.R.Del(ctx, SessionKey(userID)).Err()
}

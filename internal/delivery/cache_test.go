package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

func TestCachedQuoterServesRepeatLookupsFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingQuoter{quote: pricing.DeliveryQuote{Fee: pricing.MustMoney("57.40"), DistanceKm: 2.3, EstimatedTime: "21-31 mins"}}
	cq := CachedQuoter{Next: next, Cache: NewCache(client, "delivery:quote:", 5*time.Minute), Logger: zerolog.Nop()}
	req := QuoteRequest{RestaurantID: "r1", Lat: 14.5747, Lng: 121.0244}

	first, err := cq.Quote(context.Background(), req)
	require.NoError(t, err)
	second, err := cq.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, next.calls)
	require.True(t, first.Fee.Equal(second.Fee))
	require.Equal(t, first.EstimatedTime, second.EstimatedTime)
	require.True(t, mr.Exists("delivery:quote:"+req.Key()))

	mr.FastForward(6 * time.Minute)
	_, err = cq.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
}

func TestCachedQuoterDoesNotCacheFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingQuoter{err: ErrOutOfRange}
	cq := CachedQuoter{Next: next, Cache: NewCache(client, "delivery:quote:", time.Minute), Logger: zerolog.Nop()}
	req := QuoteRequest{RestaurantID: "r1", Lat: 14.9, Lng: 121}
	_, err := cq.Quote(context.Background(), req)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = cq.Quote(context.Background(), req)
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Equal(t, 2, next.calls)
	require.Empty(t, mr.Keys())
}

func TestCachedQuoterToleratesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	next := &countingQuoter{quote: pricing.DeliveryQuote{Fee: pricing.MustMoney("39")}}
	cq := CachedQuoter{Next: next, Cache: NewCache(client, "delivery:quote:", time.Minute), Logger: zerolog.Nop()}
	q, err := cq.Quote(context.Background(), QuoteRequest{RestaurantID: "r1", Lat: 1, Lng: 1})
	require.NoError(t, err)
	require.True(t, q.Fee.Equal(pricing.MustMoney("39")))
}

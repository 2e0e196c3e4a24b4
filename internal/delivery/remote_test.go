package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/backend"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

func remoteFor(t *testing.T, h http.HandlerFunc) RemoteClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return RemoteClient{API: backend.New(backend.Options{BaseURL: srv.URL, Target: "delivery-test", Timeout: time.Second, Logger: zerolog.Nop()})}
}

func TestRemoteQuoteSendsDestination(t *testing.T) {
	client := remoteFor(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/delivery-fee", r.URL.Path)
		require.Equal(t, "r1", r.URL.Query().Get("restaurant_id"))
		require.Equal(t, "14.5547", r.URL.Query().Get("lat"))
		require.Equal(t, "121.0244", r.URL.Query().Get("lng"))
		_, _ = w.Write([]byte(`{"delivery_fee":49.5,"distance_km":1.3,"estimated_time":"20-30 mins"}`))
	})
	q, err := client.Quote(context.Background(), QuoteRequest{RestaurantID: "r1", Lat: 14.5547, Lng: 121.0244})
	require.NoError(t, err)
	require.True(t, q.Fee.Equal(pricing.MustMoney("49.50")))
	require.Equal(t, 1.3, q.DistanceKm)
	require.Equal(t, "20-30 mins", q.EstimatedTime)
}

func TestRemoteQuoteAcceptsNumericEstimate(t *testing.T) {
	client := remoteFor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"delivery_fee":35,"distance_km":0.8,"estimated_time":18}`))
	})
	q, err := client.Quote(context.Background(), QuoteRequest{RestaurantID: "r1", Lat: 1, Lng: 1})
	require.NoError(t, err)
	require.True(t, q.Fee.Equal(pricing.MustMoney("35")))
	require.Equal(t, "18 mins", q.EstimatedTime)
}

func TestRemoteQuoteMapsClientErrors(t *testing.T) {
	client := remoteFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"too far"}`))
	})
	_, err := client.Quote(context.Background(), QuoteRequest{RestaurantID: "r1", Lat: 1, Lng: 1})
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestRemoteQuoteServerErrorIsUnavailable(t *testing.T) {
	client := remoteFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.Quote(context.Background(), QuoteRequest{RestaurantID: "r1", Lat: 1, Lng: 1})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRemoteQuoteRejectsNegativeFee(t *testing.T) {
	client := remoteFor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"delivery_fee":-1,"distance_km":1,"estimated_time":"x"}`))
	})
	_, err := client.Quote(context.Background(), QuoteRequest{RestaurantID: "r1", Lat: 1, Lng: 1})
	require.ErrorIs(t, err, ErrUnavailable)
}

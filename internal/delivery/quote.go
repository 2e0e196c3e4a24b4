package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/pesan-antar/internal/obs"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

var (
	// ErrInvalidDestination indicates missing or out-of-range coordinates.
	ErrInvalidDestination = errors.New("invalid delivery destination")
	// ErrRestaurantNotFound indicates the restaurant id is unknown.
	ErrRestaurantNotFound = errors.New("restaurant not found")
	// ErrOutOfRange indicates the destination is beyond the delivery radius.
	ErrOutOfRange = errors.New("destination outside delivery range")
	// ErrUnavailable indicates the quote source failed or timed out.
	ErrUnavailable = errors.New("delivery quote unavailable")
)

// QuoteRequest identifies a restaurant and a destination.
type QuoteRequest struct {
	RestaurantID string  `json:"restaurant_id"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

// Validate checks the restaurant id and coordinate ranges.
func (r QuoteRequest) Validate() error {
	if strings.TrimSpace(r.RestaurantID) == "" {
		return fmt.Errorf("restaurant_id is required: %w", ErrInvalidDestination)
	}
	if math.IsNaN(r.Lat) || math.IsNaN(r.Lng) || r.Lat < -90 || r.Lat > 90 || r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("coordinates out of range: %w", ErrInvalidDestination)
	}
	return nil
}

// Key returns the DestinationKey of the request.
func (r QuoteRequest) Key() string {
	return DestinationKey(r.RestaurantID, r.Lat, r.Lng)
}

// DestinationKey identifies a restaurant and destination pair. Coordinates are rounded to
// five decimals (about a metre).
func DestinationKey(restaurantID string, lat, lng float64) string {
	return fmt.Sprintf("%s:%.5f:%.5f", strings.TrimSpace(restaurantID), lat, lng)
}

// Quoter produces delivery quotes.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (pricing.DeliveryQuote, error)
}

// Instrumented records quote outcomes and latency under Source.
type Instrumented struct {
	Next   Quoter
	Source string
}

// Quote implements Quoter.
func (i Instrumented) Quote(ctx context.Context, req QuoteRequest) (pricing.DeliveryQuote, error) {
	start := time.Now()
	q, err := i.Next.Quote(ctx, req)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrOutOfRange):
		result = "out_of_range"
	case errors.Is(err, ErrRestaurantNotFound), errors.Is(err, ErrInvalidDestination):
		result = "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	obs.ObserveDeliveryQuote(i.Source, result, obs.DurationMillis(time.Since(start)))
	return q, err
}

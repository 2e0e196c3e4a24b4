package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

const earthRadiusKm = 6371.0

// RestaurantQuerier loads restaurant coordinates.
type RestaurantQuerier interface {
	GetRestaurant(ctx context.Context, id pgtype.UUID) (db.Restaurant, error)
}

// DistanceQuoter prices delivery from the great-circle distance between a restaurant and
// the destination.
type DistanceQuoter struct {
	Restaurants   RestaurantQuerier
	BaseFee       pricing.Money
	PerKmFee      pricing.Money
	MaxDistanceKm float64
	SpeedKmh      float64
	PrepMinutes   int
}

var _ Quoter = DistanceQuoter{}

// Quote implements Quoter. Fee is BaseFee + PerKmFee × distance, with distance rounded up
// to the next 0.1 km.
func (q DistanceQuoter) Quote(ctx context.Context, req QuoteRequest) (pricing.DeliveryQuote, error) {
	if err := req.Validate(); err != nil {
		return pricing.DeliveryQuote{}, err
	}
	id, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		return pricing.DeliveryQuote{}, fmt.Errorf("%w: %s", ErrRestaurantNotFound, req.RestaurantID)
	}
	restaurant, err := q.Restaurants.GetRestaurant(ctx, pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.DeliveryQuote{}, fmt.Errorf("%w: %s", ErrRestaurantNotFound, req.RestaurantID)
		}
		return pricing.DeliveryQuote{}, err
	}
	km := roundUpTenth(Haversine(restaurant.Latitude, restaurant.Longitude, req.Lat, req.Lng))
	if q.MaxDistanceKm > 0 && km > q.MaxDistanceKm {
		return pricing.DeliveryQuote{}, fmt.Errorf("%w: %.1f km exceeds %.1f km", ErrOutOfRange, km, q.MaxDistanceKm)
	}
	fee := q.BaseFee.Add(q.PerKmFee.Mul(decimal.NewFromFloat(km)))
	return pricing.DeliveryQuote{
		Fee:           fee,
		DistanceKm:    km,
		EstimatedTime: q.eta(km),
	}, nil
}

func (q DistanceQuoter) eta(km float64) string {
	speed := q.SpeedKmh
	if speed <= 0 {
		speed = 25
	}
	low := q.PrepMinutes + int(math.Ceil(km/speed*60))
	return fmt.Sprintf("%d-%d mins", low, low+10)
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

func roundUpTenth(km float64) float64 {
	return math.Ceil(km*10-1e-9) / 10
}

package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

func TestFeeHandlerReturnsQuote(t *testing.T) {
	h := &Handler{Quoter: &countingQuoter{quote: pricing.DeliveryQuote{Fee: pricing.MustMoney("57.4"), DistanceKm: 2.3, EstimatedTime: "21-31 mins"}}}
	rec := httptest.NewRecorder()
	h.Fee(rec, httptest.NewRequest(http.MethodGet, "/api/v1/delivery-fee?restaurant_id=r1&lat=14.57&lng=121.02", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Fee           string  `json:"delivery_fee"`
			DistanceKm    float64 `json:"distance_km"`
			EstimatedTime string  `json:"estimated_time"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "57.4", body.Data.Fee)
	require.Equal(t, 2.3, body.Data.DistanceKm)
}

func TestFeeHandlerErrors(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		err    error
		status int
		code   string
	}{
		{"bad coordinates", "/api/v1/delivery-fee?restaurant_id=r1&lat=x&lng=1", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"out of range", "/api/v1/delivery-fee?restaurant_id=r1&lat=1&lng=1", ErrOutOfRange, http.StatusUnprocessableEntity, "OUT_OF_RANGE"},
		{"unknown restaurant", "/api/v1/delivery-fee?restaurant_id=r1&lat=1&lng=1", ErrRestaurantNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"timeout", "/api/v1/delivery-fee?restaurant_id=r1&lat=1&lng=1", context.DeadlineExceeded, http.StatusServiceUnavailable, "DELIVERY_FEE_UNAVAILABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{Quoter: &countingQuoter{err: tc.err}}
			rec := httptest.NewRecorder()
			h.Fee(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
			require.Equal(t, tc.status, rec.Code)
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
		})
	}
}

package delivery

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/pesan-antar/internal/common"
)

// Handler exposes the delivery fee lookup.
type Handler struct {
	Quoter  Quoter
	Timeout time.Duration
}

// Fee handles GET /delivery-fee?restaurant_id&lat&lng.
func (h *Handler) Fee(w http.ResponseWriter, r *http.Request) {
	if h.Quoter == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "delivery quoter not configured", nil)
		return
	}
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(q.Get("lng")), 64)
	if latErr != nil || lngErr != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "lat and lng must be numbers", nil)
		return
	}
	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	quote, err := h.Quoter.Quote(ctx, QuoteRequest{RestaurantID: q.Get("restaurant_id"), Lat: lat, Lng: lng})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDestination):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrRestaurantNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "restaurant not found", nil)
	case errors.Is(err, ErrOutOfRange):
		common.JSONError(w, http.StatusUnprocessableEntity, "OUT_OF_RANGE", "This address is outside the restaurant's delivery area.", nil)
	default:
		common.JSONError(w, http.StatusServiceUnavailable, "DELIVERY_FEE_UNAVAILABLE", "Unable to calculate the delivery fee. Please try again.", map[string]bool{"retryable": true})
	}
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/noah-isme/pesan-antar/internal/backend"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// RemoteClient fetches quotes from GET /delivery-fee on the remote backend.
type RemoteClient struct {
	API *backend.Client
}

var _ Quoter = RemoteClient{}

// Quote implements Quoter.
func (c RemoteClient) Quote(ctx context.Context, req QuoteRequest) (pricing.DeliveryQuote, error) {
	if err := req.Validate(); err != nil {
		return pricing.DeliveryQuote{}, err
	}
	query := url.Values{
		"restaurant_id": {req.RestaurantID},
		"lat":           {strconv.FormatFloat(req.Lat, 'f', -1, 64)},
		"lng":           {strconv.FormatFloat(req.Lng, 'f', -1, 64)},
	}
	var q pricing.DeliveryQuote
	if err := c.API.Do(ctx, http.MethodGet, "/delivery-fee", query, nil, &q); err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return pricing.DeliveryQuote{}, fmt.Errorf("%w: %s", ErrRestaurantNotFound, apiErr.Message)
			case http.StatusBadRequest, http.StatusUnprocessableEntity:
				return pricing.DeliveryQuote{}, fmt.Errorf("%w: %s", ErrOutOfRange, apiErr.Message)
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return pricing.DeliveryQuote{}, err
		}
		return pricing.DeliveryQuote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if q.Fee.IsNegative() {
		return pricing.DeliveryQuote{}, fmt.Errorf("%w: negative delivery fee", ErrUnavailable)
	}
	return q, nil
}

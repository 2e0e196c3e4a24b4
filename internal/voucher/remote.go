package voucher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/pesan-antar/internal/backend"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// RemoteClient reads vouchers from the remote order-management API.
type RemoteClient struct {
	API *backend.Client
}

var _ Backend = RemoteClient{}

type applyRequest struct {
	Code       string        `json:"code"`
	OrderTotal pricing.Money `json:"order_total"`
}

// List calls GET /vouchers. Records that fail validation are skipped.
func (c RemoteClient) List(ctx context.Context) ([]pricing.Voucher, error) {
	var records []Record
	if err := c.API.Do(ctx, http.MethodGet, "/vouchers", nil, nil, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	out := make([]pricing.Voucher, 0, len(records))
	for _, rec := range records {
		v, err := rec.Voucher()
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Apply calls POST /vouchers/apply. A 4xx response becomes a *RejectedError carrying the
// backend's message, or GenericRejection when it sent none.
func (c RemoteClient) Apply(ctx context.Context, code string, orderTotal pricing.Money) (pricing.Voucher, error) {
	var rec Record
	err := c.API.Do(ctx, http.MethodPost, "/vouchers/apply", nil, applyRequest{Code: pricing.NormalizeCode(code), OrderTotal: orderTotal}, &rec)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			msg := apiErr.Message
			if msg == "" {
				msg = GenericRejection
			}
			return pricing.Voucher{}, reject(ErrInvalidCode, msg)
		}
		return pricing.Voucher{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	v, err := rec.Voucher()
	if err != nil {
		return pricing.Voucher{}, reject(ErrInvalidCode, GenericRejection)
	}
	return v, nil
}

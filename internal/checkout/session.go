package checkout

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/pesan-antar/internal/cart"
	"github.com/noah-isme/pesan-antar/internal/delivery"
	"github.com/noah-isme/pesan-antar/internal/pricing"
	"github.com/noah-isme/pesan-antar/internal/voucher"
)

// Destination is the delivery address selected for the order.
type Destination struct {
	AddressID string  `json:"address_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// Validate checks the address id and coordinate ranges.
func (d Destination) Validate() error {
	if strings.TrimSpace(d.AddressID) == "" {
		return fmt.Errorf("address_id is required: %w", delivery.ErrInvalidDestination)
	}
	if math.IsNaN(d.Lat) || math.IsNaN(d.Lng) || d.Lat < -90 || d.Lat > 90 || d.Lng < -180 || d.Lng > 180 {
		return fmt.Errorf("coordinates out of range: %w", delivery.ErrInvalidDestination)
	}
	return nil
}

// Session is the per-user checkout state kept alongside the cart.
//
// QuoteSeq increases with every quote request. A quote response is only applied when its
// sequence number and destination key are still the latest ones requested, so responses
// that arrive out of order never overwrite a newer address.
type Session struct {
	Vouchers    pricing.AppliedVoucherSet `json:"vouchers"`
	RiderTip    pricing.Money             `json:"rider_tip"`
	Destination *Destination              `json:"destination,omitempty"`
	Quote       *pricing.DeliveryQuote    `json:"quote,omitempty"`
	QuoteKey    string                    `json:"quote_key,omitempty"`
	QuoteSeq    int64                     `json:"quote_seq"`
	PendingKey  string                    `json:"pending_key,omitempty"`
	QuoteFailed bool                      `json:"quote_failed,omitempty"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// NewSession returns an empty session.
func NewSession() Session {
	return Session{Vouchers: pricing.AppliedVoucherSet{}, RiderTip: pricing.Zero()}
}

func (s *Session) ensure() {
	if s.Vouchers == nil {
		s.Vouchers = pricing.AppliedVoucherSet{}
	}
}

// CurrentQuote returns the quote when it was fetched for the cart's restaurant and the
// selected destination, nil otherwise.
func (s Session) CurrentQuote(c cart.Cart) *pricing.DeliveryQuote {
	if s.Quote == nil || s.Destination == nil || c.RestaurantID == "" {
		return nil
	}
	if s.QuoteKey != delivery.DestinationKey(c.RestaurantID, s.Destination.Lat, s.Destination.Lng) {
		return nil
	}
	q := *s.Quote
	return &q
}

// Total runs the pricing engine over the cart and this session.
func (s Session) Total(c cart.Cart) pricing.OrderTotal {
	return pricing.Compute(c.Subtotal(), s.CurrentQuote(c), s.Vouchers, s.RiderTip)
}

// Admit adds v to the applied set after re-checking its minimum order against subtotal. A
// voucher of the same type is replaced.
func (s *Session) Admit(v pricing.Voucher, subtotal pricing.Money, symbol string) error {
	if ok, shortfall := pricing.IsVoucherEligible(v, subtotal); !ok {
		return &voucher.RejectedError{
			Reason:    voucher.ErrMinimumOrderUnmet,
			Message:   pricing.ShortfallMessage(symbol, shortfall),
			Shortfall: &shortfall,
		}
	}
	s.ensure()
	s.Vouchers.Put(v)
	return nil
}

// RemoveVoucher drops the voucher of type t.
func (s *Session) RemoveVoucher(t pricing.VoucherType) bool {
	s.ensure()
	return s.Vouchers.Remove(t)
}

// SetTip replaces the rider tip.
func (s *Session) SetTip(tip pricing.Money) error {
	if err := pricing.ValidateTip(tip); err != nil {
		return err
	}
	s.RiderTip = tip
	return nil
}

// BeginQuote records dest and starts a quote request for restaurantID. The previous quote
// is dropped. The returned sequence number and key must be passed to ResolveQuote or
// FailQuote.
func (s *Session) BeginQuote(dest Destination, restaurantID string) (int64, string) {
	d := dest
	s.Destination = &d
	s.QuoteSeq++
	s.Quote = nil
	s.QuoteKey = ""
	s.QuoteFailed = false
	s.PendingKey = delivery.DestinationKey(restaurantID, dest.Lat, dest.Lng)
	return s.QuoteSeq, s.PendingKey
}

// ResolveQuote stores q when seq and key identify the latest request. It reports whether
// the quote was applied.
func (s *Session) ResolveQuote(seq int64, key string, q pricing.DeliveryQuote) bool {
	if !s.isLatest(seq, key) {
		return false
	}
	s.Quote = &q
	s.QuoteKey = key
	s.PendingKey = ""
	s.QuoteFailed = false
	return true
}

// FailQuote marks the latest request as failed. It reports whether the failure applied.
func (s *Session) FailQuote(seq int64, key string) bool {
	if !s.isLatest(seq, key) {
		return false
	}
	s.Quote = nil
	s.QuoteKey = ""
	s.PendingKey = ""
	s.QuoteFailed = true
	return true
}

func (s *Session) isLatest(seq int64, key string) bool {
	return seq == s.QuoteSeq && key != "" && key == s.PendingKey
}

// IneligibleVouchers lists applied vouchers whose minimum order the subtotal no longer meets.
func (s Session) IneligibleVouchers(subtotal pricing.Money, symbol string) []VoucherNotice {
	var out []VoucherNotice
	for _, v := range s.Vouchers.Ordered() {
		if ok, shortfall := pricing.IsVoucherEligible(v, subtotal); !ok {
			out = append(out, VoucherNotice{
				Code:      v.Code,
				Type:      v.Type,
				Shortfall: shortfall,
				Message:   pricing.ShortfallMessage(symbol, shortfall),
			})
		}
	}
	return out
}

// VoucherNotice is an inline message attached to an applied voucher.
type VoucherNotice struct {
	Code      string              `json:"code"`
	Type      pricing.VoucherType `json:"type"`
	Shortfall pricing.Money       `json:"shortfall"`
	Message   string              `json:"message"`
}

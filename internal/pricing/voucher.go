package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidVoucher is returned by data-entry validation of voucher records.
var ErrInvalidVoucher = errors.New("invalid voucher")

// VoucherType scopes what a voucher discounts.
type VoucherType string

const (
	VoucherDiscount VoucherType = "discount"
	VoucherShipping VoucherType = "shipping"
	VoucherReward   VoucherType = "reward"
)

var typeRank = map[VoucherType]int{
	VoucherDiscount: 0,
	VoucherReward:   1,
	VoucherShipping: 2,
}

// ParseVoucherType parses a voucher type case-insensitively.
func ParseVoucherType(s string) (VoucherType, error) {
	t := VoucherType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := typeRank[t]; !ok {
		return "", fmt.Errorf("unknown voucher type %q: %w", s, ErrInvalidVoucher)
	}
	return t, nil
}

// Voucher is a promotional code record as returned by the voucher backend.
type Voucher struct {
	ID           string      `json:"id"`
	Code         string      `json:"code"`
	Type         VoucherType `json:"type"`
	Discount     Discount    `json:"discount"`
	MinimumOrder Money       `json:"minimum_order"`
	MaxUses      int         `json:"max_uses"`
	UsageCount   int         `json:"usage_count"`
	ValidUntil   time.Time   `json:"valid_until"`
}

// NormalizeCode canonicalises a voucher code. Codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// VoucherFields is the flat shape voucher records are entered and transported in.
type VoucherFields struct {
	ID                 string
	Code               string
	Type               string
	DiscountPercentage *Money
	DiscountAmount     *Money
	MinimumOrder       Money
	MaxUses            int
	UsageCount         int
	ValidUntil         time.Time
}

// VoucherFromFields validates flat voucher fields and builds a Voucher.
func VoucherFromFields(f VoucherFields) (Voucher, error) {
	code := NormalizeCode(f.Code)
	if code == "" {
		return Voucher{}, fmt.Errorf("code is required: %w", ErrInvalidVoucher)
	}
	t, err := ParseVoucherType(f.Type)
	if err != nil {
		return Voucher{}, err
	}
	d, err := DiscountFromFields(f.DiscountPercentage, f.DiscountAmount)
	if err != nil {
		return Voucher{}, err
	}
	if f.MinimumOrder.IsNegative() {
		return Voucher{}, fmt.Errorf("minimum_order must not be negative: %w", ErrInvalidVoucher)
	}
	if f.MaxUses < 0 || f.UsageCount < 0 {
		return Voucher{}, fmt.Errorf("max_uses and usage_count must not be negative: %w", ErrInvalidVoucher)
	}
	return Voucher{
		ID:           f.ID,
		Code:         code,
		Type:         t,
		Discount:     d,
		MinimumOrder: f.MinimumOrder,
		MaxUses:      f.MaxUses,
		UsageCount:   f.UsageCount,
		ValidUntil:   f.ValidUntil,
	}, nil
}

// Fields flattens the voucher back into its transport shape.
func (v Voucher) Fields() VoucherFields {
	pct, amt := v.Discount.Fields()
	return VoucherFields{
		ID:                 v.ID,
		Code:               v.Code,
		Type:               string(v.Type),
		DiscountPercentage: pct,
		DiscountAmount:     amt,
		MinimumOrder:       v.MinimumOrder,
		MaxUses:            v.MaxUses,
		UsageCount:         v.UsageCount,
		ValidUntil:         v.ValidUntil,
	}
}

// IsVoucherEligible reports whether subtotal meets the voucher's minimum order. When it
// does not, shortfall is the amount still needed.
func IsVoucherEligible(v Voucher, subtotal Money) (bool, Money) {
	if subtotal.GreaterThanOrEqual(v.MinimumOrder) {
		return true, Zero()
	}
	return false, v.MinimumOrder.Sub(subtotal)
}

// ShortfallMessage is the inline message shown for an ineligible voucher.
func ShortfallMessage(symbol string, shortfall Money) string {
	return fmt.Sprintf("Spend %s%s more to use this voucher.", symbol, Format(shortfall))
}

// AppliedVoucherSet holds at most one voucher per type.
type AppliedVoucherSet map[VoucherType]Voucher

// Put stores v, replacing any voucher of the same type. The replaced voucher is returned.
func (s AppliedVoucherSet) Put(v Voucher) (Voucher, bool) {
	prev, ok := s[v.Type]
	s[v.Type] = v
	return prev, ok
}

// Remove drops the voucher of type t and reports whether one was present.
func (s AppliedVoucherSet) Remove(t VoucherType) bool {
	if _, ok := s[t]; !ok {
		return false
	}
	delete(s, t)
	return true
}

// Ordered returns the applied vouchers in a stable type order.
func (s AppliedVoucherSet) Ordered() []Voucher {
	out := make([]Voucher, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return typeRank[out[i].Type] < typeRank[out[j].Type] })
	return out
}

// Codes returns the applied voucher codes in a stable type order.
func (s AppliedVoucherSet) Codes() []string {
	ordered := s.Ordered()
	codes := make([]string, 0, len(ordered))
	for _, v := range ordered {
		codes = append(codes, v.Code)
	}
	return codes
}

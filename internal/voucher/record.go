package voucher

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// Record is the JSON shape of a voucher exchanged with clients and the remote backend.
// Amounts are decoded from either numbers or strings and encoded as strings.
type Record struct {
	ID                 string           `json:"id"`
	Code               string           `json:"code"`
	Type               string           `json:"type"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount"`
	MinimumOrder       decimal.Decimal  `json:"minimum_order"`
	MaxUses            int              `json:"max_uses"`
	UsageCount         int              `json:"usage_count"`
	ValidUntil         time.Time        `json:"valid_until"`
}

// ToRecord flattens a voucher for transport.
func ToRecord(v pricing.Voucher) Record {
	f := v.Fields()
	return Record{
		ID:                 f.ID,
		Code:               f.Code,
		Type:               f.Type,
		DiscountPercentage: f.DiscountPercentage,
		DiscountAmount:     f.DiscountAmount,
		MinimumOrder:       f.MinimumOrder,
		MaxUses:            f.MaxUses,
		UsageCount:         f.UsageCount,
		ValidUntil:         f.ValidUntil,
	}
}

// Voucher validates the record and converts it into the pricing model.
func (r Record) Voucher() (pricing.Voucher, error) {
	return pricing.VoucherFromFields(pricing.VoucherFields{
		ID:                 r.ID,
		Code:               r.Code,
		Type:               r.Type,
		DiscountPercentage: r.DiscountPercentage,
		DiscountAmount:     r.DiscountAmount,
		MinimumOrder:       r.MinimumOrder,
		MaxUses:            r.MaxUses,
		UsageCount:         r.UsageCount,
		ValidUntil:         r.ValidUntil,
	})
}

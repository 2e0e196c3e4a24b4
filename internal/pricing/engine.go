package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNegativeTip is returned when a rider tip below zero is supplied.
var ErrNegativeTip = errors.New("rider tip must not be negative")

// DeliveryQuote is a delivery fee, distance and ETA for a restaurant and destination.
type DeliveryQuote struct {
	Fee           Money   `json:"delivery_fee"`
	DistanceKm    float64 `json:"distance_km"`
	EstimatedTime string  `json:"estimated_time"`
}

// UnmarshalJSON accepts estimated_time either as text ("20-30 mins") or as a number of
// minutes.
func (q *DeliveryQuote) UnmarshalJSON(data []byte) error {
	type plain DeliveryQuote
	var aux struct {
		plain
		EstimatedTime json.RawMessage `json:"estimated_time"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*q = DeliveryQuote(aux.plain)
	q.EstimatedTime = ""
	raw := bytes.TrimSpace(aux.EstimatedTime)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		return json.Unmarshal(raw, &q.EstimatedTime)
	}
	var minutes json.Number
	if err := json.Unmarshal(raw, &minutes); err != nil {
		return fmt.Errorf("estimated_time: %w", err)
	}
	q.EstimatedTime = minutes.String() + " mins"
	return nil
}

// DiscountLine is the contribution of a single applied voucher.
type DiscountLine struct {
	Code   string      `json:"code"`
	Type   VoucherType `json:"type"`
	Amount Money       `json:"amount"`
}

// Discounts is the result of ComputeDiscounts.
type Discounts struct {
	OnSubtotal          Money
	OnShipping          Money
	AdjustedDeliveryFee Money
	Lines               []DiscountLine
}

// OrderTotal is the priced breakdown of a checkout.
type OrderTotal struct {
	Subtotal            Money          `json:"subtotal"`
	DiscountOnSubtotal  Money          `json:"discount_on_subtotal"`
	DiscountOnShipping  Money          `json:"discount_on_shipping"`
	DeliveryFee         Money          `json:"delivery_fee"`
	AdjustedDeliveryFee Money          `json:"adjusted_delivery_fee"`
	RiderTip            Money          `json:"rider_tip"`
	Total               Money          `json:"total"`
	Lines               []DiscountLine `json:"lines"`
}

// ComputeDiscounts splits applied vouchers into subtotal and shipping discounts.
// Non-shipping vouchers stack across types; shipping vouchers reduce the delivery fee,
// with percentage shipping vouchers taken as a percentage of the fee.
func ComputeDiscounts(subtotal, deliveryFee Money, applied AppliedVoucherSet) Discounts {
	out := Discounts{OnSubtotal: Zero(), OnShipping: Zero()}
	for _, v := range applied.Ordered() {
		var amount Money
		if v.Type == VoucherShipping {
			amount = v.Discount.Against(deliveryFee)
			out.OnShipping = out.OnShipping.Add(amount)
		} else {
			amount = v.Discount.Against(subtotal)
			out.OnSubtotal = out.OnSubtotal.Add(amount)
		}
		out.Lines = append(out.Lines, DiscountLine{Code: v.Code, Type: v.Type, Amount: amount})
	}
	out.AdjustedDeliveryFee = nonNegative(deliveryFee.Sub(out.OnShipping))
	return out
}

// Compute prices a checkout. A nil quote means the fee has not been resolved and is
// treated as zero.
func Compute(subtotal Money, quote *DeliveryQuote, applied AppliedVoucherSet, tip Money) OrderTotal {
	fee := Zero()
	if quote != nil {
		fee = quote.Fee
	}
	d := ComputeDiscounts(subtotal, fee, applied)
	total := subtotal.Sub(d.OnSubtotal).Add(d.AdjustedDeliveryFee).Add(tip)
	return OrderTotal{
		Subtotal:            subtotal,
		DiscountOnSubtotal:  d.OnSubtotal,
		DiscountOnShipping:  d.OnShipping,
		DeliveryFee:         fee,
		AdjustedDeliveryFee: d.AdjustedDeliveryFee,
		RiderTip:            tip,
		Total:               nonNegative(total),
		Lines:               d.Lines,
	}
}

// ValidateTip rejects negative tips.
func ValidateTip(tip Money) error {
	if tip.IsNegative() {
		return ErrNegativeTip
	}
	return nil
}

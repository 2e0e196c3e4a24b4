package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidDiscount is returned for out-of-range discount values.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrDiscountMissing is returned when neither a percentage nor an amount was supplied.
	ErrDiscountMissing = errors.New("either discount_percentage or discount_amount is required")
	// ErrDiscountConflict is returned when both a percentage and an amount were supplied.
	ErrDiscountConflict = errors.New("discount_percentage and discount_amount are mutually exclusive")
)

// DiscountKind tags the variant held by a Discount.
type DiscountKind string

const (
	KindPercentage  DiscountKind = "percentage"
	KindFixedAmount DiscountKind = "fixed_amount"
)

// Discount is either a percentage or a fixed amount off. The zero value is not a
// valid discount; use PercentOff or AmountOff.
type Discount struct {
	kind  DiscountKind
	value Money
}

// PercentOff builds a percentage discount. p must be within [0, 100].
func PercentOff(p Money) (Discount, error) {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return Discount{}, fmt.Errorf("percentage %s out of range: %w", p.String(), ErrInvalidDiscount)
	}
	return Discount{kind: KindPercentage, value: p}, nil
}

// AmountOff builds a fixed-amount discount. a must not be negative.
func AmountOff(a Money) (Discount, error) {
	if a.IsNegative() {
		return Discount{}, fmt.Errorf("amount %s is negative: %w", a.String(), ErrInvalidDiscount)
	}
	return Discount{kind: KindFixedAmount, value: a}, nil
}

// DiscountFromFields converts the two nullable wire fields into a Discount. Exactly one
// of percentage and amount must be set.
func DiscountFromFields(percentage, amount *Money) (Discount, error) {
	switch {
	case percentage != nil && amount != nil:
		return Discount{}, ErrDiscountConflict
	case percentage != nil:
		return PercentOff(*percentage)
	case amount != nil:
		return AmountOff(*amount)
	default:
		return Discount{}, ErrDiscountMissing
	}
}

// Kind reports the variant.
func (d Discount) Kind() DiscountKind { return d.kind }

// Value returns the percentage or amount carried by the discount.
func (d Discount) Value() Money { return d.value }

// Valid reports whether d was built by one of the constructors.
func (d Discount) Valid() bool {
	return d.kind == KindPercentage || d.kind == KindFixedAmount
}

// Fields splits the discount back into the two nullable wire fields.
func (d Discount) Fields() (percentage, amount *Money) {
	v := d.value
	switch d.kind {
	case KindPercentage:
		return &v, nil
	case KindFixedAmount:
		return nil, &v
	}
	return nil, nil
}

// Against returns the amount taken off base. Percentages are exact (base × p / 100).
func (d Discount) Against(base Money) Money {
	switch d.kind {
	case KindPercentage:
		return base.Mul(d.value).Shift(-2)
	case KindFixedAmount:
		return d.value
	default:
		return Zero()
	}
}

type discountJSON struct {
	Kind  DiscountKind `json:"kind"`
	Value Money        `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (d Discount) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(discountJSON{Kind: d.kind, Value: d.value})
}

// UnmarshalJSON implements json.Unmarshaler, re-running constructor validation.
func (d *Discount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Discount{}
		return nil
	}
	var raw discountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var (
		parsed Discount
		err    error
	)
	switch raw.Kind {
	case KindPercentage:
		parsed, err = PercentOff(raw.Value)
	case KindFixedAmount:
		parsed, err = AmountOff(raw.Value)
	default:
		err = fmt.Errorf("unknown discount kind %q: %w", raw.Kind, ErrInvalidDiscount)
	}
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

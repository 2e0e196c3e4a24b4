package voucher

import (
	"errors"
	"time"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

var (
	// ErrNotFound indicates the voucher code does not exist.
	ErrNotFound = errors.New("voucher not found")
	// ErrExpired indicates the voucher is past its validity window.
	ErrExpired = errors.New("voucher expired")
	// ErrUsageLimitReached indicates the voucher has been used max_uses times.
	ErrUsageLimitReached = errors.New("voucher usage limit reached")
	// ErrMinimumOrderUnmet indicates the order total is below the voucher minimum.
	ErrMinimumOrderUnmet = errors.New("voucher minimum order not met")
	// ErrInvalidCode is the reason attached to rejections reported by a remote backend.
	ErrInvalidCode = errors.New("voucher code rejected")
	// ErrCodeExists indicates a voucher with the same code already exists.
	ErrCodeExists = errors.New("voucher code already exists")
	// ErrBackendUnavailable indicates the voucher backend could not be reached.
	ErrBackendUnavailable = errors.New("voucher backend unavailable")
)

// GenericRejection is shown when the backend gives no message of its own.
const GenericRejection = "Invalid voucher code."

// RejectedError is a user-facing rejection of a voucher code.
type RejectedError struct {
	Reason    error
	Message   string
	Shortfall *pricing.Money
}

func (e *RejectedError) Error() string { return e.Message }

func (e *RejectedError) Unwrap() error { return e.Reason }

// Rule captures the apply-time checks for a voucher.
type Rule struct {
	MinimumOrder pricing.Money
	MaxUses      int
	UsageCount   int
	ValidUntil   time.Time
}

// RuleOf extracts the apply-time rule of v.
func RuleOf(v pricing.Voucher) Rule {
	return Rule{
		MinimumOrder: v.MinimumOrder,
		MaxUses:      v.MaxUses,
		UsageCount:   v.UsageCount,
		ValidUntil:   v.ValidUntil,
	}
}

// Validate checks expiry, usage cap and minimum order, in that order.
func (r Rule) Validate(now time.Time, orderTotal pricing.Money) error {
	if !r.ValidUntil.IsZero() && now.After(r.ValidUntil) {
		return ErrExpired
	}
	if r.MaxUses > 0 && r.UsageCount >= r.MaxUses {
		return ErrUsageLimitReached
	}
	if orderTotal.LessThan(r.MinimumOrder) {
		return ErrMinimumOrderUnmet
	}
	return nil
}

func reject(reason error, message string) *RejectedError {
	return &RejectedError{Reason: reason, Message: message}
}

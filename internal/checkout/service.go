package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pesan-antar/internal/cart"
	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/delivery"
	"github.com/noah-isme/pesan-antar/internal/events"
	"github.com/noah-isme/pesan-antar/internal/lock"
	"github.com/noah-isme/pesan-antar/internal/obs"
	"github.com/noah-isme/pesan-antar/internal/pricing"
	"github.com/noah-isme/pesan-antar/internal/voucher"
)

var (
	// ErrEmptyCart indicates an operation that needs items was called on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrDeliveryFeeUnavailable indicates no current delivery quote exists.
	ErrDeliveryFeeUnavailable = errors.New("delivery fee unavailable")
	// ErrVoucherNotApplied indicates no voucher of the requested type is applied.
	ErrVoucherNotApplied = errors.New("voucher not applied")
	// ErrInvalidPaymentMethod indicates a payment method other than cash, gcash or card.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrSubmissionFailed wraps any failure of the order backend.
	ErrSubmissionFailed = errors.New("order submission failed")
	// ErrSubmitInProgress indicates another submission for the same user holds the checkout.
	ErrSubmitInProgress = errors.New("checkout submission already in progress")
)

var defaultValidate = validator.New()

// Carts is the cart access checkout needs. Consume empties the cart only when fn succeeds
// and keeps it locked meanwhile.
type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Consume(ctx context.Context, userID string, fn func(context.Context, cart.Cart) error) error
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any) (db.DomainEvent, error)
}

// SubmitInput is the payload of POST /checkout/submit.
type SubmitInput struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash gcash card"`
}

// Summary is the priced view of a user's checkout.
type Summary struct {
	Cart                   cart.Cart          `json:"cart"`
	Session                Session            `json:"-"`
	Total                  pricing.OrderTotal `json:"total"`
	DeliveryFeeUnavailable bool               `json:"delivery_fee_unavailable"`
	Ineligible             []VoucherNotice    `json:"ineligible_vouchers,omitempty"`
}

// Service runs the checkout flow: cart, applied vouchers, tip and delivery quote are priced
// on every change and submitted as one order.
type Service struct {
	Carts          Carts
	Sessions       *SessionStore
	Vouchers       voucher.Backend
	BackendName    string
	Quoter         delivery.Quoter
	Orders         OrderSubmitter
	Tasks          TaskEnqueuer
	Events         Emitter
	Validate       *validator.Validate
	CurrencySymbol string
	QuoteTimeout   time.Duration
	SettleMaxRetry int
	Logger         zerolog.Logger
}

func (s *Service) symbol() string {
	if s.CurrencySymbol == "" {
		return "₱"
	}
	return s.CurrencySymbol
}

func (s *Service) summarize(c cart.Cart, sess Session) Summary {
	sess.ensure()
	return Summary{
		Cart:                   c,
		Session:                sess,
		Total:                  sess.Total(c),
		DeliveryFeeUnavailable: sess.CurrentQuote(c) == nil,
		Ineligible:             sess.IneligibleVouchers(c.Subtotal(), s.symbol()),
	}
}

// View prices the user's current cart and session.
func (s *Service) View(ctx context.Context, userID string) (Summary, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	sess, err := s.Sessions.Load(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(c, sess), nil
}

// SetAddress selects dest and fetches its delivery quote. The fetch runs outside the session
// lock; its result is applied only if no newer address was selected meanwhile. A failed
// fetch leaves the fee at zero and returns an error wrapping ErrDeliveryFeeUnavailable.
func (s *Service) SetAddress(ctx context.Context, userID string, dest Destination) (Summary, error) {
	if err := dest.Validate(); err != nil {
		return Summary{}, err
	}
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	var (
		seq int64
		key string
	)
	sess, err := s.Sessions.Update(ctx, userID, func(sess *Session) error {
		if c.Empty() {
			d := dest
			sess.Destination = &d
			sess.Quote = nil
			sess.QuoteKey = ""
			sess.PendingKey = ""
			return nil
		}
		seq, key = sess.BeginQuote(dest, c.RestaurantID)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if c.Empty() {
		return s.summarize(c, sess), nil
	}

	timeout := s.QuoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	quote, quoteErr := s.Quoter.Quote(qctx, delivery.QuoteRequest{RestaurantID: c.RestaurantID, Lat: dest.Lat, Lng: dest.Lng})
	cancel()

	applied := false
	sess, err = s.Sessions.Update(ctx, userID, func(sess *Session) error {
		if quoteErr != nil {
			applied = sess.FailQuote(seq, key)
		} else {
			applied = sess.ResolveQuote(seq, key, quote)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if !applied {
		obs.CountStaleQuote()
		s.Logger.Debug().Str("user_id", userID).Int64("seq", seq).Msg("stale_quote_discarded")
		return s.summarize(c, sess), nil
	}
	if quoteErr != nil {
		s.Logger.Warn().Err(quoteErr).Str("user_id", userID).Str("restaurant_id", c.RestaurantID).Msg("delivery_quote_failed")
		return s.summarize(c, sess), fmt.Errorf("%w: %w", ErrDeliveryFeeUnavailable, quoteErr)
	}
	return s.summarize(c, sess), nil
}

// ApplyVoucher validates code with the voucher backend and admits it after re-checking the
// minimum order against the cart as it is now.
func (s *Service) ApplyVoucher(ctx context.Context, userID, code string) (Summary, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if c.Empty() {
		return Summary{}, ErrEmptyCart
	}
	v, err := s.Vouchers.Apply(ctx, code, c.Subtotal())
	if err != nil {
		var rej *voucher.RejectedError
		if errors.As(err, &rej) {
			obs.CountVoucherApply(s.BackendName, "rejected")
		} else {
			obs.CountVoucherApply(s.BackendName, "error")
		}
		return Summary{}, err
	}

	var latest cart.Cart
	sess, err := s.Sessions.Update(ctx, userID, func(sess *Session) error {
		var getErr error
		if latest, getErr = s.Carts.Get(ctx, userID); getErr != nil {
			return getErr
		}
		return sess.Admit(v, latest.Subtotal(), s.symbol())
	})
	if err != nil {
		var rej *voucher.RejectedError
		if errors.As(err, &rej) {
			obs.CountVoucherApply(s.BackendName, "ineligible")
		}
		return Summary{}, err
	}
	obs.CountVoucherApply(s.BackendName, "applied")
	s.emit(ctx, events.TopicVoucherApplied, map[string]any{
		"user_id": userID,
		"code":    v.Code,
		"type":    v.Type,
	})
	return s.summarize(latest, sess), nil
}

// RemoveVoucher drops the applied voucher of type t.
func (s *Service) RemoveVoucher(ctx context.Context, userID string, t pricing.VoucherType) (Summary, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	sess, err := s.Sessions.Update(ctx, userID, func(sess *Session) error {
		if !sess.RemoveVoucher(t) {
			return ErrVoucherNotApplied
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(c, sess), nil
}

// SetTip replaces the rider tip.
func (s *Service) SetTip(ctx context.Context, userID string, tip pricing.Money) (Summary, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	sess, err := s.Sessions.Update(ctx, userID, func(sess *Session) error {
		return sess.SetTip(tip)
	})
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(c, sess), nil
}

// Submit prices the checkout one final time and places the order. The cart and session
// locks are held from the final read until the cart is emptied, so concurrent submits
// place at most one order. On failure the cart and session are left untouched so the
// user can retry.
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput) (Receipt, error) {
	validate := s.Validate
	if validate == nil {
		validate = defaultValidate
	}
	if err := validate.Struct(in); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidPaymentMethod, err)
	}

	var (
		receipt Receipt
		total   pricing.OrderTotal
		payload Payload
		placed  bool
	)
	err := s.Carts.Consume(ctx, userID, func(ctx context.Context, c cart.Cart) error {
		return s.Sessions.Hold(ctx, userID, submitLockTTL, func(ctx context.Context) error {
			if c.Empty() {
				obs.CountCheckoutSubmit("empty_cart")
				return ErrEmptyCart
			}
			sess, err := s.Sessions.Load(ctx, userID)
			if err != nil {
				return err
			}
			if sess.Destination == nil || sess.CurrentQuote(c) == nil {
				obs.CountCheckoutSubmit("no_quote")
				return ErrDeliveryFeeUnavailable
			}
			if notices := sess.IneligibleVouchers(c.Subtotal(), s.symbol()); len(notices) > 0 {
				obs.CountCheckoutSubmit("voucher_ineligible")
				n := notices[0]
				shortfall := n.Shortfall
				return &voucher.RejectedError{Reason: voucher.ErrMinimumOrderUnmet, Message: n.Message, Shortfall: &shortfall}
			}

			total = sess.Total(c)
			payload = BuildPayload(c, sess, total, in.PaymentMethod)
			r, err := s.Orders.Submit(ctx, SubmitRequest{UserID: userID, Payload: payload, Total: total})
			if err != nil {
				obs.CountCheckoutSubmit("failed")
				s.Logger.Error().Err(err).Str("user_id", userID).Msg("order_submit_failed")
				return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
			}
			receipt, placed = r, true
			obs.CountCheckoutSubmit("ok")
			if err := s.Sessions.Delete(ctx, userID); err != nil {
				s.Logger.Warn().Err(err).Str("user_id", userID).Msg("session_clear_failed")
			}
			return nil
		})
	})
	if err != nil && !placed {
		if errors.Is(err, lock.ErrTimeout) {
			obs.CountCheckoutSubmit("in_progress")
			return Receipt{}, ErrSubmitInProgress
		}
		return Receipt{}, err
	}
	if err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Str("order_id", receipt.OrderID).Msg("cart_clear_failed")
	}

	s.enqueueSettlements(ctx, userID, receipt.OrderID, total)
	s.emit(ctx, events.TopicOrderSubmitted, map[string]any{
		"order_id":      receipt.OrderID,
		"user_id":       userID,
		"restaurant_id": payload.RestaurantID,
		"total_price":   payload.TotalPrice,
		"voucher_codes": payload.VoucherCodes,
	})
	return receipt, nil
}

// submitLockTTL outlives one order submission including its backend timeout.
const submitLockTTL = 30 * time.Second

// BuildPayload assembles the order submission body. The total is rounded to cents here and
// nowhere earlier.
func BuildPayload(c cart.Cart, sess Session, total pricing.OrderTotal, paymentMethod string) Payload {
	items := make([]PayloadItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, PayloadItem{
			ID:        it.ID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}
	addressID := ""
	if sess.Destination != nil {
		addressID = sess.Destination.AddressID
	}
	return Payload{
		RestaurantID:      c.RestaurantID,
		CartItems:         items,
		DeliveryAddressID: addressID,
		TotalPrice:        total.Total.Round(2),
		RiderTip:          total.RiderTip,
		VoucherCodes:      sess.Vouchers.Codes(),
		PaymentMethod:     paymentMethod,
	}
}

func (s *Service) enqueueSettlements(ctx context.Context, userID, orderID string, total pricing.OrderTotal) {
	if s.Tasks == nil {
		return
	}
	for _, line := range total.Lines {
		amount := line.Amount
		if line.Type == pricing.VoucherShipping {
			amount = total.DeliveryFee.Sub(total.AdjustedDeliveryFee)
		}
		task, err := voucher.NewSettleTask(voucher.SettlePayload{
			Code:    line.Code,
			OrderID: orderID,
			UserID:  userID,
			Amount:  amount.Round(2),
		}, s.SettleMaxRetry)
		if err != nil {
			s.Logger.Error().Err(err).Str("code", line.Code).Msg("settle_task_build_failed")
			continue
		}
		if _, err := s.Tasks.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			s.Logger.Error().Err(err).Str("code", line.Code).Str("order_id", orderID).Msg("settle_task_enqueue_failed")
		}
	}
}

func (s *Service) emit(ctx context.Context, topic string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("event_emit_failed")
	}
}

package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/cart"
	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/delivery"
	"github.com/noah-isme/pesan-antar/internal/lock"
	"github.com/noah-isme/pesan-antar/internal/pricing"
	"github.com/noah-isme/pesan-antar/internal/voucher"
)

type stubVouchers struct {
	byCode map[string]pricing.Voucher
	err    error
	totals []pricing.Money
}

func (s *stubVouchers) List(context.Context) ([]pricing.Voucher, error) { return nil, nil }

func (s *stubVouchers) Apply(_ context.Context, code string, total pricing.Money) (pricing.Voucher, error) {
	s.totals = append(s.totals, total)
	if s.err != nil {
		return pricing.Voucher{}, s.err
	}
	v, ok := s.byCode[pricing.NormalizeCode(code)]
	if !ok {
		return pricing.Voucher{}, &voucher.RejectedError{Reason: voucher.ErrInvalidCode, Message: voucher.GenericRejection}
	}
	return v, nil
}

type quoteFunc func(ctx context.Context, req delivery.QuoteRequest) (pricing.DeliveryQuote, error)

func (f quoteFunc) Quote(ctx context.Context, req delivery.QuoteRequest) (pricing.DeliveryQuote, error) {
	return f(ctx, req)
}

type stubOrders struct {
	mu       sync.Mutex
	requests []SubmitRequest
	err      error
	// during runs while the order is being placed.
	during func()
}

func (s *stubOrders) Submit(_ context.Context, req SubmitRequest) (Receipt, error) {
	if s.during != nil {
		s.during()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return Receipt{}, s.err
	}
	return Receipt{OrderID: "order-1", Status: "pending", TotalPrice: req.Payload.TotalPrice}, nil
}

type captureTasks struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (c *captureTasks) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

type captureEvents struct {
	topics []string
}

func (c *captureEvents) Emit(_ context.Context, topic string, _ any) (db.DomainEvent, error) {
	c.topics = append(c.topics, topic)
	return db.DomainEvent{Topic: topic}, nil
}

type fixture struct {
	svc     *Service
	carts   *cart.Service
	mr      *miniredis.Miniredis
	orders  *stubOrders
	tasks   *captureTasks
	events  *captureEvents
	vouch   *stubVouchers
	fee     pricing.Money
	quoteFn quoteFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := lock.Locker{R: client, RetryBackoff: time.Millisecond}

	f := &fixture{
		mr:     mr,
		orders: &stubOrders{},
		tasks:  &captureTasks{},
		events: &captureEvents{},
		vouch: &stubVouchers{byCode: map[string]pricing.Voucher{
			"TENOFF":   percentVoucher("TENOFF", pricing.VoucherDiscount, "10", "0"),
			"SHIP30":   amountVoucher("SHIP30", pricing.VoucherShipping, "30", "0"),
			"BIGSPEND": amountVoucher("BIGSPEND", pricing.VoucherReward, "100", "600"),
		}},
		fee: pricing.MustMoney("50"),
	}
	f.carts = &cart.Service{Store: &cart.Store{R: client, TTL: time.Hour}, Lock: locker}
	f.quoteFn = func(context.Context, delivery.QuoteRequest) (pricing.DeliveryQuote, error) {
		return pricing.DeliveryQuote{Fee: f.fee, DistanceKm: 2.3, EstimatedTime: "21-31 mins"}, nil
	}
	f.svc = &Service{
		Carts:       f.carts,
		Sessions:    &SessionStore{R: client, TTL: time.Hour, Lock: locker},
		Vouchers:    f.vouch,
		BackendName: "local",
		Quoter: quoteFunc(func(ctx context.Context, req delivery.QuoteRequest) (pricing.DeliveryQuote, error) {
			return f.quoteFn(ctx, req)
		}),
		Orders:         f.orders,
		Tasks:          f.tasks,
		Events:         f.events,
		CurrencySymbol: "₱",
		QuoteTimeout:   time.Second,
		Logger:         zerolog.Nop(),
	}
	return f
}

func (f *fixture) fillCart(t *testing.T, user string) {
	t.Helper()
	price := pricing.MustMoney("250")
	_, err := f.carts.Add(context.Background(), user, cart.AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "Adobo", UnitPrice: &price, Quantity: 2})
	require.NoError(t, err)
}

func TestCheckoutFullFlowPricesAndSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")

	sum, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)
	require.False(t, sum.DeliveryFeeUnavailable)
	_, err = f.svc.ApplyVoucher(ctx, "u1", "tenoff")
	require.NoError(t, err)
	_, err = f.svc.ApplyVoucher(ctx, "u1", "SHIP30")
	require.NoError(t, err)
	sum, err = f.svc.SetTip(ctx, "u1", pricing.MustMoney("20"))
	require.NoError(t, err)
	require.True(t, sum.Total.Total.Equal(pricing.MustMoney("490")), sum.Total.Total.String())

	receipt, err := f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "gcash"})
	require.NoError(t, err)
	require.Equal(t, "order-1", receipt.OrderID)

	require.Len(t, f.orders.requests, 1)
	p := f.orders.requests[0].Payload
	require.Equal(t, "r1", p.RestaurantID)
	require.Equal(t, "addr-home", p.DeliveryAddressID)
	require.Equal(t, []string{"TENOFF", "SHIP30"}, p.VoucherCodes)
	require.Equal(t, "gcash", p.PaymentMethod)
	require.True(t, p.TotalPrice.Equal(pricing.MustMoney("490")))
	require.True(t, p.RiderTip.Equal(pricing.MustMoney("20")))
	require.Len(t, p.CartItems, 1)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"restaurant_id":"r1","cart_items":[{"id":"adobo","name":"Adobo","unit_price":"250","quantity":2,"subtotal":"500"}],"delivery_address_id":"addr-home","total_price":"490","rider_tip":"20","voucher_codes":["TENOFF","SHIP30"],"payment_method":"gcash"}`, string(raw))

	require.Len(t, f.tasks.tasks, 2)
	var settle voucher.SettlePayload
	require.NoError(t, json.Unmarshal(f.tasks.tasks[1].Payload(), &settle))
	require.Equal(t, "SHIP30", settle.Code)
	require.Equal(t, "order-1", settle.OrderID)
	require.True(t, settle.Amount.Equal(pricing.MustMoney("30")))
	require.Equal(t, voucher.TaskSettle, f.tasks.tasks[0].Type())

	require.Contains(t, f.events.topics, "order.submitted")
	require.False(t, f.mr.Exists(cart.Key("u1")))
	require.False(t, f.mr.Exists(SessionKey("u1")))
}

func TestApplyVoucherRechecksMinimumLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")

	_, err := f.svc.ApplyVoucher(ctx, "u1", "BIGSPEND")
	var rej *voucher.RejectedError
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, err, voucher.ErrMinimumOrderUnmet)
	require.Equal(t, "Spend ₱100.00 more to use this voucher.", rej.Message)
	require.True(t, rej.Shortfall.Equal(pricing.MustMoney("100")))
	require.True(t, f.vouch.totals[0].Equal(pricing.MustMoney("500")))

	sum, err := f.svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, sum.Session.Vouchers)
}

func TestApplyVoucherSurfacesBackendRejection(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "u1")
	_, err := f.svc.ApplyVoucher(context.Background(), "u1", "NOPE")
	var rej *voucher.RejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, voucher.GenericRejection, rej.Message)

	f.vouch.err = voucher.ErrBackendUnavailable
	_, err = f.svc.ApplyVoucher(context.Background(), "u1", "TENOFF")
	require.ErrorIs(t, err, voucher.ErrBackendUnavailable)
}

func TestApplyVoucherNeedsItems(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyVoucher(context.Background(), "u1", "TENOFF")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmitBlockedWithoutQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")

	_, err := f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "cash"})
	require.ErrorIs(t, err, ErrDeliveryFeeUnavailable)
	require.Empty(t, f.orders.requests)

	f.quoteFn = func(context.Context, delivery.QuoteRequest) (pricing.DeliveryQuote, error) {
		return pricing.DeliveryQuote{}, delivery.ErrUnavailable
	}
	sum, err := f.svc.SetAddress(ctx, "u1", home)
	require.ErrorIs(t, err, ErrDeliveryFeeUnavailable)
	require.ErrorIs(t, err, delivery.ErrUnavailable)
	require.True(t, sum.DeliveryFeeUnavailable)
	require.True(t, sum.Session.QuoteFailed)
	require.True(t, sum.Total.Total.Equal(pricing.MustMoney("500")))

	_, err = f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "cash"})
	require.ErrorIs(t, err, ErrDeliveryFeeUnavailable)
}

func TestSubmitFailureLeavesCartAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)
	_, err = f.svc.ApplyVoucher(ctx, "u1", "TENOFF")
	require.NoError(t, err)

	f.orders.err = errors.New("backend exploded")
	_, err = f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "card"})
	require.ErrorIs(t, err, ErrSubmissionFailed)

	sum, err := f.svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sum.Cart.Items, 1)
	require.Len(t, sum.Session.Vouchers, 1)
	require.False(t, sum.DeliveryFeeUnavailable)
	require.Empty(t, f.tasks.tasks)
}

func TestSubmitRejectsUnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "u1")
	_, err := f.svc.Submit(context.Background(), "u1", SubmitInput{PaymentMethod: "bitcoin"})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestSubmitRejectsVoucherThatNoLongerQualifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)
	f.vouch.byCode["MIN400"] = amountVoucher("MIN400", pricing.VoucherDiscount, "40", "400")
	_, err = f.svc.ApplyVoucher(ctx, "u1", "MIN400")
	require.NoError(t, err)

	_, err = f.carts.UpdateQty(ctx, "u1", "adobo", 1)
	require.NoError(t, err)
	sum, err := f.svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sum.Ineligible, 1)
	require.Equal(t, "MIN400", sum.Ineligible[0].Code)

	_, err = f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "cash"})
	require.ErrorIs(t, err, voucher.ErrMinimumOrderUnmet)
	require.Empty(t, f.orders.requests)
}

func TestSetAddressDiscardsResponseOvertakenByNewerRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")

	calls := 0
	f.quoteFn = func(ctx context.Context, req delivery.QuoteRequest) (pricing.DeliveryQuote, error) {
		calls++
		if calls == 1 {
			// a second address is selected and quoted while this request is in flight
			_, err := f.svc.SetAddress(ctx, "u1", office)
			require.NoError(t, err)
			return pricing.DeliveryQuote{Fee: pricing.MustMoney("45")}, nil
		}
		return pricing.DeliveryQuote{Fee: pricing.MustMoney("70")}, nil
	}

	sum, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, "addr-office", sum.Session.Destination.AddressID)
	require.True(t, sum.Total.DeliveryFee.Equal(pricing.MustMoney("70")), sum.Total.DeliveryFee.String())
}

func TestSetAddressTimesOut(t *testing.T) {
	f := newFixture(t)
	f.svc.QuoteTimeout = 20 * time.Millisecond
	f.fillCart(t, "u1")
	f.quoteFn = func(ctx context.Context, _ delivery.QuoteRequest) (pricing.DeliveryQuote, error) {
		<-ctx.Done()
		return pricing.DeliveryQuote{}, ctx.Err()
	}
	_, err := f.svc.SetAddress(context.Background(), "u1", home)
	require.ErrorIs(t, err, ErrDeliveryFeeUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoveVoucherNotApplied(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RemoveVoucher(context.Background(), "u1", pricing.VoucherShipping)
	require.ErrorIs(t, err, ErrVoucherNotApplied)
}

func TestConcurrentSubmitsPlaceOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)
	_, err = f.svc.ApplyVoucher(ctx, "u1", "TENOFF")
	require.NoError(t, err)
	f.orders.during = func() { time.Sleep(30 * time.Millisecond) }

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "cash"})
		}(i)
	}
	wg.Wait()

	require.Len(t, f.orders.requests, 1)
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrEmptyCart)
	}
	require.Equal(t, 1, succeeded)
	require.Len(t, f.tasks.tasks, 1)
	require.False(t, f.mr.Exists(cart.Key("u1")))
}

func TestCartChangeDuringSubmitIsNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	impatient := &cart.Service{
		Store: &cart.Store{R: client, TTL: time.Hour},
		Lock:  lock.Locker{R: client, RetryBackoff: time.Millisecond, MaxWait: 10 * time.Millisecond},
	}
	var addErr error
	f.orders.during = func() {
		price := pricing.MustMoney("90")
		_, addErr = impatient.Add(ctx, "u1", cart.AddInput{RestaurantID: "r1", ItemID: "halo-halo", Name: "Halo-halo", UnitPrice: &price, Quantity: 1})
	}

	_, err = f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "cash"})
	require.NoError(t, err)
	require.ErrorIs(t, addErr, lock.ErrTimeout)
	require.Len(t, f.orders.requests[0].Payload.CartItems, 1)

	c, err := f.carts.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, c.Empty())
}

func TestSubmitReportsCheckoutHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.svc.SetAddress(ctx, "u1", home)
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.carts.Lock = lock.Locker{R: client, RetryBackoff: time.Millisecond, MaxWait: 10 * time.Millisecond}
	require.NoError(t, f.mr.Set("lock:"+cart.Key("u1"), "another-submit"))

	_, err = f.svc.Submit(ctx, "u1", SubmitInput{PaymentMethod: "cash"})
	require.ErrorIs(t, err, ErrSubmitInProgress)
	require.Empty(t, f.orders.requests)

	c, err := f.carts.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/pesan-antar/internal/backend"
	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// PayloadItem is one cart line of a submitted order.
type PayloadItem struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unit_price"`
	Quantity  int           `json:"quantity"`
	Subtotal  pricing.Money `json:"subtotal"`
}

// Payload is the order submission body sent to the order backend.
type Payload struct {
	RestaurantID      string        `json:"restaurant_id"`
	CartItems         []PayloadItem `json:"cart_items"`
	DeliveryAddressID string        `json:"delivery_address_id"`
	TotalPrice        pricing.Money `json:"total_price"`
	RiderTip          pricing.Money `json:"rider_tip"`
	VoucherCodes      []string      `json:"voucher_codes"`
	PaymentMethod     string        `json:"payment_method"`
}

// SubmitRequest carries the payload with the priced breakdown it was built from.
type SubmitRequest struct {
	UserID  string
	Payload Payload
	Total   pricing.OrderTotal
}

// Receipt is the backend's acknowledgement of a placed order.
type Receipt struct {
	OrderID    string        `json:"order_id"`
	Status     string        `json:"status"`
	TotalPrice pricing.Money `json:"total_price"`
}

// OrderSubmitter places orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, req SubmitRequest) (Receipt, error)
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresOrders writes the order and its items in one transaction.
type PostgresOrders struct {
	Pool TxBeginner
	Q    *db.Queries
}

// Submit implements OrderSubmitter.
func (o PostgresOrders) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	if o.Pool == nil || o.Q == nil {
		return Receipt{}, errors.New("order store not configured")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return Receipt{}, fmt.Errorf("invalid user id: %w", err)
	}
	restaurantID, err := uuid.Parse(req.Payload.RestaurantID)
	if err != nil {
		return Receipt{}, fmt.Errorf("invalid restaurant id: %w", err)
	}
	tx, err := o.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := o.Q.WithTx(tx)
	t := req.Total
	order, err := qtx.CreateOrder(ctx, db.CreateOrderParams{
		UserID:            pgtype.UUID{Bytes: userID, Valid: true},
		RestaurantID:      pgtype.UUID{Bytes: restaurantID, Valid: true},
		DeliveryAddressID: req.Payload.DeliveryAddressID,
		PaymentMethod:     req.Payload.PaymentMethod,
		Subtotal:          t.Subtotal.Round(2),
		DeliveryFee:       t.DeliveryFee.Round(2),
		Discount:          t.DiscountOnSubtotal.Add(t.DeliveryFee.Sub(t.AdjustedDeliveryFee)).Round(2),
		RiderTip:          t.RiderTip.Round(2),
		TotalPrice:        req.Payload.TotalPrice,
		VoucherCodes:      req.Payload.VoucherCodes,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("insert order: %w", err)
	}
	for _, it := range req.Payload.CartItems {
		if err := qtx.CreateOrderItem(ctx, db.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: it.ID,
			Name:       it.Name,
			UnitPrice:  it.UnitPrice,
			Quantity:   int32(it.Quantity),
		}); err != nil {
			return Receipt{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}
	return Receipt{
		OrderID:    uuid.UUID(order.ID.Bytes).String(),
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
	}, nil
}

// RemoteOrders posts orders to POST /orders on the remote backend.
type RemoteOrders struct {
	API *backend.Client
}

// Submit implements OrderSubmitter.
func (o RemoteOrders) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	var resp struct {
		ID         string         `json:"id"`
		OrderID    string         `json:"order_id"`
		Status     string         `json:"status"`
		TotalPrice *pricing.Money `json:"total_price"`
	}
	if err := o.API.Do(ctx, http.MethodPost, "/orders", nil, req.Payload, &resp); err != nil {
		return Receipt{}, err
	}
	r := Receipt{OrderID: resp.OrderID, Status: resp.Status, TotalPrice: req.Payload.TotalPrice}
	if r.OrderID == "" {
		r.OrderID = resp.ID
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	if resp.TotalPrice != nil {
		r.TotalPrice = *resp.TotalPrice
	}
	if r.OrderID == "" {
		return Receipt{}, errors.New("order backend returned no order id")
	}
	return r, nil
}

package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (user_id, restaurant_id, delivery_address_id, status, payment_method, subtotal, delivery_fee, discount, rider_tip, total_price, voucher_codes)
VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9, $10)
RETURNING id, user_id, restaurant_id, delivery_address_id, status, payment_method, subtotal, delivery_fee, discount, rider_tip, total_price, voucher_codes, created_at
`

type CreateOrderParams struct {
	UserID            pgtype.UUID     `json:"user_id"`
	RestaurantID      pgtype.UUID     `json:"restaurant_id"`
	DeliveryAddressID string          `json:"delivery_address_id"`
	PaymentMethod     string          `json:"payment_method"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DeliveryFee       decimal.Decimal `json:"delivery_fee"`
	Discount          decimal.Decimal `json:"discount"`
	RiderTip          decimal.Decimal `json:"rider_tip"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	VoucherCodes      []string        `json:"voucher_codes"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.UserID,
		arg.RestaurantID,
		arg.DeliveryAddressID,
		arg.PaymentMethod,
		arg.Subtotal,
		arg.DeliveryFee,
		arg.Discount,
		arg.RiderTip,
		arg.TotalPrice,
		arg.VoucherCodes,
	)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.RestaurantID,
		&i.DeliveryAddressID,
		&i.Status,
		&i.PaymentMethod,
		&i.Subtotal,
		&i.DeliveryFee,
		&i.Discount,
		&i.RiderTip,
		&i.TotalPrice,
		&i.VoucherCodes,
		&i.CreatedAt,
	)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :exec
INSERT INTO order_items (order_id, menu_item_id, name, unit_price, quantity)
VALUES ($1, $2, $3, $4, $5)
`

type CreateOrderItemParams struct {
	OrderID    pgtype.UUID     `json:"order_id"`
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int32           `json:"quantity"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.Exec(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Name,
		arg.UnitPrice,
		arg.Quantity,
	)
	return err
}

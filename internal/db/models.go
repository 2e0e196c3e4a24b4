package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Voucher struct {
	ID                 pgtype.UUID         `json:"id"`
	Code               string              `json:"code"`
	Type               string              `json:"type"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage"`
	DiscountAmount     decimal.NullDecimal `json:"discount_amount"`
	MinimumOrder       decimal.Decimal     `json:"minimum_order"`
	MaxUses            int32               `json:"max_uses"`
	UsageCount         int32               `json:"usage_count"`
	ValidUntil         pgtype.Timestamptz  `json:"valid_until"`
	CreatedAt          pgtype.Timestamptz  `json:"created_at"`
	UpdatedAt          pgtype.Timestamptz  `json:"updated_at"`
}

type VoucherUsage struct {
	ID        pgtype.UUID        `json:"id"`
	VoucherID pgtype.UUID        `json:"voucher_id"`
	OrderID   pgtype.UUID        `json:"order_id"`
	UserID    pgtype.UUID        `json:"user_id"`
	Amount    decimal.Decimal    `json:"amount"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type Restaurant struct {
	ID        pgtype.UUID        `json:"id"`
	Name      string             `json:"name"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	IsOpen    bool               `json:"is_open"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type MenuItem struct {
	ID           pgtype.UUID        `json:"id"`
	RestaurantID pgtype.UUID        `json:"restaurant_id"`
	Name         string             `json:"name"`
	Price        decimal.Decimal    `json:"price"`
	IsAvailable  bool               `json:"is_available"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

type Order struct {
	ID                pgtype.UUID        `json:"id"`
	UserID            pgtype.UUID        `json:"user_id"`
	RestaurantID      pgtype.UUID        `json:"restaurant_id"`
	DeliveryAddressID string             `json:"delivery_address_id"`
	Status            string             `json:"status"`
	PaymentMethod     string             `json:"payment_method"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	DeliveryFee       decimal.Decimal    `json:"delivery_fee"`
	Discount          decimal.Decimal    `json:"discount"`
	RiderTip          decimal.Decimal    `json:"rider_tip"`
	TotalPrice        decimal.Decimal    `json:"total_price"`
	VoucherCodes      []string           `json:"voucher_codes"`
	CreatedAt         pgtype.Timestamptz `json:"created_at"`
}

type OrderItem struct {
	ID         pgtype.UUID     `json:"id"`
	OrderID    pgtype.UUID     `json:"order_id"`
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int32           `json:"quantity"`
}

type DomainEvent struct {
	ID         pgtype.UUID        `json:"id"`
	Topic      string             `json:"topic"`
	Payload    []byte             `json:"payload"`
	OccurredAt pgtype.Timestamptz `json:"occurred_at"`
}

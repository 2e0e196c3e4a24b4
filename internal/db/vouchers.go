package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const voucherColumns = `id, code, type, discount_percentage, discount_amount, minimum_order, max_uses, usage_count, valid_until, created_at, updated_at`

func scanVoucher(row interface{ Scan(...any) error }) (Voucher, error) {
	var i Voucher
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Type,
		&i.DiscountPercentage,
		&i.DiscountAmount,
		&i.MinimumOrder,
		&i.MaxUses,
		&i.UsageCount,
		&i.ValidUntil,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listActiveVouchers = `-- name: ListActiveVouchers :many
SELECT ` + voucherColumns + ` FROM vouchers
WHERE valid_until >= $1
  AND (max_uses = 0 OR usage_count < max_uses)
ORDER BY minimum_order ASC, code ASC
`

func (q *Queries) ListActiveVouchers(ctx context.Context, now pgtype.Timestamptz) ([]Voucher, error) {
	rows, err := q.db.Query(ctx, listActiveVouchers, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Voucher
	for rows.Next() {
		i, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getVoucherByCode = `-- name: GetVoucherByCode :one
SELECT ` + voucherColumns + ` FROM vouchers WHERE code = upper($1)
`

func (q *Queries) GetVoucherByCode(ctx context.Context, code string) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherByCode, code))
}

const getVoucherByCodeForUpdate = `-- name: GetVoucherByCodeForUpdate :one
SELECT ` + voucherColumns + ` FROM vouchers WHERE code = upper($1) FOR UPDATE
`

func (q *Queries) GetVoucherByCodeForUpdate(ctx context.Context, code string) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherByCodeForUpdate, code))
}

const createVoucher = `-- name: CreateVoucher :one
INSERT INTO vouchers (code, type, discount_percentage, discount_amount, minimum_order, max_uses, valid_until)
VALUES (upper($1), $2, $3, $4, $5, $6, $7)
RETURNING ` + voucherColumns + `
`

type CreateVoucherParams struct {
	Code               string              `json:"code"`
	Type               string              `json:"type"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage"`
	DiscountAmount     decimal.NullDecimal `json:"discount_amount"`
	MinimumOrder       decimal.Decimal     `json:"minimum_order"`
	MaxUses            int32               `json:"max_uses"`
	ValidUntil         pgtype.Timestamptz  `json:"valid_until"`
}

func (q *Queries) CreateVoucher(ctx context.Context, arg CreateVoucherParams) (Voucher, error) {
	row := q.db.QueryRow(ctx, createVoucher,
		arg.Code,
		arg.Type,
		arg.DiscountPercentage,
		arg.DiscountAmount,
		arg.MinimumOrder,
		arg.MaxUses,
		arg.ValidUntil,
	)
	return scanVoucher(row)
}

const updateVoucher = `-- name: UpdateVoucher :one
UPDATE vouchers
SET type = $2,
    discount_percentage = $3,
    discount_amount = $4,
    minimum_order = $5,
    max_uses = $6,
    valid_until = $7,
    updated_at = now()
WHERE code = upper($1)
RETURNING ` + voucherColumns + `
`

type UpdateVoucherParams struct {
	Code               string              `json:"code"`
	Type               string              `json:"type"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage"`
	DiscountAmount     decimal.NullDecimal `json:"discount_amount"`
	MinimumOrder       decimal.Decimal     `json:"minimum_order"`
	MaxUses            int32               `json:"max_uses"`
	ValidUntil         pgtype.Timestamptz  `json:"valid_until"`
}

func (q *Queries) UpdateVoucher(ctx context.Context, arg UpdateVoucherParams) (Voucher, error) {
	row := q.db.QueryRow(ctx, updateVoucher,
		arg.Code,
		arg.Type,
		arg.DiscountPercentage,
		arg.DiscountAmount,
		arg.MinimumOrder,
		arg.MaxUses,
		arg.ValidUntil,
	)
	return scanVoucher(row)
}

const getVoucherUsageByOrder = `-- name: GetVoucherUsageByOrder :one
SELECT id, voucher_id, order_id, user_id, amount, created_at FROM voucher_usages
WHERE voucher_id = $1 AND order_id = $2
`

type GetVoucherUsageByOrderParams struct {
	VoucherID pgtype.UUID `json:"voucher_id"`
	OrderID   pgtype.UUID `json:"order_id"`
}

func (q *Queries) GetVoucherUsageByOrder(ctx context.Context, arg GetVoucherUsageByOrderParams) (VoucherUsage, error) {
	row := q.db.QueryRow(ctx, getVoucherUsageByOrder, arg.VoucherID, arg.OrderID)
	var i VoucherUsage
	err := row.Scan(
		&i.ID,
		&i.VoucherID,
		&i.OrderID,
		&i.UserID,
		&i.Amount,
		&i.CreatedAt,
	)
	return i, err
}

const insertVoucherUsage = `-- name: InsertVoucherUsage :exec
INSERT INTO voucher_usages (voucher_id, order_id, user_id, amount)
VALUES ($1, $2, $3, $4)
`

type InsertVoucherUsageParams struct {
	VoucherID pgtype.UUID     `json:"voucher_id"`
	OrderID   pgtype.UUID     `json:"order_id"`
	UserID    pgtype.UUID     `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (q *Queries) InsertVoucherUsage(ctx context.Context, arg InsertVoucherUsageParams) error {
	_, err := q.db.Exec(ctx, insertVoucherUsage,
		arg.VoucherID,
		arg.OrderID,
		arg.UserID,
		arg.Amount,
	)
	return err
}

const increaseVoucherUsageCount = `-- name: IncreaseVoucherUsageCount :exec
UPDATE vouchers SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1
`

func (q *Queries) IncreaseVoucherUsageCount(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, increaseVoucherUsageCount, id)
	return err
}

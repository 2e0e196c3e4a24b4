package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// Backend is the collaborator that owns voucher records.
type Backend interface {
	List(ctx context.Context) ([]pricing.Voucher, error)
	Apply(ctx context.Context, code string, orderTotal pricing.Money) (pricing.Voucher, error)
}

// Querier captures the database methods required by the voucher service.
type Querier interface {
	ListActiveVouchers(ctx context.Context, now pgtype.Timestamptz) ([]db.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (db.Voucher, error)
	GetVoucherByCodeForUpdate(ctx context.Context, code string) (db.Voucher, error)
	CreateVoucher(ctx context.Context, arg db.CreateVoucherParams) (db.Voucher, error)
	UpdateVoucher(ctx context.Context, arg db.UpdateVoucherParams) (db.Voucher, error)
	GetVoucherUsageByOrder(ctx context.Context, arg db.GetVoucherUsageByOrderParams) (db.VoucherUsage, error)
	InsertVoucherUsage(ctx context.Context, arg db.InsertVoucherUsageParams) error
	IncreaseVoucherUsageCount(ctx context.Context, id pgtype.UUID) error
}

// Input is the admin data-entry payload for a voucher.
type Input struct {
	Code               string           `json:"code" validate:"required,max=64"`
	Type               string           `json:"type" validate:"required,oneof=discount shipping reward"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount"`
	MinimumOrder       decimal.Decimal  `json:"minimum_order"`
	MaxUses            int              `json:"max_uses" validate:"gte=0"`
	ValidUntil         time.Time        `json:"valid_until" validate:"required"`
}

// Service is the Postgres-backed voucher backend. Tx is only needed by Settle.
type Service struct {
	Q              Querier
	Tx             Transactor
	Now            func() time.Time
	Validate       *validator.Validate
	CurrencySymbol string
}

var _ Backend = (*Service)(nil)

// List returns vouchers that are neither expired nor used up.
func (s *Service) List(ctx context.Context) ([]pricing.Voucher, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("voucher service not configured")
	}
	rows, err := s.Q.ListActiveVouchers(ctx, pgtype.Timestamptz{Time: s.now(), Valid: true})
	if err != nil {
		return nil, err
	}
	out := make([]pricing.Voucher, 0, len(rows))
	for _, row := range rows {
		v, err := VoucherFromModel(row)
		if err != nil {
			return nil, fmt.Errorf("voucher %s: %w", row.Code, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Apply validates code against orderTotal. Rejections are returned as *RejectedError.
func (s *Service) Apply(ctx context.Context, code string, orderTotal pricing.Money) (pricing.Voucher, error) {
	if s == nil || s.Q == nil {
		return pricing.Voucher{}, errors.New("voucher service not configured")
	}
	normalized := pricing.NormalizeCode(code)
	if normalized == "" {
		return pricing.Voucher{}, reject(ErrNotFound, GenericRejection)
	}
	row, err := s.Q.GetVoucherByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Voucher{}, reject(ErrNotFound, GenericRejection)
		}
		return pricing.Voucher{}, err
	}
	v, err := VoucherFromModel(row)
	if err != nil {
		return pricing.Voucher{}, err
	}
	switch err := RuleOf(v).Validate(s.now(), orderTotal); {
	case err == nil:
		return v, nil
	case errors.Is(err, ErrExpired):
		return pricing.Voucher{}, reject(err, "This voucher has expired.")
	case errors.Is(err, ErrUsageLimitReached):
		return pricing.Voucher{}, reject(err, "This voucher has reached its usage limit.")
	case errors.Is(err, ErrMinimumOrderUnmet):
		_, shortfall := pricing.IsVoucherEligible(v, orderTotal)
		rej := reject(err, pricing.ShortfallMessage(s.symbol(), shortfall))
		rej.Shortfall = &shortfall
		return pricing.Voucher{}, rej
	default:
		return pricing.Voucher{}, err
	}
}

// Create validates in and inserts a new voucher.
func (s *Service) Create(ctx context.Context, in Input) (pricing.Voucher, error) {
	v, err := s.validateInput(in)
	if err != nil {
		return pricing.Voucher{}, err
	}
	pct, amt := v.Discount.Fields()
	row, err := s.Q.CreateVoucher(ctx, db.CreateVoucherParams{
		Code:               v.Code,
		Type:               string(v.Type),
		DiscountPercentage: nullDecimal(pct),
		DiscountAmount:     nullDecimal(amt),
		MinimumOrder:       v.MinimumOrder,
		MaxUses:            int32(v.MaxUses),
		ValidUntil:         pgtype.Timestamptz{Time: v.ValidUntil, Valid: true},
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return pricing.Voucher{}, ErrCodeExists
		}
		return pricing.Voucher{}, err
	}
	return VoucherFromModel(row)
}

// Update replaces the mutable fields of the voucher identified by code.
func (s *Service) Update(ctx context.Context, code string, in Input) (pricing.Voucher, error) {
	in.Code = code
	v, err := s.validateInput(in)
	if err != nil {
		return pricing.Voucher{}, err
	}
	pct, amt := v.Discount.Fields()
	row, err := s.Q.UpdateVoucher(ctx, db.UpdateVoucherParams{
		Code:               v.Code,
		Type:               string(v.Type),
		DiscountPercentage: nullDecimal(pct),
		DiscountAmount:     nullDecimal(amt),
		MinimumOrder:       v.MinimumOrder,
		MaxUses:            int32(v.MaxUses),
		ValidUntil:         pgtype.Timestamptz{Time: v.ValidUntil, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Voucher{}, ErrNotFound
		}
		return pricing.Voucher{}, err
	}
	return VoucherFromModel(row)
}

// Settle records voucher usage for an order. The voucher row is locked and the usage
// row and usage count are written in one transaction, so a failed attempt leaves nothing
// behind for its retry to mistake for a finished settlement. Repeated calls for the same
// order are no-ops.
func (s *Service) Settle(ctx context.Context, code, orderID, userID string, amount pricing.Money) error {
	if s == nil || s.Tx == nil {
		return errors.New("voucher settlement not configured")
	}
	orderUUID, err := parseUUID(orderID)
	if err != nil || strings.TrimSpace(code) == "" {
		return fmt.Errorf("settle voucher: invalid order %q or code %q", orderID, code)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	err = s.Tx.InTx(ctx, func(q Querier) error {
		row, err := q.GetVoucherByCodeForUpdate(ctx, pricing.NormalizeCode(code))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errAlreadySettled
			}
			return err
		}
		_, err = q.GetVoucherUsageByOrder(ctx, db.GetVoucherUsageByOrderParams{VoucherID: row.ID, OrderID: orderUUID})
		if err == nil {
			return errAlreadySettled
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		params := db.InsertVoucherUsageParams{VoucherID: row.ID, OrderID: orderUUID, Amount: amount}
		if uid, err := parseUUID(userID); err == nil {
			params.UserID = uid
		}
		if err := q.InsertVoucherUsage(ctx, params); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return errAlreadySettled
			}
			return err
		}
		return q.IncreaseVoucherUsageCount(ctx, row.ID)
	})
	if errors.Is(err, errAlreadySettled) {
		return nil
	}
	return err
}

// errAlreadySettled rolls back a settlement that has nothing left to record.
var errAlreadySettled = errors.New("voucher usage already settled")

// Transactor runs fn with a Querier bound to one database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(Querier) error) error
}

// PgTransactor runs transactions on a pgx pool.
type PgTransactor struct {
	Pool *pgxpool.Pool
	Q    *db.Queries
}

// InTx implements Transactor.
func (t PgTransactor) InTx(ctx context.Context, fn func(Querier) error) error {
	if t.Pool == nil || t.Q == nil {
		return errors.New("voucher transactor not configured")
	}
	tx, err := t.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(t.Q.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) validateInput(in Input) (pricing.Voucher, error) {
	if s == nil || s.Q == nil {
		return pricing.Voucher{}, errors.New("voucher service not configured")
	}
	if s.Validate != nil {
		if err := s.Validate.Struct(in); err != nil {
			return pricing.Voucher{}, fmt.Errorf("%w: %v", pricing.ErrInvalidVoucher, err)
		}
	}
	return pricing.VoucherFromFields(pricing.VoucherFields{
		Code:               in.Code,
		Type:               in.Type,
		DiscountPercentage: in.DiscountPercentage,
		DiscountAmount:     in.DiscountAmount,
		MinimumOrder:       in.MinimumOrder,
		MaxUses:            in.MaxUses,
		ValidUntil:         in.ValidUntil,
	})
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) symbol() string {
	if s != nil && s.CurrencySymbol != "" {
		return s.CurrencySymbol
	}
	return "₱"
}

// VoucherFromModel converts a database row into the pricing model.
func VoucherFromModel(v db.Voucher) (pricing.Voucher, error) {
	f := pricing.VoucherFields{
		Code:         v.Code,
		Type:         v.Type,
		MinimumOrder: v.MinimumOrder,
		MaxUses:      int(v.MaxUses),
		UsageCount:   int(v.UsageCount),
	}
	if v.ID.Valid {
		f.ID = uuid.UUID(v.ID.Bytes).String()
	}
	if v.DiscountPercentage.Valid {
		f.DiscountPercentage = &v.DiscountPercentage.Decimal
	}
	if v.DiscountAmount.Valid {
		f.DiscountAmount = &v.DiscountAmount.Decimal
	}
	if v.ValidUntil.Valid {
		f.ValidUntil = v.ValidUntil.Time
	}
	return pricing.VoucherFromFields(f)
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func parseUUID(value string) (pgtype.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

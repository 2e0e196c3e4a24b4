package voucher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pesan-antar/internal/obs"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// TaskSettle is the asynq task type recording voucher usage after an order is placed.
const TaskSettle = "voucher:settle"

// SettlePayload identifies one voucher usage to record.
type SettlePayload struct {
	Code    string        `json:"code"`
	OrderID string        `json:"order_id"`
	UserID  string        `json:"user_id"`
	Amount  pricing.Money `json:"amount"`
}

// NewSettleTask builds a settle task. The task id is derived from order and code so a
// duplicate enqueue is rejected by asynq.
func NewSettleTask(p SettlePayload, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if maxRetry <= 0 {
		maxRetry = 10
	}
	return asynq.NewTask(TaskSettle, payload,
		asynq.TaskID(fmt.Sprintf("settle:%s:%s", p.OrderID, pricing.NormalizeCode(p.Code))),
		asynq.MaxRetry(maxRetry),
		asynq.Queue("settlement"),
	), nil
}

// Settler records voucher usage.
type Settler interface {
	Settle(ctx context.Context, code, orderID, userID string, amount pricing.Money) error
}

// SettleHandler processes TaskSettle.
type SettleHandler struct {
	Svc    Settler
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h SettleHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SettlePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.CountVoucherSettle("malformed")
		return fmt.Errorf("decode settle payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := obs.WithTrace(ctx, h.Logger).With().Str("code", p.Code).Str("order_id", p.OrderID).Logger()
	if err := h.Svc.Settle(ctx, p.Code, p.OrderID, p.UserID, p.Amount); err != nil {
		obs.CountVoucherSettle("error")
		logger.Error().Err(err).Msg("voucher_settle_failed")
		return err
	}
	obs.CountVoucherSettle("ok")
	logger.Info().Msg("voucher_settled")
	return nil
}

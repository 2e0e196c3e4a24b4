package voucher

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

type recordingSettler struct {
	calls []SettlePayload
	err   error
}

func (r *recordingSettler) Settle(ctx context.Context, code, orderID, userID string, amount pricing.Money) error {
	r.calls = append(r.calls, SettlePayload{Code: code, OrderID: orderID, UserID: userID, Amount: amount})
	return r.err
}

func TestSettleTaskRoundTrip(t *testing.T) {
	task, err := NewSettleTask(SettlePayload{Code: "ship30", OrderID: "o-1", UserID: "u-1", Amount: pricing.MustMoney("30")}, 3)
	require.NoError(t, err)
	require.Equal(t, TaskSettle, task.Type())

	settler := &recordingSettler{}
	h := SettleHandler{Svc: settler, Logger: zerolog.Nop()}
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, settler.calls, 1)
	require.Equal(t, "o-1", settler.calls[0].OrderID)
	require.True(t, settler.calls[0].Amount.Equal(pricing.MustMoney("30")))
}

func TestSettleTaskMalformedSkipsRetry(t *testing.T) {
	h := SettleHandler{Svc: &recordingSettler{}, Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskSettle, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestSettleTaskPropagatesErrors(t *testing.T) {
	h := SettleHandler{Svc: &recordingSettler{err: errors.New("db down")}, Logger: zerolog.Nop()}
	task, err := NewSettleTask(SettlePayload{Code: "A", OrderID: "o"}, 0)
	require.NoError(t, err)
	require.Error(t, h.ProcessTask(context.Background(), task))
}

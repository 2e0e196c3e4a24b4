package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/events"
)

type stubStore struct {
	lastParams db.InsertDomainEventParams
	err        error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	s.lastParams = arg
	if s.err != nil {
		return db.DomainEvent{}, s.err
	}
	return db.DomainEvent{
		ID:         pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:      arg.Topic,
		Payload:    arg.Payload,
		OccurredAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

type captureNotifier struct {
	events []db.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	event, err := bus.Emit(context.Background(), events.TopicOrderSubmitted, map[string]any{"order_id": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderSubmitted, store.lastParams.Topic)
	require.JSONEq(t, `{"order_id":"123"}`, string(store.lastParams.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["order_id"])
}

func TestEmitWithoutStoreStillNotifies(t *testing.T) {
	notifier := &captureNotifier{}
	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	bus := events.Bus{Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return at }}

	event, err := bus.Emit(context.Background(), events.TopicVoucherApplied, `{"code":"SAVE10"}`)
	require.NoError(t, err)
	require.True(t, event.ID.Valid)
	require.Equal(t, at, event.OccurredAt.Time)
	require.Len(t, notifier.events, 1)
}

func TestEmitValidation(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderSubmitted, "{not json")
	require.Error(t, err)

	store := &stubStore{err: errors.New("db down")}
	_, err = (&events.Bus{Store: store}).Emit(context.Background(), events.TopicOrderSubmitted, nil)
	require.ErrorContains(t, err, "persist event")
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("smtp down")}
	ok := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, nil, ok}}
	_, err := bus.Emit(context.Background(), events.TopicOrderSubmitted, nil)
	require.ErrorContains(t, err, "smtp down")
	require.Len(t, ok.events, 1)
}

func TestLogNotifierWritesTopic(t *testing.T) {
	var buf bytes.Buffer
	bus := events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: zerolog.New(&buf)}}}
	_, err := bus.Emit(context.Background(), events.TopicOrderSubmitted, map[string]string{"order_id": "o1"})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"topic":"order.submitted"`)
	require.Contains(t, buf.String(), `"order_id":"o1"`)
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pesan-antar/internal/db"
)

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error)
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event db.DomainEvent) error
}

// Bus persists domain events and fans them out to notifiers. Without a Store events are
// only dispatched.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event and dispatches it to all configured notifiers. Notifier failures
// are joined into the returned error after every notifier ran.
func (b *Bus) Emit(ctx context.Context, topic string, payload any) (db.DomainEvent, error) {
	if b == nil {
		return db.DomainEvent{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return db.DomainEvent{}, errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	var ev db.DomainEvent
	if b.Store != nil {
		ev, err = b.Store.InsertDomainEvent(ctx, db.InsertDomainEventParams{Topic: topic, Payload: encoded})
		if err != nil {
			return db.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
		}
	} else {
		now := time.Now().UTC()
		if b.Now != nil {
			now = b.Now()
		}
		ev = db.DomainEvent{
			ID:         pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Topic:      topic,
			Payload:    encoded,
			OccurredAt: pgtype.Timestamptz{Time: now, Valid: true},
		}
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// LogNotifier writes every event to a structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	n.Logger.Info().
		Str("event_id", uuid.UUID(event.ID.Bytes).String()).
		Str("topic", event.Topic).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		return validJSON([]byte(strings.TrimSpace(v)))
	default:
		return json.Marshal(v)
	}
}

func validJSON(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(v) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), v...), nil
}

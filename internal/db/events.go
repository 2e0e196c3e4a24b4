package db

import (
	"context"
)

const insertDomainEvent = `-- name: InsertDomainEvent :one
INSERT INTO domain_events (topic, payload) VALUES ($1, $2)
RETURNING id, topic, payload, occurred_at
`

type InsertDomainEventParams struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	row := q.db.QueryRow(ctx, insertDomainEvent, arg.Topic, arg.Payload)
	var i DomainEvent
	err := row.Scan(
		&i.ID,
		&i.Topic,
		&i.Payload,
		&i.OccurredAt,
	)
	return i, err
}

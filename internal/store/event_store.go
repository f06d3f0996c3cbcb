package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// RecordEvent stores an accepted delivery. Re-recording the same delivery id
// keeps the first row.
func (s *PostgresStore) RecordEvent(ctx context.Context, ev *domain.Event, handlers int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (id, event_type, payload, handlers, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.Type, []byte(ev.Raw), handlers, ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.StoredEvent, error) {
	var event domain.StoredEvent
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_type, payload, handlers, received_at
		FROM webhook_events WHERE id = $1
	`, id).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Handlers, &event.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &event, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, eventType string, limit int) ([]domain.StoredEvent, error) {
	query := `SELECT id, event_type, payload, handlers, received_at FROM webhook_events`
	args := []interface{}{}
	argIdx := 1

	if eventType != "" {
		query += fmt.Sprintf(" WHERE event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}

	query += " ORDER BY received_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.StoredEvent{}
	for rows.Next() {
		var e domain.StoredEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Handlers, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

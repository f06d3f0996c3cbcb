package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// RecordRun stores the outcome of one handler invocation.
func (s *PostgresStore) RecordRun(ctx context.Context, run domain.HandlerRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO handler_runs
			(event_id, event_type, handler, invocation_id, status, error_message, duration_ms, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.EventID, run.EventType, run.Handler, run.InvocationID, run.Status, run.Error, run.DurationMs, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("inserting handler run: %w", err)
	}
	return nil
}

// ListRuns returns the handler runs of one event, oldest first.
func (s *PostgresStore) ListRuns(ctx context.Context, eventID string) ([]domain.HandlerRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, event_type, handler, invocation_id, status,
		       error_message, duration_ms, finished_at
		FROM handler_runs
		WHERE event_id = $1
		ORDER BY finished_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying handler runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.HandlerRun{}
	for rows.Next() {
		var r domain.HandlerRun
		err := rows.Scan(
			&r.ID, &r.EventID, &r.EventType, &r.Handler, &r.InvocationID, &r.Status,
			&r.Error, &r.DurationMs, &r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning handler run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

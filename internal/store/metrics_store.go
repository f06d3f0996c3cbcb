package store

import (
	"context"
	"fmt"
)

// RunMetrics holds aggregated handler statistics.
type RunMetrics struct {
	TotalEvents   int     `json:"total_events"`
	TotalRuns     int     `json:"total_runs"`
	SucceededRuns int     `json:"succeeded_runs"`
	FailedRuns    int     `json:"failed_runs"`
	SkippedRuns   int     `json:"skipped_runs"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// GetRunMetrics returns aggregated handler statistics from the database.
func (s *PostgresStore) GetRunMetrics(ctx context.Context) (*RunMetrics, error) {
	var m RunMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'succeeded') AS succeeded,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status = 'skipped') AS skipped,
			COALESCE(AVG(duration_ms) FILTER (WHERE status <> 'skipped'), 0) AS avg_duration_ms
		FROM handler_runs
	`).Scan(&m.TotalRuns, &m.SucceededRuns, &m.FailedRuns, &m.SkippedRuns, &m.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("querying run metrics: %w", err)
	}

	if ran := m.SucceededRuns + m.FailedRuns; ran > 0 {
		m.SuccessRate = float64(m.SucceededRuns) / float64(ran) * 100
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhook_events`).Scan(&m.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("querying total events: %w", err)
	}

	return &m, nil
}

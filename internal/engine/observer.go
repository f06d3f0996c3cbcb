package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/metrics"
	"github.com/Priya8975/hookrelay/internal/worker"
)

// NewRunObserver returns the supervisor observer that turns handler results
// into metrics, stored runs and live notifications. recorder and notifier
// may be nil.
func NewRunObserver(recorder Recorder, notifier Notifier, logger *slog.Logger) worker.Observer {
	return func(r worker.Result) {
		run := handlerRun(r)

		metrics.HandlersInFlight.Dec()
		metrics.HandlerRuns.WithLabelValues(run.Handler, run.Status).Inc()
		if run.Status != domain.RunSkipped {
			metrics.HandlerDuration.WithLabelValues(run.Handler).Observe(r.Duration.Seconds())
		}

		if recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := recorder.RecordRun(ctx, run); err != nil {
				logger.Error("failed to record handler run",
					"error", err,
					"event_id", run.EventID,
					"handler", run.Handler,
				)
			}
			cancel()
		}
		if notifier != nil {
			notifier.HandlerFinished(run)
		}
	}
}

func handlerRun(r worker.Result) domain.HandlerRun {
	run := domain.HandlerRun{
		EventID:      r.Task.EventID,
		EventType:    r.Task.EventType,
		Handler:      r.Task.Handler,
		InvocationID: r.Task.InvocationID,
		Status:       domain.RunSucceeded,
		DurationMs:   r.Duration.Milliseconds(),
		FinishedAt:   time.Now().UTC(),
	}
	switch {
	case r.Skipped:
		run.Status = domain.RunSkipped
	case r.Err != nil:
		run.Status = domain.RunFailed
		msg := r.Err.Error()
		run.Error = &msg
	}
	return run
}

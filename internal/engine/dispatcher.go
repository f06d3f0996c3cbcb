package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/hook"
	"github.com/Priya8975/hookrelay/internal/metrics"
	"github.com/Priya8975/hookrelay/internal/webhook"
	"github.com/Priya8975/hookrelay/internal/worker"
)

// DefaultMaxBodyBytes matches the largest payload GitHub sends.
const DefaultMaxBodyBytes = 25 << 20

// Recorder persists accepted events and handler outcomes.
type Recorder interface {
	RecordEvent(ctx context.Context, ev *domain.Event, handlers int) error
	RecordRun(ctx context.Context, run domain.HandlerRun) error
}

// Notifier is told about dispatch activity, e.g. to feed a live dashboard.
type Notifier interface {
	EventAccepted(ev *domain.Event, handlers int)
	HandlerFinished(run domain.HandlerRun)
}

// Options carries the dispatcher's optional collaborators.
type Options struct {
	Headers      webhook.Headers
	MaxBodyBytes int64
	Services     hook.Services
	Dedup        *Deduplicator
	Breaker      *CircuitBreaker
	RateLimiter  *RateLimiter
	Recorder     Recorder
	Notifier     Notifier
}

// Dispatcher turns one webhook request into a verified event and launches
// every matching handler without waiting for them.
type Dispatcher struct {
	verifier   *webhook.Verifier
	headers    webhook.Headers
	registry   *hook.Registry
	supervisor *worker.Supervisor
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

// NewDispatcher freezes registry; no handler can be registered once the
// dispatcher exists.
func NewDispatcher(verifier *webhook.Verifier, registry *hook.Registry, supervisor *worker.Supervisor, logger *slog.Logger, opts Options) (*Dispatcher, error) {
	if verifier == nil {
		return nil, webhook.ErrMissingSecret
	}
	if registry == nil || supervisor == nil {
		return nil, errors.New("dispatcher requires a registry and a supervisor")
	}
	if opts.Headers.Event == "" {
		opts.Headers.Event = webhook.DefaultEventHeader
	}
	if opts.Headers.Delivery == "" {
		opts.Headers.Delivery = webhook.DefaultDeliveryHeader
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Services.Logger == nil {
		opts.Services.Logger = logger
	}

	registry.Freeze()

	return &Dispatcher{
		verifier:   verifier,
		headers:    opts.Headers,
		registry:   registry,
		supervisor: supervisor,
		logger:     logger,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP is the webhook endpoint.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.opts.MaxBodyBytes))
	if err != nil {
		d.logger.Error("failed to read webhook body",
			"error", err,
			"event_id", r.Header.Get(d.headers.Delivery),
		)
		d.respond(w, domain.DispatchOutcome{
			StatusCode: http.StatusInternalServerError,
			Reason:     "failed to read body",
		})
		return
	}
	metrics.WebhookBytesTotal.Add(float64(len(body)))

	d.respond(w, d.Handle(r.Header, body))
}

// Handle runs verification, decoding and dispatch for one request.
func (d *Dispatcher) Handle(header http.Header, body []byte) domain.DispatchOutcome {
	deliveryID := header.Get(d.headers.Delivery)

	if err := d.verifier.Check(body, header.Get(d.verifier.SignatureHeader())); err != nil {
		d.logger.Debug("webhook rejected", "reason", err, "event_id", deliveryID)
		return domain.DispatchOutcome{
			StatusCode: http.StatusUnauthorized,
			Reason:     "signature verification failed",
		}
	}

	ev, err := d.headers.Decode(header, body, d.now())
	if err != nil {
		d.logger.Error("malformed webhook", "error", err, "event_id", deliveryID)
		return domain.DispatchOutcome{
			StatusCode: http.StatusInternalServerError,
			Reason:     "malformed event",
		}
	}

	regs := d.registry.Match(ev)
	d.logger.Debug("webhook received",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"handlers", len(regs),
	)

	tasks := make([]worker.Task, 0, len(regs))
	for _, reg := range regs {
		tasks = append(tasks, d.task(reg, ev))
	}

	err = d.supervisor.Submit(worker.Batch{
		EventID: ev.ID,
		Tasks:   tasks,
		Before: func(ctx context.Context) bool {
			return d.accept(ctx, ev, len(tasks))
		},
	})
	if err != nil {
		d.logger.Error("failed to start handlers", "error", err, "event_id", ev.ID)
		return domain.DispatchOutcome{
			StatusCode: http.StatusInternalServerError,
			Reason:     "dispatcher unavailable",
		}
	}

	metrics.EventsDispatched.WithLabelValues(ev.Type).Inc()
	return domain.DispatchOutcome{StatusCode: http.StatusOK, Launched: len(tasks)}
}

// task binds one registration to a fresh invocation context.
func (d *Dispatcher) task(reg hook.Registration, ev *domain.Event) worker.Task {
	hc := d.opts.Services.NewContext(reg, ev)
	h := reg.Handler
	t := worker.Task{
		Handler:      reg.Name,
		InvocationID: hc.InvocationID,
		EventID:      ev.ID,
		EventType:    ev.Type,
		Run: func(ctx context.Context) error {
			return h.Handle(ctx, ev, hc)
		},
		OnStart: func() { hc.StartedAt = time.Now() },
	}
	if d.opts.RateLimiter != nil {
		t = d.opts.RateLimiter.Guard(t)
	}
	if d.opts.Breaker != nil {
		t = d.opts.Breaker.Guard(t)
	}
	return t
}

// accept runs on the launcher goroutine before any handler starts. It drops
// deliveries already seen and records the event.
func (d *Dispatcher) accept(ctx context.Context, ev *domain.Event, handlers int) bool {
	if d.opts.Dedup != nil && !d.opts.Dedup.Claim(ctx, ev.ID) {
		metrics.DuplicateDeliveries.Inc()
		d.logger.Info("duplicate delivery dropped", "event_id", ev.ID, "event_type", ev.Type)
		return false
	}

	if d.opts.Recorder != nil {
		if err := d.opts.Recorder.RecordEvent(ctx, ev, handlers); err != nil {
			d.logger.Error("failed to record event", "error", err, "event_id", ev.ID)
		}
	}
	if d.opts.Notifier != nil {
		d.opts.Notifier.EventAccepted(ev, handlers)
	}
	metrics.HandlersInFlight.Add(float64(handlers))
	return true
}

func (d *Dispatcher) respond(w http.ResponseWriter, out domain.DispatchOutcome) {
	metrics.WebhooksTotal.WithLabelValues(strconv.Itoa(out.StatusCode)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.StatusCode)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		d.logger.Debug("failed to write webhook response", "error", err)
	}
}

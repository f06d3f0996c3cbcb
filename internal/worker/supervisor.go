package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("supervisor is stopped")
	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("supervisor is not started")
)

// ErrSkipped can be returned by a task that decided not to run its handler.
var ErrSkipped = errors.New("handler skipped")

// Task is one detached handler invocation.
type Task struct {
	Handler      string
	InvocationID string
	EventID      string
	EventType    string
	Run          func(ctx context.Context) error

	// OnStart, if set, runs on the task's goroutine just before Run. The
	// next task in the batch is not launched until it returns.
	OnStart func()
}

// Result is what the observer sees for each finished task.
type Result struct {
	Task     Task
	Err      error
	Duration time.Duration
	Skipped  bool
}

// HandlerError wraps a failure (or recovered panic) raised inside a handler.
type HandlerError struct {
	Handler string
	EventID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed for event %s: %v", e.Handler, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Batch is the set of tasks launched for one event. Before, when set, runs
// in the launcher goroutine ahead of every task; returning false drops the
// whole batch.
type Batch struct {
	EventID string
	Tasks   []Task
	Before  func(ctx context.Context) bool
}

// Observer receives every task result on the supervisor's observer goroutine.
type Observer func(Result)

// Config bounds the supervisor.
type Config struct {
	// MaxConcurrent caps running handler tasks across all events. Zero or
	// negative means unbounded.
	MaxConcurrent int64
	// Timeout is the per-handler deadline. Zero means none.
	Timeout time.Duration
	// ResultBuffer sizes the result channel.
	ResultBuffer int
}

// Supervisor runs handler tasks detached from the request that produced
// them. Tasks of one batch start in order; nobody waits on them except the
// observer loop, which logs failures and notifies observers.
type Supervisor struct {
	sem       *semaphore.Weighted
	limit     int64
	timeout   time.Duration
	results   chan Result
	observers []Observer
	logger    *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	observed chan struct{}
}

// NewSupervisor creates a supervisor. Call Start before submitting work.
func NewSupervisor(cfg Config, logger *slog.Logger, observers ...Observer) *Supervisor {
	buf := cfg.ResultBuffer
	if buf <= 0 {
		buf = 256
	}
	s := &Supervisor{
		limit:     cfg.MaxConcurrent,
		timeout:   cfg.Timeout,
		results:   make(chan Result, buf),
		observers: observers,
		logger:    logger,
		observed:  make(chan struct{}),
	}
	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return s
}

// Start launches the observer loop. Handler contexts derive from ctx, not
// from any request context.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.base, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	go s.observe()
	s.logger.Info("handler supervisor started",
		"max_concurrent", s.limit,
		"timeout", s.timeout.String(),
	)
}

// Submit hands a batch to a launcher goroutine and returns immediately.
func (s *Supervisor) Submit(b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.base == nil {
		return ErrNotStarted
	}
	s.wg.Add(len(b.Tasks) + 1)
	go s.launch(b)
	return nil
}

// Stop refuses new batches and waits for in-flight tasks until ctx expires.
// On expiry the remaining tasks are cancelled and Stop returns without
// waiting for handlers that ignore cancellation.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if s.cancel != nil {
			s.cancel()
		}
		return fmt.Errorf("waiting for handlers: %w", ctx.Err())
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.base != nil {
		close(s.results)
		<-s.observed
	}
	s.logger.Info("handler supervisor stopped")
	return nil
}

// launch starts the batch's tasks in order. Before launching a task it waits
// for a free slot and for the previous task to have started.
func (s *Supervisor) launch(b Batch) {
	defer s.wg.Done()

	if b.Before != nil && !b.Before(s.base) {
		s.wg.Add(-len(b.Tasks))
		return
	}

	for i, task := range b.Tasks {
		if s.sem != nil {
			if err := s.sem.Acquire(s.base, 1); err != nil {
				for _, t := range b.Tasks[i:] {
					s.report(Result{Task: t, Err: &HandlerError{Handler: t.Handler, EventID: t.EventID, Err: err}})
					s.wg.Done()
				}
				return
			}
		}
		started := make(chan struct{})
		go s.run(task, started)
		<-started
	}
}

// run executes one task, converting panics into handler errors. started is
// closed once the task is about to call Run.
func (s *Supervisor) run(task Task, started chan<- struct{}) {
	defer s.wg.Done()
	if s.sem != nil {
		defer s.sem.Release(1)
	}

	ctx := s.base
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if task.OnStart != nil {
		task.OnStart()
	}
	close(started)

	start := time.Now()
	err := safeRun(ctx, task)
	res := Result{Task: task, Duration: time.Since(start)}
	switch {
	case errors.Is(err, ErrSkipped):
		res.Skipped = true
	case err != nil:
		res.Err = &HandlerError{Handler: task.Handler, EventID: task.EventID, Err: err}
	}
	s.report(res)
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

func (s *Supervisor) report(r Result) {
	s.results <- r
}

// observe is the only reader of the result channel.
func (s *Supervisor) observe() {
	defer close(s.observed)
	for r := range s.results {
		switch {
		case r.Err != nil:
			s.logger.Error("handler failed",
				"handler", r.Task.Handler,
				"invocation_id", r.Task.InvocationID,
				"event_id", r.Task.EventID,
				"event_type", r.Task.EventType,
				"duration_ms", r.Duration.Milliseconds(),
				"error", r.Err,
			)
		case r.Skipped:
			s.logger.Warn("handler skipped",
				"handler", r.Task.Handler,
				"event_id", r.Task.EventID,
				"event_type", r.Task.EventType,
			)
		default:
			s.logger.Debug("handler finished",
				"handler", r.Task.Handler,
				"event_id", r.Task.EventID,
				"duration_ms", r.Duration.Milliseconds(),
			)
		}
		for _, o := range s.observers {
			o(r)
		}
	}
}

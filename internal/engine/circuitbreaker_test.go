package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/worker"
)

func setupTestCB(t *testing.T) (*CircuitBreaker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCircuitBreaker(client, testLogger()), mr
}

// openCircuitAndExpireCooldown opens the circuit for a handler, then moves
// last_failed_at past the 30s cooldown.
func openCircuitAndExpireCooldown(t *testing.T, cb *CircuitBreaker, mr *miniredis.Miniredis, handler string) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, handler)
	}

	pastTime := time.Now().Unix() - 31
	mr.HSet(cbKey(handler), "last_failed_at", fmt.Sprintf("%d", pastTime))
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := setupTestCB(t)

	state, allowed := cb.Allow(context.Background(), "plugins.logPush")
	if state != StateClosed || !allowed {
		t.Errorf("new handler: state %q allowed %v, want closed/true", state, allowed)
	}

	st := cb.GetState(context.Background(), "unknown")
	if st.State != StateClosed || st.Failures != 0 {
		t.Errorf("GetState default = %+v", st)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cb.RecordFailure(ctx, "h")
	}
	if state, allowed := cb.Allow(ctx, "h"); state != StateClosed || !allowed {
		t.Fatalf("below threshold: state %q allowed %v", state, allowed)
	}

	cb.RecordFailure(ctx, "h")
	state, allowed := cb.Allow(ctx, "h")
	if state != StateOpen {
		t.Errorf("expected state %q, got %q", StateOpen, state)
	}
	if allowed {
		t.Error("should NOT be allowed when circuit is open")
	}
	if st := cb.GetState(ctx, "h"); st.Failures != 5 || st.LastFailedAt == "" {
		t.Errorf("GetState = %+v", st)
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cb.RecordFailure(ctx, "h")
	}
	cb.RecordSuccess(ctx, "h")

	st := cb.GetState(ctx, "h")
	if st.State != StateClosed || st.Failures != 0 {
		t.Errorf("after success: %+v", st)
	}
}

func TestCircuitBreaker_HalfOpenTransitions(t *testing.T) {
	cb, mr := setupTestCB(t)
	ctx := context.Background()

	openCircuitAndExpireCooldown(t, cb, mr, "h")
	if state, allowed := cb.Allow(ctx, "h"); state != StateHalfOpen || !allowed {
		t.Fatalf("after cooldown: state %q allowed %v", state, allowed)
	}

	cb.RecordFailure(ctx, "h")
	if state, allowed := cb.Allow(ctx, "h"); state != StateOpen || allowed {
		t.Errorf("half-open failure: state %q allowed %v, want open/false", state, allowed)
	}

	openCircuitAndExpireCooldown(t, cb, mr, "h2")
	cb.Allow(ctx, "h2")
	cb.RecordSuccess(ctx, "h2")
	if st := cb.GetState(ctx, "h2"); st.State != StateClosed {
		t.Errorf("half-open success: state %q, want closed", st.State)
	}
}

func TestCircuitBreaker_IsolationBetweenHandlers(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, "h1")
	}
	if state, allowed := cb.Allow(ctx, "h2"); state != StateClosed || !allowed {
		t.Errorf("h2 should be unaffected, got %q/%v", state, allowed)
	}
}

func TestCircuitBreaker_GuardAndObserve(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	var calls int
	task := cb.Guard(worker.Task{Handler: "h", Run: func(context.Context) error {
		calls++
		return nil
	}})

	if err := task.Run(ctx); err != nil || calls != 1 {
		t.Fatalf("closed circuit: err=%v calls=%d", err, calls)
	}

	for i := 0; i < 5; i++ {
		cb.Observe(worker.Result{Task: task, Err: errors.New("boom")})
	}
	if err := task.Run(ctx); !errors.Is(err, worker.ErrSkipped) {
		t.Errorf("open circuit: got %v, want ErrSkipped", err)
	}
	if calls != 1 {
		t.Errorf("handler ran with open circuit, calls=%d", calls)
	}

	// Skipped runs do not count as failures.
	cb.Observe(worker.Result{Task: task, Skipped: true})
	if st := cb.GetState(ctx, "h"); st.Failures != 5 {
		t.Errorf("failures = %d, want 5", st.Failures)
	}
}

func TestCircuitBreaker_ConcurrentFailuresCountedOnce(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.RecordFailure(ctx, "h")
		}()
	}
	wg.Wait()

	st := cb.GetState(ctx, "h")
	if st.Failures != n || st.State != StateOpen {
		t.Errorf("after %d concurrent failures: %+v", n, st)
	}
}

func TestCircuitBreaker_SuccessWithoutCircuitIsNoop(t *testing.T) {
	cb, mr := setupTestCB(t)

	cb.RecordSuccess(context.Background(), "never-failed")
	if mr.Exists(cbKey("never-failed")) {
		t.Error("success should not create circuit state")
	}
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/worker"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker tracks consecutive failures per handler in Redis so a
// handler that keeps failing stops being invoked for a while.
// State transitions: closed → open → half-open → closed
//
// - Closed: handler runs normally. Failures are counted.
// - Open: invocations are skipped. Transitions to half-open after cooldown.
// - Half-Open: invocations run again. Success → closed, failure → open.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// CircuitBreakerState represents the current state of a handler's circuit.
type CircuitBreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

func cbKey(handler string) string {
	return fmt.Sprintf("cb:handler:%s", handler)
}

// Allow checks whether the handler may run. Redis errors leave the circuit
// closed.
func (cb *CircuitBreaker) Allow(ctx context.Context, handler string) (string, bool) {
	key := cbKey(handler)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return StateClosed, true
	}

	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	switch data["state"] {
	case StateOpen:
		if time.Now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds()) {
			cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
			cb.logger.Info("circuit breaker half-open", "handler", handler)
			return StateHalfOpen, true
		}
		return StateOpen, false
	case StateHalfOpen:
		return StateHalfOpen, true
	default:
		return StateClosed, true
	}
}

// Guard wraps a task so it is skipped while the handler's circuit is open.
func (cb *CircuitBreaker) Guard(task worker.Task) worker.Task {
	run := task.Run
	task.Run = func(ctx context.Context) error {
		if state, ok := cb.Allow(ctx, task.Handler); !ok {
			return fmt.Errorf("circuit %s: %w", state, worker.ErrSkipped)
		}
		return run(ctx)
	}
	return task
}

// Observe records a finished handler run. It is meant to be registered as a
// supervisor observer.
func (cb *CircuitBreaker) Observe(r worker.Result) {
	if r.Skipped {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if r.Err != nil {
		cb.RecordFailure(ctx, r.Task.Handler)
		return
	}
	cb.RecordSuccess(ctx, r.Task.Handler)
}

// Both transitions run as one script so concurrent results for the same
// handler cannot interleave between the count and the state change.
var (
	// Returns the previous state, or "" when the handler has no circuit yet.
	recordSuccessScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'state')
if not prev then
    return ''
end
redis.call('HSET', KEYS[1], 'state', 'closed', 'failures', 0)
return prev
`)

	// ARGV: now (unix seconds), threshold. Returns {failures, previous, next}.
	recordFailureScript = redis.NewScript(`
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
local prev = redis.call('HGET', KEYS[1], 'state') or ''
local next = prev
if prev == 'half-open' or failures >= tonumber(ARGV[2]) then
    next = 'open'
elseif prev == '' then
    next = 'closed'
end
redis.call('HSET', KEYS[1], 'state', next, 'last_failed_at', ARGV[1])
return {failures, prev, next}
`)
)

// RecordSuccess resets the circuit to closed.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, handler string) {
	prev, err := recordSuccessScript.Run(ctx, cb.redisClient, []string{cbKey(handler)}).Text()
	if err != nil {
		cb.logger.Error("failed to record circuit breaker success", "error", err, "handler", handler)
		return
	}
	if prev == StateHalfOpen || prev == StateOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "handler", handler)
	}
}

// RecordFailure counts a failure and opens the circuit at the threshold or
// when a half-open trial run fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, handler string) {
	res, err := recordFailureScript.Run(ctx, cb.redisClient, []string{cbKey(handler)},
		time.Now().Unix(), cb.failureThreshold,
	).Slice()
	if err != nil || len(res) != 3 {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "handler", handler)
		return
	}

	failures, _ := res[0].(int64)
	prev, _ := res[1].(string)
	next, _ := res[2].(string)
	if next != StateOpen || prev == StateOpen {
		return
	}
	if prev == StateHalfOpen {
		cb.logger.Warn("circuit breaker re-opened (half-open run failed)", "handler", handler)
		return
	}
	cb.logger.Warn("circuit breaker opened",
		"handler", handler,
		"failures", failures,
		"threshold", cb.failureThreshold,
	)
}

// GetState returns the current circuit state for a handler.
func (cb *CircuitBreaker) GetState(ctx context.Context, handler string) CircuitBreakerState {
	data, err := cb.redisClient.HGetAll(ctx, cbKey(handler)).Result()
	if err != nil || len(data) == 0 {
		return CircuitBreakerState{State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	state := data["state"]
	if state == "" {
		state = StateClosed
	}

	lastFailed, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	if state == StateOpen && time.Now().Unix()-lastFailed >= int64(cb.cooldownPeriod.Seconds()) {
		state = StateHalfOpen
	}

	result := CircuitBreakerState{State: state, Failures: failures}
	if lastFailed > 0 {
		result.LastFailedAt = time.Unix(lastFailed, 0).Format(time.RFC3339)
	}
	return result
}

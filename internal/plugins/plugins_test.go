package plugins

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/hook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRegistry(t *testing.T) *hook.Registry {
	t.Helper()
	reg := hook.NewRegistry(testLogger())
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func run(t *testing.T, regs []hook.Registration, ev *domain.Event, svc hook.Services) {
	t.Helper()
	for _, r := range regs {
		if err := r.Handler.Handle(context.Background(), ev, svc.NewContext(r, ev)); err != nil {
			t.Fatalf("%s: %v", r.Name, err)
		}
	}
}

func names(regs []hook.Registration) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.Name
	}
	return out
}

func TestRegister_Routing(t *testing.T) {
	reg := setupRegistry(t)

	tests := []struct {
		eventType string
		payload   map[string]any
		want      []string
	}{
		{"ping", map[string]any{"zen": "Keep it logically awesome."}, []string{"ping", "event-counter"}},
		{"push", map[string]any{"ref": "refs/heads/main"}, []string{"push", "event-counter"}},
		{"issues", map[string]any{"action": "opened"}, []string{"issues-opened", "event-counter"}},
		{"issues", map[string]any{"action": "closed"}, []string{"event-counter"}},
		{"star", map[string]any{}, []string{"event-counter"}},
	}

	for _, tt := range tests {
		ev := &domain.Event{ID: "d", Type: tt.eventType, Payload: tt.payload}
		got := names(reg.Match(ev))
		if len(got) != len(tt.want) {
			t.Errorf("%s %v: got %v, want %v", tt.eventType, tt.payload, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s %v: got %v, want %v", tt.eventType, tt.payload, got, tt.want)
				break
			}
		}
	}
}

func TestRegister_Twice(t *testing.T) {
	reg := setupRegistry(t)
	reg.Freeze()
	if err := Register(reg); err == nil {
		t.Error("expected error registering into a frozen registry")
	}
}

func TestHandlers_CountInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	reg := setupRegistry(t)
	svc := hook.Services{Logger: testLogger(), Redis: rdb}

	opened := &domain.Event{ID: "d-1", Type: "issues", Payload: map[string]any{
		"action":     "opened",
		"repository": map[string]any{"full_name": "octo/repo"},
	}}
	run(t, reg.Match(opened), opened, svc)
	run(t, reg.Match(opened), opened, svc)

	push := &domain.Event{ID: "d-2", Type: "push", Payload: map[string]any{
		"ref":     "refs/heads/main",
		"commits": []any{map[string]any{"id": "abc"}},
	}}
	run(t, reg.Match(push), push, svc)

	ctx := context.Background()
	if got, _ := rdb.HGet(ctx, issuesOpenedKey, "octo/repo").Int(); got != 2 {
		t.Errorf("opened issues for octo/repo = %d, want 2", got)
	}
	if got, _ := rdb.HGet(ctx, eventCountsKey, "issues").Int(); got != 2 {
		t.Errorf("issues count = %d, want 2", got)
	}
	if got, _ := rdb.HGet(ctx, eventCountsKey, "push").Int(); got != 1 {
		t.Errorf("push count = %d, want 1", got)
	}
}

func TestHandlers_WithoutRedis(t *testing.T) {
	reg := setupRegistry(t)
	svc := hook.Services{Logger: testLogger()}

	ev := &domain.Event{ID: "d-1", Type: "issues", Payload: map[string]any{"action": "opened"}}
	run(t, reg.Match(ev), ev, svc)
}

func TestHandlers_RedisErrorFails(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mr.SetError("READONLY")

	ev := &domain.Event{ID: "d-1", Type: "star", Payload: map[string]any{}}
	hc := hook.Services{Logger: testLogger(), Redis: rdb}.NewContext(hook.Registration{Name: "event-counter"}, ev)
	if err := countEvent(context.Background(), ev, hc); err == nil {
		t.Error("expected error when Redis rejects the write")
	}
}

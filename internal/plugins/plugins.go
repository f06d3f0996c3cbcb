// Package plugins holds the handlers the server registers at startup.
package plugins

import (
	"context"
	"fmt"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/hook"
)

const (
	eventCountsKey  = "hookrelay:events"
	issuesOpenedKey = "hookrelay:issues:opened"
)

// Register adds the built-in handlers to reg in a fixed order.
func Register(reg *hook.Registry) error {
	regs := []struct {
		eventType string
		fn        any
		opts      []hook.Option
	}{
		{"ping", logPing, []hook.Option{hook.WithName("ping")}},
		{"push", logPush, []hook.Option{hook.WithName("push")}},
		{"issues", countOpenedIssue, []hook.Option{
			hook.WithName("issues-opened"),
			hook.WithFilter(hook.Action("opened")),
		}},
		{hook.AnyEvent, countEvent, []hook.Option{hook.WithName("event-counter")}},
	}

	for _, r := range regs {
		if err := reg.Register(r.eventType, r.fn, r.opts...); err != nil {
			return fmt.Errorf("registering built-in handlers: %w", err)
		}
	}
	return nil
}

func logPing(ev *domain.Event, hc *hook.Context) {
	zen, _ := ev.Payload["zen"].(string)
	hookID, _ := hook.Field(ev.Payload, "hook_id")
	hc.Logger.Info("webhook ping received", "zen", zen, "hook_id", hookID)
}

func logPush(ctx context.Context, ev *domain.Event, hc *hook.Context) error {
	ref, _ := ev.Payload["ref"].(string)
	commits, _ := ev.Payload["commits"].([]any)
	repo, _ := hook.Field(ev.Payload, "repository.full_name")

	hc.Logger.Info("push received",
		"repository", repo,
		"ref", ref,
		"commits", len(commits),
	)
	return nil
}

func countOpenedIssue(ctx context.Context, ev *domain.Event, hc *hook.Context) error {
	if hc.Redis == nil {
		return nil
	}
	repo, ok := hook.Field(ev.Payload, "repository.full_name")
	if !ok {
		repo = "unknown"
	}
	if err := hc.Redis.HIncrBy(ctx, issuesOpenedKey, fmt.Sprint(repo), 1).Err(); err != nil {
		return fmt.Errorf("counting opened issue: %w", err)
	}
	return nil
}

func countEvent(ctx context.Context, ev *domain.Event, hc *hook.Context) error {
	if hc.Redis == nil {
		return nil
	}
	if err := hc.Redis.HIncrBy(ctx, eventCountsKey, ev.Type, 1).Err(); err != nil {
		return fmt.Errorf("counting event: %w", err)
	}
	return nil
}

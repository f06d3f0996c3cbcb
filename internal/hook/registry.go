package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// AnyEvent registers a handler for every event type.
const AnyEvent = "*"

// ErrFrozen is returned by Register once dispatching has started.
var ErrFrozen = errors.New("registry is frozen")

// Registration is one handler registered for one event type.
type Registration struct {
	EventType string
	Name      string
	Handler   Handler
	Filter    Filter

	seq int
}

// Matches reports whether the registration's filter accepts ev.
func (r Registration) Matches(ev *domain.Event) bool {
	return r.Filter == nil || r.Filter(ev)
}

// Option customizes a registration.
type Option func(*Registration)

// WithName overrides the name derived from the handler function.
func WithName(name string) Option {
	return func(r *Registration) { r.Name = name }
}

// WithFilter only fires the handler when f accepts the event.
func WithFilter(f Filter) Option {
	return func(r *Registration) { r.Filter = f }
}

// Registry maps event types to handlers in registration order. It is filled
// during startup and frozen before the webhook endpoint goes live; lookups
// after that take no locks.
type Registry struct {
	byType map[string][]Registration
	next   int
	frozen bool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byType: make(map[string][]Registration),
		logger: logger,
	}
}

// Register adds fn for eventType. fn must be a Handler or one of the function
// shapes accepted by normalize.
func (r *Registry) Register(eventType string, fn any, opts ...Option) error {
	if r.frozen {
		return fmt.Errorf("registering %q: %w", eventType, ErrFrozen)
	}
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	h, err := normalize(fn)
	if err != nil {
		return fmt.Errorf("registering %q: %w", eventType, err)
	}

	reg := Registration{
		EventType: eventType,
		Name:      handlerName(fn),
		Handler:   h,
		seq:       r.next,
	}
	for _, opt := range opts {
		opt(&reg)
	}
	r.next++
	r.byType[eventType] = append(r.byType[eventType], reg)

	r.logger.Debug("registered handler",
		"event_type", eventType,
		"handler", reg.Name,
		"filtered", reg.Filter != nil,
	)
	return nil
}

// MustRegister is Register for static startup lists; it panics on error.
func (r *Registry) MustRegister(eventType string, fn any, opts ...Option) {
	if err := r.Register(eventType, fn, opts...); err != nil {
		panic(err)
	}
}

// Freeze stops further registration.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Lookup returns the handlers registered for eventType, including catch-all
// handlers, in registration order. The result may be empty.
func (r *Registry) Lookup(eventType string) []Registration {
	exact := r.byType[eventType]
	if eventType == AnyEvent {
		return append([]Registration(nil), exact...)
	}
	wild := r.byType[AnyEvent]

	out := make([]Registration, 0, len(exact)+len(wild))
	i, j := 0, 0
	for i < len(exact) && j < len(wild) {
		if exact[i].seq < wild[j].seq {
			out = append(out, exact[i])
			i++
		} else {
			out = append(out, wild[j])
			j++
		}
	}
	out = append(out, exact[i:]...)
	return append(out, wild[j:]...)
}

// Match returns the handlers that should fire for ev: its type matches and
// any filter accepts the payload.
func (r *Registry) Match(ev *domain.Event) []Registration {
	regs := r.Lookup(ev.Type)
	out := regs[:0]
	for _, reg := range regs {
		if reg.Matches(ev) {
			out = append(out, reg)
		}
	}
	return out
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	return r.next
}

// All returns every registration in registration order.
func (r *Registry) All() []Registration {
	out := make([]Registration, 0, r.next)
	for _, regs := range r.byType {
		out = append(out, regs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

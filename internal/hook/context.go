package hook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// Store is the persistence handlers may use. Implementations must be safe
// for concurrent use.
type Store interface {
	GetEvent(ctx context.Context, id string) (*domain.StoredEvent, error)
	ListRuns(ctx context.Context, eventID string) ([]domain.HandlerRun, error)
}

// Services are the long-lived collaborators handlers reach through their
// Context. Each field may be nil when the process runs without it.
type Services struct {
	Logger     *slog.Logger
	Redis      *redis.Client
	HTTPClient *http.Client
	Store      Store
}

// Context is handed to exactly one handler invocation. It is never shared
// between handlers or requests.
type Context struct {
	InvocationID string
	Handler      string
	// StartedAt is reset by the dispatcher when the handler is launched,
	// after any wait for a concurrency slot.
	StartedAt  time.Time
	Logger     *slog.Logger
	Redis      *redis.Client
	HTTPClient *http.Client
	Store      Store

	values map[string]any
}

// NewContext creates a fresh invocation context for reg handling ev.
func (s Services) NewContext(reg Registration, ev *domain.Event) *Context {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Context{
		InvocationID: id,
		Handler:      reg.Name,
		StartedAt:    time.Now(),
		Logger: logger.With(
			"handler", reg.Name,
			"invocation_id", id,
			"event_id", ev.ID,
			"event_type", ev.Type,
		),
		Redis:      s.Redis,
		HTTPClient: s.HTTPClient,
		Store:      s.Store,
	}
}

// Set stores a value for the rest of this invocation.
func (c *Context) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

package domain

import (
	"encoding/json"
	"time"
)

// Handler run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// HandlerRun records how one handler invocation for an event ended.
type HandlerRun struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Handler      string    `json:"handler"`
	InvocationID string    `json:"invocation_id"`
	Status       string    `json:"status"`
	Error        *string   `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}

// StoredEvent is an accepted delivery as persisted by the run recorder.
type StoredEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Handlers   int             `json:"handlers"`
	ReceivedAt time.Time       `json:"received_at"`
}

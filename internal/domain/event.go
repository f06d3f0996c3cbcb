package domain

import (
	"encoding/json"
	"time"
)

// Event is a single verified webhook delivery. It is built once by the
// decoder and shared read-only with every handler that matches it.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    map[string]any  `json:"payload"`
	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

// DispatchOutcome is what the dispatcher hands back to the HTTP layer.
type DispatchOutcome struct {
	StatusCode int    `json:"status_code"`
	Reason     string `json:"reason,omitempty"`
	Launched   int    `json:"launched"`
}

package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// Default GitHub header names.
const (
	DefaultEventHeader    = "X-GitHub-Event"
	DefaultDeliveryHeader = "X-GitHub-Delivery"
)

// Headers names the request headers that carry the event type and the
// delivery id.
type Headers struct {
	Event    string
	Delivery string
}

// DefaultHeaders returns the header names GitHub uses.
func DefaultHeaders() Headers {
	return Headers{Event: DefaultEventHeader, Delivery: DefaultDeliveryHeader}
}

// DecodeError reports a verified request whose headers or body could not be
// turned into an event.
type DecodeError struct {
	DeliveryID string
	Reason     string
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding delivery %q: %s: %v", e.DeliveryID, e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding delivery %q: %s", e.DeliveryID, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode builds an event from the request headers and the raw body. The body
// must be a JSON object; its fields are kept exactly as sent.
func (h Headers) Decode(header http.Header, body []byte, receivedAt time.Time) (*domain.Event, error) {
	deliveryID := header.Get(h.Delivery)
	eventType := header.Get(h.Event)

	if eventType == "" {
		return nil, &DecodeError{DeliveryID: deliveryID, Reason: h.Event + " header is required"}
	}
	if deliveryID == "" {
		return nil, &DecodeError{Reason: h.Delivery + " header is required"}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{DeliveryID: deliveryID, Reason: "invalid JSON body", Err: err}
	}
	if payload == nil {
		return nil, &DecodeError{DeliveryID: deliveryID, Reason: "body must be a JSON object"}
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	return &domain.Event{
		ID:         deliveryID,
		Type:       eventType,
		Payload:    payload,
		Raw:        raw,
		ReceivedAt: receivedAt,
	}, nil
}

// Decode builds an event using the default GitHub header names.
func Decode(header http.Header, body []byte, receivedAt time.Time) (*domain.Event, error) {
	return DefaultHeaders().Decode(header, body, receivedAt)
}

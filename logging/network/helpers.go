package network

import (
	"context"

	"intersection/server/logging"
)

const (
	// EventSendFailure is emitted when a best-effort send to a recipient fails.
	EventSendFailure logging.EventType = "network.send_failure"
	// EventMalformedPayload is emitted when a client payload cannot be decoded
	// or references an invalid slot.
	EventMalformedPayload logging.EventType = "network.malformed_payload"
)

// SendFailurePayload captures the failed write.
type SendFailurePayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// MalformedPayload captures the offending event type.
type MalformedPayload struct {
	EventType string `json:"eventType"`
	Detail    string `json:"detail,omitempty"`
}

// SendFailure publishes a warning for a dropped outbound message.
func SendFailure(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendFailurePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendFailure,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// Malformed publishes a debug event for an ignored client payload.
func Malformed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MalformedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMalformedPayload,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

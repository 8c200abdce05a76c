// Package notifications delivers rotation run events to webhooks and Slack.
package notifications

import (
	"context"
)

// NotificationProvider defines the interface for sending run notifications.
type NotificationProvider interface {
	// Name returns the provider name (e.g. "slack", "webhook:ops").
	Name() string

	// Send sends a notification for the given event.
	Send(ctx context.Context, event RunEvent) error

	// SupportsEvent returns true if this provider handles the given event type.
	SupportsEvent(eventType EventType) bool

	// Validate checks if the provider configuration is valid.
	Validate(ctx context.Context) error
}

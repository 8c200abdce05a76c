package notifications

import (
	"time"
)

// EventType represents the type of rotation run event.
type EventType string

const (
	// EventTypeStarted indicates a run has started.
	EventTypeStarted EventType = "started"

	// EventTypeCompleted indicates a run finished without failed items.
	EventTypeCompleted EventType = "completed"

	// EventTypeFailed indicates a fatal error or at least one failed item.
	EventTypeFailed EventType = "failed"

	// EventTypeCancelled indicates the operator interrupted the run.
	EventTypeCancelled EventType = "cancelled"
)

// RunStatus represents the outcome status of a run.
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusPartial   RunStatus = "partial"
	StatusFailure   RunStatus = "failure"
	StatusCancelled RunStatus = "cancelled"
	StatusDryRun    RunStatus = "dry_run"
)

// RunEvent represents a certificate rotation lifecycle event.
type RunEvent struct {
	// Type is the type of event.
	Type EventType

	// RunID is the unique identifier for this run.
	RunID string

	// Host is the firewall the run targets.
	Host string

	// ReplacedCertificate is the certificate being replaced.
	ReplacedCertificate string

	// NewCertificate is the name the new certificate is imported under.
	NewCertificate string

	// Status is the outcome status. Empty for started events.
	Status RunStatus

	DryRun bool

	// Error contains the fatal error, if any.
	Error error

	// Duration is how long the run took.
	Duration time.Duration

	// Updated lists the objects now pointing at the new certificate.
	Updated []string

	// Failed lists objects whose update failed.
	Failed []string

	// Warnings lists conditions the run continued past.
	Warnings []string

	// Metadata contains additional context about the run.
	Metadata map[string]string

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// InitiatedBy is the local user running the tool.
	InitiatedBy string
}

// AllEventTypes returns all valid event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeStarted,
		EventTypeCompleted,
		EventTypeFailed,
		EventTypeCancelled,
	}
}

package storage

import (
	"context"
	"time"
)

// Storage persists the record of each rotation run.
type Storage interface {
	// SaveRun stores a finished run
	SaveRun(ctx context.Context, record *RunRecord) error

	// ListRuns returns the most recent runs, newest first. An empty host
	// returns runs for every firewall; limit <= 0 means no limit.
	ListRuns(ctx context.Context, host string, limit int) ([]RunRecord, error)

	// CleanupOldEntries removes runs started before now minus olderThan and
	// reports how many were removed
	CleanupOldEntries(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}

// RunRecord is the persisted summary of one rotation run.
type RunRecord struct {
	ID        string        `json:"id"`
	Host      string        `json:"host"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	State     string        `json:"state"` // done, failed, aborted, cancelled
	Success   bool          `json:"success"`
	DryRun    bool          `json:"dry_run"`
	User      string        `json:"user,omitempty"`

	ReplacedCertificate string `json:"replaced_certificate,omitempty"`
	NewCertificate      string `json:"new_certificate,omitempty"`

	ConfigBackup      string `json:"config_backup,omitempty"`
	DeviceStateBackup string `json:"device_state_backup,omitempty"`

	// References maps a reference kind to the number found
	References     map[string]int `json:"references,omitempty"`
	DiscoveryError string         `json:"discovery_error,omitempty"`

	Phases   []PhaseRecord `json:"phases,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// PhaseRecord is the persisted form of a phase result.
type PhaseRecord struct {
	Name      string            `json:"name"`
	Succeeded []string          `json:"succeeded,omitempty"`
	Failed    []string          `json:"failed,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Attempted is the number of items the phase tried.
func (p PhaseRecord) Attempted() int {
	return len(p.Succeeded) + len(p.Failed)
}

// Status is a short label for display.
func (r RunRecord) Status() string {
	switch {
	case r.DryRun && r.Success:
		return "dry-run"
	case r.Success:
		return "success"
	case r.State == "failed" && len(r.Phases) > 0 && r.Error == "":
		return "partial"
	default:
		return r.State
	}
}

package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/rotation/notifications"
	"github.com/systmms/pacert/internal/rotation/storage"
	"github.com/systmms/pacert/pkg/locator"
)

// Stage names a pre-upload step whose failure ends the run.
type Stage string

const (
	StagePreflight    Stage = "preflight"
	StageConnectivity Stage = "connectivity"
	StageBackup       Stage = "backup"
	StageListing      Stage = "listing"
	StageSelection    Stage = "selection"
)

// FatalError reports a stage failure that ended the run.
type FatalError struct {
	Stage Stage
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Backups holds the paths written by the backup stage.
type Backups struct {
	Config string
	// DeviceState is empty when the device state export failed.
	DeviceState string
	Stamp       string
}

// RunOutcome aggregates everything a run did.
type RunOutcome struct {
	RunID  string
	Host   string
	State  State
	DryRun bool

	StartedAt  time.Time
	FinishedAt time.Time

	System  SystemInfo
	Backups Backups

	ReplacedCertificate string
	NewCertificate      string

	References locator.ReferenceSet
	// DiscoveryErr is set when discovery could not run to completion. An
	// empty References with a nil DiscoveryErr means the certificate is
	// genuinely unreferenced.
	DiscoveryErr error

	// Phases holds the entered phases in execution order.
	Phases []PhaseResult

	// Warnings lists degraded-but-continue conditions.
	Warnings []string

	Transitions []Transition

	// Err is the error that ended the run, if any.
	Err error
}

// Phase returns the result of the named phase. A phase that was never
// entered yields the zero PhaseResult with nothing attempted.
func (o *RunOutcome) Phase(name string) PhaseResult {
	for _, p := range o.Phases {
		if p.Name == name {
			return p
		}
	}
	return PhaseResult{}
}

// OverallSuccess is true when the run did not fail or get cancelled and
// every entered phase has no failed items.
func (o *RunOutcome) OverallSuccess() bool {
	if o.State == StateFailed || o.State == StateCancelled {
		return false
	}
	for _, p := range o.Phases {
		if !p.OK() {
			return false
		}
	}
	return true
}

// ExitCode maps the outcome to a process exit code: 0 for success, dry run
// and clean exits, 130 for cancellation, 1 otherwise.
func (o *RunOutcome) ExitCode() int {
	if o.State == StateCancelled || errors.Is(o.Err, context.Canceled) {
		return pacerterrors.ExitCancelled
	}
	if o.OverallSuccess() {
		return pacerterrors.ExitOK
	}
	return pacerterrors.ExitFailure
}

// Duration is the wall time of the run.
func (o *RunOutcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Updated lists "<phase>/<item>" for every successfully updated object.
func (o *RunOutcome) Updated() []string {
	return o.collect(func(p PhaseResult) []string { return p.Succeeded })
}

// FailedItems lists "<phase>/<item>" for every failed item.
func (o *RunOutcome) FailedItems() []string {
	return o.collect(func(p PhaseResult) []string { return p.Failed })
}

func (o *RunOutcome) collect(pick func(PhaseResult) []string) []string {
	var out []string
	for _, p := range o.Phases {
		for _, item := range pick(p) {
			out = append(out, p.Name+"/"+item)
		}
	}
	return out
}

// Record converts the outcome into its persisted form.
func (o *RunOutcome) Record() *storage.RunRecord {
	rec := &storage.RunRecord{
		ID:                  o.RunID,
		Host:                o.Host,
		StartedAt:           o.StartedAt,
		Duration:            o.Duration(),
		State:               o.State.String(),
		Success:             o.OverallSuccess(),
		DryRun:              o.DryRun,
		ReplacedCertificate: o.ReplacedCertificate,
		NewCertificate:      o.NewCertificate,
		ConfigBackup:        o.Backups.Config,
		DeviceStateBackup:   o.Backups.DeviceState,
		Warnings:            append([]string(nil), o.Warnings...),
	}

	if !o.References.IsEmpty() {
		rec.References = make(map[string]int)
		for _, kind := range locator.Kinds {
			if n := o.References.Count(kind); n > 0 {
				rec.References[kind.String()] = n
			}
		}
	}
	if o.DiscoveryErr != nil {
		rec.DiscoveryError = o.DiscoveryErr.Error()
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	for _, p := range o.Phases {
		rec.Phases = append(rec.Phases, storage.PhaseRecord{
			Name:      p.Name,
			Succeeded: append([]string(nil), p.Succeeded...),
			Failed:    append([]string(nil), p.Failed...),
			Errors:    copyErrors(p.Errors),
		})
	}
	return rec
}

// Event converts the outcome into a notification for its final state.
func (o *RunOutcome) Event() notifications.RunEvent {
	event := notifications.RunEvent{
		RunID:               o.RunID,
		Host:                o.Host,
		ReplacedCertificate: o.ReplacedCertificate,
		NewCertificate:      o.NewCertificate,
		DryRun:              o.DryRun,
		Error:               o.Err,
		Duration:            o.Duration(),
		Updated:             o.Updated(),
		Failed:              o.FailedItems(),
		Warnings:            append([]string(nil), o.Warnings...),
		Timestamp:           o.FinishedAt,
	}

	switch {
	case o.State == StateCancelled:
		event.Type = notifications.EventTypeCancelled
		event.Status = notifications.StatusCancelled
	case o.OverallSuccess() && o.DryRun:
		event.Type = notifications.EventTypeCompleted
		event.Status = notifications.StatusDryRun
	case o.OverallSuccess():
		event.Type = notifications.EventTypeCompleted
		event.Status = notifications.StatusSuccess
	case len(event.Updated) > 0:
		event.Type = notifications.EventTypeFailed
		event.Status = notifications.StatusPartial
	default:
		event.Type = notifications.EventTypeFailed
		event.Status = notifications.StatusFailure
	}

	if o.State == StateAborted {
		event.Metadata = map[string]string{"result": "no certificate selected"}
	}
	return event
}

func copyErrors(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

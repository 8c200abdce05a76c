// Package rotation drives a certificate rotation on a PAN-OS firewall.
//
// The package owns the phased pipeline that takes a firewall from "old
// certificate in use" to "new certificate staged everywhere the old one was
// referenced". It never commits: activation is a separate, later step that
// the operator performs once the staged candidate configuration has been
// reviewed.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                  CLI Commands                               │
//	│            (cmd/pacert/commands/)                           │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │ Request
//	┌─────────────────────────▼───────────────────────────────────┐
//	│                Orchestrator                                 │
//	│               (pkg/rotation/)                               │
//	│                                                             │
//	│   Machine ── PhaseResult ── RunOutcome                      │
//	└──────┬──────────────┬──────────────┬────────────────────────┘
//	       │              │              │
//	┌──────▼──────┐ ┌─────▼──────┐ ┌─────▼───────┐
//	│  configdoc  │ │  locator   │ │   retry     │
//	│  (parse)    │ │ (discover) │ │  (verify)   │
//	└─────────────┘ └────────────┘ └─────────────┘
//	       │
//	┌──────▼──────────────────────────────────────────────────────┐
//	│                Transport (internal/panos)                   │
//	│                PAN-OS XML API                               │
//	└─────────────────────────────────────────────────────────────┘
//
// # Run Lifecycle
//
// A run moves through the states of Machine:
//
//	Init → Connected → BackedUp → Selected → Discovered → Uploaded → Verified → Updated → Done
//
// with three exits that end a run early:
//
//   - Failed: a fatal stage error (missing certificate files, no connectivity,
//     configuration backup failure) or a failed upload or verification.
//   - Aborted: nothing to select from, or the operator cancelled selection.
//     This is a clean exit, not an error.
//   - Cancelled: the run context was cancelled by an interrupt.
//
// A dry run stops after discovery (Discovered → Done) and prints the plan.
//
// # Partial Failure Isolation
//
// The update fan-out (SSL/TLS profiles, then GlobalProtect portals, then
// gateways) attempts every item regardless of earlier failures. Each bucket
// gets its own PhaseResult; a PhaseResult is built by a recorder that
// accepts one outcome per item and is frozen when the phase ends, so
// Attempted is always the disjoint union of Succeeded and Failed.
//
// RunOutcome.OverallSuccess is true only when no entered phase has failed
// items and the run did not end in Failed or Cancelled. Items that were
// updated stay updated when a sibling fails; the candidate configuration is
// the rollback mechanism.
//
// # Collaborators
//
// Everything the orchestrator talks to is passed in a RunContext: the
// Transport, the certificate Selector, the verification Waiter, and the
// optional metrics Recorder, Notifier and HistoryStore. There is no
// package-level state.
//
// # Usage Example
//
//	orch := rotation.NewOrchestrator(rotation.RunContext{
//	    Logger:    logger,
//	    Transport: client,
//	    Selector:  rotation.FixedSelector("OldCert"),
//	    Waiter:    retry.DefaultPolicy(),
//	})
//
//	outcome, err := orch.Run(ctx, rotation.Request{
//	    Host:        "fw1.example.com",
//	    NewCertName: "wildcard-2026",
//	    CertFile:    "wildcard.crt",
//	    KeyFile:     "wildcard.key",
//	    BackupDir:   "./backups",
//	})
//	if err != nil {
//	    log.Printf("run failed: %v", err)
//	}
//	os.Exit(outcome.ExitCode())
package rotation

package rotation

import (
	"strings"

	"github.com/systmms/pacert/internal/logging"
	"github.com/systmms/pacert/pkg/locator"
)

func printParameters(log *logging.Logger, req Request) {
	log.Section("EXECUTION PARAMETERS")
	log.Plain("Firewall:         %s", orUnknown(req.Host))
	log.Plain("New certificate:  %s", req.NewCertName)
	log.Plain("Certificate file: %s", req.CertFile)
	log.Plain("Key file:         %s", req.KeyFile)
	if req.ChainFile != "" {
		log.Plain("Chain file:       %s", req.ChainFile)
	}
	log.Plain("Backup directory: %s", req.BackupDir)
	if req.DryRun {
		log.Plain("Mode:             DRY RUN (Phase 1 only)")
	} else {
		log.Plain("Mode:             FULL EXECUTION (staged, not committed)")
	}
}

func printDiscoverySummary(log *logging.Logger, req Request, out *RunOutcome) {
	log.Section("PHASE 1 COMPLETE: SUMMARY")

	log.Plain("Backups:")
	log.Plain("   Configuration: %s", out.Backups.Config)
	if out.Backups.DeviceState != "" {
		log.Plain("   Device state:  %s", out.Backups.DeviceState)
	} else {
		log.Plain("   Device state:  not available")
	}

	log.Plain("")
	log.Plain("Certificate to replace: %s", out.ReplacedCertificate)
	log.Plain("New certificate name:   %s", req.NewCertName)
	log.Plain("")

	if out.DiscoveryErr != nil {
		log.Error("Certificate locations could not be determined: %v", out.DiscoveryErr)
		return
	}
	if out.References.IsEmpty() {
		log.Plain("Certificate locations: none found")
		return
	}

	log.Plain("Certificate locations (%d):", out.References.Total())
	for _, kind := range locator.Kinds {
		refs := out.References.References(kind)
		if len(refs) == 0 {
			continue
		}
		log.Plain("   %s (%d):", kind.Label(), len(refs))
		for _, ref := range refs {
			log.Plain("      - %s", ref.ContainerName)
		}
	}
}

func printPlan(log *logging.Logger, req Request, out *RunOutcome) {
	log.Section("PHASE 2 PLAN")
	log.Plain("1. Upload certificate and key as '%s'", req.NewCertName)
	if req.ChainFile != "" {
		log.Plain("2. Upload chain as '%s'", req.ChainName())
	} else {
		log.Plain("2. No chain upload")
	}
	log.Plain("3. Verify '%s' is present in the candidate configuration", req.NewCertName)

	step := 4
	for _, up := range updatePhases {
		names := out.References.Names(up.kind)
		if len(names) == 0 {
			continue
		}
		log.Plain("%d. Update %s: %s", step, up.kind.Label(), strings.Join(uniqueNames(names), ", "))
		step++
	}

	var manual []string
	for _, kind := range locator.Kinds {
		if kind.Updatable() {
			continue
		}
		for _, ref := range out.References.References(kind) {
			manual = append(manual, ref.ContainerName)
		}
	}
	if len(manual) > 0 {
		log.Plain("")
		log.Plain("Requires manual follow-up:")
		for _, m := range manual {
			log.Plain("   - %s", m)
		}
	}
}

func printUpdateSummary(log *logging.Logger, out *RunOutcome) {
	log.Section("PHASE 2 SUMMARY")
	for _, up := range updatePhases {
		p := out.Phase(up.name)
		if len(p.Attempted) == 0 {
			continue
		}
		log.Plain("%s: %d updated, %d failed", up.kind.Label(), len(p.Succeeded), len(p.Failed))
		for _, item := range p.Failed {
			log.Plain("   ✗ %s: %s", item, p.Err(item))
		}
	}
}

func printStagedBanner(log *logging.Logger) {
	log.Section("IMPORTANT: Changes NOT yet committed")
	log.Plain("All changes are staged in the candidate configuration.")
	log.Plain("Review them on the firewall and commit manually:")
	log.Plain("   Web UI: Commit > Commit (review pending changes first)")
	log.Plain("   CLI:    configure; commit")
}

func printFinalStatus(log *logging.Logger, out *RunOutcome) {
	switch {
	case out.State == StateDone:
		log.Info("Certificate rotation staged successfully")
	case len(out.Updated()) > 0 && out.Phase(PhaseVerify).OK():
		log.Warn("Certificate rotation partially staged: %d item(s) failed", len(out.FailedItems()))
	default:
		log.Error("Certificate rotation failed")
	}
	if len(out.Warnings) > 0 {
		log.Plain("Warnings (%d):", len(out.Warnings))
		for _, w := range out.Warnings {
			log.Plain("   ! %s", w)
		}
	}
}

package rotation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/pacert/internal/logging"
	"github.com/systmms/pacert/internal/rotation/notifications"
	"github.com/systmms/pacert/internal/secure"
	"github.com/systmms/pacert/pkg/configdoc"
	"github.com/systmms/pacert/pkg/locator"
	"github.com/systmms/pacert/pkg/retry"
)

// BackupStampFormat names backup files of one run.
const BackupStampFormat = "20060102_150405"

// errNotVisible is recorded when the uploaded certificate never appears in
// the candidate configuration.
var errNotVisible = errors.New("certificate not visible in configuration after upload")

// RunContext carries every collaborator of a run. Logger, Transport,
// Selector and Waiter are required; the rest are optional.
type RunContext struct {
	Logger    *logging.Logger
	Transport Transport
	Selector  Selector
	Waiter    retry.Waiter

	Recorder Recorder
	Notifier Notifier
	History  HistoryStore

	// Clock defaults to time.Now.
	Clock func() time.Time
	// NewID defaults to a random UUID.
	NewID func() string
}

// Request describes one rotation.
type Request struct {
	// Host is the firewall address, used for records and notifications.
	Host string

	// NewCertName is the name the new certificate is imported under.
	NewCertName string
	CertFile    string
	KeyFile     string
	// ChainFile is optional; the chain is imported as "<NewCertName>-chain".
	ChainFile string
	// Passphrase decrypts KeyFile. Nil for unencrypted keys.
	Passphrase *secure.SecureBuffer

	BackupDir string
	DryRun    bool

	InitiatedBy string
}

// ChainName is the name the chain is imported under.
func (r Request) ChainName() string {
	return r.NewCertName + "-chain"
}

// Orchestrator runs the rotation pipeline.
type Orchestrator struct {
	rc RunContext
}

// NewOrchestrator creates an orchestrator. Missing optional collaborators
// are replaced with defaults.
func NewOrchestrator(rc RunContext) *Orchestrator {
	if rc.Logger == nil {
		rc.Logger = logging.New(false, true)
	}
	if rc.Waiter == nil {
		rc.Waiter = retry.DefaultPolicy()
	}
	if rc.Clock == nil {
		rc.Clock = time.Now
	}
	if rc.NewID == nil {
		rc.NewID = func() string { return uuid.NewString() }
	}
	return &Orchestrator{rc: rc}
}

// Run executes the pipeline and always returns a non-nil outcome. The error
// is a *FatalError when a stage aborted the run, the context error when the
// run was cancelled, and nil otherwise; failed items are reported only in
// the outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunOutcome, error) {
	r := &run{
		rc:  o.rc,
		req: req,
		log: o.rc.Logger,
		out: &RunOutcome{
			RunID:          o.rc.NewID(),
			Host:           req.Host,
			DryRun:         req.DryRun,
			NewCertificate: req.NewCertName,
			StartedAt:      o.rc.Clock(),
		},
	}
	r.machine = NewMachine(o.rc.Clock)
	r.machine.OnChange(func(t Transition) {
		r.log.Debug("state %s → %s", t.From, t.To)
	})

	o.notify(notifications.RunEvent{
		Type:           notifications.EventTypeStarted,
		RunID:          r.out.RunID,
		Host:           req.Host,
		NewCertificate: req.NewCertName,
		DryRun:         req.DryRun,
		Timestamp:      r.out.StartedAt,
		InitiatedBy:    req.InitiatedBy,
	})

	err := r.execute(ctx)
	r.material.destroy()

	r.out.State = r.machine.State()
	r.out.Transitions = r.machine.Transitions()
	r.out.FinishedAt = o.rc.Clock()
	if err != nil && r.out.Err == nil {
		r.out.Err = err
	}

	o.finish(ctx, r.out, req.InitiatedBy)
	return r.out, err
}

// finish publishes the outcome to the optional collaborators. Their
// failures are logged and never change the outcome.
func (o *Orchestrator) finish(ctx context.Context, out *RunOutcome, initiatedBy string) {
	if o.rc.Recorder != nil {
		for _, kind := range locator.Kinds {
			o.rc.Recorder.RecordReferences(kind.String(), out.References.Count(kind))
		}
		o.rc.Recorder.RecordRun(out.State.String(), out.OverallSuccess(), out.DryRun, out.Duration())
	}

	if o.rc.History != nil {
		rec := out.Record()
		rec.User = initiatedBy
		if err := o.rc.History.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
			o.rc.Logger.Warn("Failed to save run history: %v", err)
		}
	}

	event := out.Event()
	event.InitiatedBy = initiatedBy
	o.notify(event)
}

func (o *Orchestrator) notify(event notifications.RunEvent) {
	if o.rc.Notifier != nil {
		o.rc.Notifier.Send(event)
	}
}

// material is the local certificate data read during preflight.
type material struct {
	cert  []byte
	key   *secure.SecureBuffer
	chain []byte
}

func (m *material) destroy() {
	if m != nil {
		m.key.Destroy()
	}
}

// run is the state of one Orchestrator.Run call.
type run struct {
	rc       RunContext
	req      Request
	log      *logging.Logger
	machine  *Machine
	out      *RunOutcome
	material *material
}

func (r *run) execute(ctx context.Context) error {
	printParameters(r.log, r.req)

	r.log.Section("PHASE 1: BACKUP AND CERTIFICATE DISCOVERY")

	if err := r.preflight(); err != nil {
		return r.fatal(StagePreflight, err)
	}
	if r.interrupted(ctx) {
		return ctx.Err()
	}

	if err := r.connect(ctx); err != nil {
		return r.stageError(ctx, StageConnectivity, err)
	}

	if err := r.backup(ctx); err != nil {
		return r.stageError(ctx, StageBackup, err)
	}

	selected, err := r.selectCertificate(ctx)
	if err != nil {
		return err
	}
	if selected == "" {
		return nil
	}

	r.discover(selected)
	if r.interrupted(ctx) {
		return ctx.Err()
	}
	printDiscoverySummary(r.log, r.req, r.out)
	printPlan(r.log, r.req, r.out)

	if r.req.DryRun {
		r.log.Section("DRY RUN COMPLETE")
		r.log.Plain("To execute Phase 2, run this command again without --dry-run")
		return r.machine.To(StateDone)
	}

	if err := r.upload(ctx); err != nil {
		return err
	}
	if r.machine.State() == StateVerified {
		if err := r.update(ctx); err != nil {
			return err
		}
	}

	printStagedBanner(r.log)
	printFinalStatus(r.log, r.out)
	return nil
}

// preflight reads the local certificate material.
func (r *run) preflight() error {
	r.log.Info("Validating certificate files...")
	if r.req.NewCertName == "" {
		return fmt.Errorf("new certificate name is required")
	}

	cert, err := readRequired(r.req.CertFile, "certificate")
	if err != nil {
		return err
	}
	r.log.Info("   Certificate file found: %s", r.req.CertFile)

	keyBytes, err := readRequired(r.req.KeyFile, "private key")
	if err != nil {
		return err
	}
	key, err := secure.NewSecureBuffer(keyBytes)
	if err != nil {
		return fmt.Errorf("failed to protect private key: %w", err)
	}
	r.log.Info("   Key file found: %s", r.req.KeyFile)

	m := &material{cert: cert, key: key}
	if r.req.ChainFile != "" {
		chain, err := readRequired(r.req.ChainFile, "chain")
		if err != nil {
			key.Destroy()
			return err
		}
		m.chain = chain
		r.log.Info("   Chain file found: %s", r.req.ChainFile)
	}
	r.material = m
	return nil
}

func readRequired(path, what string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%s file is required", what)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s file not found: %s", what, path)
		}
		return nil, fmt.Errorf("failed to read %s file: %w", what, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s file is empty: %s", what, path)
	}
	return data, nil
}

func (r *run) connect(ctx context.Context) error {
	r.log.Info("Step 1/5: Testing firewall connection...")

	var info SystemInfo
	err := guard(func() error {
		var err error
		info, err = r.rc.Transport.TestConnection(ctx)
		return err
	})
	if err != nil {
		return err
	}

	r.out.System = info
	r.log.Info("Connected to %s (%s, PAN-OS %s)", orUnknown(info.Hostname), orUnknown(info.Model), orUnknown(info.SWVersion))
	return r.machine.To(StateConnected)
}

func (r *run) backup(ctx context.Context) error {
	r.log.Info("Step 2/5: Performing full firewall backup...")
	stamp := r.rc.Clock().Format(BackupStampFormat)
	r.out.Backups.Stamp = stamp

	var cfgPath string
	err := guard(func() error {
		var err error
		cfgPath, err = r.rc.Transport.BackupConfiguration(ctx, r.req.BackupDir, stamp)
		return err
	})
	if err != nil {
		return fmt.Errorf("configuration backup: %w", err)
	}
	r.out.Backups.Config = cfgPath
	r.log.Info("Configuration backed up to %s", cfgPath)

	if r.interrupted(ctx) {
		return ctx.Err()
	}

	var statePath string
	err = guard(func() error {
		var err error
		statePath, err = r.rc.Transport.BackupDeviceState(ctx, r.req.BackupDir, stamp)
		return err
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		r.warn("Device state backup failed (non-critical): %v", err)
	default:
		r.out.Backups.DeviceState = statePath
		r.log.Info("Device state backed up to %s", statePath)
	}

	return r.machine.To(StateBackedUp)
}

// selectCertificate returns "" when the run ended cleanly or was cancelled.
func (r *run) selectCertificate(ctx context.Context) (string, error) {
	r.log.Info("Step 3/5: Retrieving certificate list...")

	var certs []CertificateInfo
	err := guard(func() error {
		var err error
		certs, err = r.rc.Transport.ListCertificates(ctx)
		return err
	})
	if err != nil {
		return "", r.stageError(ctx, StageListing, err)
	}
	if len(certs) == 0 {
		r.log.Warn("No certificates found on firewall - nothing to replace")
		return "", r.machine.To(StateAborted)
	}
	r.log.Info("Found %d certificate(s)", len(certs))

	r.log.Info("Step 4/5: Select certificate to replace...")
	var selected string
	err = guard(func() error {
		var err error
		selected, err = r.rc.Selector.Select(ctx, certs)
		return err
	})
	switch {
	case errors.Is(err, ErrSelectionCancelled):
		r.log.Info("No certificate selected - exiting")
		return "", r.machine.To(StateAborted)
	case err != nil && ctx.Err() != nil:
		r.interrupted(ctx)
		return "", ctx.Err()
	case err != nil:
		return "", r.fatal(StageSelection, err)
	case selected == "":
		return "", r.fatal(StageSelection, fmt.Errorf("selector returned no certificate"))
	}

	r.out.ReplacedCertificate = selected
	r.log.Info("Selected: %s", selected)
	if selected == r.req.NewCertName {
		r.warn("New certificate name %q equals the certificate being replaced; the import will overwrite it", selected)
	}
	return selected, r.machine.To(StateSelected)
}

// discover never fails the run. A discovery failure is reported distinctly
// so an empty result is not mistaken for an unused certificate.
func (r *run) discover(certName string) {
	r.log.Info("Step 5/5: Analyzing certificate usage in configuration...")

	doc, err := configdoc.Load(r.out.Backups.Config)
	if err == nil {
		r.out.References, err = locator.Discover(doc, certName)
	}
	if err != nil {
		r.out.DiscoveryErr = err
		r.warn("Discovery failed: %v", err)
		r.log.Error("Certificate usage is UNKNOWN - an empty result does not mean the certificate is unused")
	} else if r.out.References.IsEmpty() {
		r.log.Info("Certificate '%s' is not referenced anywhere in the configuration", certName)
	}

	_ = r.machine.To(StateDiscovered)
}

// upload runs Phase 2. On failure the machine ends in Failed and the
// returned error is nil; only cancellation returns an error.
func (r *run) upload(ctx context.Context) error {
	r.log.Section("PHASE 2: CERTIFICATE UPLOAD AND CONFIGURATION UPDATE")
	name := r.req.NewCertName

	r.log.Info("Step 1/3: Uploading new certificate and private key...")
	uploadPhase := newPhase(PhaseUpload)
	err := guard(func() error {
		return r.rc.Transport.UploadCertificate(ctx, name, r.material.cert, r.material.key, r.req.Passphrase)
	})
	if err != nil {
		uploadPhase.fail(name, err)
	} else {
		uploadPhase.succeed(name)
	}
	r.addPhase(uploadPhase.freeze())

	if r.interrupted(ctx) {
		return ctx.Err()
	}
	if err != nil {
		r.log.Error("Failed to upload certificate - cannot proceed: %v", err)
		return r.machine.To(StateFailed)
	}
	r.log.Info("Certificate '%s' uploaded", name)
	if err := r.machine.To(StateUploaded); err != nil {
		return err
	}

	if r.material.chain != nil {
		r.log.Info("Step 2/3: Uploading certificate chain...")
		chainErr := guard(func() error {
			return r.rc.Transport.UploadCertificateChain(ctx, r.req.ChainName(), r.material.chain)
		})
		if r.interrupted(ctx) {
			return ctx.Err()
		}
		if chainErr != nil {
			r.warn("Certificate chain upload failed (non-critical): %v", chainErr)
		} else {
			r.log.Info("Chain '%s' uploaded", r.req.ChainName())
		}
	} else {
		r.log.Info("Step 2/3: No certificate chain provided - skipping")
	}

	r.log.Debug("Verifying new certificate is visible in firewall configuration...")
	verifyPhase := newPhase(PhaseVerify)
	visible := r.rc.Waiter.WaitUntilVisible(ctx, func(ctx context.Context) (bool, error) {
		return r.rc.Transport.CertificateVisible(ctx, name)
	})
	if r.interrupted(ctx) {
		verifyPhase.fail(name, ctx.Err())
		r.addPhase(verifyPhase.freeze())
		return ctx.Err()
	}
	if !visible {
		verifyPhase.fail(name, errNotVisible)
		r.addPhase(verifyPhase.freeze())
		r.log.Error("Certificate '%s' not found in firewall configuration", name)
		r.log.Error("   The certificate was uploaded but is not yet visible in the config.")
		r.log.Error("   This may indicate an import issue or permission problem.")
		return r.machine.To(StateFailed)
	}
	verifyPhase.succeed(name)
	r.addPhase(verifyPhase.freeze())
	r.log.Info("Certificate '%s' verified in configuration", name)

	return r.machine.To(StateVerified)
}

// update runs the Phase 3 fan-out. Each item is attempted independently.
func (r *run) update(ctx context.Context) error {
	r.log.Info("Step 3/3: Updating configuration references...")
	newCert := r.req.NewCertName

	for _, up := range updatePhases {
		names := uniqueNames(r.out.References.Names(up.kind))
		if len(names) == 0 {
			r.log.Info("No %s to update", up.kind.Label())
			r.addPhase(newPhase(up.name).freeze())
			continue
		}

		r.log.Info("Updating %d %s...", len(names), up.kind.Label())
		phase := newPhase(up.name)
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			err := guard(func() error {
				return r.applyUpdate(ctx, up.kind, name, newCert)
			})
			if err != nil {
				phase.fail(name, err)
				r.log.Error("   %s: %v", name, err)
			} else {
				phase.succeed(name)
				r.log.Info("   %s → %s", name, newCert)
			}
		}
		r.addPhase(phase.freeze())

		if r.interrupted(ctx) {
			return ctx.Err()
		}
	}

	r.reportManualFollowUp()
	printUpdateSummary(r.log, r.out)

	if err := r.machine.To(StateUpdated); err != nil {
		return err
	}
	for _, p := range r.out.Phases {
		if !p.OK() {
			return r.machine.To(StateFailed)
		}
	}
	return r.machine.To(StateDone)
}

func (r *run) applyUpdate(ctx context.Context, kind locator.Kind, name, newCert string) error {
	switch kind {
	case locator.KindSSLTLSProfile:
		return r.rc.Transport.UpdateSSLTLSProfile(ctx, name, newCert)
	case locator.KindPortal:
		return r.rc.Transport.UpdatePortalCertificate(ctx, name, newCert)
	case locator.KindGateway:
		return r.rc.Transport.UpdateGatewayCertificate(ctx, name, newCert)
	default:
		return fmt.Errorf("%s references are not updated automatically", kind)
	}
}

// reportManualFollowUp warns about references that are never updated.
func (r *run) reportManualFollowUp() {
	for _, kind := range locator.Kinds {
		if kind.Updatable() {
			continue
		}
		for _, ref := range r.out.References.References(kind) {
			r.warn("Manual follow-up required: %s still references '%s' (%s)", ref.ContainerName, r.out.ReplacedCertificate, kind.Label())
		}
	}
}

func (r *run) addPhase(p PhaseResult) {
	r.out.Phases = append(r.out.Phases, p)
	if r.rc.Recorder != nil {
		r.rc.Recorder.RecordPhase(p.Name, len(p.Succeeded), len(p.Failed))
	}
}

func (r *run) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.out.Warnings = append(r.out.Warnings, msg)
	r.log.Warn("%s", msg)
}

// fatal ends the run in Failed.
func (r *run) fatal(stage Stage, err error) error {
	ferr := &FatalError{Stage: stage, Err: err}
	r.log.Error("%v", ferr)
	_ = r.machine.To(StateFailed)
	r.out.Err = ferr
	return ferr
}

// stageError treats a failed call as cancellation when the context is done.
func (r *run) stageError(ctx context.Context, stage Stage, err error) error {
	if r.interrupted(ctx) {
		return ctx.Err()
	}
	return r.fatal(stage, err)
}

// interrupted moves the machine to Cancelled when ctx is done.
func (r *run) interrupted(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	if r.machine.State() != StateCancelled && r.machine.Can(StateCancelled) {
		r.log.Warn("Operation cancelled by user")
		_ = r.machine.To(StateCancelled)
		r.out.Err = ctx.Err()
	}
	return true
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected panic: %v", rec)
		}
	}()
	return fn()
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

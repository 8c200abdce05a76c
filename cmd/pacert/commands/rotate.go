package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/pacert/internal/config"
	"github.com/systmms/pacert/internal/credentials"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/rotation/metrics"
	"github.com/systmms/pacert/internal/rotation/notifications"
	"github.com/systmms/pacert/pkg/retry"
	"github.com/systmms/pacert/pkg/rotation"
)

type rotateOptions struct {
	firewall firewallFlags

	certName   string
	certFile   string
	keyFile    string
	chainFile  string
	passphrase string

	backupDir   string
	logDir      string
	dryRun      bool
	replace     string
	metricsFile string

	verifyAttempts int
	verifyDelay    time.Duration
}

// merge fills options the user did not set from the configuration file.
func (o *rotateOptions) merge(cmd *cobra.Command, def *config.Definition) {
	o.firewall.merge(def)
	if !cmd.Flags().Changed("backup-dir") {
		o.backupDir = def.BackupDir
	}
	if !cmd.Flags().Changed("log-dir") {
		o.logDir = def.LogDir
	}
	if !cmd.Flags().Changed("verify-attempts") {
		o.verifyAttempts = def.Verify.Attempts
	}
	if !cmd.Flags().Changed("verify-delay") {
		o.verifyDelay = def.Verify.Delay.Std()
	}
	if o.metricsFile == "" {
		o.metricsFile = def.Metrics.Textfile
	}
}

func (o *rotateOptions) validate(nonInteractive bool) error {
	if err := o.firewall.validate(); err != nil {
		return err
	}
	required := []struct{ flag, value string }{
		{"--cert-name", o.certName},
		{"--cert-file", o.certFile},
		{"--key-file", o.keyFile},
	}
	for _, r := range required {
		if r.value == "" {
			return pacerterrors.UserError{
				Message:    r.flag + " is required",
				Suggestion: "See 'pacert rotate --help' for an example",
			}
		}
	}
	if nonInteractive && o.replace == "" {
		return pacerterrors.UserError{
			Message:    "--replace is required in non-interactive mode",
			Suggestion: "Name the certificate to replace, or run without --non-interactive to choose from a list",
		}
	}
	if o.verifyAttempts < 1 {
		return pacerterrors.ConfigError{
			Field:      "verify-attempts",
			Value:      o.verifyAttempts,
			Message:    "must be at least 1",
			Suggestion: "Use the default of 3 attempts",
		}
	}
	return nil
}

// NewRotateCommand creates the rotate command
func NewRotateCommand(cfg *config.Config) *cobra.Command {
	opts := &rotateOptions{}

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Back up, upload a new certificate and repoint everything that uses the old one",
		Long: `Rotate a certificate on a PAN-OS firewall.

Phase 1 backs up the running configuration and device state, lets you pick
the certificate being replaced and finds every place that references it.
Phase 2 imports the new certificate, waits until the firewall shows it and
then repoints SSL/TLS service profiles, GlobalProtect portals and gateways.

Changes are staged in the candidate configuration and never committed.
Review them in the web UI and commit when satisfied.`,
		Example: `  # Interactive rotation
  pacert rotate --firewall fw.example.com --api-key keyring:fw01 \
      --cert-name New-Cert-2026 --cert-file cert.crt --key-file cert.key

  # Discovery only
  pacert rotate --firewall fw.example.com --api-key env:PAN_API_KEY \
      --cert-name New-Cert-2026 --cert-file cert.crt --key-file cert.key --dry-run

  # Unattended, naming the certificate to replace
  pacert rotate --non-interactive --replace Old-Cert-2025 \
      --cert-name New-Cert-2026 --cert-file cert.crt --key-file cert.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			opts.merge(cmd, cfg.Definition)
			if err := opts.validate(cfg.NonInteractive); err != nil {
				return err
			}
			return runRotate(cmd.Context(), cfg, opts, nil)
		},
	}

	opts.firewall.register(cmd)
	cmd.Flags().StringVar(&opts.certName, "cert-name", "", "Name for the new certificate on the firewall")
	cmd.Flags().StringVar(&opts.certFile, "cert-file", "", "Path to the public certificate file (.crt or .pem)")
	cmd.Flags().StringVar(&opts.keyFile, "key-file", "", "Path to the private key file (.key)")
	cmd.Flags().StringVar(&opts.chainFile, "chain-file", "", "Path to the certificate chain file (optional)")
	cmd.Flags().StringVar(&opts.passphrase, "passphrase", "", "Private key passphrase or a reference to it (if encrypted)")
	cmd.Flags().StringVar(&opts.backupDir, "backup-dir", "./backups", "Directory for configuration backups")
	cmd.Flags().StringVar(&opts.logDir, "log-dir", "./logs", "Directory for log files (empty disables the log file)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Back up and report usage without changing anything")
	cmd.Flags().StringVar(&opts.replace, "replace", "", "Certificate to replace, skipping the interactive prompt")
	cmd.Flags().IntVar(&opts.verifyAttempts, "verify-attempts", retry.DefaultMaxAttempts, "How many times to check that the uploaded certificate is visible")
	cmd.Flags().DurationVar(&opts.verifyDelay, "verify-delay", retry.DefaultDelay, "Delay between visibility checks")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file (node_exporter textfile format)")

	return cmd
}

// runRotate wires the collaborators and runs one rotation. selector
// overrides the prompt or --replace choice when non-nil.
func runRotate(ctx context.Context, cfg *config.Config, opts *rotateOptions, selector rotation.Selector) error {
	log := cfg.Logger
	if ctx == nil {
		ctx = context.Background()
	}

	logPath, closeLog, err := openLogFile(log, opts.logDir, time.Now())
	if err != nil {
		log.Warn("Continuing without a log file: %v", err)
	} else {
		defer closeLog()
		if logPath != "" {
			log.Info("Logging to %s", logPath)
		}
	}

	resolver := credentials.NewResolver(credentials.Clients{}, log)

	client, destroyKey, err := connect(ctx, cfg, resolver, opts.firewall)
	if err != nil {
		return err
	}
	defer destroyKey()

	passphrase, err := readSecret(ctx, resolver, opts.passphrase)
	if err != nil {
		return err
	}
	defer passphrase.Destroy()

	if selector == nil {
		if opts.replace != "" {
			selector = rotation.FixedSelector(opts.replace)
		} else {
			selector = newPromptSelector()
		}
	}

	runMetrics := metrics.NewRunMetrics()
	notifications.InitMetrics(runMetrics.Registry())

	policy := retry.Policy{MaxAttempts: opts.verifyAttempts, Delay: opts.verifyDelay}.
		WithObserver(func(attempt int, err error) {
			log.Debug("Visibility check %d/%d: %v", attempt, opts.verifyAttempts, err)
		})

	rc := rotation.RunContext{
		Logger:    log,
		Transport: client,
		Selector:  selector,
		Waiter:    policy,
		Recorder:  runMetrics,
	}

	def := cfg.Definition
	if manager := startNotifications(ctx, def.Notifications, resolver, log); manager != nil {
		defer manager.Stop()
		rc.Notifier = manager
	}

	history, err := openHistory(ctx, def.History, resolver)
	if err != nil {
		log.Warn("Run history disabled: %v", err)
	} else if history != nil {
		defer func() { _ = history.Close() }()
		rc.History = history
	}

	outcome, runErr := rotation.NewOrchestrator(rc).Run(ctx, rotation.Request{
		Host:        opts.firewall.host,
		NewCertName: opts.certName,
		CertFile:    opts.certFile,
		KeyFile:     opts.keyFile,
		ChainFile:   opts.chainFile,
		Passphrase:  passphrase,
		BackupDir:   opts.backupDir,
		DryRun:      opts.dryRun,
		InitiatedBy: currentUser(),
	})

	if opts.metricsFile != "" {
		if err := runMetrics.WriteTextfile(opts.metricsFile); err != nil {
			log.Warn("%v", err)
		} else {
			log.Debug("Metrics written to %s", opts.metricsFile)
		}
	}

	if history != nil && def.History.Retention > 0 {
		removed, err := history.CleanupOldEntries(context.WithoutCancel(ctx), def.History.Retention.Std())
		if err != nil {
			log.Warn("History cleanup failed: %v", err)
		} else if removed > 0 {
			log.Debug("Removed %d run records older than %s", removed, def.History.Retention.Std())
		}
	}

	if runErr != nil {
		return runErr
	}
	if code := outcome.ExitCode(); code != pacerterrors.ExitOK {
		return pacerterrors.ExitError{Code: code}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systmms/pacert/cmd/pacert/commands"
	"github.com/systmms/pacert/internal/config"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()

	if err != nil {
		var exitErr pacerterrors.ExitError
		if !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", pacerterrors.SimplifyError(err))
		}
	}
	os.Exit(pacerterrors.ExitCode(err))
}

func run(ctx context.Context) error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{Logger: logging.New(false, false)}

	rootCmd := &cobra.Command{
		Use:   "pacert",
		Short: "Certificate rotation for PAN-OS firewalls",
		Long: `pacert replaces a certificate on a Palo Alto Networks firewall.

It backs up the configuration, finds every SSL/TLS service profile,
GlobalProtect portal and gateway that uses the old certificate, uploads the
new one and repoints them. Changes are staged and never committed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Logger = logging.New(debug, noColor)
			cfg.Path = configFile
			cfg.Required = cmd.Flags().Changed("config")
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; requires --replace for rotate")

	rootCmd.AddCommand(
		commands.NewRotateCommand(cfg),
		commands.NewCertsCommand(cfg),
		commands.NewUsageCommand(cfg),
		commands.NewHistoryCommand(cfg),
		commands.NewAPIKeyCommand(cfg),
		commands.NewCompletionCommand(),
	)

	return rootCmd.ExecuteContext(ctx)
}

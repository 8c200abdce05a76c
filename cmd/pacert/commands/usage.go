package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/pacert/internal/config"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/pkg/configdoc"
	"github.com/systmms/pacert/pkg/locator"
)

type usageReport struct {
	Certificate string          `json:"certificate" yaml:"certificate"`
	Source      string          `json:"source" yaml:"source"`
	Total       int             `json:"total" yaml:"total"`
	Locations   []usageLocation `json:"locations" yaml:"locations"`
}

type usageLocation struct {
	Kind      string `json:"kind" yaml:"kind"`
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	Automatic bool   `json:"automatic" yaml:"automatic"`
}

// NewUsageCommand creates the usage command
func NewUsageCommand(cfg *config.Config) *cobra.Command {
	var (
		certName string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "usage <config-backup.xml>",
		Short: "Show where a certificate is used in a saved configuration",
		Long: `Search an exported PAN-OS configuration for every reference to a
certificate. Works offline on the backups written by 'pacert rotate'.`,
		Example: `  pacert usage backups/fw01-config-20260101_120000.xml --cert Old-Cert-2025`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if certName == "" {
				return pacerterrors.UserError{
					Message:    "--cert is required",
					Suggestion: "Name the certificate to search for, as shown by 'pacert certs'",
				}
			}

			doc, err := configdoc.Load(args[0])
			if err != nil {
				return pacerterrors.UserError{
					Message:    "Failed to read configuration backup",
					Details:    err.Error(),
					Suggestion: "Pass a configuration export such as the <firewall>-config-<stamp>.xml backup",
					Err:        err,
				}
			}

			set, err := locator.Discover(doc, certName)
			if err != nil {
				return fmt.Errorf("discovery failed, certificate usage is unknown: %w", err)
			}

			report := usageReport{Certificate: certName, Source: args[0], Total: set.Total(), Locations: []usageLocation{}}
			for _, kind := range locator.Kinds {
				for _, ref := range set.References(kind) {
					report.Locations = append(report.Locations, usageLocation{
						Kind:      kind.String(),
						Name:      ref.ContainerName,
						Path:      ref.Path,
						Automatic: kind.Updatable(),
					})
				}
			}

			out := cmd.OutOrStdout()
			if done, err := writeStructured(out, format, report); done {
				return err
			}

			if set.IsEmpty() {
				_, _ = fmt.Fprintf(out, "Certificate '%s' is not referenced in %s\n", certName, args[0])
				return nil
			}
			_, _ = fmt.Fprintf(out, "Certificate '%s' is referenced in %d location(s):\n", certName, set.Total())
			for _, kind := range locator.Kinds {
				refs := set.References(kind)
				if len(refs) == 0 {
					continue
				}
				suffix := ""
				if !kind.Updatable() {
					suffix = " [manual]"
				}
				_, _ = fmt.Fprintf(out, "\n%s (%d)%s:\n", kind.Label(), len(refs), suffix)
				for _, ref := range refs {
					_, _ = fmt.Fprintf(out, "  - %s\n", ref.ContainerName)
					if cfg.Logger != nil && cfg.Logger.DebugEnabled() {
						_, _ = fmt.Fprintf(out, "      %s\n", ref.Path)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&certName, "cert", "", "Certificate name to search for")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}

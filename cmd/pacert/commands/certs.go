package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/pacert/internal/config"
	"github.com/systmms/pacert/internal/credentials"
	pacerterrors "github.com/systmms/pacert/internal/errors"
)

type certificateRow struct {
	Name       string `json:"name" yaml:"name"`
	CommonName string `json:"common_name" yaml:"common_name"`
	Issuer     string `json:"issuer" yaml:"issuer"`
	Expiry     string `json:"expiry" yaml:"expiry"`
}

// NewCertsCommand creates the certs command
func NewCertsCommand(cfg *config.Config) *cobra.Command {
	var (
		fw     firewallFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "List certificates installed on the firewall",
		Example: `  pacert certs --firewall fw.example.com --api-key keyring:fw01
  pacert certs --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			fw.merge(cfg.Definition)
			if err := fw.validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			resolver := credentials.NewResolver(credentials.Clients{}, cfg.Logger)
			client, destroyKey, err := connect(ctx, cfg, resolver, fw)
			if err != nil {
				return err
			}
			defer destroyKey()

			certs, err := client.ListCertificates(ctx)
			if err != nil {
				return pacerterrors.FirewallError(fw.host, "list certificates", err)
			}

			rows := make([]certificateRow, 0, len(certs))
			for _, c := range certs {
				rows = append(rows, certificateRow{Name: c.Name, CommonName: c.CommonName, Issuer: c.Issuer, Expiry: c.Expiry})
			}

			out := cmd.OutOrStdout()
			if done, err := writeStructured(out, format, rows); done {
				return err
			}
			if len(rows) == 0 {
				cfg.Logger.Warn("No certificates found on %s", fw.host)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tCOMMON NAME\tISSUER\tEXPIRES")
			for _, r := range rows {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.CommonName, r.Issuer, r.Expiry)
			}
			return w.Flush()
		},
	}

	fw.register(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}

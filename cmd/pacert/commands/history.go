package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/pacert/internal/config"
	"github.com/systmms/pacert/internal/credentials"
	"github.com/systmms/pacert/internal/rotation/storage"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		host   string
		limit  int
		since  string
		status string
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past rotation runs",
		Long: `Display recorded rotation runs, newest first.

Each entry shows when the run started, the firewall, which certificate was
replaced by which, the final status and how long it took.`,
		Example: `  # Last 20 runs on every firewall
  pacert history

  # Failures on one firewall since the start of the year
  pacert history --firewall fw01.example.com --status failed --since 2026-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			var sinceTime time.Time
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid since date format (use YYYY-MM-DD): %w", err)
				}
				sinceTime = t
			}

			ctx := cmd.Context()
			resolver := credentials.NewResolver(credentials.Clients{}, cfg.Logger)
			store, err := openHistory(ctx, cfg.Definition.History, resolver)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			if store == nil {
				cfg.Logger.Warn("Run history is disabled (history.backend: none)")
				return nil
			}
			defer func() { _ = store.Close() }()

			fetch := limit
			if status != "" || !sinceTime.IsZero() {
				fetch = 0
			}
			records, err := store.ListRuns(ctx, host, fetch)
			if err != nil {
				return fmt.Errorf("failed to read run history: %w", err)
			}
			records = filterRuns(records, sinceTime, status, limit)

			out := cmd.OutOrStdout()
			if done, err := writeStructured(out, format, records); done {
				return err
			}
			return printRunTable(out, records)
		},
	}

	cmd.Flags().StringVar(&host, "firewall", "", "Only show runs against this firewall")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	cmd.Flags().StringVar(&since, "since", "", "Show entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: success, partial, failed, aborted, cancelled, dry-run")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")

	return cmd
}

func filterRuns(records []storage.RunRecord, since time.Time, status string, limit int) []storage.RunRecord {
	filtered := make([]storage.RunRecord, 0, len(records))
	for _, r := range records {
		if !since.IsZero() && r.StartedAt.Before(since) {
			continue
		}
		if status != "" && !strings.EqualFold(r.Status(), status) {
			continue
		}
		filtered = append(filtered, r)
		if limit > 0 && len(filtered) == limit {
			break
		}
	}
	return filtered
}

func printRunTable(out io.Writer, records []storage.RunRecord) error {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No rotation history found matching criteria")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tFIREWALL\tREPLACED\tNEW\tSTATUS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t--------\t--------\t---\t------\t--------\t-----")
	for _, r := range records {
		errorMsg := "-"
		if r.Error != "" {
			errorMsg = r.Error
			if len(errorMsg) > 50 {
				errorMsg = errorMsg[:47] + "..."
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Host,
			orDash(r.ReplacedCertificate),
			orDash(r.NewCertificate),
			formatStatus(r.Status()),
			formatDuration(r.Duration),
			errorMsg,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "\nShowing %d entries\n", len(records))
	return nil
}

func formatStatus(status string) string {
	switch status {
	case "success":
		return "✓ success"
	case "dry-run":
		return "○ dry-run"
	case "partial":
		return "⚠ partial"
	case "failed":
		return "✗ failed"
	default:
		return status
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}

	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

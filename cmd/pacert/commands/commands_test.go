package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/systmms/pacert/internal/config"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/rotation/storage"
	"github.com/systmms/pacert/pkg/rotation"
	"github.com/systmms/pacert/tests/fakes"
	"github.com/systmms/pacert/tests/testutil"
)

const testAPIKey = "LUFRPT1commandTestKey0123456789abcdef=="

func newTestConfig(t *testing.T, content string) (*config.Config, *testutil.TestLogger) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pacert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	logger := testutil.NewTestLoggerWithDebug(t, true)
	return &config.Config{Path: path, Required: true, Logger: logger.Logger, NonInteractive: true}, logger
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type rotateFixture struct {
	server     *fakes.PANOSServer
	cfg        *config.Config
	logger     *testutil.TestLogger
	files      testutil.CertFiles
	backupDir  string
	logDir     string
	historyDir string
	metrics    string
}

func newRotateFixture(t *testing.T) *rotateFixture {
	t.Helper()
	t.Setenv("PACERT_TEST_API_KEY", testAPIKey)

	configXML := testutil.SampleConfig("old-cert", testutil.ConfigOptions{
		Profiles:   []string{"web-profile", "vpn-profile"},
		Portals:    []string{"gp-portal"},
		Gateways:   []string{"gp-gateway"},
		Management: "mgmt-profile",
	})
	f := &rotateFixture{
		server:     fakes.NewPANOSServer(t, testAPIKey, configXML, "old-cert", "other-cert"),
		files:      testutil.WriteCertFiles(t),
		backupDir:  t.TempDir(),
		logDir:     t.TempDir(),
		historyDir: t.TempDir(),
	}
	f.metrics = filepath.Join(t.TempDir(), "pacert.prom")

	f.cfg, f.logger = newTestConfig(t, fmt.Sprintf(`version: 1
firewall:
  host: %s
  api_key: env:PACERT_TEST_API_KEY
verify:
  attempts: 2
  delay: 0s
history:
  backend: file
  dir: %s
metrics:
  textfile: %s
`, f.server.URL, f.historyDir, f.metrics))
	return f
}

func (f *rotateFixture) args(extra ...string) []string {
	args := []string{
		"--cert-name", "new-cert",
		"--cert-file", f.files.Cert,
		"--key-file", f.files.Key,
		"--chain-file", f.files.Chain,
		"--backup-dir", f.backupDir,
		"--log-dir", f.logDir,
	}
	return append(args, extra...)
}

func (f *rotateFixture) history(t *testing.T) []storage.RunRecord {
	t.Helper()
	records, err := storage.NewFileStorage(f.historyDir).ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	return records
}

func TestRotate_EndToEnd(t *testing.T) {
	f := newRotateFixture(t)

	_, err := execute(t, NewRotateCommand(f.cfg), f.args("--replace", "old-cert")...)
	require.NoError(t, err)

	assert.Equal(t, []string{"new-cert", "new-cert-chain"}, f.server.Imports)

	profiles := f.server.SetsMatching("ssl-tls-service-profile")
	require.Len(t, profiles, 2)
	for _, set := range profiles {
		assert.Equal(t, "<certificate>new-cert</certificate>", set.Element)
	}
	assert.Len(t, f.server.SetsMatching("global-protect-portal"), 1)
	assert.Len(t, f.server.SetsMatching("global-protect-gateway"), 1)
	assert.Empty(t, f.server.SetsMatching("management"))

	backups, err := filepath.Glob(filepath.Join(f.backupDir, "*-config-*.xml"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	f.logger.AssertContains(t, "Manual follow-up required")
	f.logger.AssertContains(t, "Changes NOT yet committed")
	f.logger.AssertNotContains(t, testAPIKey)

	records := f.history(t)
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, "old-cert", records[0].ReplacedCertificate)
	assert.Equal(t, "new-cert", records[0].NewCertificate)

	metrics, err := os.ReadFile(f.metrics)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "pacert_runs_total")
	assert.Contains(t, string(metrics), "pacert_certificate_references")

	logs, err := filepath.Glob(filepath.Join(f.logDir, "pacert-*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	logData, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(logData), "PHASE 1: BACKUP AND CERTIFICATE DISCOVERY")
	assert.NotContains(t, string(logData), testAPIKey)
}

func TestRotate_DryRun(t *testing.T) {
	f := newRotateFixture(t)

	_, err := execute(t, NewRotateCommand(f.cfg), f.args("--replace", "old-cert", "--dry-run")...)
	require.NoError(t, err)

	assert.Empty(t, f.server.Imports)
	assert.Empty(t, f.server.Sets)
	f.logger.AssertContains(t, "DRY RUN COMPLETE")

	records := f.history(t)
	require.Len(t, records, 1)
	assert.True(t, records[0].DryRun)
	assert.Equal(t, "dry-run", records[0].Status())
}

func TestRotate_UploadRejected(t *testing.T) {
	f := newRotateFixture(t)
	f.server.RejectImport = "Import of new-cert failed. Key does not match certificate"

	_, err := execute(t, NewRotateCommand(f.cfg), f.args("--replace", "old-cert")...)
	require.Error(t, err)

	var exitErr pacerterrors.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, pacerterrors.ExitFailure, exitErr.Code)
	assert.Empty(t, f.server.Sets, "no profile may point at a certificate that was never imported")
	f.logger.AssertContains(t, "Key does not match certificate")
}

func TestRotate_WrongAPIKey(t *testing.T) {
	f := newRotateFixture(t)
	t.Setenv("PACERT_TEST_API_KEY", "LUFRPT1wrongwrongwrong==")

	_, err := execute(t, NewRotateCommand(f.cfg), f.args("--replace", "old-cert")...)
	require.Error(t, err)

	var fatal *rotation.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, rotation.StageConnectivity, fatal.Stage)
	assert.Equal(t, pacerterrors.ExitFailure, pacerterrors.ExitCode(err))
	f.logger.AssertNotContains(t, "LUFRPT1wrongwrongwrong==")
}

func TestRotate_FlagValidation(t *testing.T) {
	f := newRotateFixture(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing cert name", []string{"--cert-file", f.files.Cert, "--key-file", f.files.Key, "--replace", "old-cert"}, "--cert-name is required"},
		{"missing key file", []string{"--cert-name", "n", "--cert-file", f.files.Cert, "--replace", "old-cert"}, "--key-file is required"},
		{"non-interactive without replace", f.args(), "--replace is required"},
		{"zero verify attempts", f.args("--replace", "old-cert", "--verify-attempts", "0"), "verify-attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewRotateCommand(f.cfg), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Empty(t, f.server.Ops, "validation happens before any API call")
}

func TestRotate_MissingFirewall(t *testing.T) {
	cfg, _ := newTestConfig(t, "version: 1\n")

	_, err := execute(t, NewRotateCommand(cfg), "--cert-name", "n", "--cert-file", "c", "--key-file", "k", "--replace", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no firewall given")
}

func TestCerts(t *testing.T) {
	f := newRotateFixture(t)

	out, err := execute(t, NewCertsCommand(f.cfg), "--format", "json")
	require.NoError(t, err)

	var rows []certificateRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "old-cert", rows[0].Name)
	assert.Equal(t, "Test CA", rows[0].Issuer)

	out, err = execute(t, NewCertsCommand(f.cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "COMMON NAME")
	assert.Contains(t, out, "other-cert.example.com")
}

func TestUsage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fw-config.xml")
	xml := testutil.SampleConfig("old-cert", testutil.ConfigOptions{
		Profiles:          []string{"web-profile"},
		UnrelatedProfiles: []string{"unrelated"},
		Gateways:          []string{"gp-gateway"},
		Management:        "mgmt",
	})
	require.NoError(t, os.WriteFile(path, []byte(xml), 0o600))

	cfg := &config.Config{Logger: testutil.NewTestLogger(t).Logger}

	out, err := execute(t, NewUsageCommand(cfg), path, "--cert", "old-cert")
	require.NoError(t, err)
	assert.Contains(t, out, "referenced in 3 location(s)")
	assert.Contains(t, out, "SSL/TLS Service Profiles (1)")
	assert.Contains(t, out, "web-profile")
	assert.Contains(t, out, "Management Interfaces (1) [manual]")
	assert.NotContains(t, out, "unrelated")

	out, err = execute(t, NewUsageCommand(cfg), path, "--cert", "old-cert", "--format", "json")
	require.NoError(t, err)
	var report usageReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Locations, 3)
	assert.Equal(t, "ssl-tls-profile", report.Locations[0].Kind)
	assert.True(t, report.Locations[0].Automatic)

	out, err = execute(t, NewUsageCommand(cfg), path, "--cert", "missing-cert")
	require.NoError(t, err)
	assert.Contains(t, out, "is not referenced")

	_, err = execute(t, NewUsageCommand(cfg), path)
	assert.ErrorContains(t, err, "--cert is required")
}

func TestHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := storage.NewFileStorage(dir)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []storage.RunRecord{
		{ID: "run-1", Host: "fw01", StartedAt: base, State: "done", Success: true, ReplacedCertificate: "old", NewCertificate: "new", Duration: 3 * time.Second},
		{ID: "run-2", Host: "fw01", StartedAt: base.Add(time.Hour), State: "failed", Error: "cannot connect to firewall fw01"},
		{ID: "run-3", Host: "fw02", StartedAt: base.Add(2 * time.Hour), State: "done", Success: true, DryRun: true},
	}
	for i := range records {
		require.NoError(t, store.SaveRun(context.Background(), &records[i]))
	}

	cfg, _ := newTestConfig(t, fmt.Sprintf("version: 1\nhistory:\n  dir: %s\n", dir))

	out, err := execute(t, NewHistoryCommand(cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "FIREWALL")
	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "○ dry-run")
	assert.Contains(t, out, "Showing 3 entries")

	out, err = execute(t, NewHistoryCommand(cfg), "--firewall", "fw01", "--status", "success", "--format", "json")
	require.NoError(t, err)
	var got []storage.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)

	out, err = execute(t, NewHistoryCommand(cfg), "--since", "2026-04-01")
	require.NoError(t, err)
	assert.Contains(t, out, "No rotation history found")

	_, err = execute(t, NewHistoryCommand(cfg), "--since", "yesterday")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestHistory_Disabled(t *testing.T) {
	t.Parallel()

	cfg, logger := newTestConfig(t, "version: 1\nhistory:\n  backend: none\n")

	_, err := execute(t, NewHistoryCommand(cfg))
	require.NoError(t, err)
	logger.AssertContains(t, "Run history is disabled")
}

func TestAPIKeyInstructions(t *testing.T) {
	t.Parallel()

	out, err := execute(t, NewAPIKeyCommand(&config.Config{}), "instructions")
	require.NoError(t, err)
	assert.Contains(t, out, "HOW TO GET YOUR API KEY")
	assert.Contains(t, out, "type=keygen")
	assert.Contains(t, out, "pacert api-key store")
}

func TestAPIKeyStore(t *testing.T) {
	keyring.MockInit()

	cfg := &config.Config{Logger: testutil.NewTestLogger(t).Logger, NonInteractive: true}
	cmd := NewAPIKeyCommand(cfg)
	cmd.SetIn(strings.NewReader(testAPIKey + "\n"))

	out, err := execute(t, cmd, "store", "--firewall", "fw01.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "--api-key keyring:pacert/fw01.example.com")

	stored, err := keyring.Get("pacert", "fw01.example.com")
	require.NoError(t, err)
	assert.Equal(t, testAPIKey, stored)

	t.Setenv("PACERT_COPY_KEY", "copied-key")
	_, err = execute(t, NewAPIKeyCommand(cfg), "store", "--account", "fw02", "--from", "env:PACERT_COPY_KEY")
	require.NoError(t, err)
	stored, err = keyring.Get("pacert", "fw02")
	require.NoError(t, err)
	assert.Equal(t, "copied-key", stored)

	empty := NewAPIKeyCommand(cfg)
	empty.SetIn(strings.NewReader("\n"))
	_, err = execute(t, empty, "store", "--firewall", "fw03")
	assert.ErrorContains(t, err, "no API key on standard input")
}

func TestPromptSelector(t *testing.T) {
	t.Parallel()

	certs := []rotation.CertificateInfo{
		{Name: "old-cert", CommonName: "vpn.example.com", Expiry: "Jan 1 00:00:00 2026 GMT"},
		{Name: "other-cert", CommonName: "web.example.com", Expiry: "N/A"},
	}

	opts := certificateOptions(certs)
	require.Len(t, opts, 2)
	assert.Equal(t, "old-cert", opts[0].Value)
	assert.Contains(t, opts[0].Key, "vpn.example.com")
	assert.Contains(t, opts[0].Key, "Jan 1 00:00:00 2026 GMT")

	aborted := &promptSelector{run: func(context.Context, *huh.Form) error { return huh.ErrUserAborted }}
	_, err := aborted.Select(context.Background(), certs)
	assert.ErrorIs(t, err, rotation.ErrSelectionCancelled)

	broken := &promptSelector{run: func(context.Context, *huh.Form) error { return errors.New("no tty") }}
	_, err = broken.Select(context.Background(), certs)
	assert.EqualError(t, err, "no tty")
}

func TestCompletion(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "pacert"}
	root.AddCommand(NewCompletionCommand())

	out, err := execute(t, root, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "pacert")

	_, err = execute(t, root, "completion", "tcsh")
	assert.Error(t, err)
}

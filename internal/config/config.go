package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/systmms/pacert/internal/credentials"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/logging"
)

// DefaultPath is read when --config is not given.
const DefaultPath = "pacert.yaml"

// CurrentVersion is the only supported file version.
const CurrentVersion = 1

// History backends.
const (
	HistoryFile     = "file"
	HistoryPostgres = "postgres"
	HistoryMySQL    = "mysql"
	HistoryNone     = "none"
)

// Config holds the runtime configuration
type Config struct {
	Path string
	// Required makes a missing file an error. Set when the path was given
	// explicitly.
	Required       bool
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the pacert.yaml structure
type Definition struct {
	Version       int                `yaml:"version"`
	Firewall      FirewallConfig     `yaml:"firewall"`
	BackupDir     string             `yaml:"backup_dir"`
	LogDir        string             `yaml:"log_dir"`
	Verify        VerifyConfig       `yaml:"verify"`
	History       HistoryConfig      `yaml:"history"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// FirewallConfig describes the target device and how to reach it.
type FirewallConfig struct {
	Host string `yaml:"host"`
	// APIKey is a credential reference such as "keyring:fw01" or
	// "env:PAN_API_KEY".
	APIKey        string   `yaml:"api_key"`
	VerifyTLS     bool     `yaml:"verify_tls"`
	CACert        string   `yaml:"ca_cert"`
	Device        string   `yaml:"device"`
	Vsys          string   `yaml:"vsys"`
	Timeout       Duration `yaml:"timeout"`
	ExportTimeout Duration `yaml:"export_timeout"`
}

// VerifyConfig controls the post-upload visibility check.
type VerifyConfig struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
}

// HistoryConfig selects where run records are kept.
type HistoryConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	// DSN may be a credential reference.
	DSN string `yaml:"dsn"`
	// Retention removes records older than this after each run. Zero keeps
	// everything.
	Retention Duration `yaml:"retention"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Duration accepts Go duration strings ("30s", "5m") or whole seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var secs int64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file exists.
func Default() *Definition {
	return &Definition{
		Version: CurrentVersion,
		Firewall: FirewallConfig{
			Device:        "localhost.localdomain",
			Vsys:          "vsys1",
			Timeout:       Duration(30 * time.Second),
			ExportTimeout: Duration(5 * time.Minute),
		},
		BackupDir: "./backups",
		LogDir:    "./logs",
		Verify: VerifyConfig{
			Attempts: 3,
			Delay:    Duration(2 * time.Second),
		},
		History: HistoryConfig{Backend: HistoryFile},
	}
}

// Load reads and validates the configuration file. A missing file yields
// the defaults unless Required is set.
func (c *Config) Load() error {
	if c.Path == "" {
		c.Path = DefaultPath
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if !c.Required {
				c.debug("No configuration file at %s, using defaults", c.Path)
				c.Definition = Default()
				return nil
			}
			return pacerterrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config path or remove the flag to use defaults",
			}
		}
		return pacerterrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	if def.Firewall.APIKey != "" && !credentials.IsReference(def.Firewall.APIKey) {
		c.warn("firewall.api_key in %s is a literal key; prefer a keyring: or env: reference", c.Path)
	}

	c.debug("Loaded configuration from %s", c.Path)
	c.Definition = def
	return nil
}

// Parse validates data against the schema and decodes it over the
// defaults.
func Parse(data []byte) (*Definition, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	def := Default()
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, pacerterrors.ConfigError{
			Message:    fmt.Sprintf("invalid value in configuration file: %v", err),
			Suggestion: "Durations use Go syntax such as 30s or 5m, or a number of seconds",
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks constraints the schema cannot express.
func (d *Definition) Validate() error {
	if d.Version != CurrentVersion {
		return pacerterrors.ConfigError{
			Field:      "version",
			Value:      d.Version,
			Message:    "unsupported configuration version",
			Suggestion: fmt.Sprintf("Set 'version: %d' at the top of your pacert.yaml file", CurrentVersion),
		}
	}

	switch d.History.Backend {
	case HistoryPostgres, HistoryMySQL:
		if d.History.DSN == "" {
			return pacerterrors.ConfigError{
				Field:      "history.dsn",
				Message:    fmt.Sprintf("the %s history backend needs a DSN", d.History.Backend),
				Suggestion: "Set history.dsn, for example env:PACERT_HISTORY_DSN",
			}
		}
	}

	if d.Verify.Attempts < 1 {
		return pacerterrors.ConfigError{
			Field:      "verify.attempts",
			Value:      d.Verify.Attempts,
			Message:    "must be at least 1",
			Suggestion: "Use the default of 3 attempts",
		}
	}

	seen := make(map[string]bool)
	for _, w := range d.Notifications.Webhooks {
		key := strings.ToLower(w.Name)
		if key == "" {
			continue
		}
		if seen[key] {
			return pacerterrors.ConfigError{
				Field:      "notifications.webhooks",
				Value:      w.Name,
				Message:    "duplicate webhook name",
				Suggestion: "Give each webhook a unique name",
			}
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) debug(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debug(format, args...)
	}
}

func (c *Config) warn(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Warn(format, args...)
	}
}

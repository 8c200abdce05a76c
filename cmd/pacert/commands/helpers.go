package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/pacert/internal/config"
	"github.com/systmms/pacert/internal/credentials"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/logging"
	"github.com/systmms/pacert/internal/panos"
	"github.com/systmms/pacert/internal/rotation/notifications"
	"github.com/systmms/pacert/internal/rotation/storage"
	"github.com/systmms/pacert/internal/secure"
)

// firewallFlags are shared by every command that talks to a firewall.
type firewallFlags struct {
	host   string
	apiKey string
}

func (f *firewallFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "firewall", "", "Firewall hostname or IP address")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key reference (keyring:, env:, file:, aws-sm:, aws-ssm:, gcp-sm:, azure-kv:) or the key itself")
}

// merge fills unset flags from the configuration file.
func (f *firewallFlags) merge(def *config.Definition) {
	if f.host == "" {
		f.host = def.Firewall.Host
	}
	if f.apiKey == "" {
		f.apiKey = def.Firewall.APIKey
	}
}

func (f *firewallFlags) validate() error {
	if f.host == "" {
		return pacerterrors.UserError{
			Message:    "no firewall given",
			Suggestion: "Pass --firewall or set firewall.host in pacert.yaml",
		}
	}
	if f.apiKey == "" {
		return pacerterrors.UserError{
			Message:    "no API key given",
			Suggestion: "Pass --api-key, set firewall.api_key, or run 'pacert api-key store'",
		}
	}
	return nil
}

// connect resolves the API key and builds a client. The returned function
// destroys the key.
func connect(ctx context.Context, cfg *config.Config, resolver *credentials.Resolver, f firewallFlags) (*panos.Client, func(), error) {
	apiKey, err := resolver.Resolve(ctx, f.apiKey)
	if err != nil {
		return nil, nil, err
	}

	fw := cfg.Definition.Firewall
	client, err := panos.New(panos.Config{
		Host:          f.host,
		APIKey:        apiKey,
		VerifyTLS:     fw.VerifyTLS,
		CACert:        fw.CACert,
		Device:        fw.Device,
		Vsys:          fw.Vsys,
		Timeout:       fw.Timeout.Std(),
		ExportTimeout: fw.ExportTimeout.Std(),
		Logger:        cfg.Logger,
	})
	if err != nil {
		apiKey.Destroy()
		return nil, nil, err
	}
	return client, apiKey.Destroy, nil
}

// resolveString resolves a reference that holds a non-secret-sized value
// such as a DSN or webhook URL.
func resolveString(ctx context.Context, resolver *credentials.Resolver, ref string) (string, error) {
	if !credentials.IsReference(ref) {
		return ref, nil
	}
	buf, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	var value string
	err = buf.Use(func(b []byte) error {
		value = string(b)
		return nil
	})
	return value, err
}

// openHistory opens the configured history backend. It returns nil for
// the "none" backend.
func openHistory(ctx context.Context, h config.HistoryConfig, resolver *credentials.Resolver) (storage.Storage, error) {
	switch h.Backend {
	case config.HistoryNone:
		return nil, nil
	case config.HistoryPostgres, config.HistoryMySQL:
		dsn, err := resolveString(ctx, resolver, h.DSN)
		if err != nil {
			return nil, err
		}
		return storage.OpenSQLStorage(ctx, h.Backend, dsn)
	default:
		dir := h.Dir
		if dir == "" {
			dir = storage.DefaultStorageDir()
		}
		return storage.NewFileStorage(dir), nil
	}
}

// startNotifications registers the configured providers and starts the
// delivery worker. It returns nil when nothing is configured. Provider
// setup failures are logged and skipped.
func startNotifications(ctx context.Context, n config.NotificationConfig, resolver *credentials.Resolver, log *logging.Logger) *notifications.Manager {
	if !n.Enabled() {
		return nil
	}

	m := notifications.NewManager(0)
	if n.Slack != nil {
		url, err := resolveString(ctx, resolver, n.Slack.WebhookURL)
		if err == nil {
			var p *notifications.SlackProvider
			if p, err = notifications.CreateSlackProvider(n.Slack.ProviderConfig(url)); err == nil {
				m.RegisterProvider(p)
			}
		}
		if err != nil {
			log.Warn("Slack notifications disabled: %v", err)
		}
	}
	for _, w := range n.Webhooks {
		p, err := notifications.CreateWebhookProvider(w.ProviderConfig())
		if err != nil {
			log.Warn("Webhook %q disabled: %v", w.Name, err)
			continue
		}
		m.RegisterProvider(p)
	}
	if len(m.Providers()) == 0 {
		return nil
	}

	m.SetErrorHandler(func(provider string, event notifications.RunEvent, err error) {
		log.Warn("Notification via %s failed for %s event: %v", provider, event.Type, err)
	})
	m.Start(context.WithoutCancel(ctx))
	return m
}

// openLogFile mirrors the logger into <dir>/pacert-<stamp>.log.
func openLogFile(log *logging.Logger, dir string, now time.Time) (string, func(), error) {
	if dir == "" {
		return "", func() {}, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("pacert-%s.log", now.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetSink(f)
	return path, func() {
		log.SetSink(nil)
		_ = f.Close()
	}, nil
}

// readSecret returns the resolved value of ref, or nil when ref is empty.
func readSecret(ctx context.Context, resolver *credentials.Resolver, ref string) (*secure.SecureBuffer, error) {
	if ref == "" {
		return nil, nil
	}
	return resolver.Resolve(ctx, ref)
}

// currentUser names the operator in run records.
func currentUser() string {
	for _, key := range []string{"PACERT_USER", "USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}

package config

import (
	"github.com/systmms/pacert/internal/rotation/notifications"
)

// NotificationConfig holds configuration for run notifications.
type NotificationConfig struct {
	// Slack configuration for Slack webhook notifications.
	Slack *SlackNotificationConfig `yaml:"slack,omitempty"`

	// Webhooks configuration for custom webhook notifications.
	Webhooks []WebhookNotificationConfig `yaml:"webhooks,omitempty"`
}

// SlackNotificationConfig holds Slack webhook configuration for run events.
type SlackNotificationConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	// Can be a credential reference like "env:SLACK_WEBHOOK_URL".
	WebhookURL string `yaml:"webhook_url"`

	// Channel is the Slack channel to post to (optional, uses webhook default).
	Channel string `yaml:"channel,omitempty"`

	// Events specifies which run events trigger notifications.
	// Valid values: started, completed, failed, cancelled.
	// If empty, all events are sent.
	Events []string `yaml:"events,omitempty"`

	// MentionOnFailure lists Slack handles to mention when a run fails.
	// Examples: ["@oncall", "@netops"]
	MentionOnFailure []string `yaml:"mention_on_failure,omitempty"`
}

// WebhookNotificationConfig holds configuration for custom webhook notifications.
type WebhookNotificationConfig struct {
	Name string `yaml:"name"`

	URL string `yaml:"url"`

	// Method is the HTTP method to use (default: POST).
	Method string `yaml:"method,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	Events []string `yaml:"events,omitempty"`

	// PayloadTemplate is a Go template for the request body.
	// If empty, a default JSON payload is used.
	PayloadTemplate string `yaml:"payload_template,omitempty"`

	Timeout Duration `yaml:"timeout,omitempty"`

	// MaxAttempts is the maximum number of delivery attempts (default: 3).
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Backoff strategy: linear, exponential (default: exponential).
	Backoff string `yaml:"backoff,omitempty"`
}

// ProviderConfig converts the file form to the notifications package form.
// webhookURL is the resolved URL.
func (s *SlackNotificationConfig) ProviderConfig(webhookURL string) *notifications.SlackNotificationConfig {
	return &notifications.SlackNotificationConfig{
		WebhookURL:       webhookURL,
		Channel:          s.Channel,
		Events:           s.Events,
		MentionOnFailure: s.MentionOnFailure,
	}
}

// ProviderConfig converts the file form to the notifications package form.
func (w WebhookNotificationConfig) ProviderConfig() *notifications.WebhookNotificationConfig {
	return &notifications.WebhookNotificationConfig{
		Name:            w.Name,
		URL:             w.URL,
		Method:          w.Method,
		Headers:         w.Headers,
		Events:          w.Events,
		PayloadTemplate: w.PayloadTemplate,
		MaxAttempts:     w.MaxAttempts,
		Backoff:         w.Backoff,
		TimeoutSeconds:  int(w.Timeout.Std().Seconds()),
	}
}

// Enabled reports whether any notification target is configured.
func (n NotificationConfig) Enabled() bool {
	return n.Slack != nil || len(n.Webhooks) > 0
}

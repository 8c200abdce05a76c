package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SlackConfig holds configuration for Slack webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string

	// Channel overrides the webhook's default channel.
	Channel string

	// Events specifies which run events trigger notifications.
	// If empty, all events are sent.
	Events []string

	// MentionOnFailure lists Slack handles to mention when a run fails.
	MentionOnFailure []string
}

// SlackProvider sends run notifications to Slack via incoming webhooks.
type SlackProvider struct {
	config SlackConfig
	client *http.Client
}

// NewSlackProvider creates a new Slack notification provider.
func NewSlackProvider(config SlackConfig) *SlackProvider {
	return &SlackProvider{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider name.
func (p *SlackProvider) Name() string {
	return "slack"
}

// SupportsEvent returns true if this provider handles the given event type.
func (p *SlackProvider) SupportsEvent(eventType EventType) bool {
	return matchesEvent(p.config.Events, eventType)
}

// Validate checks if the provider configuration is valid.
func (p *SlackProvider) Validate(_ context.Context) error {
	if p.config.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}

	parsed, err := url.Parse(p.config.WebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid webhook URL: %s", p.config.WebhookURL)
	}

	return nil
}

// Send posts a Block Kit message for the event.
func (p *SlackProvider) Send(ctx context.Context, event RunEvent) error {
	body, err := json.Marshal(p.buildMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

func (p *SlackProvider) buildMessage(event RunEvent) map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, 8)

	blocks = append(blocks, map[string]interface{}{
		"type": "header",
		"text": map[string]interface{}{
			"type":  "plain_text",
			"text":  fmt.Sprintf("%s %s", eventEmoji(event), eventTitle(event)),
			"emoji": true,
		},
	})

	fields := []map[string]interface{}{
		mrkdwn(fmt.Sprintf("*Firewall:*\n%s", event.Host)),
		mrkdwn(fmt.Sprintf("*Certificate:*\n%s → %s", orDash(event.ReplacedCertificate), orDash(event.NewCertificate))),
	}
	if event.Duration > 0 {
		fields = append(fields, mrkdwn(fmt.Sprintf("*Duration:*\n%s", event.Duration.Round(time.Millisecond))))
	}
	blocks = append(blocks, map[string]interface{}{
		"type":   "section",
		"fields": fields,
	})

	if len(event.Updated) > 0 {
		blocks = append(blocks, textSection(fmt.Sprintf("*Updated:* %s", strings.Join(event.Updated, ", "))))
	}
	if len(event.Failed) > 0 {
		blocks = append(blocks, textSection(fmt.Sprintf(":x: *Failed:* %s", strings.Join(event.Failed, ", "))))
	}
	if len(event.Warnings) > 0 {
		blocks = append(blocks, textSection(fmt.Sprintf("*Warnings:*\n• %s", strings.Join(event.Warnings, "\n• "))))
	}
	if event.Error != nil {
		blocks = append(blocks, textSection(fmt.Sprintf(":warning: *Error:*\n```%s```", event.Error.Error())))
	}

	if event.Type == EventTypeFailed && len(p.config.MentionOnFailure) > 0 {
		blocks = append(blocks, textSection(fmt.Sprintf("*Attention:* %s", strings.Join(p.config.MentionOnFailure, " "))))
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]interface{}{
			mrkdwn(fmt.Sprintf("<!date^%d^{date_short_pretty} at {time}|%s> · run %s",
				event.Timestamp.Unix(), event.Timestamp.Format(time.RFC3339), event.RunID)),
		},
	})

	message := map[string]interface{}{
		"blocks": blocks,
	}
	if p.config.Channel != "" {
		message["channel"] = p.config.Channel
	}
	return message
}

func eventEmoji(event RunEvent) string {
	switch event.Type {
	case EventTypeStarted:
		return ":arrows_counterclockwise:"
	case EventTypeCompleted:
		return ":white_check_mark:"
	case EventTypeFailed:
		return ":x:"
	case EventTypeCancelled:
		return ":no_entry_sign:"
	default:
		return ":bell:"
	}
}

func eventTitle(event RunEvent) string {
	switch event.Type {
	case EventTypeStarted:
		return "Certificate Rotation Started"
	case EventTypeCompleted:
		if event.DryRun {
			return "Certificate Rotation Dry Run Completed"
		}
		return "Certificate Rotation Staged"
	case EventTypeFailed:
		if event.Status == StatusPartial {
			return "Certificate Rotation Partially Failed"
		}
		return "Certificate Rotation Failed"
	case EventTypeCancelled:
		return "Certificate Rotation Cancelled"
	default:
		return "Certificate Rotation Event"
	}
}

func mrkdwn(text string) map[string]interface{} {
	return map[string]interface{}{"type": "mrkdwn", "text": text}
}

func textSection(text string) map[string]interface{} {
	return map[string]interface{}{"type": "section", "text": mrkdwn(text)}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// SlackNotificationConfig mirrors the config package type for internal use.
type SlackNotificationConfig struct {
	WebhookURL       string
	Channel          string
	Events           []string
	MentionOnFailure []string
}

// CreateSlackProvider creates a validated Slack provider from config.
func CreateSlackProvider(config *SlackNotificationConfig) (*SlackProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("slack config is nil")
	}

	provider := NewSlackProvider(SlackConfig{
		WebhookURL:       config.WebhookURL,
		Channel:          config.Channel,
		Events:           config.Events,
		MentionOnFailure: config.MentionOnFailure,
	})
	if err := provider.Validate(context.Background()); err != nil {
		return nil, err
	}

	return provider, nil
}

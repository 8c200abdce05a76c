package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v5"

	pacerterrors "github.com/systmms/pacert/internal/errors"
)

// RetryConfig holds retry configuration for webhooks.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts int

	// Backoff strategy: linear, exponential, fixed (default: exponential).
	Backoff string

	// InitialWait is the wait before the second attempt.
	InitialWait time.Duration
}

// WebhookConfig holds configuration for webhook notifications.
type WebhookConfig struct {
	Name string

	URL string

	// Method is the HTTP method to use (default: POST).
	Method string

	Headers map[string]string

	// Events specifies which run events trigger notifications.
	// If empty, all events are sent.
	Events []string

	// PayloadTemplate is a Go template for the request body.
	// If empty, a default JSON payload is used.
	PayloadTemplate string

	Retry *RetryConfig

	// Timeout for each HTTP request.
	Timeout time.Duration
}

// WebhookProvider sends run notifications via HTTP webhooks.
type WebhookProvider struct {
	config   WebhookConfig
	client   *http.Client
	template *template.Template
}

// NewWebhookProvider creates a new webhook notification provider.
func NewWebhookProvider(config WebhookConfig) *WebhookProvider {
	if config.Method == "" {
		config.Method = "POST"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retry == nil {
		config.Retry = &RetryConfig{}
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry.MaxAttempts = 3
	}
	if config.Retry.Backoff == "" {
		config.Retry.Backoff = "exponential"
	}
	if config.Retry.InitialWait == 0 {
		config.Retry.InitialWait = 1 * time.Second
	}

	provider := &WebhookProvider{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}

	if config.PayloadTemplate != "" {
		tmpl, err := template.New("payload").Parse(config.PayloadTemplate)
		if err == nil {
			provider.template = tmpl
		}
	}

	return provider
}

// Name returns the provider name.
func (p *WebhookProvider) Name() string {
	if p.config.Name != "" {
		return "webhook:" + p.config.Name
	}
	return "webhook"
}

// SupportsEvent returns true if this provider handles the given event type.
func (p *WebhookProvider) SupportsEvent(eventType EventType) bool {
	return matchesEvent(p.config.Events, eventType)
}

// Validate checks if the provider configuration is valid.
func (p *WebhookProvider) Validate(_ context.Context) error {
	if p.config.URL == "" {
		return fmt.Errorf("URL is required")
	}

	parsed, err := url.Parse(p.config.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", p.config.URL)
	}

	switch strings.ToUpper(p.config.Method) {
	case "POST", "PUT", "PATCH", "":
	default:
		return fmt.Errorf("invalid method: %s (must be POST, PUT, or PATCH)", p.config.Method)
	}

	if p.config.Retry != nil && p.config.Retry.Backoff != "" {
		switch strings.ToLower(p.config.Retry.Backoff) {
		case "linear", "exponential", "fixed":
		default:
			return fmt.Errorf("invalid backoff strategy: %s (must be linear, exponential, or fixed)", p.config.Retry.Backoff)
		}
	}

	for _, e := range p.config.Events {
		if !isKnownEvent(e) {
			return fmt.Errorf("unknown event %q", e)
		}
	}

	return nil
}

// Send posts the event, retrying on failure per the retry config.
func (p *WebhookProvider) Send(ctx context.Context, event RunEvent) error {
	payload, err := p.buildPayload(event)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.doSend(ctx, payload)
	},
		backoff.WithBackOff(&scheduleBackOff{retry: p.config.Retry}),
		backoff.WithMaxTries(uint(p.config.Retry.MaxAttempts)),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("webhook failed after %d attempts: %w", p.config.Retry.MaxAttempts, err)
	}
	return nil
}

// doSend performs a single HTTP request.
func (p *WebhookProvider) doSend(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(p.config.Method), p.config.URL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range p.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		err = fmt.Errorf("request failed: %w", err)
		if !pacerterrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (p *WebhookProvider) buildPayload(event RunEvent) ([]byte, error) {
	if p.template != nil {
		return p.buildCustomPayload(event)
	}
	return p.buildDefaultPayload(event)
}

// webhookTemplateData provides template-friendly access to event data.
type webhookTemplateData struct {
	Type                string
	RunID               string
	Host                string
	ReplacedCertificate string
	NewCertificate      string
	Status              string
	Error               string
	Duration            string
	Timestamp           string
	Updated             []string
	Failed              []string
	Warnings            []string
	Metadata            map[string]string
}

func (p *WebhookProvider) buildCustomPayload(event RunEvent) ([]byte, error) {
	data := webhookTemplateData{
		Type:                string(event.Type),
		RunID:               event.RunID,
		Host:                event.Host,
		ReplacedCertificate: event.ReplacedCertificate,
		NewCertificate:      event.NewCertificate,
		Status:              string(event.Status),
		Duration:            event.Duration.String(),
		Timestamp:           event.Timestamp.Format(time.RFC3339),
		Updated:             event.Updated,
		Failed:              event.Failed,
		Warnings:            event.Warnings,
		Metadata:            event.Metadata,
	}

	if event.Error != nil {
		data.Error = event.Error.Error()
	}

	var buf bytes.Buffer
	if err := p.template.Execute(&buf, data); err != nil {
		// Fall back to default payload on template error
		return p.buildDefaultPayload(event)
	}

	return buf.Bytes(), nil
}

func (p *WebhookProvider) buildDefaultPayload(event RunEvent) ([]byte, error) {
	payload := map[string]interface{}{
		"event":     string(event.Type),
		"run_id":    event.RunID,
		"host":      event.Host,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}

	if event.Status != "" {
		payload["status"] = string(event.Status)
	}
	if event.ReplacedCertificate != "" {
		payload["replaced_certificate"] = event.ReplacedCertificate
	}
	if event.NewCertificate != "" {
		payload["new_certificate"] = event.NewCertificate
	}
	if event.DryRun {
		payload["dry_run"] = true
	}
	if event.Duration > 0 {
		payload["duration_seconds"] = event.Duration.Seconds()
	}
	if len(event.Updated) > 0 {
		payload["updated"] = event.Updated
	}
	if len(event.Failed) > 0 {
		payload["failed"] = event.Failed
	}
	if len(event.Warnings) > 0 {
		payload["warnings"] = event.Warnings
	}
	if event.Error != nil {
		payload["error"] = event.Error.Error()
	}
	if len(event.Metadata) > 0 {
		payload["metadata"] = event.Metadata
	}

	return json.Marshal(payload)
}

// calculateBackoff calculates the wait after the given failed attempt.
func calculateBackoff(retry *RetryConfig, attempt int) time.Duration {
	initial := retry.InitialWait

	switch strings.ToLower(retry.Backoff) {
	case "linear":
		return initial * time.Duration(attempt)
	case "exponential":
		return initial * time.Duration(1<<(attempt-1))
	default:
		return initial
	}
}

// scheduleBackOff adapts the configured strategy to backoff.BackOff.
type scheduleBackOff struct {
	retry   *RetryConfig
	attempt int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	b.attempt++
	return calculateBackoff(b.retry, b.attempt)
}

func (b *scheduleBackOff) Reset() {
	b.attempt = 0
}

// WebhookNotificationConfig mirrors the config package type for internal use.
type WebhookNotificationConfig struct {
	Name            string
	URL             string
	Method          string
	Headers         map[string]string
	Events          []string
	PayloadTemplate string
	MaxAttempts     int
	Backoff         string
	TimeoutSeconds  int
}

// CreateWebhookProvider creates a validated webhook provider from config.
func CreateWebhookProvider(config *WebhookNotificationConfig) (*WebhookProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("webhook config is nil")
	}

	webhookConfig := WebhookConfig{
		Name:            config.Name,
		URL:             config.URL,
		Method:          config.Method,
		Headers:         config.Headers,
		Events:          config.Events,
		PayloadTemplate: config.PayloadTemplate,
		Retry: &RetryConfig{
			MaxAttempts: config.MaxAttempts,
			Backoff:     config.Backoff,
		},
	}

	if config.TimeoutSeconds > 0 {
		webhookConfig.Timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	provider := NewWebhookProvider(webhookConfig)
	if err := provider.Validate(context.Background()); err != nil {
		return nil, err
	}

	return provider, nil
}

func matchesEvent(events []string, eventType EventType) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if strings.EqualFold(e, string(eventType)) {
			return true
		}
	}
	return false
}

func isKnownEvent(name string) bool {
	for _, t := range AllEventTypes() {
		if strings.EqualFold(name, string(t)) {
			return true
		}
	}
	return false
}

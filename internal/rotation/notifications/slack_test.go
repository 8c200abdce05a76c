package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackProvider_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewSlackProvider(SlackConfig{WebhookURL: "https://hooks.slack.com/services/T/B/X"}).Validate(context.Background()))
	assert.ErrorContains(t, NewSlackProvider(SlackConfig{}).Validate(context.Background()), "required")
	assert.ErrorContains(t, NewSlackProvider(SlackConfig{WebhookURL: "hooks"}).Validate(context.Background()), "invalid")
}

func TestSlackProvider_Send(t *testing.T) {
	t.Parallel()

	var message map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&message))
	}))
	defer server.Close()

	provider := NewSlackProvider(SlackConfig{
		WebhookURL:       server.URL,
		Channel:          "#netops",
		MentionOnFailure: []string{"@oncall"},
	})

	event := sampleEvent()
	event.Type = EventTypeFailed
	event.Error = errors.New("upload rejected")

	require.NoError(t, provider.Send(context.Background(), event))

	assert.Equal(t, "#netops", message["channel"])
	raw, err := json.Marshal(message["blocks"])
	require.NoError(t, err)
	blocks := string(raw)
	assert.Contains(t, blocks, "Certificate Rotation Partially Failed")
	assert.Contains(t, blocks, "fw1.example.com")
	assert.Contains(t, blocks, "OldCert → NewCert-2026")
	assert.Contains(t, blocks, "lan-profile")
	assert.Contains(t, blocks, "upload rejected")
	assert.Contains(t, blocks, "Device state export failed")
	assert.Contains(t, blocks, "@oncall")
}

func TestSlackProvider_SendServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackProvider(SlackConfig{WebhookURL: server.URL}).Send(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "status 403")
}

func TestSlackProvider_NoMentionOnSuccess(t *testing.T) {
	t.Parallel()

	provider := NewSlackProvider(SlackConfig{MentionOnFailure: []string{"@oncall"}})
	event := sampleEvent()
	event.Status = StatusSuccess
	event.Failed = nil

	raw, err := json.Marshal(provider.buildMessage(event))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "@oncall")
	assert.Contains(t, string(raw), "Certificate Rotation Staged")
}

func TestEventTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event RunEvent
		want  string
	}{
		{RunEvent{Type: EventTypeStarted}, "Certificate Rotation Started"},
		{RunEvent{Type: EventTypeCompleted, DryRun: true}, "Certificate Rotation Dry Run Completed"},
		{RunEvent{Type: EventTypeFailed, Status: StatusFailure}, "Certificate Rotation Failed"},
		{RunEvent{Type: EventTypeCancelled}, "Certificate Rotation Cancelled"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, eventTitle(tt.event))
	}
}

func TestCreateSlackProvider(t *testing.T) {
	t.Parallel()

	_, err := CreateSlackProvider(nil)
	assert.Error(t, err)

	provider, err := CreateSlackProvider(&SlackNotificationConfig{
		WebhookURL: "https://hooks.slack.com/services/T/B/X",
		Events:     []string{"failed"},
	})
	require.NoError(t, err)
	assert.True(t, provider.SupportsEvent(EventTypeFailed))
	assert.False(t, provider.SupportsEvent(EventTypeStarted))
}

// Package integration holds tests that exercise pacert packages against
// real servers: HTTP webhooks and, when configured, SQL databases.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pacert/internal/rotation/notifications"
)

// recordingServer answers with the status returned by respond and keeps the
// arrival time and body of each request.
type recordingServer struct {
	*httptest.Server

	mu     sync.Mutex
	times  []time.Time
	bodies [][]byte
	count  int32
}

func newRecordingServer(t *testing.T, respond func(n int32) int) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.times = append(rs.times, time.Now())
		rs.bodies = append(rs.bodies, body)
		rs.mu.Unlock()
		w.WriteHeader(respond(atomic.AddInt32(&rs.count, 1)))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) gaps() []time.Duration {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var gaps []time.Duration
	for i := 1; i < len(rs.times); i++ {
		gaps = append(gaps, rs.times[i].Sub(rs.times[i-1]))
	}
	return gaps
}

func failedEvent() notifications.RunEvent {
	return notifications.RunEvent{
		Type:                notifications.EventTypeFailed,
		RunID:               "run-1",
		Host:                "fw01.example.com",
		ReplacedCertificate: "old-cert",
		NewCertificate:      "new-cert",
		Status:              notifications.StatusFailure,
		Timestamp:           time.Now(),
	}
}

func TestWebhookRetry_ExponentialBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	server := newRecordingServer(t, func(n int32) int {
		if n < 3 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})

	provider := notifications.NewWebhookProvider(notifications.WebhookConfig{
		URL: server.URL,
		Retry: &notifications.RetryConfig{
			MaxAttempts: 3,
			Backoff:     "exponential",
			InitialWait: 300 * time.Millisecond,
		},
	})

	require.NoError(t, provider.Send(context.Background(), failedEvent()))

	gaps := server.gaps()
	require.Len(t, gaps, 2)
	assert.InDelta(t, float64(300*time.Millisecond), float64(gaps[0]), float64(100*time.Millisecond))
	assert.InDelta(t, float64(600*time.Millisecond), float64(gaps[1]), float64(100*time.Millisecond))
}

func TestWebhookRetry_LinearBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	server := newRecordingServer(t, func(int32) int { return http.StatusBadGateway })

	provider := notifications.NewWebhookProvider(notifications.WebhookConfig{
		URL: server.URL,
		Retry: &notifications.RetryConfig{
			MaxAttempts: 3,
			Backoff:     "linear",
			InitialWait: 200 * time.Millisecond,
		},
	})

	err := provider.Send(context.Background(), failedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook failed after 3 attempts")

	gaps := server.gaps()
	require.Len(t, gaps, 2)
	assert.InDelta(t, float64(200*time.Millisecond), float64(gaps[0]), float64(100*time.Millisecond))
	assert.InDelta(t, float64(400*time.Millisecond), float64(gaps[1]), float64(100*time.Millisecond))
}

func TestManager_DeliversToEveryProvider(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ops := newRecordingServer(t, func(int32) int { return http.StatusOK })
	changeLog := newRecordingServer(t, func(int32) int { return http.StatusNoContent })

	manager := notifications.NewManager(0)
	manager.RegisterProvider(notifications.NewWebhookProvider(notifications.WebhookConfig{
		Name:   "ops",
		URL:    ops.URL,
		Events: []string{"failed"},
	}))
	manager.RegisterProvider(notifications.NewWebhookProvider(notifications.WebhookConfig{
		Name:            "change-log",
		URL:             changeLog.URL,
		Method:          "PUT",
		PayloadTemplate: `{"host":"{{.Host}}","event":"{{.Type}}","new":"{{.NewCertificate}}"}`,
	}))

	var handlerErrs int32
	manager.SetErrorHandler(func(string, notifications.RunEvent, error) {
		atomic.AddInt32(&handlerErrs, 1)
	})

	manager.Start(context.Background())
	manager.Send(notifications.RunEvent{
		Type:      notifications.EventTypeStarted,
		RunID:     "run-2",
		Host:      "fw02.example.com",
		Timestamp: time.Now(),
	})
	manager.Send(failedEvent())
	manager.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ops.count))
	assert.Equal(t, int32(2), atomic.LoadInt32(&changeLog.count))
	assert.Zero(t, atomic.LoadInt32(&handlerErrs))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(ops.bodies[0], &payload))
	assert.Equal(t, "failed", payload["event"])
	assert.Equal(t, "fw01.example.com", payload["host"])
	assert.Equal(t, "old-cert", payload["replaced_certificate"])

	assert.JSONEq(t, `{"host":"fw02.example.com","event":"started","new":""}`, string(changeLog.bodies[0]))
}

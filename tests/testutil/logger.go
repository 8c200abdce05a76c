package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/pacert/internal/logging"
)

// TestLogger captures log output for validation in tests.
//
// The embedded logging.Logger writes uncoloured lines into an in-memory
// buffer, so tests can check which messages a run produced and that
// secrets never reach the output.
//
// Example usage:
//
//	logger := testutil.NewTestLogger(t)
//	orch := rotation.NewOrchestrator(rotation.RunContext{Logger: logger.Logger, ...})
//	...
//	logger.AssertContains(t, "Changes NOT yet committed")
type TestLogger struct {
	*logging.Logger

	mu     sync.Mutex
	buffer bytes.Buffer
}

// NewTestLogger creates a TestLogger with debug output disabled.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return NewTestLoggerWithDebug(t, false)
}

// NewTestLoggerWithDebug creates a TestLogger that also captures Debug lines
// when debug is true.
func NewTestLoggerWithDebug(t *testing.T, debug bool) *TestLogger {
	t.Helper()
	l := &TestLogger{}
	l.Logger = logging.NewWithWriter(lockedWriter{l}, debug, true)
	return l
}

type lockedWriter struct{ l *TestLogger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.buffer.Write(p)
}

// GetOutput returns everything logged since creation or the last Clear.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

// Clear drops the captured output.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.Reset()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain substr.
//
// This is particularly useful for verifying that secrets are redacted.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertLogCount asserts that a level marker appears count times.
//
// Level markers:
//   - info: "✓"
//   - warn: "⚠"
//   - error: "✗"
//   - debug: "[DEBUG]"
func (l *TestLogger) AssertLogCount(t *testing.T, level string, count int) {
	t.Helper()

	var marker string
	switch level {
	case "info":
		marker = "✓ "
	case "warn":
		marker = "⚠ "
	case "error":
		marker = "✗ "
	case "debug":
		marker = "[DEBUG] "
	default:
		t.Fatalf("Unknown log level: %s", level)
	}

	actual := 0
	for _, line := range l.Lines() {
		if strings.HasPrefix(line, marker) {
			actual++
		}
	}
	assert.Equal(t, count, actual, "Expected %d %s log messages, got %d", count, level, actual)
}

// Lines returns the non-empty output lines.
func (l *TestLogger) Lines() []string {
	var result []string
	for _, line := range strings.Split(l.GetOutput(), "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}

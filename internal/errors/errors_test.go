package errors_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/pacert/internal/errors"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
}

func TestUserErrorFallsBackToWrapped(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("inner failure")
	err := errors.UserError{Err: inner}

	assert.Equal(t, "inner failure", err.Error())
	assert.ErrorIs(t, err, inner)
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "verify.attempts",
		Value:      0,
		Message:    "must be at least 1",
		Suggestion: "Use the default of 3 attempts",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "verify.attempts")
	assert.Contains(t, errMsg, "(value: 0)")
	assert.Contains(t, errMsg, "must be at least 1")
	assert.Contains(t, errMsg, "default of 3")
}

func TestFirewallErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cause    error
		contains string
	}{
		{"timeout", fmt.Errorf("context deadline exceeded"), "did not answer in time"},
		{"refused", fmt.Errorf("dial tcp 10.0.0.1:443: connection refused"), "management interface"},
		{"auth", fmt.Errorf("status 403: Invalid Credential"), "API key was rejected"},
		{"unknown", fmt.Errorf("weird"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.FirewallError("fw01", "backup", tt.cause)
			assert.Contains(t, err.Error(), "firewall fw01: backup failed")
			assert.ErrorIs(t, err, tt.cause)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestCredentialError(t *testing.T) {
	t.Parallel()

	err := errors.CredentialError("keyring", fmt.Errorf("secret not found in keyring"))
	assert.Contains(t, err.Error(), "keyring")
	assert.Contains(t, err.Error(), "pacert api-key store")
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsRetryable(nil))
	assert.True(t, errors.IsRetryable(fmt.Errorf("read: connection reset by peer")))
	assert.True(t, errors.IsRetryable(fmt.Errorf("i/o Timeout")))
	assert.False(t, errors.IsRetryable(fmt.Errorf("invalid xpath")))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.ExitOK, errors.ExitCode(nil))
	assert.Equal(t, errors.ExitFailure, errors.ExitCode(fmt.Errorf("boom")))
	assert.Equal(t, errors.ExitCancelled, errors.ExitCode(fmt.Errorf("run: %w", context.Canceled)))
	assert.Equal(t, 7, errors.ExitCode(errors.ExitError{Code: 7}))
	assert.Equal(t, errors.ExitFailure, errors.ExitCode(fmt.Errorf("wrapped: %w", errors.ExitError{Code: 1})))
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	_, statErr := os.Stat("/definitely/not/here")
	simplified := errors.SimplifyError(fmt.Errorf("open cert: %w", statErr))
	assert.Contains(t, simplified.Error(), "File or directory not found")

	yamlErr := errors.SimplifyError(fmt.Errorf("yaml: line 3: mapping values are not allowed"))
	assert.Contains(t, yamlErr.Error(), "Invalid YAML format")

	userErr := errors.UserError{Message: "keep me"}
	assert.Equal(t, userErr, errors.SimplifyError(userErr))
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Exit codes reported by the CLI.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// FirewallError enhances transport errors with context about the failed operation
func FirewallError(host, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("firewall %s: %s failed", host, operation),
		Details:    err.Error(),
		Suggestion: getFirewallSuggestion(err),
		Err:        err,
	}
}

// CredentialError wraps a failure to resolve a credential reference
func CredentialError(source string, err error) error {
	suggestion := ""
	switch source {
	case "keyring":
		suggestion = "Store the key first with 'pacert api-key store --firewall <host>'"
	case "aws-sm", "aws-ssm":
		suggestion = "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
	case "gcp-sm":
		suggestion = "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
	case "azure-kv":
		suggestion = "Run 'az login' or configure a managed identity"
	case "env":
		suggestion = "Export the environment variable before running pacert"
	}

	return UserError{
		Message:    fmt.Sprintf("failed to resolve credential from %s", source),
		Details:    err.Error(),
		Suggestion: suggestion,
		Err:        err,
	}
}

func getFirewallSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "invalid credential"), strings.Contains(errStr, "403"):
		return "The API key was rejected. Generate a new one with 'pacert api-key instructions'"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "The firewall did not answer in time. It may be busy committing; try again shortly"
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return "Check the firewall address and that the management interface allows HTTPS"
	case strings.Contains(errStr, "x509"), strings.Contains(errStr, "certificate"):
		return "The management certificate is not trusted. Set firewall.verify_tls: false for self-signed certificates"
	}
	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// ExitCode maps an error returned by a command to the process exit code.
// Cancellation by interrupt is not a failure and gets its own code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	var exitErr ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ExitError carries an explicit exit code without an error message of its own.
// Commands return it when the outcome has already been reported to the user.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}

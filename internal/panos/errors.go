package panos

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by APIError when the firewall reports that the
// addressed object does not exist.
var ErrNotFound = errors.New("object not found")

// APIError describes a failed API call. Exactly one of Err, StatusCode or
// Message carries the cause.
type APIError struct {
	Op string
	// StatusCode is the HTTP status for non-2xx responses.
	StatusCode int
	// Code is the PAN-OS response code attribute, when present.
	Code string
	// Message is the firewall's error text.
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s: %s (code %s)", e.Op, e.Message, e.Code)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Code == codeObjectNotPresent || e.Code == codeObjectNotFound {
		return ErrNotFound
	}
	return nil
}

// IsAuthError reports whether the firewall rejected the API key.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 401 || apiErr.StatusCode == 403 || apiErr.Code == codeUnauthorized
}

// PAN-OS response codes.
const (
	codeUnauthorized     = "403"
	codeObjectNotPresent = "7"
	codeObjectNotFound   = "6"
)

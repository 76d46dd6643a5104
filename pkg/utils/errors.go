package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed      = errors.New("request failed after all attempts") // Wraps the last underlying error
	ErrHTTPStatus       = errors.New("non-200 HTTP status")               // Wraps status code detail
	ErrResolveFailed    = errors.New("could not resolve video identifier")
	ErrStateAbsent      = errors.New("embedded state not found in document")
	ErrStateMalformed   = errors.New("embedded state failed to parse")
	ErrNoDetailNode     = errors.New("no photo/counts node in embedded state")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrBodyRead         = errors.New("failed to read response body")
	ErrDatabase         = errors.New("database error") // Wraps badger errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging.
// Internal categories are deliberately finer-grained than the single reason
// reported per failed row; they exist for diagnostics, never for control flow.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		if err == ErrRetryFailed {
			return "RetryFailed_Unknown"
		}
		if errors.Is(err, ErrHTTPStatus) {
			return "RetryFailed_HTTPStatus"
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "RetryFailed_Timeout"
		}
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return "RetryFailed_Timeout"
		}
		return "RetryFailed_Transport"
	case errors.Is(err, ErrHTTPStatus):
		return "HTTP_Status"
	case errors.Is(err, ErrResolveFailed):
		return "Resolve_Failed"
	case errors.Is(err, ErrStateAbsent):
		return "State_Absent"
	case errors.Is(err, ErrStateMalformed):
		return "State_Malformed"
	case errors.Is(err, ErrNoDetailNode):
		return "State_NoDetailNode"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	// Network errors not wrapped by custom sentinels
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerMsg, "tls") || strings.Contains(lowerMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "None"},
		{"retry exhausted on status", fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 503", ErrHTTPStatus)), "RetryFailed_HTTPStatus"},
		{"retry exhausted on timeout", fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("dial tcp: i/o timeout")), "RetryFailed_Timeout"},
		{"retry exhausted on transport", fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("connection refused")), "RetryFailed_Transport"},
		{"resolve failure", fmt.Errorf("%w: no identifier in final URL", ErrResolveFailed), "Resolve_Failed"},
		{"state absent", ErrStateAbsent, "State_Absent"},
		{"state malformed", fmt.Errorf("%w: unexpected end of JSON input", ErrStateMalformed), "State_Malformed"},
		{"no detail node", ErrNoDetailNode, "State_NoDetailNode"},
		{"context canceled", context.Canceled, "System_ContextCanceled"},
		{"deadline exceeded", context.DeadlineExceeded, "System_ContextDeadlineExceeded"},
		{"bare dns error", errors.New("lookup m.example.invalid: no such host"), "Network_DNSLookup"},
		{"bare tls error", errors.New("x509: certificate signed by unknown authority"), "Network_TLS"},
		{"unknown", errors.New("something else entirely"), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}

package authcore

import (
	"fmt"
	"net/http"
)

// Flow error codes as constants
const (
	ErrorCodeMissingCode         = "missing_code"
	ErrorCodeInvalidSession      = "invalid_session"
	ErrorCodeInvalidState        = "invalid_state"
	ErrorCodeInvalidProvider     = "invalid_provider"
	ErrorCodeInvalidIDToken      = "invalid_id_token"
	ErrorCodeTokenExchangeFailed = "token_exchange_failed"
	ErrorCodeAccessDenied        = "access_denied"
	ErrorCodeServerError         = "server_error"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
)

// FlowError represents a terminal authentication flow failure
type FlowError struct {
	Code        string // Flow error code (e.g., "invalid_state", "token_exchange_failed")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewFlowError creates a new flow error
func NewFlowError(code, description string, status int) *FlowError {
	return &FlowError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common flow errors as reusable instances
var (
	// ErrMissingCode indicates the provider callback carried no authorization code
	ErrMissingCode = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeMissingCode, desc, http.StatusBadRequest)
	}

	// ErrInvalidSession indicates the flow session is absent or expired
	ErrInvalidSession = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeInvalidSession, desc, http.StatusBadRequest)
	}

	// ErrInvalidState indicates the callback state does not match the session
	ErrInvalidState = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeInvalidState, desc, http.StatusBadRequest)
	}

	// ErrInvalidProvider indicates an unknown or mismatched provider
	ErrInvalidProvider = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeInvalidProvider, desc, http.StatusBadRequest)
	}

	// ErrInvalidIDToken indicates ID token claim validation failed
	ErrInvalidIDToken = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeInvalidIDToken, desc, http.StatusUnauthorized)
	}

	// ErrTokenExchangeFailed indicates the code-for-token exchange was rejected
	ErrTokenExchangeFailed = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeTokenExchangeFailed, desc, http.StatusBadGateway)
	}

	// ErrAccessDenied indicates the user or provider denied the request
	ErrAccessDenied = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}

	// ErrServerError indicates an internal error occurred
	ErrServerError = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller exceeded the callback rate limit
	ErrRateLimitExceeded = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)

package authcore

import (
	"net/http"
	"testing"
)

func TestFlowError_Error(t *testing.T) {
	err := NewFlowError(ErrorCodeInvalidState, "state mismatch", http.StatusBadRequest)
	if got, want := err.Error(), "invalid_state: state mismatch"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestFlowErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *FlowError
		wantCode   string
		wantStatus int
	}{
		{"missing code", ErrMissingCode("no code"), ErrorCodeMissingCode, http.StatusBadRequest},
		{"invalid session", ErrInvalidSession("expired"), ErrorCodeInvalidSession, http.StatusBadRequest},
		{"invalid state", ErrInvalidState("mismatch"), ErrorCodeInvalidState, http.StatusBadRequest},
		{"invalid provider", ErrInvalidProvider("unknown"), ErrorCodeInvalidProvider, http.StatusBadRequest},
		{"invalid id token", ErrInvalidIDToken("bad nonce"), ErrorCodeInvalidIDToken, http.StatusUnauthorized},
		{"exchange failed", ErrTokenExchangeFailed("rejected"), ErrorCodeTokenExchangeFailed, http.StatusBadGateway},
		{"access denied", ErrAccessDenied("user declined"), ErrorCodeAccessDenied, http.StatusForbidden},
		{"rate limited", ErrRateLimitExceeded("slow down"), ErrorCodeRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
		})
	}
}

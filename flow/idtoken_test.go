package flow

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const msIssuerTemplate = "https://login.microsoftonline.com/{tenantid}/v2.0"

func TestIssuerMatches(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		tenantID string
		want     bool
	}{
		{"exact", "https://accounts.google.com", "https://accounts.google.com", "", true},
		{"exact mismatch", "https://accounts.google.com", "https://evil.example", "", false},
		{"template any tenant", msIssuerTemplate, "https://login.microsoftonline.com/9188040d-6c67/v2.0", "", true},
		{"template empty tenant segment", msIssuerTemplate, "https://login.microsoftonline.com//v2.0", "", false},
		{"template multi-segment tenant", msIssuerTemplate, "https://login.microsoftonline.com/a/b/v2.0", "", false},
		{"template wrong host", msIssuerTemplate, "https://evil.example/tenant/v2.0", "", false},
		{"pinned tenant match", msIssuerTemplate, "https://login.microsoftonline.com/tenant-1/v2.0", "tenant-1", true},
		{"pinned tenant mismatch", msIssuerTemplate, "https://login.microsoftonline.com/tenant-2/v2.0", "tenant-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := issuerMatches(tt.expected, tt.actual, tt.tenantID); got != tt.want {
				t.Errorf("issuerMatches(%q, %q, %q) = %v, want %v",
					tt.expected, tt.actual, tt.tenantID, got, tt.want)
			}
		})
	}
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://id.acme.example",
		"sub":   "user-1",
		"aud":   "client-abc",
		"nonce": "nonce-1",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"nbf":   time.Now().Add(-time.Minute).Unix(),
	}
}

func validateTestClaims(t *testing.T, mutate func(jwt.MapClaims)) error {
	t.Helper()
	claims := validClaims()
	if mutate != nil {
		mutate(claims)
	}
	raw := signTestIDToken(t, claims)
	_, err := ValidateIDToken(raw, "https://id.acme.example", "client-abc", "", "nonce-1")
	return err
}

func TestValidateIDToken_Valid(t *testing.T) {
	if err := validateTestClaims(t, nil); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestValidateIDToken_ExtractsClaims(t *testing.T) {
	raw := signTestIDToken(t, jwt.MapClaims{
		"iss":            "https://id.acme.example",
		"sub":            "user-1",
		"aud":            []string{"client-abc", "other-client"},
		"nonce":          "nonce-1",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Test User",
	})
	claims, err := ValidateIDToken(raw, "https://id.acme.example", "client-abc", "", "nonce-1")
	if err != nil {
		t.Fatalf("ValidateIDToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.Email != "user@example.com" || !claims.EmailVerified {
		t.Errorf("email claims = %q verified=%v", claims.Email, claims.EmailVerified)
	}
	if claims.Name != "Test User" {
		t.Errorf("Name = %q", claims.Name)
	}
}

func TestValidateIDToken_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(jwt.MapClaims)
		keyword string
	}{
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, "issuer"},
		{"missing issuer", func(c jwt.MapClaims) { delete(c, "iss") }, "issuer"},
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "someone-else" }, "audience"},
		{"missing audience", func(c jwt.MapClaims) { delete(c, "aud") }, "audience"},
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, "expired"},
		{"missing expiry", func(c jwt.MapClaims) { delete(c, "exp") }, "expiry"},
		{"future nbf", func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() }, "not yet valid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTestClaims(t, tt.mutate)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !strings.Contains(err.Error(), tt.keyword) {
				t.Errorf("error %q does not mention %q", err, tt.keyword)
			}
		})
	}
}

func TestValidateIDToken_NonceMismatch(t *testing.T) {
	err := validateTestClaims(t, func(c jwt.MapClaims) { c["nonce"] = "replayed" })
	if !errors.Is(err, errNonceMismatch) {
		t.Fatalf("expected errNonceMismatch, got %v", err)
	}
}

func TestValidateIDToken_Malformed(t *testing.T) {
	if _, err := ValidateIDToken("not-a-jwt", "https://id.acme.example", "client-abc", "", ""); err == nil {
		t.Fatal("expected rejection for malformed token")
	}
}

package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tradepost/authcore"
	"github.com/tradepost/authcore/providers"
	"github.com/tradepost/authcore/security"
)

// errNonceMismatch distinguishes a replayed or forged ID token from other
// claim failures so the engine can audit it at high severity.
var errNonceMismatch = errors.New("nonce does not match")

// ValidateIDToken reads an ID token's claims WITHOUT verifying its
// signature and checks issuer, audience, nonce, expiry and not-before.
//
// This is claim inspection, not verification: the token arrived over the
// TLS back-channel directly from the token endpoint, which is what binds
// it to the provider. Callers that accept ID tokens from any other path
// must verify the signature against the provider's JWKS first.
func ValidateIDToken(raw, expectedIssuer, clientID, tenantID, expectedNonce string) (*authcore.IDClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("malformed id token: %w", err)
	}

	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return nil, errors.New("id token has no issuer")
	}
	if !issuerMatches(expectedIssuer, iss, tenantID) {
		return nil, fmt.Errorf("issuer %q does not match expected %q", iss, expectedIssuer)
	}

	aud, err := claims.GetAudience()
	if err != nil || len(aud) == 0 {
		return nil, errors.New("id token has no audience")
	}
	if !containsString(aud, clientID) {
		return nil, fmt.Errorf("audience %v does not include client id", []string(aud))
	}

	if expectedNonce != "" {
		nonce, _ := claims["nonce"].(string)
		if !security.ConstantTimeEquals(nonce, expectedNonce) {
			return nil, errNonceMismatch
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("id token has no expiry")
	}
	if !security.IsTimestampFuture(exp.Time) {
		return nil, errors.New("id token is expired")
	}

	if nbf, err := claims.GetNotBefore(); err == nil && nbf != nil {
		if !security.IsTimestampPast(nbf.Time) {
			return nil, errors.New("id token is not yet valid")
		}
	}

	sub, _ := claims.GetSubject()
	out := &authcore.IDClaims{
		Issuer:   iss,
		Subject:  sub,
		Audience: aud[0],
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		out.EmailVerified = verified
	}
	if name, ok := claims["name"].(string); ok {
		out.Name = name
	}
	if picture, ok := claims["picture"].(string); ok {
		out.Picture = picture
	}
	if tid, ok := claims["tid"].(string); ok {
		out.TenantID = tid
	}
	return out, nil
}

// issuerMatches compares an actual issuer against an expected one that may
// carry a tenant placeholder. With a configured tenant the placeholder is
// substituted and the result compared exactly; without one, any single
// non-empty path segment is tolerated in its place.
func issuerMatches(expected, actual, tenantID string) bool {
	if !strings.Contains(expected, providers.TenantPlaceholder) {
		return expected == actual
	}
	if tenantID != "" {
		return strings.ReplaceAll(expected, providers.TenantPlaceholder, tenantID) == actual
	}
	prefix, suffix, _ := strings.Cut(expected, providers.TenantPlaceholder)
	if !strings.HasPrefix(actual, prefix) || !strings.HasSuffix(actual, suffix) {
		return false
	}
	segment := actual[len(prefix) : len(actual)-len(suffix)]
	return segment != "" && !strings.Contains(segment, "/")
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

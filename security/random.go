package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// VerifierLength is the length of generated PKCE code verifiers.
	// RFC 7636 permits 43-128 characters; 64 gives ~380 bits of entropy.
	VerifierLength = 64

	// StateLength is the length of generated OAuth state parameters.
	StateLength = 32

	// NonceLength is the length of generated OIDC nonce values.
	NonceLength = 32

	// ChallengeMethodS256 is the only supported PKCE challenge method.
	// The "plain" method defeats the purpose of PKCE and is never used.
	ChallengeMethodS256 = "S256"
)

// unreservedChars is the RFC 3986 unreserved character set, which is also
// the RFC 7636 code verifier alphabet.
const unreservedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// RandomString returns a string of length n drawn from the unreserved
// character set using crypto/rand. It never falls back to a
// non-cryptographic source; exhaustion of the system entropy pool is a
// hard error.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid random string length %d", n)
	}

	out := make([]byte, n)
	// Rejection sampling over a 256-byte window to avoid modulo bias.
	// len(unreservedChars) == 66; accept bytes below the largest multiple.
	limit := byte(256 - (256 % len(unreservedChars)))

	buf := make([]byte, n)
	filled := 0
	for filled < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out[filled] = unreservedChars[int(b)%len(unreservedChars)]
			filled++
			if filled == n {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateVerifier returns a new PKCE code verifier.
func GenerateVerifier() (string, error) {
	return RandomString(VerifierLength)
}

// GenerateState returns a new OAuth state parameter.
func GenerateState() (string, error) {
	return RandomString(StateLength)
}

// GenerateNonce returns a new OIDC nonce.
func GenerateNonce() (string, error) {
	return RandomString(NonceLength)
}

// CodeChallengeS256 derives the S256 code challenge from a verifier:
// the base64url (unpadded) encoding of the SHA-256 digest.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two strings without short-circuiting on the
// first differing byte, resisting timing side-channels on state and nonce
// validation. Strings of different length compare unequal, but a dummy
// comparison is still performed so the length check itself does not create
// an observable fast path.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Package security provides the cryptographic primitives shared by the flow
// engine and the access control pipeline: CSPRNG generation of PKCE
// verifiers, state and nonce values, constant-time comparison, expiry
// checks with clock-skew tolerance, per-identifier rate limiting, and
// AES-256-GCM sealing for cookie-backed session storage.
package security

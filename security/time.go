package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace period applied when checking
	// ID-token exp/nbf claims. It prevents false failures due to minor time
	// drift between this host and the provider; 5 seconds covers typical
	// NTP drift without meaningfully extending token lifetime.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired reports whether something created at createdAt has outlived its
// validity window. No grace period is applied: session expiry is a hard
// security boundary, not an interoperability concern.
func IsExpired(createdAt time.Time, validity time.Duration) bool {
	if createdAt.IsZero() {
		return true
	}
	return time.Since(createdAt) > validity
}

// IsTimestampPast reports whether the claim timestamp t lies in the past,
// with clock-skew tolerance. Used for nbf validation.
func IsTimestampPast(t time.Time) bool {
	return time.Now().Add(DefaultClockSkewGracePeriod).After(t)
}

// IsTimestampFuture reports whether the claim timestamp t lies in the
// future, with clock-skew tolerance. Used for exp validation.
func IsTimestampFuture(t time.Time) bool {
	return t.Add(DefaultClockSkewGracePeriod).After(time.Now())
}

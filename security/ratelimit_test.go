package security

import (
	"testing"
)

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Errorf("request %d within burst should be allowed", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst should be denied")
	}
}

func TestRateLimiter_IndependentIdentifiers(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") {
		t.Error("first identifier should be allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second identifier should not be affected by the first")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first identifier should now be over budget")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.maxEntries = 2
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c") // evicts "a"

	if len(rl.limiters) != 2 {
		t.Errorf("tracked identifiers = %d, want 2", len(rl.limiters))
	}
	if _, ok := rl.limiters["a"]; ok {
		t.Error("oldest identifier should have been evicted")
	}
}

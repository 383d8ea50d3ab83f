package authcore

import (
	"testing"
	"time"
)

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := &Config{
		ClientID:    "client-1",
		RedirectURL: "https://app.example.com/auth/callback",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SessionValidity != DefaultSessionValidity {
		t.Errorf("SessionValidity = %v, want %v", cfg.SessionValidity, DefaultSessionValidity)
	}
	if cfg.Logger == nil {
		t.Error("expected default logger")
	}
	if cfg.HTTPClient == nil || cfg.HTTPClient.Timeout != DefaultExchangeTimeout {
		t.Errorf("expected default HTTP client with %v timeout", DefaultExchangeTimeout)
	}
}

func TestConfigValidate_Required(t *testing.T) {
	if err := (&Config{RedirectURL: "https://x"}).Validate(); err == nil {
		t.Error("expected error for missing ClientID")
	}
	if err := (&Config{ClientID: "c"}).Validate(); err == nil {
		t.Error("expected error for missing RedirectURL")
	}
}

func TestConfigValidate_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		ClientID:        "client-1",
		RedirectURL:     "https://app.example.com/auth/callback",
		SessionValidity: 2 * time.Minute,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SessionValidity != 2*time.Minute {
		t.Errorf("explicit SessionValidity overridden to %v", cfg.SessionValidity)
	}
}

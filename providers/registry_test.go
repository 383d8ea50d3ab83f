package providers

import (
	"strings"
	"testing"
)

func TestDefaultRegistry_Builtins(t *testing.T) {
	r := DefaultRegistry()

	for _, id := range []string{Google, Microsoft, GitHub, Apple} {
		cfg, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get(%q) error: %v", id, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("builtin %q fails validation: %v", id, err)
		}
	}

	ids := r.IDs()
	if len(ids) != 4 {
		t.Errorf("IDs() returned %d providers, want 4", len(ids))
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.Get("gitlab"); err == nil {
		t.Error("Get() should fail for an unregistered provider")
	}
}

func TestRegistry_RegisterCustomProvider(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Config{
		ID:               "dex",
		AuthorizationURL: "https://dex.internal.example.com/auth",
		TokenURL:         "https://dex.internal.example.com/token",
		Issuer:           "https://dex.internal.example.com",
		Scopes:           []string{"openid", "email"},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	cfg, err := r.Get("dex")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cfg.Issuer != "https://dex.internal.example.com" {
		t.Errorf("Issuer = %q", cfg.Issuer)
	}
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	cases := []*Config{
		{ID: "", AuthorizationURL: "https://a", TokenURL: "https://t"},
		{ID: "x", AuthorizationURL: "", TokenURL: "https://t"},
		{ID: "x", AuthorizationURL: "https://a", TokenURL: ""},
		{ID: "x", AuthorizationURL: "http://a", TokenURL: "https://t"},
		{ID: "x", AuthorizationURL: "https://a", TokenURL: "http://t"},
	}
	for i, cfg := range cases {
		if err := r.Register(cfg); err == nil {
			t.Errorf("case %d: Register() should have failed", i)
		}
	}

	// Loopback http is the development carve-out.
	err := r.Register(&Config{
		ID:               "local",
		AuthorizationURL: "https://a",
		TokenURL:         "http://127.0.0.1:8099/token",
	})
	if err != nil {
		t.Errorf("loopback token URL should be accepted: %v", err)
	}
}

func TestMicrosoftIssuer_IsTenantTemplated(t *testing.T) {
	cfg, err := DefaultRegistry().Get(Microsoft)
	if err != nil {
		t.Fatalf("Get(microsoft) error: %v", err)
	}
	if !strings.Contains(cfg.Issuer, TenantPlaceholder) {
		t.Errorf("Microsoft issuer %q should contain %q", cfg.Issuer, TenantPlaceholder)
	}
}

func TestRegistry_RegisterCopies(t *testing.T) {
	r := NewRegistry()
	cfg := &Config{
		ID:               "dex",
		AuthorizationURL: "https://dex.example.com/auth",
		TokenURL:         "https://dex.example.com/token",
	}
	if err := r.Register(cfg); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	cfg.TokenURL = "https://evil.example.com/token"

	got, err := r.Get("dex")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.TokenURL != "https://dex.example.com/token" {
		t.Error("registry should hold a copy, not the caller's pointer")
	}
}

// Package flow implements the authorization-code + PKCE flow: initiating a
// flow mints the verifier/state/nonce triple and builds the provider
// authorization URL; handling the callback validates state, redeems the
// code, and validates ID-token claims. Every terminal outcome, success or
// failure, consumes the stored session.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tradepost/authcore"
	"github.com/tradepost/authcore/audit"
	"github.com/tradepost/authcore/providers"
	"github.com/tradepost/authcore/security"
	"github.com/tradepost/authcore/storage"
)

// Engine drives PKCE authorization flows against a provider registry. It
// is explicitly constructed and carries no global state; the only mutable
// state is the per-session record in the SessionStore.
type Engine struct {
	cfg      *authcore.Config
	registry *providers.Registry
	store    storage.SessionStore
	auditor  *audit.Logger
	logger   *slog.Logger

	// now is swapped in tests to exercise session expiry.
	now func() time.Time
}

// NewEngine validates the configuration and constructs an Engine. The
// auditor may be nil to disable audit emission.
func NewEngine(cfg *authcore.Config, registry *providers.Registry, store storage.SessionStore, auditor *audit.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		store:    store,
		auditor:  auditor,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// InitiateFlow mints the PKCE artifacts, persists the session under
// sessionKey (overwriting any in-flight session for that key), and returns
// the provider authorization URL. No network call is made. extraParams are
// appended to the URL after the provider's own defaults, so callers can
// override per-request (e.g. login_hint).
func (e *Engine) InitiateFlow(ctx context.Context, sessionKey, providerID string, extraParams map[string]string) (string, error) {
	p, err := e.registry.Get(providerID)
	if err != nil {
		return "", authcore.ErrInvalidProvider(fmt.Sprintf("unknown provider %q", providerID))
	}

	verifier, err := security.GenerateVerifier()
	if err != nil {
		return "", authcore.ErrServerError("generating code verifier: " + err.Error())
	}
	state, err := security.GenerateState()
	if err != nil {
		return "", authcore.ErrServerError("generating state: " + err.Error())
	}
	nonce, err := security.GenerateNonce()
	if err != nil {
		return "", authcore.ErrServerError("generating nonce: " + err.Error())
	}

	sess := &storage.Session{
		CodeVerifier: verifier,
		State:        state,
		Nonce:        nonce,
		Provider:     p.ID,
		RedirectURI:  e.cfg.RedirectURL,
		CreatedAt:    e.now(),
	}
	if err := e.store.Set(ctx, sessionKey, sess, e.cfg.SessionValidity); err != nil {
		return "", authcore.ErrServerError("persisting flow session: " + err.Error())
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", security.CodeChallengeS256(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", security.ChallengeMethodS256),
		oauth2.SetAuthURLParam("nonce", nonce),
	}
	for k, v := range p.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	for k, v := range extraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	authURL := e.oauthConfig(p).AuthCodeURL(state, opts...)

	e.record(ctx, audit.Event{
		Type:     audit.EventFlowStarted,
		Severity: audit.SeverityLow,
		Details:  map[string]any{"provider": p.ID},
	})
	e.logger.Debug("authorization flow initiated", "provider", p.ID)

	return authURL, nil
}

// ParseCallback extracts the callback wire contract from a raw callback
// URL. Only code, state, error and error_description are read; no other
// parameter is assumed present.
func ParseCallback(rawURL string) (authcore.CallbackParams, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return authcore.CallbackParams{}, fmt.Errorf("parsing callback URL: %w", err)
	}
	q := u.Query()
	return authcore.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}, nil
}

// HandleCallbackURL parses rawURL and runs HandleCallback.
func (e *Engine) HandleCallbackURL(ctx context.Context, sessionKey, providerID, rawURL string) (*authcore.FlowResult, error) {
	params, err := ParseCallback(rawURL)
	if err != nil {
		return nil, authcore.ErrInvalidSession(err.Error())
	}
	return e.HandleCallback(ctx, sessionKey, providerID, params)
}

// HandleCallback runs the callback state machine to a terminal outcome.
// The stored session is consumed on every path out of this function once
// it has been loaded; a state mismatch is treated as a potential CSRF
// attempt and audited at high severity.
func (e *Engine) HandleCallback(ctx context.Context, sessionKey, providerID string, params authcore.CallbackParams) (*authcore.FlowResult, error) {
	if params.Error != "" {
		e.clearSession(ctx, sessionKey)
		desc := params.ErrorDescription
		if desc == "" {
			desc = "provider reported " + params.Error
		}
		return nil, authcore.NewFlowError(params.Error, desc, authcore.ErrAccessDenied("").Status)
	}

	if params.Code == "" {
		e.clearSession(ctx, sessionKey)
		return nil, authcore.ErrMissingCode("callback carried no authorization code")
	}

	sess, err := e.store.Get(ctx, sessionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrSessionNotFound) {
			e.logger.Warn("loading flow session failed", "error", err)
		}
		e.clearSession(ctx, sessionKey)
		e.record(ctx, audit.Event{
			Type:     audit.EventInvalidSession,
			Severity: audit.SeverityMedium,
			Details:  map[string]any{"provider": providerID, "reason": "session absent"},
		})
		return nil, authcore.ErrInvalidSession("no authorization flow in progress")
	}

	if security.IsExpired(sess.CreatedAt, e.sessionValidity()) {
		e.clearSession(ctx, sessionKey)
		e.record(ctx, audit.Event{
			Type:     audit.EventInvalidSession,
			Severity: audit.SeverityMedium,
			Details:  map[string]any{"provider": providerID, "reason": "session expired"},
		})
		return nil, authcore.ErrInvalidSession("authorization flow expired")
	}

	if !security.ConstantTimeEquals(params.State, sess.State) {
		e.clearSession(ctx, sessionKey)
		e.record(ctx, audit.Event{
			Type:     audit.EventInvalidState,
			Severity: audit.SeverityHigh,
			Details:  map[string]any{"provider": providerID},
		})
		return nil, authcore.ErrInvalidState("state parameter does not match")
	}

	if sess.Provider != providerID {
		e.clearSession(ctx, sessionKey)
		e.record(ctx, audit.Event{
			Type:     audit.EventProviderMismatch,
			Severity: audit.SeverityHigh,
			Details:  map[string]any{"expected": providerID, "stored": sess.Provider},
		})
		return nil, authcore.ErrInvalidProvider("session was initiated for a different provider")
	}

	p, err := e.registry.Get(providerID)
	if err != nil {
		e.clearSession(ctx, sessionKey)
		return nil, authcore.ErrInvalidProvider(fmt.Sprintf("unknown provider %q", providerID))
	}

	token, err := e.exchange(ctx, p, params.Code, sess.CodeVerifier)
	if err != nil {
		e.clearSession(ctx, sessionKey)
		e.record(ctx, audit.Event{
			Type:     audit.EventTokenExchangeFailed,
			Severity: audit.SeverityMedium,
			Details:  map[string]any{"provider": p.ID, "error": err.Error()},
		})
		return nil, err
	}

	result := &authcore.FlowResult{Provider: p.ID, Token: token}

	if token.IDToken != "" && p.Issuer != "" {
		claims, err := ValidateIDToken(token.IDToken, p.Issuer, e.cfg.ClientID, e.cfg.TenantID, sess.Nonce)
		if err != nil {
			e.clearSession(ctx, sessionKey)
			eventType := audit.EventTokenExchangeFailed
			severity := audit.SeverityMedium
			if errors.Is(err, errNonceMismatch) {
				eventType = audit.EventInvalidNonce
				severity = audit.SeverityHigh
			}
			e.record(ctx, audit.Event{
				Type:     eventType,
				Severity: severity,
				Details:  map[string]any{"provider": p.ID, "error": err.Error()},
			})
			return nil, authcore.ErrInvalidIDToken(err.Error())
		}
		result.Claims = claims
	}

	e.clearSession(ctx, sessionKey)
	e.logger.Debug("authorization flow completed", "provider", p.ID)
	return result, nil
}

// exchange redeems the authorization code with the verifier over the
// back-channel. Provider rejections surface the provider's own error code
// when it sent one, defaulting to token_exchange_failed.
func (e *Engine) exchange(ctx context.Context, p *providers.Config, code, verifier string) (*authcore.TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.cfg.HTTPClient)

	tok, err := e.oauthConfig(p).Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			return nil, authcore.NewFlowError(re.ErrorCode, re.ErrorDescription,
				authcore.ErrTokenExchangeFailed("").Status)
		}
		return nil, authcore.ErrTokenExchangeFailed(err.Error())
	}

	resp := &authcore.TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp, nil
}

// oauthConfig builds the x/oauth2 config for a provider, resolving any
// tenant-templated endpoint URLs against the configured tenant.
func (e *Engine) oauthConfig(p *providers.Config) *oauth2.Config {
	ep := p.Endpoint()
	ep.AuthURL = e.resolveTenant(ep.AuthURL)
	ep.TokenURL = e.resolveTenant(ep.TokenURL)
	return &oauth2.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret,
		RedirectURL:  e.cfg.RedirectURL,
		Endpoint:     ep,
		Scopes:       p.Scopes,
	}
}

func (e *Engine) resolveTenant(u string) string {
	if !strings.Contains(u, providers.TenantPlaceholder) {
		return u
	}
	tenant := e.cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	return strings.ReplaceAll(u, providers.TenantPlaceholder, tenant)
}

func (e *Engine) sessionValidity() time.Duration {
	return e.cfg.SessionValidity
}

// clearSession is best-effort; a failed clear is logged, never surfaced,
// since the caller already has a terminal outcome to report.
func (e *Engine) clearSession(ctx context.Context, sessionKey string) {
	if err := e.store.Clear(ctx, sessionKey); err != nil {
		e.logger.Warn("clearing flow session failed", "error", err)
	}
}

func (e *Engine) record(ctx context.Context, event audit.Event) {
	if e.auditor == nil {
		return
	}
	e.auditor.Record(ctx, event)
}

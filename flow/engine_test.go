package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tradepost/authcore"
	"github.com/tradepost/authcore/providers"
	"github.com/tradepost/authcore/security"
	"github.com/tradepost/authcore/storage"
	"github.com/tradepost/authcore/storage/memory"
)

const (
	testClientID    = "client-abc"
	testRedirectURL = "https://app.example.com/auth/callback"
	testSessionKey  = "session-1"
)

func testRegistry(t *testing.T, tokenURL, issuer string) *providers.Registry {
	t.Helper()
	reg := providers.NewRegistry()
	err := reg.Register(&providers.Config{
		ID:               "acme",
		AuthorizationURL: "https://id.acme.example/authorize",
		TokenURL:         tokenURL,
		Issuer:           issuer,
		Scopes:           []string{"openid", "email"},
		ExtraAuthParams:  map[string]string{"access_type": "offline"},
	})
	if err != nil {
		t.Fatalf("registering provider: %v", err)
	}
	return reg
}

func newTestEngine(t *testing.T, store storage.SessionStore, reg *providers.Registry) *Engine {
	t.Helper()
	eng, err := NewEngine(&authcore.Config{
		ClientID:    testClientID,
		RedirectURL: testRedirectURL,
	}, reg, store, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func flowErr(t *testing.T, err error) *authcore.FlowError {
	t.Helper()
	var fe *authcore.FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *authcore.FlowError, got %T: %v", err, err)
	}
	return fe
}

func TestInitiateFlow(t *testing.T) {
	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, "https://id.acme.example/token", ""))

	authURL, err := eng.InitiateFlow(context.Background(), testSessionKey, "acme", nil)
	if err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parsing authorization URL: %v", err)
	}
	q := u.Query()

	sess, err := store.Get(context.Background(), testSessionKey)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}

	if got := q.Get("client_id"); got != testClientID {
		t.Errorf("client_id = %q", got)
	}
	if got := q.Get("redirect_uri"); got != testRedirectURL {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := q.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q", got)
	}
	if got := q.Get("code_challenge_method"); got != security.ChallengeMethodS256 {
		t.Errorf("code_challenge_method = %q", got)
	}
	if got, want := q.Get("code_challenge"), security.CodeChallengeS256(sess.CodeVerifier); got != want {
		t.Errorf("code_challenge = %q, want digest of stored verifier %q", got, want)
	}
	if got := q.Get("state"); got != sess.State {
		t.Errorf("state = %q, stored %q", got, sess.State)
	}
	if got := q.Get("nonce"); got != sess.Nonce {
		t.Errorf("nonce = %q, stored %q", got, sess.Nonce)
	}
	if got := q.Get("access_type"); got != "offline" {
		t.Errorf("provider extra param missing, access_type = %q", got)
	}
	if !strings.Contains(q.Get("scope"), "openid") {
		t.Errorf("scope = %q, want openid included", q.Get("scope"))
	}
}

func TestInitiateFlow_OverwritesInFlightSession(t *testing.T) {
	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, "https://id.acme.example/token", ""))
	ctx := context.Background()

	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("first InitiateFlow: %v", err)
	}
	first, _ := store.Get(ctx, testSessionKey)

	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("second InitiateFlow: %v", err)
	}
	second, _ := store.Get(ctx, testSessionKey)

	if first.State == second.State {
		t.Error("second initiation must mint a fresh state")
	}
	if first.CodeVerifier == second.CodeVerifier {
		t.Error("second initiation must mint a fresh verifier")
	}
}

func TestInitiateFlow_UnknownProvider(t *testing.T) {
	eng := newTestEngine(t, memory.New(), testRegistry(t, "https://id.acme.example/token", ""))

	_, err := eng.InitiateFlow(context.Background(), testSessionKey, "nope", nil)
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeInvalidProvider {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeInvalidProvider)
	}
}

func TestHandleCallback_ProviderErrorSkipsExchange(t *testing.T) {
	exchanged := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanged = true
	}))
	defer ts.Close()

	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, ts.URL, ""))
	ctx := context.Background()
	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}

	_, err := eng.HandleCallback(ctx, testSessionKey, "acme", authcore.CallbackParams{
		Error:            "access_denied",
		ErrorDescription: "user declined",
	})
	if fe := flowErr(t, err); fe.Code != "access_denied" {
		t.Errorf("code = %q, want provider's access_denied", fe.Code)
	}
	if exchanged {
		t.Error("provider error must not trigger a token exchange")
	}
	if _, err := store.Get(ctx, testSessionKey); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("session must be consumed on provider error")
	}
}

func TestHandleCallback_MissingCode(t *testing.T) {
	eng := newTestEngine(t, memory.New(), testRegistry(t, "https://id.acme.example/token", ""))

	_, err := eng.HandleCallback(context.Background(), testSessionKey, "acme", authcore.CallbackParams{State: "x"})
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeMissingCode {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeMissingCode)
	}
}

func TestHandleCallback_NoSession(t *testing.T) {
	eng := newTestEngine(t, memory.New(), testRegistry(t, "https://id.acme.example/token", ""))

	_, err := eng.HandleCallback(context.Background(), testSessionKey, "acme", authcore.CallbackParams{
		Code:  "code-1",
		State: "state-1",
	})
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeInvalidSession {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeInvalidSession)
	}
}

func TestHandleCallback_ExpiredSession(t *testing.T) {
	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, "https://id.acme.example/token", ""))
	ctx := context.Background()

	eng.now = func() time.Time { return time.Now().Add(-11 * time.Minute) }
	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}
	// The entry still exists in storage; expiry must be enforced anyway.
	sess, err := store.Get(ctx, testSessionKey)
	if err != nil {
		t.Fatalf("expected stale entry to still exist: %v", err)
	}
	eng.now = time.Now

	_, err = eng.HandleCallback(ctx, testSessionKey, "acme", authcore.CallbackParams{
		Code:  "code-1",
		State: sess.State,
	})
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeInvalidSession {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeInvalidSession)
	}
	if _, err := store.Get(ctx, testSessionKey); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("expired session must be cleared")
	}
}

func TestHandleCallback_StateMismatchClearsSession(t *testing.T) {
	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, "https://id.acme.example/token", ""))
	ctx := context.Background()

	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}

	_, err := eng.HandleCallback(ctx, testSessionKey, "acme", authcore.CallbackParams{
		Code:  "code-1",
		State: "attacker-chosen-state",
	})
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeInvalidState {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeInvalidState)
	}
	if _, err := store.Get(ctx, testSessionKey); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("state mismatch must leave no session residue")
	}
}

func TestHandleCallback_ProviderMismatch(t *testing.T) {
	store := memory.New()
	reg := testRegistry(t, "https://id.acme.example/token", "")
	if err := reg.Register(&providers.Config{
		ID:               "other",
		AuthorizationURL: "https://id.other.example/authorize",
		TokenURL:         "https://id.other.example/token",
	}); err != nil {
		t.Fatalf("registering provider: %v", err)
	}
	eng := newTestEngine(t, store, reg)
	ctx := context.Background()

	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}
	sess, _ := store.Get(ctx, testSessionKey)

	_, err := eng.HandleCallback(ctx, testSessionKey, "other", authcore.CallbackParams{
		Code:  "code-1",
		State: sess.State,
	})
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeInvalidProvider {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeInvalidProvider)
	}
}

func signTestIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test id token: %v", err)
	}
	return raw
}

func TestHandleCallback_Success(t *testing.T) {
	issuer := "https://id.acme.example"
	store := memory.New()
	ctx := context.Background()

	var sess *storage.Session
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing exchange form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("code"); got != "code-1" {
			t.Errorf("code = %q", got)
		}
		if got := r.Form.Get("code_verifier"); got != sess.CodeVerifier {
			t.Errorf("code_verifier = %q, want stored verifier", got)
		}
		if got := r.Form.Get("redirect_uri"); got != testRedirectURL {
			t.Errorf("redirect_uri = %q", got)
		}

		idToken := signTestIDToken(t, jwt.MapClaims{
			"iss":   issuer,
			"sub":   "user-1",
			"aud":   testClientID,
			"nonce": sess.Nonce,
			"exp":   time.Now().Add(time.Hour).Unix(),
			"email": "user@example.com",
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600,"id_token":"` + idToken + `"}`))
	}))
	defer ts.Close()

	eng := newTestEngine(t, store, testRegistry(t, ts.URL, issuer))
	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}
	sess, _ = store.Get(ctx, testSessionKey)

	result, err := eng.HandleCallback(ctx, testSessionKey, "acme", authcore.CallbackParams{
		Code:  "code-1",
		State: sess.State,
	})
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if result.Token.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q", result.Token.AccessToken)
	}
	if result.Token.RefreshToken != "rt-1" {
		t.Errorf("RefreshToken = %q", result.Token.RefreshToken)
	}
	if result.Claims == nil {
		t.Fatal("expected validated claims")
	}
	if result.Claims.Subject != "user-1" || result.Claims.Email != "user@example.com" {
		t.Errorf("claims = %+v", result.Claims)
	}
	if _, err := store.Get(ctx, testSessionKey); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("session must be consumed on success")
	}
}

func TestHandleCallback_ExchangeRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code already redeemed"}`))
	}))
	defer ts.Close()

	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, ts.URL, ""))
	ctx := context.Background()
	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}
	sess, _ := store.Get(ctx, testSessionKey)

	_, err := eng.HandleCallback(ctx, testSessionKey, "acme", authcore.CallbackParams{
		Code:  "code-1",
		State: sess.State,
	})
	fe := flowErr(t, err)
	if fe.Code != "invalid_grant" {
		t.Errorf("code = %q, want provider's invalid_grant", fe.Code)
	}
	if fe.Description != "code already redeemed" {
		t.Errorf("description = %q", fe.Description)
	}
	if _, err := store.Get(ctx, testSessionKey); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("session must be consumed on exchange failure")
	}
}

func TestHandleCallback_NonceMismatch(t *testing.T) {
	issuer := "https://id.acme.example"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idToken := signTestIDToken(t, jwt.MapClaims{
			"iss":   issuer,
			"sub":   "user-1",
			"aud":   testClientID,
			"nonce": "replayed-nonce",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","id_token":"` + idToken + `"}`))
	}))
	defer ts.Close()

	store := memory.New()
	eng := newTestEngine(t, store, testRegistry(t, ts.URL, issuer))
	ctx := context.Background()
	if _, err := eng.InitiateFlow(ctx, testSessionKey, "acme", nil); err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}
	sess, _ := store.Get(ctx, testSessionKey)

	_, err := eng.HandleCallback(ctx, testSessionKey, "acme", authcore.CallbackParams{
		Code:  "code-1",
		State: sess.State,
	})
	if fe := flowErr(t, err); fe.Code != authcore.ErrorCodeInvalidIDToken {
		t.Errorf("code = %q, want %q", fe.Code, authcore.ErrorCodeInvalidIDToken)
	}
}

func TestParseCallback(t *testing.T) {
	params, err := ParseCallback("https://app.example.com/auth/callback?code=c1&state=s1&extra=ignored")
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if params.Code != "c1" || params.State != "s1" {
		t.Errorf("params = %+v", params)
	}
	if params.Error != "" {
		t.Errorf("unexpected error param %q", params.Error)
	}
}

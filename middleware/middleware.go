// Package middleware adapts the access control pipeline and callback rate
// limiting to chi HTTP routes.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tradepost/authcore/audit"
	"github.com/tradepost/authcore/authz"
	"github.com/tradepost/authcore/ownership"
	"github.com/tradepost/authcore/pipeline"
	"github.com/tradepost/authcore/security"
)

type contextKey int

const (
	principalKey contextKey = iota
	decisionKey
)

// WithPrincipal returns a context carrying the authenticated principal.
// Authentication middleware (session or token resolution) calls this; the
// access middleware reads it back.
func WithPrincipal(ctx context.Context, p *authz.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the principal from the context, nil when
// unauthenticated.
func PrincipalFrom(ctx context.Context) *authz.Principal {
	p, _ := ctx.Value(principalKey).(*authz.Principal)
	return p
}

// DecisionFrom extracts the access decision recorded by RequireAccess, so
// handlers can read the resolved ownership level without re-checking.
func DecisionFrom(ctx context.Context) *pipeline.Decision {
	d, _ := ctx.Value(decisionKey).(*pipeline.Decision)
	return d
}

// ResourcePolicy scopes a route to a resource instance whose ID comes
// from a chi URL parameter.
type ResourcePolicy struct {
	Type      ownership.ResourceType
	IDParam   string
	MinAccess ownership.AccessLevel
}

// Policy is the declarative access demands of one route.
type Policy struct {
	RequireAuth bool
	Requirement authz.Requirement
	Resource    *ResourcePolicy
}

// RequireAccess gates a route behind the pipeline. Unauthenticated
// callers are redirected to login with the original destination
// preserved; other denials answer 403 for JSON clients and redirect
// browsers to a safe default without revealing which check failed.
func RequireAccess(guard *pipeline.Guard, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := pipeline.Request{
				Principal:   PrincipalFrom(r.Context()),
				Route:       r.URL.RequestURI(),
				RequireAuth: policy.RequireAuth,
				Requirement: policy.Requirement,
			}
			if policy.Resource != nil {
				req.Resource = &pipeline.ResourceCheck{
					Type:      policy.Resource.Type,
					ID:        chi.URLParam(r, policy.Resource.IDParam),
					MinAccess: policy.Resource.MinAccess,
				}
			}

			dec := guard.Authorize(r.Context(), req)
			if !dec.Allowed {
				deny(w, r, dec)
				return
			}

			ctx := context.WithValue(r.Context(), decisionKey, &dec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, dec pipeline.Decision) {
	if dec.Layer == audit.LayerAuthentication {
		http.Redirect(w, r, dec.RedirectTo, http.StatusSeeOther)
		return
	}
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "access_denied"})
		return
	}
	http.Redirect(w, r, dec.RedirectTo, http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// RateLimit throttles a route per client IP. Exceeding the limit answers
// 429 and emits an audit event; the limiter itself carries the LRU
// eviction and cleanup behavior.
func RateLimit(limiter *security.RateLimiter, trustProxy bool, auditor *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := security.ClientIP(r, trustProxy)
			if !limiter.Allow(ip) {
				if auditor != nil {
					auditor.Record(r.Context(), audit.Event{
						Type:     audit.EventRateLimitExceeded,
						Severity: audit.SeverityMedium,
						Route:    r.URL.Path,
						Details:  map[string]any{"ip": ip},
					})
				}
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

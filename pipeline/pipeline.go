// Package pipeline composes the four access control layers into a single
// deny-by-default decision: authentication, role/permission authorization,
// resource ownership, and the external row-level security layer it can
// only observe through store errors. Layers run strictly in order; a later
// layer never compensates for an earlier denial, and ownership can only
// restrict further what authorization already allows.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tradepost/authcore/audit"
	"github.com/tradepost/authcore/authz"
	"github.com/tradepost/authcore/ownership"
)

// Denial reasons emitted by the guard itself; layer-2 reasons come from
// package authz.
const (
	ReasonAuthRequired    = "auth_required"
	ReasonOwnershipDenied = "ownership_denied"
)

// Default redirect targets for denied requests.
const (
	DefaultLoginPath  = "/login"
	DefaultDeniedPath = "/"
)

// ResourceCheck scopes a request to one resource instance for the
// ownership layer.
type ResourceCheck struct {
	Type ownership.ResourceType
	ID   string

	// MinAccess is the access level the operation needs. Zero value means
	// any level above none suffices.
	MinAccess ownership.AccessLevel
}

// Request is one access decision's input.
type Request struct {
	// Principal is the authenticated identity, nil when unauthenticated.
	Principal *authz.Principal

	// Route is the requested path, used for audit and the post-login
	// redirect.
	Route string

	// RequireAuth demands a principal (layer 1).
	RequireAuth bool

	// Requirement holds the layer-2 demands. Zero value imposes nothing.
	Requirement authz.Requirement

	// Resource scopes the request to a resource instance (layer 3).
	// Nil skips the ownership layer.
	Resource *ResourceCheck
}

// Decision is the terminal outcome of a pipeline evaluation.
type Decision struct {
	Allowed bool

	// Layer identifies which layer denied, zero when allowed.
	Layer audit.Layer

	// Reason is the machine-readable denial reason.
	Reason string

	// RedirectTo is where to send the denied caller: the login page with
	// the original destination preserved for layer 1, a safe default
	// otherwise. Empty when allowed.
	RedirectTo string

	// Ownership carries the layer-3 result when that layer ran.
	Ownership *ownership.Result
}

// Guard evaluates requests through the four layers and audits every
// denial plus selected allows.
type Guard struct {
	verifier *ownership.Verifier
	auditor  *audit.Logger
	logger   *slog.Logger

	loginPath  string
	deniedPath string

	// decisionHook observes every terminal decision, for metrics.
	decisionHook func(ctx context.Context, layer int, allowed bool)
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLoginPath overrides where unauthenticated callers are redirected.
func WithLoginPath(path string) GuardOption {
	return func(g *Guard) { g.loginPath = path }
}

// WithDeniedPath overrides where denied authenticated callers are
// redirected.
func WithDeniedPath(path string) GuardOption {
	return func(g *Guard) { g.deniedPath = path }
}

// WithDecisionHook registers a callback observing every terminal decision
// (denials carry the denying layer, allows carry layer 0).
func WithDecisionHook(hook func(ctx context.Context, layer int, allowed bool)) GuardOption {
	return func(g *Guard) { g.decisionHook = hook }
}

// NewGuard constructs a Guard. The verifier may be nil when no route uses
// resource checks; the auditor may be nil to disable audit emission.
func NewGuard(verifier *ownership.Verifier, auditor *audit.Logger, logger *slog.Logger, opts ...GuardOption) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{
		verifier:   verifier,
		auditor:    auditor,
		logger:     logger,
		loginPath:  DefaultLoginPath,
		deniedPath: DefaultDeniedPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize runs the layers in order and returns the terminal decision.
// The decision is not available until the ownership lookup (if any)
// resolves; callers block on it rather than proceeding optimistically.
func (g *Guard) Authorize(ctx context.Context, req Request) Decision {
	dec := g.authorize(ctx, req)
	if g.decisionHook != nil {
		g.decisionHook(ctx, int(dec.Layer), dec.Allowed)
	}
	return dec
}

func (g *Guard) authorize(ctx context.Context, req Request) Decision {
	// Layer 1: authentication.
	if req.RequireAuth && req.Principal == nil {
		g.record(ctx, audit.Event{
			Type:     audit.EventAuthRequired,
			Severity: audit.SeverityLow,
			Layer:    audit.LayerAuthentication,
			Route:    req.Route,
		})
		return Decision{
			Layer:      audit.LayerAuthentication,
			Reason:     ReasonAuthRequired,
			RedirectTo: g.loginRedirect(req.Route),
		}
	}

	// Layer 2: role and permission authorization.
	if denial := authz.Evaluate(req.Principal, req.Requirement); denial != nil {
		event := audit.Event{
			Type:       audit.EventPermissionDenied,
			Severity:   audit.SeverityMedium,
			Layer:      audit.LayerAuthorization,
			UserID:     principalID(req.Principal),
			Permission: string(denial.Permission),
			Route:      req.Route,
			Details:    map[string]any{"detail": denial.Detail},
		}
		if denial.Reason == authz.ReasonRoleInsufficient {
			event.Type = audit.EventRoleInsufficient
			event.Details["required_level"] = int(denial.RequiredLevel)
		}
		// A non-admin demanding an admin-only operation is the
		// highest-value attack signal; flush it synchronously.
		if req.Requirement.AdminOnly || denial.RequiredLevel >= authz.RoleAdmin {
			event.Type = audit.EventPrivilegeEscalation
			event.Severity = audit.SeverityCritical
		}
		g.record(ctx, event)
		return Decision{
			Layer:      audit.LayerAuthorization,
			Reason:     denial.Reason,
			RedirectTo: g.deniedPath,
		}
	}

	// Layer 3: resource ownership. Admins bypass this layer entirely; the
	// carve-out is intentional and happens before any store lookup.
	if req.Resource != nil && !req.Principal.IsAdmin() {
		if g.verifier == nil {
			// A resource-scoped route with no verifier wired is a
			// configuration bug; fail closed.
			g.logger.Error("resource check requested but no ownership verifier configured",
				"route", req.Route, "resource_type", req.Resource.Type.String())
			return Decision{
				Layer:      audit.LayerOwnership,
				Reason:     ReasonOwnershipDenied,
				RedirectTo: g.deniedPath,
			}
		}
		result, err := g.verifier.Verify(ctx, req.Resource.Type, req.Resource.ID, principalID(req.Principal))
		if err != nil && errors.Is(err, ownership.ErrRowDenied) {
			g.recordRowDenied(ctx, req)
			return Decision{
				Layer:      audit.LayerRowSecurity,
				Reason:     ReasonOwnershipDenied,
				RedirectTo: g.deniedPath,
				Ownership:  &result,
			}
		}

		minAccess := req.Resource.MinAccess
		if minAccess == "" || minAccess == ownership.AccessNone {
			minAccess = ownership.AccessRead
		}
		if !result.AccessLevel.AtLeast(minAccess) {
			g.record(ctx, audit.Event{
				Type:         audit.EventOwnershipDenied,
				Severity:     audit.SeverityMedium,
				Layer:        audit.LayerOwnership,
				UserID:       principalID(req.Principal),
				ResourceType: req.Resource.Type.String(),
				ResourceID:   req.Resource.ID,
				Route:        req.Route,
				Details:      map[string]any{"reason": result.Reason, "access_level": string(result.AccessLevel)},
			})
			return Decision{
				Layer:      audit.LayerOwnership,
				Reason:     ReasonOwnershipDenied,
				RedirectTo: g.deniedPath,
				Ownership:  &result,
			}
		}

		g.record(ctx, audit.Event{
			Type:         audit.EventAccessGranted,
			Severity:     audit.SeverityLow,
			Layer:        audit.LayerOwnership,
			UserID:       principalID(req.Principal),
			ResourceType: req.Resource.Type.String(),
			ResourceID:   req.Resource.ID,
			Route:        req.Route,
			Details:      map[string]any{"access_level": string(result.AccessLevel)},
		})
		return Decision{Allowed: true, Ownership: &result}
	}

	return Decision{Allowed: true}
}

// InterceptStoreError gives layer 4 its audit coverage: data operations
// route store errors through here, and authorization-shaped errors from
// the external row-level security layer are logged before being returned
// unchanged. Enforcement of layer 4 lives in the store, not here.
func (g *Guard) InterceptStoreError(ctx context.Context, principal *authz.Principal, route string, resourceType ownership.ResourceType, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ownership.ErrRowDenied) {
		g.record(ctx, audit.Event{
			Type:         audit.EventRowSecurityDenied,
			Severity:     audit.SeverityHigh,
			Layer:        audit.LayerRowSecurity,
			UserID:       principalID(principal),
			ResourceType: resourceType.String(),
			Route:        route,
			Details:      map[string]any{"error": err.Error()},
		})
	}
	return err
}

func (g *Guard) recordRowDenied(ctx context.Context, req Request) {
	g.record(ctx, audit.Event{
		Type:         audit.EventRowSecurityDenied,
		Severity:     audit.SeverityHigh,
		Layer:        audit.LayerRowSecurity,
		UserID:       principalID(req.Principal),
		ResourceType: req.Resource.Type.String(),
		ResourceID:   req.Resource.ID,
		Route:        req.Route,
	})
}

// loginRedirect builds the login redirect, preserving the original
// destination as a sanitized query parameter.
func (g *Guard) loginRedirect(route string) string {
	next := SanitizeNext(route)
	if next == "" || next == g.loginPath {
		return g.loginPath
	}
	return g.loginPath + "?next=" + url.QueryEscape(next)
}

// SanitizeNext reduces a requested destination to a safe same-site
// relative path, guarding the post-login redirect against open-redirect
// injection. Anything that is not a plain absolute-path reference comes
// back empty.
func SanitizeNext(route string) string {
	if route == "" {
		return ""
	}
	u, err := url.Parse(route)
	if err != nil {
		return ""
	}
	// Reject anything carrying a scheme or host, and protocol-relative
	// paths ("//evil.example"), which browsers resolve off-site. Backslashes
	// count too: browsers normalize "\" to "/", so "/\evil.example" would
	// round-trip into a protocol-relative URL.
	if u.Scheme != "" || u.Host != "" || strings.HasPrefix(u.Path, "//") ||
		strings.Contains(u.Path, `\`) {
		return ""
	}
	if !strings.HasPrefix(u.Path, "/") {
		return ""
	}
	for _, r := range u.Path {
		if r < 0x20 || r == 0x7f {
			return ""
		}
	}
	next := u.Path
	if u.RawQuery != "" {
		next += "?" + u.RawQuery
	}
	return next
}

func principalID(p *authz.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func (g *Guard) record(ctx context.Context, event audit.Event) {
	if g.auditor == nil {
		return
	}
	g.auditor.Record(ctx, event)
}

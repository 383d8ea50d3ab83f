package ownership

import (
	"context"
	"errors"
	"log/slog"
)

// Result reasons for AccessNone outcomes.
const (
	ReasonNotFound     = "not found"
	ReasonLookupFailed = "lookup failed"
	ReasonNotAParty    = "not a party to resource"
)

// Verifier resolves a principal's access level for resource instances. It
// fails closed: any store error other than "not found" is a deny, never a
// retry, since transparent retry on an authorization path can mask an
// attacker probing the store.
type Verifier struct {
	store  Store
	logger *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(store Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{store: store, logger: logger}
}

// classify maps a fetched row onto an access level for the principal:
// full for the owner, write for a listed participant, none otherwise.
func classify(row *Row, principalID string) Result {
	if principalID != "" && row.OwnerID == principalID {
		return Result{IsOwner: true, AccessLevel: AccessFull}
	}
	for _, p := range row.Participants {
		if p != "" && p == principalID {
			return Result{IsParticipant: true, AccessLevel: AccessWrite}
		}
	}
	return Result{AccessLevel: AccessNone, Reason: ReasonNotAParty}
}

// Verify resolves the principal's access to one resource instance. An
// absent resource is a deny with ReasonNotFound, not an error, so callers
// leak no more existence information than layer 2 already allows.
func (v *Verifier) Verify(ctx context.Context, resourceType ResourceType, resourceID, principalID string) (Result, error) {
	desc, err := resourceType.Descriptor()
	if err != nil {
		// Unknown resource type is a configuration bug; deny and surface it.
		return Result{AccessLevel: AccessNone, Reason: ReasonLookupFailed}, err
	}

	row, err := v.store.FetchRow(ctx, desc, resourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{AccessLevel: AccessNone, Reason: ReasonNotFound}, nil
		}
		if errors.Is(err, ErrRowDenied) {
			return Result{AccessLevel: AccessNone, Reason: ReasonLookupFailed}, err
		}
		v.logger.Warn("ownership lookup failed",
			"resource_type", resourceType.String(),
			"resource_id", resourceID,
			"error", err)
		return Result{AccessLevel: AccessNone, Reason: ReasonLookupFailed}, nil
	}

	return classify(row, principalID), nil
}

// VerifyBulk resolves access for a set of resource IDs in one store round
// trip. Every requested ID appears in the result; IDs absent from the
// store default to not-found denials so callers cannot mistake
// "unchecked" for "denied".
func (v *Verifier) VerifyBulk(ctx context.Context, resourceType ResourceType, resourceIDs []string, principalID string) (map[string]Result, error) {
	out := make(map[string]Result, len(resourceIDs))
	for _, id := range resourceIDs {
		out[id] = Result{AccessLevel: AccessNone, Reason: ReasonNotFound}
	}
	if len(resourceIDs) == 0 {
		return out, nil
	}

	desc, err := resourceType.Descriptor()
	if err != nil {
		for id := range out {
			out[id] = Result{AccessLevel: AccessNone, Reason: ReasonLookupFailed}
		}
		return out, err
	}

	rows, err := v.store.FetchRows(ctx, desc, resourceIDs)
	if err != nil {
		v.logger.Warn("bulk ownership lookup failed",
			"resource_type", resourceType.String(),
			"count", len(resourceIDs),
			"error", err)
		for id := range out {
			out[id] = Result{AccessLevel: AccessNone, Reason: ReasonLookupFailed}
		}
		if errors.Is(err, ErrRowDenied) {
			return out, err
		}
		return out, nil
	}

	for id, row := range rows {
		out[id] = classify(row, principalID)
	}
	return out, nil
}

// ListAccessible returns the IDs of all resources of the given type the
// principal can access as owner or participant.
func (v *Verifier) ListAccessible(ctx context.Context, resourceType ResourceType, principalID string) ([]string, error) {
	desc, err := resourceType.Descriptor()
	if err != nil {
		return nil, err
	}
	return v.store.ListAccessible(ctx, desc, principalID)
}

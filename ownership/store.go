package ownership

import "context"

// Row carries the ownership-relevant columns of one backing row: the owner
// value and the participant column values in descriptor order. NULL
// participant columns come through as empty strings.
type Row struct {
	OwnerID      string
	Participants []string
}

// Store is the narrow view of the backing data store the verifier needs.
// Implementations must return ErrNotFound for an absent row (never a
// generic failure) and ErrRowDenied when the store's own row-level
// security refuses the read.
type Store interface {
	// FetchRow fetches the owner/participant columns of a single row.
	FetchRow(ctx context.Context, desc Descriptor, id string) (*Row, error)

	// FetchRows fetches owner/participant columns for a set of IDs in one
	// round trip. Absent IDs are simply missing from the result map.
	FetchRows(ctx context.Context, desc Descriptor, ids []string) (map[string]*Row, error)

	// ListAccessible returns the IDs of all rows where the principal is
	// the owner or a participant (OR-combined filter).
	ListAccessible(ctx context.Context, desc Descriptor, principalID string) ([]string, error)
}

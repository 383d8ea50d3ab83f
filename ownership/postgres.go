package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLSTATE 42501 is insufficient_privilege: Postgres row-level security
// refused the read under the session role.
const pgInsufficientPrivilege = "42501"

// PostgresStore reads ownership columns straight from the application's
// Postgres database. Queries are built from the resource descriptor, so
// identifiers come from the closed descriptor set and values always travel
// as placeholders.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pooled connection to Postgres via the pgx
// stdlib driver and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool. Used by tests and by
// callers that manage the pool themselves.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// columns returns the selected column list for a descriptor: owner first,
// then participants in descriptor order.
func columns(desc Descriptor) string {
	cols := make([]string, 0, 1+len(desc.ParticipantColumns))
	cols = append(cols, desc.OwnerColumn)
	cols = append(cols, desc.ParticipantColumns...)
	return strings.Join(cols, ", ")
}

// scanRow scans owner + participant columns into a Row, tolerating NULLs.
func scanRow(desc Descriptor, scan func(dest ...any) error) (*Row, error) {
	owner := sql.NullString{}
	participants := make([]sql.NullString, len(desc.ParticipantColumns))

	dest := make([]any, 0, 1+len(participants))
	dest = append(dest, &owner)
	for i := range participants {
		dest = append(dest, &participants[i])
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}

	row := &Row{OwnerID: owner.String, Participants: make([]string, len(participants))}
	for i, p := range participants {
		row.Participants[i] = p.String
	}
	return row, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege {
		return fmt.Errorf("%w: %s", ErrRowDenied, pgErr.Message)
	}
	return err
}

// FetchRow implements Store.
func (s *PostgresStore) FetchRow(ctx context.Context, desc Descriptor, id string) (*Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		columns(desc), desc.Table, desc.IDColumn)

	row, err := scanRow(desc, s.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(fmt.Errorf("fetching %s row: %w", desc.Table, err))
	}
	return row, nil
}

// FetchRows implements Store.
func (s *PostgresStore) FetchRows(ctx context.Context, desc Descriptor, ids []string) (map[string]*Row, error) {
	out := make(map[string]*Row, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
		desc.IDColumn, columns(desc), desc.Table, desc.IDColumn,
		strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("fetching %s rows: %w", desc.Table, err))
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		row, err := scanRow(desc, func(dest ...any) error {
			return rows.Scan(append([]any{&id}, dest...)...)
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", desc.Table, err)
		}
		out[id] = row
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(fmt.Errorf("iterating %s rows: %w", desc.Table, err))
	}
	return out, nil
}

// ListAccessible implements Store.
func (s *PostgresStore) ListAccessible(ctx context.Context, desc Descriptor, principalID string) ([]string, error) {
	conds := make([]string, 0, 1+len(desc.ParticipantColumns))
	conds = append(conds, fmt.Sprintf("%s = $1", desc.OwnerColumn))
	for _, col := range desc.ParticipantColumns {
		conds = append(conds, fmt.Sprintf("%s = $1", col))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		desc.IDColumn, desc.Table, strings.Join(conds, " OR "), desc.IDColumn)

	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("listing accessible %s rows: %w", desc.Table, err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s id: %w", desc.Table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(fmt.Errorf("iterating %s ids: %w", desc.Table, err))
	}
	return ids, nil
}

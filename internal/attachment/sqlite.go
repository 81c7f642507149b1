package attachment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// schema is executed on every open; IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS attachments (
    id         TEXT PRIMARY KEY,
    file_name  TEXT NOT NULL,
    size       INTEGER NOT NULL,
    content    BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements Store on a local SQLite database in WAL mode.
// Every database failure is reported as a transport error: the database is
// the backing service, and a failed write may or may not have landed.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL mode
// and a busy timeout, and creates the schema.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("attachment: open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection avoids SQLITE_BUSY
	// between connections that each need their own PRAGMA setup.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("attachment: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("attachment: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("attachment: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put upserts the attachment row.
func (s *SQLiteStore) Put(ctx context.Context, a Attachment, content []byte) error {
	const q = `
		INSERT INTO attachments (id, file_name, size, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			size      = excluded.size,
			content   = excluded.content`
	if content == nil {
		content = []byte{}
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, q, a.ID, a.FileName, len(content), content, created.Format(time.RFC3339Nano)); err != nil {
		return apierr.NewTransportError("attachment: put", fmt.Errorf("%s: %w", a.ID, err))
	}
	return nil
}

// Get reads the content of one attachment.
func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, "SELECT content FROM attachments WHERE id = ?", id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("attachment: %s", id)
	}
	if err != nil {
		return nil, apierr.NewTransportError("attachment: get", fmt.Errorf("%s: %w", id, err))
	}
	return content, nil
}

// Delete removes the given attachments in a single transaction.
func (s *SQLiteStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.NewTransportError("attachment: delete", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM attachments WHERE id = ?")
	if err != nil {
		return apierr.NewTransportError("attachment: delete", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return apierr.NewTransportError("attachment: delete", fmt.Errorf("%s: %w", id, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return apierr.NewTransportError("attachment: delete", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// List returns metadata for every stored attachment, ordered by file name
// then id.
func (s *SQLiteStore) List(ctx context.Context) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, file_name, size, created_at FROM attachments ORDER BY file_name, id")
	if err != nil {
		return nil, apierr.NewTransportError("attachment: list", err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		var ts string
		if err := rows.Scan(&a.ID, &a.FileName, &a.Size, &ts); err != nil {
			return nil, apierr.NewTransportError("attachment: list", fmt.Errorf("scan: %w", err))
		}
		created, parseErr := parseTimestamp(ts)
		if parseErr != nil {
			return nil, fmt.Errorf("attachment: parse timestamp: %w", parseErr)
		}
		a.CreatedAt = created
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.NewTransportError("attachment: list", fmt.Errorf("iterate: %w", err))
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timestampFormats lists the layouts the driver may hand back for the
// created_at column: the RFC 3339 text written by Put, and SQLite's own
// CURRENT_TIMESTAMP format for rows inserted without one.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.DateTime,
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

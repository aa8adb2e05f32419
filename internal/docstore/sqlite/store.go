// Package sqlite stores ledger documents in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_documents (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    kind       TEXT NOT NULL,
    parent_id  INTEGER NOT NULL DEFAULT 0,
    status     TEXT NOT NULL,
    author_id  INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ledger_documents_parent ON ledger_documents (parent_id, kind, status);
CREATE INDEX IF NOT EXISTS idx_ledger_documents_kind ON ledger_documents (kind, status);

CREATE TABLE IF NOT EXISTS ledger_meta (
    document_id INTEGER NOT NULL REFERENCES ledger_documents (id) ON DELETE CASCADE,
    meta_key    TEXT NOT NULL,
    meta_value  TEXT NOT NULL,
    PRIMARY KEY (document_id, meta_key)
);
`

// Store implements docstore.Store over database/sql.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite file at path with foreign keys enforced.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore/sqlite: open: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent requests
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the document tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("docstore/sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateDocument(ctx context.Context, kind docstore.Kind, parentID int64, status docstore.Status, authorID int64) (int64, error) {
	if !docstore.ValidKind(kind) {
		return 0, fmt.Errorf("%w: %q", docstore.ErrInvalidKind, kind)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO ledger_documents (kind, parent_id, status, author_id) VALUES (?, ?, ?, ?)`,
		string(kind), parentID, string(status), authorID)
	if err != nil {
		return 0, fmt.Errorf("docstore/sqlite: create document: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetDocument(ctx context.Context, id int64) (docstore.Document, error) {
	return getDocument(ctx, s.db, id)
}

func (s *Store) SetStatus(ctx context.Context, id int64, status docstore.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE ledger_documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) DeleteDocument(ctx context.Context, id int64, hard bool) error {
	if !hard {
		return s.TrashDocument(ctx, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) TrashDocument(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := getDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.Status == docstore.StatusTrash {
			return nil
		}
		prev, err := docstore.EncodeValue(string(doc.Status))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertMeta, id, docstore.TrashStatusKey, prev); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE ledger_documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(docstore.StatusTrash), id)
		return err
	})
}

func (s *Store) UntrashDocument(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := getDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.Status != docstore.StatusTrash {
			return nil
		}
		restored := docstore.StatusPublic
		var raw string
		err = tx.QueryRowContext(ctx, `SELECT meta_value FROM ledger_meta WHERE document_id = ? AND meta_key = ?`, id, docstore.TrashStatusKey).Scan(&raw)
		switch {
		case err == nil:
			if prev, ok := docstore.DecodeValue(raw).(string); ok && prev != "" {
				restored = docstore.Status(prev)
			}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_meta WHERE document_id = ? AND meta_key = ?`, id, docstore.TrashStatusKey); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE ledger_documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(restored), id)
		return err
	})
}

func (s *Store) GetMeta(ctx context.Context, id int64, key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT meta_value FROM ledger_meta WHERE document_id = ? AND meta_key = ?`, id, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, derr := s.GetDocument(ctx, id); derr != nil {
				return nil, false, derr
			}
			return nil, false, nil
		}
		return nil, false, err
	}
	return docstore.DecodeValue(raw), true, nil
}

func (s *Store) SetMeta(ctx context.Context, id int64, key string, value any) error {
	encoded, err := docstore.EncodeValue(value)
	if err != nil {
		return err
	}
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertMeta, id, key, encoded)
	return err
}

func (s *Store) DeleteMeta(ctx context.Context, id int64, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ledger_meta WHERE document_id = ? AND meta_key = ?`, id, key)
	return err
}

func (s *Store) QueryChildren(ctx context.Context, parentID int64, kind docstore.Kind, statuses ...docstore.Status) ([]int64, error) {
	query := `SELECT id FROM ledger_documents WHERE parent_id = ? AND kind = ?`
	args := []any{parentID, string(kind)}
	query, args = withStatusFilter(query, args, statuses)
	return s.queryIDs(ctx, query+` ORDER BY id`, args...)
}

func (s *Store) QueryDocuments(ctx context.Context, kind docstore.Kind, statuses ...docstore.Status) ([]int64, error) {
	query := `SELECT id FROM ledger_documents WHERE kind = ?`
	args := []any{string(kind)}
	query, args = withStatusFilter(query, args, statuses)
	return s.queryIDs(ctx, query+` ORDER BY id`, args...)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore/sqlite: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, id int64) (docstore.Document, error) {
	var d docstore.Document
	var kind, status string
	err := q.QueryRowContext(ctx, `SELECT id, kind, parent_id, status, author_id, created_at, updated_at
FROM ledger_documents WHERE id = ?`, id).
		Scan(&d.ID, &kind, &d.ParentID, &status, &d.AuthorID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, err
	}
	d.Kind = docstore.Kind(kind)
	d.Status = docstore.Status(status)
	return d, nil
}

func withStatusFilter(query string, args []any, statuses []docstore.Status) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	placeholders := make([]string, 0, len(statuses))
	for _, st := range statuses {
		placeholders = append(placeholders, "?")
		args = append(args, string(st))
	}
	return query + ` AND status IN (` + strings.Join(placeholders, ", ") + `)`, args
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

const upsertMeta = `INSERT INTO ledger_meta (document_id, meta_key, meta_value) VALUES (?, ?, ?)
ON CONFLICT (document_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`

// Package postgres stores ledger documents in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/platform/db"
)

var _ docstore.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_documents (
    id         BIGSERIAL PRIMARY KEY,
    kind       TEXT NOT NULL,
    parent_id  BIGINT NOT NULL DEFAULT 0,
    status     TEXT NOT NULL,
    author_id  BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledger_documents_parent ON ledger_documents (parent_id, kind, status);
CREATE INDEX IF NOT EXISTS idx_ledger_documents_kind ON ledger_documents (kind, status);

CREATE TABLE IF NOT EXISTS ledger_meta (
    document_id BIGINT NOT NULL REFERENCES ledger_documents (id) ON DELETE CASCADE,
    meta_key    TEXT NOT NULL,
    meta_value  TEXT NOT NULL,
    PRIMARY KEY (document_id, meta_key)
);
`

// Store implements docstore.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store using the provided pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the document tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("docstore/postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, kind docstore.Kind, parentID int64, status docstore.Status, authorID int64) (int64, error) {
	if !docstore.ValidKind(kind) {
		return 0, fmt.Errorf("%w: %q", docstore.ErrInvalidKind, kind)
	}
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO ledger_documents (kind, parent_id, status, author_id)
VALUES ($1, $2, $3, $4) RETURNING id`, string(kind), parentID, string(status), authorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("docstore/postgres: create document: %w", err)
	}
	return id, nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (docstore.Document, error) {
	var d docstore.Document
	var kind, status string
	err := s.pool.QueryRow(ctx, `SELECT id, kind, parent_id, status, author_id, created_at, updated_at
FROM ledger_documents WHERE id = $1`, id).
		Scan(&d.ID, &kind, &d.ParentID, &status, &d.AuthorID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, err
	}
	d.Kind = docstore.Kind(kind)
	d.Status = docstore.Status(status)
	return d, nil
}

func (s *Store) SetStatus(ctx context.Context, id int64, status docstore.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ledger_documents SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64, hard bool) error {
	if !hard {
		return s.TrashDocument(ctx, id)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM ledger_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) TrashDocument(ctx context.Context, id int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == docstore.StatusTrash {
			return nil
		}
		prev, err := docstore.EncodeValue(string(status))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertMeta, id, docstore.TrashStatusKey, prev); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE ledger_documents SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(docstore.StatusTrash))
		return err
	})
}

func (s *Store) UntrashDocument(ctx context.Context, id int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status != docstore.StatusTrash {
			return nil
		}
		restored := docstore.StatusPublic
		var raw string
		err = tx.QueryRow(ctx, `SELECT meta_value FROM ledger_meta WHERE document_id = $1 AND meta_key = $2`, id, docstore.TrashStatusKey).Scan(&raw)
		switch {
		case err == nil:
			if prev, ok := docstore.DecodeValue(raw).(string); ok && prev != "" {
				restored = docstore.Status(prev)
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_meta WHERE document_id = $1 AND meta_key = $2`, id, docstore.TrashStatusKey); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE ledger_documents SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(restored))
		return err
	})
}

func (s *Store) GetMeta(ctx context.Context, id int64, key string) (any, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT meta_value FROM ledger_meta WHERE document_id = $1 AND meta_key = $2`, id, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	if _, err := s.pool.Exec(ctx, upsertMeta, id, key, encoded); err != nil {
		if isForeignKeyViolation(err) {
			return docstore.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) DeleteMeta(ctx context.Context, id int64, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ledger_meta WHERE document_id = $1 AND meta_key = $2`, id, key)
	return err
}

func (s *Store) QueryChildren(ctx context.Context, parentID int64, kind docstore.Kind, statuses ...docstore.Status) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM ledger_documents
WHERE parent_id = $1 AND kind = $2 AND (cardinality($3::text[]) = 0 OR status = ANY($3))
ORDER BY id`, parentID, string(kind), docstore.StatusStrings(statuses))
}

func (s *Store) QueryDocuments(ctx context.Context, kind docstore.Kind, statuses ...docstore.Status) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM ledger_documents
WHERE kind = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
ORDER BY id`, string(kind), docstore.StatusStrings(statuses))
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

const upsertMeta = `INSERT INTO ledger_meta (document_id, meta_key, meta_value) VALUES ($1, $2, $3)
ON CONFLICT (document_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`

func lockStatus(ctx context.Context, tx pgx.Tx, id int64) (docstore.Status, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM ledger_documents WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", docstore.ErrNotFound
		}
		return "", err
	}
	return docstore.Status(status), nil
}

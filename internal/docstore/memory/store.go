// Package memory is an in-process docstore used for tests and the memory driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

type entry struct {
	doc  docstore.Document
	meta map[string]any
}

// Store keeps documents in maps guarded by a single RWMutex.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]*entry
	now    func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		docs: make(map[int64]*entry),
		now:  time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) CreateDocument(_ context.Context, kind docstore.Kind, parentID int64, status docstore.Status, authorID int64) (int64, error) {
	if !docstore.ValidKind(kind) {
		return 0, fmt.Errorf("%w: %q", docstore.ErrInvalidKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ts := s.now().UTC()
	s.docs[s.nextID] = &entry{
		doc: docstore.Document{
			ID:        s.nextID,
			ParentID:  parentID,
			Kind:      kind,
			Status:    status,
			AuthorID:  authorID,
			CreatedAt: ts,
			UpdatedAt: ts,
		},
		meta: make(map[string]any),
	}
	return s.nextID, nil
}

func (s *Store) GetDocument(_ context.Context, id int64) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.docs[id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return e.doc, nil
}

func (s *Store) SetStatus(_ context.Context, id int64, status docstore.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	e.doc.Status = status
	e.doc.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64, hard bool) error {
	if !hard {
		return s.TrashDocument(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *Store) TrashDocument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	if e.doc.Status == docstore.StatusTrash {
		return nil
	}
	e.meta[docstore.TrashStatusKey] = string(e.doc.Status)
	e.doc.Status = docstore.StatusTrash
	e.doc.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) UntrashDocument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	if e.doc.Status != docstore.StatusTrash {
		return nil
	}
	restored := docstore.StatusPublic
	if prev, ok := e.meta[docstore.TrashStatusKey].(string); ok && prev != "" {
		restored = docstore.Status(prev)
	}
	delete(e.meta, docstore.TrashStatusKey)
	e.doc.Status = restored
	e.doc.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) GetMeta(_ context.Context, id int64, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.docs[id]
	if !ok {
		return nil, false, docstore.ErrNotFound
	}
	v, ok := e.meta[key]
	return v, ok, nil
}

func (s *Store) SetMeta(_ context.Context, id int64, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	e.meta[key] = value
	return nil
}

func (s *Store) DeleteMeta(_ context.Context, id int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	delete(e.meta, key)
	return nil
}

func (s *Store) QueryChildren(_ context.Context, parentID int64, kind docstore.Kind, statuses ...docstore.Status) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0)
	for id, e := range s.docs {
		if e.doc.ParentID != parentID || e.doc.Kind != kind {
			continue
		}
		if docstore.MatchStatus(e.doc.Status, statuses) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) QueryDocuments(_ context.Context, kind docstore.Kind, statuses ...docstore.Status) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0)
	for id, e := range s.docs {
		if e.doc.Kind != kind {
			continue
		}
		if docstore.MatchStatus(e.doc.Status, statuses) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

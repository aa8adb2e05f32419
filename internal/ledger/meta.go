package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// Meta reads and writes typed metadata fields. Every stored value is coerced at read
// time so rows written as strings by older tooling still resolve.
type Meta struct {
	store docstore.Store
}

// NewMeta wraps a document store.
func NewMeta(store docstore.Store) Meta {
	return Meta{store: store}
}

// Get returns the raw stored value.
func (m Meta) Get(ctx context.Context, id int64, key string) (any, bool, error) {
	v, ok, err := m.store.GetMeta(ctx, id, key)
	if err != nil {
		return nil, false, translate(err)
	}
	return v, ok, nil
}

// Update writes a value.
func (m Meta) Update(ctx context.Context, id int64, key string, value any) error {
	return translate(m.store.SetMeta(ctx, id, key, value))
}

// Delete removes a key.
func (m Meta) Delete(ctx context.Context, id int64, key string) error {
	return translate(m.store.DeleteMeta(ctx, id, key))
}

// Float reads a monetary value.
func (m Meta) Float(ctx context.Context, id int64, key string) (float64, error) {
	v, _, err := m.Get(ctx, id, key)
	if err != nil {
		return 0, err
	}
	return toFloat(v), nil
}

// Int reads a count.
func (m Meta) Int(ctx context.Context, id int64, key string) (int, error) {
	v, _, err := m.Get(ctx, id, key)
	if err != nil {
		return 0, err
	}
	return toInt(v), nil
}

// ID reads a document reference.
func (m Meta) ID(ctx context.Context, id int64, key string) (int64, error) {
	v, _, err := m.Get(ctx, id, key)
	if err != nil {
		return 0, err
	}
	return toID(v), nil
}

// IDs reads a list of references.
func (m Meta) IDs(ctx context.Context, id int64, key string) ([]int64, error) {
	v, _, err := m.Get(ctx, id, key)
	if err != nil {
		return nil, err
	}
	return toIDs(v), nil
}

// String reads a text value.
func (m Meta) String(ctx context.Context, id int64, key string) (string, error) {
	v, _, err := m.Get(ctx, id, key)
	if err != nil {
		return "", err
	}
	return cast.ToString(v), nil
}

// Time reads a timestamp stored as RFC3339 text; a zero marker yields nil.
func (m Meta) Time(ctx context.Context, id int64, key string) (*time.Time, error) {
	v, _, err := m.Get(ctx, id, key)
	if err != nil {
		return nil, err
	}
	return toTime(v), nil
}

func toFloat(v any) float64 {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return f
}

func toInt(v any) int {
	// go through float so "3.0" and 3.0 both count
	return int(toFloat(v))
}

func toID(v any) int64 {
	return int64(toFloat(v))
}

func toIDs(v any) []int64 {
	out := []int64{}
	if v == nil {
		return out
	}
	if s, ok := v.(string); ok {
		for _, part := range strings.Split(s, ",") {
			if id := toID(strings.TrimSpace(part)); id > 0 {
				out = append(out, id)
			}
		}
		return out
	}
	ints, err := cast.ToIntSliceE(v)
	if err != nil {
		return out
	}
	for _, id := range ints {
		if id > 0 {
			out = append(out, int64(id))
		}
	}
	return out
}

func toTime(v any) *time.Time {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if x.IsZero() {
			return nil
		}
		t := x.UTC()
		return &t
	case string:
		if x == "" || x == "0" {
			return nil
		}
	default:
		if toFloat(x) == 0 {
			return nil
		}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// Core carries the document columns of a new entity.
type Core struct {
	ParentID int64
	Status   Status
	AuthorID int64
}

// Entities is the typed entry point to the three ledger document kinds.
type Entities struct {
	store docstore.Store
	meta  Meta
}

// NewEntities wraps a document store.
func NewEntities(store docstore.Store) Entities {
	return Entities{store: store, meta: NewMeta(store)}
}

// Meta exposes the typed metadata accessor.
func (e Entities) Meta() Meta {
	return e.meta
}

// Defaults returns the metadata every new entity of kind starts with.
func Defaults(kind Kind) map[string]any {
	switch kind {
	case KindPeriod:
		return map[string]any{
			MetaAccountCount: 0,
			MetaRecordCount:  0,
			MetaEndValue:     0.0,
			MetaClosed:       0,
			MetaSpectators:   []int64{},
		}
	case KindAccount:
		return map[string]any{
			MetaLedgerID:    0,
			MetaAccountType: "",
			MetaRecordCount: 0,
			MetaFromValue:   0.0,
			MetaToValue:     0.0,
			MetaSpectators:  []int64{},
		}
	case KindRecord:
		return map[string]any{
			MetaValue:     0.0,
			MetaValueType: string(Debit),
		}
	default:
		return map[string]any{}
	}
}

// Insert creates the document then writes defaults overlaid with meta. A failed
// write removes the document again, so callers never see a half-initialised one.
func (e Entities) Insert(ctx context.Context, kind Kind, core Core, meta map[string]any) (int64, error) {
	status := core.Status
	if status == "" {
		status = StatusOpen
	}
	id, err := e.store.CreateDocument(ctx, kind, core.ParentID, status, core.AuthorID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}
	values := Defaults(kind)
	for k, v := range meta {
		values[k] = v
	}
	for k, v := range values {
		if err := e.meta.Update(ctx, id, k, v); err != nil {
			err = fmt.Errorf("%w: write %s default: %w", ErrInsertFailed, k, err)
			if delErr := e.store.DeleteDocument(ctx, id, true); delErr != nil {
				return 0, errors.Join(err, fmt.Errorf("ledger: remove partial %s %d: %w", kind, id, delErr))
			}
			return 0, err
		}
	}
	return id, nil
}

func (e Entities) document(ctx context.Context, id int64, kind Kind) (docstore.Document, error) {
	if id <= 0 {
		return docstore.Document{}, ErrNotFound
	}
	doc, err := e.store.GetDocument(ctx, id)
	if err != nil {
		return docstore.Document{}, translate(err)
	}
	if doc.Kind != kind {
		return docstore.Document{}, fmt.Errorf("%w: %d is a %s, not a %s", ErrNotFound, id, doc.Kind, kind)
	}
	return doc, nil
}

// Period loads a period by id.
func (e Entities) Period(ctx context.Context, id int64) (Period, error) {
	doc, err := e.document(ctx, id, KindPeriod)
	if err != nil {
		return Period{}, err
	}
	p := Period{ID: doc.ID, Status: doc.Status, AuthorID: doc.AuthorID, CreatedAt: doc.CreatedAt}
	if p.AccountCount, err = e.meta.Int(ctx, id, MetaAccountCount); err != nil {
		return Period{}, err
	}
	if p.RecordCount, err = e.meta.Int(ctx, id, MetaRecordCount); err != nil {
		return Period{}, err
	}
	if p.EndValue, err = e.meta.Float(ctx, id, MetaEndValue); err != nil {
		return Period{}, err
	}
	if p.ClosedAt, err = e.meta.Time(ctx, id, MetaClosed); err != nil {
		return Period{}, err
	}
	prior, err := e.meta.String(ctx, id, MetaPriorStatus)
	if err != nil {
		return Period{}, err
	}
	p.PriorStatus = Status(prior)
	if p.Status == StatusTrash {
		from, err := e.meta.String(ctx, id, docstore.TrashStatusKey)
		if err != nil {
			return Period{}, err
		}
		p.TrashedFrom = Status(from)
	}
	if p.Spectators, err = e.meta.IDs(ctx, id, MetaSpectators); err != nil {
		return Period{}, err
	}
	trashed, err := e.meta.IDs(ctx, id, MetaPreTrashedAccounts)
	if err != nil {
		return Period{}, err
	}
	p.PreTrashed = Cascade{IDs: trashed}
	return p, nil
}

// Account loads an account by id.
func (e Entities) Account(ctx context.Context, id int64) (Account, error) {
	doc, err := e.document(ctx, id, KindAccount)
	if err != nil {
		return Account{}, err
	}
	a := Account{ID: doc.ID, Status: doc.Status, AuthorID: doc.AuthorID, CreatedAt: doc.CreatedAt}
	if a.PeriodID, err = e.periodRef(ctx, doc); err != nil {
		return Account{}, err
	}
	if a.LedgerID, err = e.meta.ID(ctx, id, MetaLedgerID); err != nil {
		return Account{}, err
	}
	typ, err := e.meta.String(ctx, id, MetaAccountType)
	if err != nil {
		return Account{}, err
	}
	a.Type = AccountType(typ)
	if a.RecordCount, err = e.meta.Int(ctx, id, MetaRecordCount); err != nil {
		return Account{}, err
	}
	if a.FromValue, err = e.meta.Float(ctx, id, MetaFromValue); err != nil {
		return Account{}, err
	}
	if a.ToValue, err = e.meta.Float(ctx, id, MetaToValue); err != nil {
		return Account{}, err
	}
	if a.Spectators, err = e.meta.IDs(ctx, id, MetaSpectators); err != nil {
		return Account{}, err
	}
	trashed, err := e.meta.IDs(ctx, id, MetaPreTrashedRecords)
	if err != nil {
		return Account{}, err
	}
	a.PreTrashed = Cascade{IDs: trashed}
	return a, nil
}

func (e Entities) periodRef(ctx context.Context, doc docstore.Document) (int64, error) {
	for _, key := range []string{MetaPeriodID, MetaLegacyYearID} {
		ref, err := e.meta.ID(ctx, doc.ID, key)
		if err != nil {
			return 0, err
		}
		if ref > 0 {
			return ref, nil
		}
	}
	return doc.ParentID, nil
}

// Record loads a record by id.
func (e Entities) Record(ctx context.Context, id int64) (Record, error) {
	doc, err := e.document(ctx, id, KindRecord)
	if err != nil {
		return Record{}, err
	}
	r := Record{ID: doc.ID, AccountID: doc.ParentID, Status: doc.Status, AuthorID: doc.AuthorID, CreatedAt: doc.CreatedAt}
	if r.Value, err = e.meta.Float(ctx, id, MetaValue); err != nil {
		return Record{}, err
	}
	typ, err := e.meta.String(ctx, id, MetaValueType)
	if err != nil {
		return Record{}, err
	}
	r.ValueType = ValueType(strings.ToLower(typ))
	return r, nil
}

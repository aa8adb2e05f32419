package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/memory"
)

const actor int64 = 42

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	svc   *Service
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test wrap the memory store, e.g. to inject failures.
func newFixtureWith(t *testing.T, wrap func(*memory.Store) docstore.Store) *fixture {
	t.Helper()
	mem := memory.New()
	var store docstore.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: mem,
		svc:   NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil))),
		clock: time.Date(2026, 3, 31, 17, 0, 0, 0, time.UTC),
	}
	f.svc.WithNow(func() time.Time { return f.clock })
	return f
}

func (f *fixture) period() Period {
	f.t.Helper()
	p, err := f.svc.CreatePeriod(f.ctx, actor, CreatePeriodInput{})
	require.NoError(f.t, err)
	return p
}

func (f *fixture) account(periodID int64, typ AccountType) Account {
	f.t.Helper()
	a, err := f.svc.CreateAccount(f.ctx, actor, periodID, CreateAccountInput{Type: typ})
	require.NoError(f.t, err)
	return a
}

func (f *fixture) record(accountID int64, value float64, vt ValueType) Record {
	f.t.Helper()
	r, err := f.svc.CreateRecord(f.ctx, actor, accountID, RecordInput{Value: value, ValueType: vt})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) reloadPeriod(id int64) Period {
	f.t.Helper()
	p, err := f.svc.GetPeriod(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) reloadAccount(id int64) Account {
	f.t.Helper()
	a, err := f.svc.GetAccount(f.ctx, id)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) reloadRecord(id int64) Record {
	f.t.Helper()
	r, err := f.svc.GetRecord(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) closeAccount(id int64) {
	f.t.Helper()
	changed, err := f.svc.CloseAccount(f.ctx, actor, id)
	require.NoError(f.t, err)
	require.True(f.t, changed)
}

func (f *fixture) closePeriod(id int64) {
	f.t.Helper()
	changed, err := f.svc.ClosePeriod(f.ctx, actor, id)
	require.NoError(f.t, err)
	require.True(f.t, changed)
}

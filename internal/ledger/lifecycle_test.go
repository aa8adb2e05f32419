package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/memory"
)

func TestOnlyOnePeriodOpen(t *testing.T) {
	f := newFixture(t)
	first := f.period()

	_, err := f.svc.CreatePeriod(f.ctx, actor, CreatePeriodInput{})
	require.ErrorIs(t, err, ErrPeriodAlreadyOpen)
	require.ErrorIs(t, err, ErrNotAllowed)

	f.closePeriod(first.ID)
	second := f.period()

	_, err = f.svc.OpenPeriod(f.ctx, actor, first.ID)
	require.ErrorIs(t, err, ErrOtherPeriodOpen)
	assert.Equal(t, StatusClosed, f.reloadPeriod(first.ID).Status)

	open, err := f.svc.ListPeriods(f.ctx, StatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)
}

func TestClosePeriodRequiresClosedAccounts(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)

	changed, err := f.svc.ClosePeriod(f.ctx, actor, p.ID)
	require.ErrorIs(t, err, ErrAccountsStillOpen)
	assert.False(t, changed)
	assert.Equal(t, StatusOpen, f.reloadPeriod(p.ID).Status)

	f.closeAccount(a.ID)
	f.closePeriod(p.ID)

	got := f.reloadPeriod(p.ID)
	assert.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, StatusOpen, got.PriorStatus)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(f.clock))
}

func TestReopenPeriodClearsCloseMetadata(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	f.closePeriod(p.ID)

	changed, err := f.svc.OpenPeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	require.True(t, changed)

	got := f.reloadPeriod(p.ID)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Nil(t, got.ClosedAt)
	_, ok, err := f.store.GetMeta(f.ctx, p.ID, MetaPriorStatus)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)

	changed, err := f.svc.OpenAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	f.closeAccount(a.ID)
	changed, err = f.svc.CloseAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.OpenPeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	f.closePeriod(p.ID)
	closedAt := f.reloadPeriod(p.ID).ClosedAt

	f.clock = f.clock.Add(48 * time.Hour)
	changed, err = f.svc.ClosePeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, closedAt, f.reloadPeriod(p.ID).ClosedAt)
}

func TestAccountLockedByClosedPeriod(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	f.closeAccount(a.ID)
	f.closePeriod(p.ID)

	_, err := f.svc.OpenAccount(f.ctx, actor, a.ID)
	require.ErrorIs(t, err, ErrPeriodClosed)

	typ := AccountTypeCapital
	_, err = f.svc.UpdateAccount(f.ctx, actor, a.ID, UpdateAccountInput{Type: &typ})
	require.ErrorIs(t, err, ErrPeriodClosed)

	_, err = f.svc.DeleteAccount(f.ctx, actor, a.ID)
	require.ErrorIs(t, err, ErrPeriodClosed)

	_, err = f.svc.CreateAccount(f.ctx, actor, p.ID, CreateAccountInput{})
	require.ErrorIs(t, err, ErrPeriodClosed)
}

func TestDeleteAccountGuard(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	r := f.record(a.ID, 10, Credit)

	changed, err := f.svc.DeleteAccount(f.ctx, actor, a.ID)
	require.ErrorIs(t, err, ErrAccountHasRecords)
	assert.False(t, changed)
	assert.Equal(t, 1, f.reloadAccount(a.ID).RecordCount)

	// a trashed record no longer blocks the delete but is removed with the account
	_, err = f.svc.TrashRecord(f.ctx, actor, r.ID)
	require.NoError(t, err)

	changed, err = f.svc.DeleteAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = f.svc.GetRecord(f.ctx, r.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.reloadPeriod(p.ID).AccountCount)
}

func TestDeletePeriodGuard(t *testing.T) {
	t.Run("open with records", func(t *testing.T) {
		f := newFixture(t)
		p := f.period()
		a := f.account(p.ID, AccountTypeResult)
		f.record(a.ID, 1, Debit)

		_, err := f.svc.DeletePeriod(f.ctx, actor, p.ID)
		require.ErrorIs(t, err, ErrPeriodHasRecords)
	})

	t.Run("open without records", func(t *testing.T) {
		f := newFixture(t)
		p := f.period()
		a := f.account(p.ID, AccountTypeResult)

		changed, err := f.svc.DeletePeriod(f.ctx, actor, p.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		_, err = f.svc.GetAccount(f.ctx, a.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("closed while another is open", func(t *testing.T) {
		f := newFixture(t)
		old := f.period()
		f.closePeriod(old.ID)
		f.period()

		_, err := f.svc.DeletePeriod(f.ctx, actor, old.ID)
		require.ErrorIs(t, err, ErrOtherPeriodOpen)
	})
}

func TestDeletePeriodCascades(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	r := f.record(a.ID, 80, Credit)
	f.closeAccount(a.ID)
	f.closePeriod(p.ID)

	changed, err := f.svc.DeletePeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = f.svc.GetRecord(f.ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetAccount(f.ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetPeriod(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrashAccountRestoresOnlyCascadedRecords(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	early := f.record(a.ID, 5, Debit)
	r1 := f.record(a.ID, 100, Credit)
	r2 := f.record(a.ID, 20, Debit)

	_, err := f.svc.TrashRecord(f.ctx, actor, early.ID)
	require.NoError(t, err)

	changed, err := f.svc.TrashAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	require.True(t, changed)

	trashed := f.reloadAccount(a.ID)
	assert.Equal(t, StatusTrash, trashed.Status)
	assert.Equal(t, []int64{r1.ID, r2.ID}, trashed.PreTrashed.IDs)
	assert.Equal(t, StatusTrash, f.reloadRecord(r1.ID).Status)
	assert.Equal(t, 0, f.reloadPeriod(p.ID).AccountCount)
	assert.Equal(t, 0, f.reloadPeriod(p.ID).RecordCount)

	changed, err = f.svc.UntrashAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	require.True(t, changed)

	restored := f.reloadAccount(a.ID)
	assert.Equal(t, StatusOpen, restored.Status)
	assert.True(t, restored.PreTrashed.Empty())
	assert.Equal(t, StatusOpen, f.reloadRecord(r1.ID).Status)
	assert.Equal(t, StatusOpen, f.reloadRecord(r2.ID).Status)
	assert.Equal(t, StatusTrash, f.reloadRecord(early.ID).Status)
	assert.Equal(t, 2, restored.RecordCount)
	assert.Equal(t, 80.0, restored.ToValue)
	assert.Equal(t, 2, f.reloadPeriod(p.ID).RecordCount)

	changed, err = f.svc.UntrashAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTrashPeriodRoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a1 := f.account(p.ID, AccountTypeResult)
	a2 := f.account(p.ID, AccountTypeCapital)
	gone := f.account(p.ID, AccountTypeResult)
	_, err := f.svc.TrashAccount(f.ctx, actor, gone.ID)
	require.NoError(t, err)

	changed, err := f.svc.TrashPeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	require.True(t, changed)

	got := f.reloadPeriod(p.ID)
	assert.Equal(t, StatusTrash, got.Status)
	assert.Equal(t, []int64{a1.ID, a2.ID}, got.PreTrashed.IDs)

	changed, err = f.svc.UntrashPeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	require.True(t, changed)

	got = f.reloadPeriod(p.ID)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, 2, got.AccountCount)
	assert.Equal(t, StatusOpen, f.reloadAccount(a1.ID).Status)
	assert.Equal(t, StatusOpen, f.reloadAccount(a2.ID).Status)
	assert.Equal(t, StatusTrash, f.reloadAccount(gone.ID).Status)
}

func TestUntrashPeriodRespectsSingleOpen(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	_, err := f.svc.TrashPeriod(f.ctx, actor, p.ID)
	require.NoError(t, err)
	f.period()

	_, err = f.svc.UntrashPeriod(f.ctx, actor, p.ID)
	require.ErrorIs(t, err, ErrOtherPeriodOpen)
	assert.Equal(t, StatusTrash, f.reloadPeriod(p.ID).Status)
}

func TestLedgerIDConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a1, err := f.svc.CreateAccount(f.ctx, actor, p.ID, CreateAccountInput{LedgerID: 100, Type: AccountTypeResult})
	require.NoError(t, err)
	a2, err := f.svc.CreateAccount(f.ctx, actor, p.ID, CreateAccountInput{LedgerID: 200, Type: AccountTypeResult})
	require.NoError(t, err)

	_, err = f.svc.SetLedgerID(f.ctx, actor, a2.ID, a1.LedgerID)
	var idErr *LedgerIDError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, CodeLedgerIDTaken, idErr.MessageCode())
	assert.Equal(t, int64(200), f.reloadAccount(a2.ID).LedgerID)

	_, err = f.svc.SetLedgerID(f.ctx, actor, a2.ID, 0)
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, CodeLedgerIDCleared, idErr.Code)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, int64(200), f.reloadAccount(a2.ID).LedgerID)

	changed, err := f.svc.SetLedgerID(f.ctx, actor, a2.ID, 200)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.SetLedgerID(f.ctx, actor, a2.ID, 300)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(300), f.reloadAccount(a2.ID).LedgerID)

	_, err = f.svc.CreateAccount(f.ctx, actor, p.ID, CreateAccountInput{LedgerID: 100})
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, CodeLedgerIDTaken, idErr.Code)

	dup := int64(300)
	_, err = f.svc.UpdateAccount(f.ctx, actor, a1.ID, UpdateAccountInput{LedgerID: &dup})
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, int64(100), f.reloadAccount(a1.ID).LedgerID)
}

func TestUpdateAccountTypeMovesPeriodResult(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeCapital)
	f.record(a.ID, 90, Credit)
	assert.Equal(t, 0.0, f.reloadPeriod(p.ID).EndValue)

	typ := AccountTypeResult
	from := 12.5
	got, err := f.svc.UpdateAccount(f.ctx, actor, a.ID, UpdateAccountInput{Type: &typ, FromValue: &from, Spectators: []int64{7}})
	require.NoError(t, err)
	assert.Equal(t, AccountTypeResult, got.Type)
	assert.Equal(t, 12.5, got.FromValue)
	assert.True(t, got.HasSpectator(7))
	assert.Equal(t, 90.0, f.reloadPeriod(p.ID).EndValue)

	bad := AccountType("liability")
	_, err = f.svc.UpdateAccount(f.ctx, actor, a.ID, UpdateAccountInput{Type: &bad})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordGuardsAndValidation(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	r := f.record(a.ID, 10, Debit)

	_, err := f.svc.CreateRecord(f.ctx, actor, a.ID, RecordInput{Value: -1, ValueType: Credit})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateRecord(f.ctx, actor, a.ID, RecordInput{Value: 1, ValueType: "sideways"})
	require.ErrorIs(t, err, ErrInvalidInput)

	value := 40.0
	side := Credit
	updated, err := f.svc.UpdateRecord(f.ctx, actor, r.ID, UpdateRecordInput{Value: &value, ValueType: &side})
	require.NoError(t, err)
	assert.Equal(t, 40.0, updated.Value)
	assert.Equal(t, 40.0, f.reloadAccount(a.ID).ToValue)

	f.closeAccount(a.ID)
	_, err = f.svc.CreateRecord(f.ctx, actor, a.ID, RecordInput{Value: 1, ValueType: Credit})
	require.ErrorIs(t, err, ErrAccountClosed)
	_, err = f.svc.DeleteRecord(f.ctx, actor, r.ID)
	require.ErrorIs(t, err, ErrAccountClosed)

	_, err = f.svc.OpenAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	changed, err := f.svc.DeleteRecord(f.ctx, actor, r.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 0, f.reloadAccount(a.ID).RecordCount)
	assert.Equal(t, 0.0, f.reloadPeriod(p.ID).EndValue)
}

func TestNotFoundAndWrongKind(t *testing.T) {
	f := newFixture(t)
	p := f.period()

	_, err := f.svc.GetAccount(f.ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetRecord(f.ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.ClosePeriod(f.ctx, actor, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

type failingStore struct {
	*memory.Store
	failTrash int64
	failMeta  string
}

func (s *failingStore) SetMeta(ctx context.Context, id int64, key string, value any) error {
	if key != "" && key == s.failMeta {
		return errors.New("disk full")
	}
	return s.Store.SetMeta(ctx, id, key, value)
}

func (s *failingStore) TrashDocument(ctx context.Context, id int64) error {
	if id == s.failTrash {
		return errors.New("disk full")
	}
	return s.Store.TrashDocument(ctx, id)
}

func TestTrashAccountContinuesPastFailures(t *testing.T) {
	fs := &failingStore{}
	f := newFixtureWith(t, func(m *memory.Store) docstore.Store {
		fs.Store = m
		return fs
	})
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	r1 := f.record(a.ID, 1, Credit)
	r2 := f.record(a.ID, 2, Credit)
	r3 := f.record(a.ID, 3, Credit)
	fs.failTrash = r2.ID

	changed, err := f.svc.TrashAccount(f.ctx, actor, a.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAllowed)
	assert.True(t, changed)

	got := f.reloadAccount(a.ID)
	assert.Equal(t, StatusTrash, got.Status)
	assert.Equal(t, []int64{r1.ID, r3.ID}, got.PreTrashed.IDs)
	assert.Equal(t, StatusOpen, f.reloadRecord(r2.ID).Status)
	assert.Equal(t, 0, f.reloadPeriod(p.ID).AccountCount)

	fs.failTrash = 0
	_, err = f.svc.UntrashAccount(f.ctx, actor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.reloadAccount(a.ID).RecordCount)
	assert.Equal(t, 6.0, f.reloadAccount(a.ID).ToValue)
}

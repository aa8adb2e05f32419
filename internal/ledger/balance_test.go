package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountToValueIsCreditLessDebit(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	f.record(a.ID, 100, Debit)
	f.record(a.ID, 250, Credit)
	f.record(a.ID, 30, Debit)

	got := f.reloadAccount(a.ID)
	assert.Equal(t, 120.0, got.ToValue)
	assert.Equal(t, 3, got.RecordCount)

	value, err := f.svc.Balancer().RecomputeAccountToValue(f.ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 120.0, value)
}

func TestPeriodEndValueExcludesCapitalAccounts(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	revenue := f.account(p.ID, AccountTypeResult)
	capital := f.account(p.ID, AccountTypeCapital)
	f.record(revenue.ID, 500, Credit)
	f.record(revenue.ID, 200, Debit)
	f.record(capital.ID, 1000, Credit)

	got := f.reloadPeriod(p.ID)
	assert.Equal(t, 300.0, got.EndValue)
	assert.Equal(t, 2, got.AccountCount)
	assert.Equal(t, 3, got.RecordCount)
	assert.Equal(t, 1000.0, f.reloadAccount(capital.ID).ToValue)
}

func TestEmptyAggregatesAreZero(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	b := f.svc.Balancer()

	value, err := b.RecomputeAccountToValue(f.ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)

	count, err := b.RecountAccountRecords(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	end, err := b.RecomputePeriodEndValue(f.ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, end)
}

func TestExplicitValueOverridesSum(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	f.record(a.ID, 10, Credit)

	explicit := 77.5
	value, err := f.svc.Balancer().RecomputeAccountToValue(f.ctx, a.ID, &explicit)
	require.NoError(t, err)
	assert.Equal(t, 77.5, value)
	assert.Equal(t, 77.5, f.reloadAccount(a.ID).ToValue)
}

func TestBumpAccountRecordCountNeverNegative(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)

	n, err := f.svc.Balancer().BumpAccountRecordCount(f.ctx, a.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.Balancer().BumpAccountRecordCount(f.ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReconcilePeriodReportsDrift(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	f.record(a.ID, 40, Credit)
	f.record(a.ID, 15, Debit)

	require.NoError(t, f.store.SetMeta(f.ctx, a.ID, MetaToValue, 999.0))
	require.NoError(t, f.store.SetMeta(f.ctx, p.ID, MetaRecordCount, "7"))

	report, err := f.svc.Reconcile(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountCount)
	assert.Equal(t, 2, report.RecordCount)
	assert.Equal(t, 25.0, report.EndValue)
	assert.Contains(t, report.Drifts, Drift{EntityID: a.ID, Field: MetaToValue, Stored: 999, Actual: 25})
	assert.Contains(t, report.Drifts, Drift{EntityID: p.ID, Field: MetaRecordCount, Stored: 7, Actual: 2})
	assert.Len(t, report.Drifts, 2)

	assert.Equal(t, 25.0, f.reloadAccount(a.ID).ToValue)

	again, err := f.svc.Reconcile(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Drifts)
}

func TestBalanceIgnoresTrashedRecords(t *testing.T) {
	f := newFixture(t)
	p := f.period()
	a := f.account(p.ID, AccountTypeResult)
	f.record(a.ID, 100, Credit)
	r := f.record(a.ID, 60, Debit)

	changed, err := f.svc.TrashRecord(f.ctx, actor, r.ID)
	require.NoError(t, err)
	require.True(t, changed)

	got := f.reloadAccount(a.ID)
	assert.Equal(t, 100.0, got.ToValue)
	assert.Equal(t, 1, got.RecordCount)
	assert.Equal(t, 1, f.reloadPeriod(p.ID).RecordCount)
	assert.Equal(t, 100.0, f.reloadPeriod(p.ID).EndValue)
}

package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// Balancer derives and persists the aggregates of the hierarchy: record counts,
// account balances and the period result.
type Balancer struct {
	store    docstore.Store
	entities Entities
}

// NewBalancer constructs a Balancer.
func NewBalancer(store docstore.Store) *Balancer {
	return &Balancer{store: store, entities: NewEntities(store)}
}

func (b *Balancer) liveChildren(ctx context.Context, parentID int64, kind Kind) ([]int64, error) {
	ids, err := b.store.QueryChildren(ctx, parentID, kind, docstore.LiveStatuses()...)
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

// RecountAccountRecords counts the live records of an account and stores the count.
func (b *Balancer) RecountAccountRecords(ctx context.Context, accountID int64) (int, error) {
	ids, err := b.liveChildren(ctx, accountID, KindRecord)
	if err != nil {
		return 0, err
	}
	count := len(ids)
	if err := b.entities.meta.Update(ctx, accountID, MetaRecordCount, count); err != nil {
		return 0, err
	}
	return count, nil
}

// BumpAccountRecordCount adjusts the stored count by delta without a recount.
func (b *Balancer) BumpAccountRecordCount(ctx context.Context, accountID int64, delta int) (int, error) {
	current, err := b.entities.meta.Int(ctx, accountID, MetaRecordCount)
	if err != nil {
		return 0, err
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	if err := b.entities.meta.Update(ctx, accountID, MetaRecordCount, next); err != nil {
		return 0, err
	}
	return next, nil
}

// RecomputeAccountToValue stores explicit when given, otherwise the credit total less
// the debit total of the account's live records.
func (b *Balancer) RecomputeAccountToValue(ctx context.Context, accountID int64, explicit *float64) (float64, error) {
	var value float64
	if explicit != nil {
		value = *explicit
	} else {
		sum, err := b.accountSum(ctx, accountID)
		if err != nil {
			return 0, err
		}
		value = sum.InexactFloat64()
	}
	if err := b.entities.meta.Update(ctx, accountID, MetaToValue, value); err != nil {
		return 0, err
	}
	return value, nil
}

func (b *Balancer) accountSum(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	ids, err := b.liveChildren(ctx, accountID, KindRecord)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, id := range ids {
		rec, err := b.entities.Record(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(decimal.NewFromFloat(rec.Signed()))
	}
	return sum, nil
}

// RecountPeriodAccounts counts the live accounts of a period and stores the count.
func (b *Balancer) RecountPeriodAccounts(ctx context.Context, periodID int64) (int, error) {
	ids, err := b.liveChildren(ctx, periodID, KindAccount)
	if err != nil {
		return 0, err
	}
	count := len(ids)
	if err := b.entities.meta.Update(ctx, periodID, MetaAccountCount, count); err != nil {
		return 0, err
	}
	return count, nil
}

// RecountPeriodRecords sums the stored record counts of the period's live accounts.
func (b *Balancer) RecountPeriodRecords(ctx context.Context, periodID int64) (int, error) {
	ids, err := b.liveChildren(ctx, periodID, KindAccount)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := b.entities.meta.Int(ctx, id, MetaRecordCount)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := b.entities.meta.Update(ctx, periodID, MetaRecordCount, total); err != nil {
		return 0, err
	}
	return total, nil
}

// RecomputePeriodEndValue stores explicit when given, otherwise the signed sum of the
// records of result accounts. Capital accounts never feed the period result.
func (b *Balancer) RecomputePeriodEndValue(ctx context.Context, periodID int64, explicit *float64) (float64, error) {
	var value float64
	if explicit != nil {
		value = *explicit
	} else {
		accounts, err := b.liveChildren(ctx, periodID, KindAccount)
		if err != nil {
			return 0, err
		}
		total := decimal.Zero
		for _, accountID := range accounts {
			typ, err := b.entities.meta.String(ctx, accountID, MetaAccountType)
			if err != nil {
				return 0, err
			}
			if AccountType(typ) != AccountTypeResult {
				continue
			}
			sum, err := b.accountSum(ctx, accountID)
			if err != nil {
				return 0, err
			}
			total = total.Add(sum)
		}
		value = total.InexactFloat64()
	}
	if err := b.entities.meta.Update(ctx, periodID, MetaEndValue, value); err != nil {
		return 0, err
	}
	return value, nil
}

// RefreshAccount recounts an account and recomputes its balance.
func (b *Balancer) RefreshAccount(ctx context.Context, accountID int64) error {
	if _, err := b.RecountAccountRecords(ctx, accountID); err != nil {
		return err
	}
	_, err := b.RecomputeAccountToValue(ctx, accountID, nil)
	return err
}

// RefreshPeriod recomputes the period aggregates from the stored account counts.
func (b *Balancer) RefreshPeriod(ctx context.Context, periodID int64) error {
	if _, err := b.RecountPeriodAccounts(ctx, periodID); err != nil {
		return err
	}
	if _, err := b.RecountPeriodRecords(ctx, periodID); err != nil {
		return err
	}
	_, err := b.RecomputePeriodEndValue(ctx, periodID, nil)
	return err
}

// Drift is a stored aggregate that differed from its recomputed value.
type Drift struct {
	EntityID int64
	Field    string
	Stored   float64
	Actual   float64
}

// ReconcileReport summarises a full reconciliation of one period.
type ReconcileReport struct {
	PeriodID     int64
	AccountCount int
	RecordCount  int
	EndValue     float64
	Drifts       []Drift
}

// ReconcilePeriod recounts every account of the period, then the period itself, and
// reports each aggregate that had drifted.
func (b *Balancer) ReconcilePeriod(ctx context.Context, periodID int64) (ReconcileReport, error) {
	before, err := b.entities.Period(ctx, periodID)
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{PeriodID: periodID}
	accounts, err := b.liveChildren(ctx, periodID, KindAccount)
	if err != nil {
		return report, err
	}
	for _, accountID := range accounts {
		drifts, err := b.ReconcileAccount(ctx, accountID)
		if err != nil {
			return report, fmt.Errorf("ledger: reconcile account %d: %w", accountID, err)
		}
		report.Drifts = append(report.Drifts, drifts...)
	}
	if report.AccountCount, err = b.RecountPeriodAccounts(ctx, periodID); err != nil {
		return report, err
	}
	if report.RecordCount, err = b.RecountPeriodRecords(ctx, periodID); err != nil {
		return report, err
	}
	if report.EndValue, err = b.RecomputePeriodEndValue(ctx, periodID, nil); err != nil {
		return report, err
	}
	report.Drifts = appendDrift(report.Drifts, periodID, MetaAccountCount, float64(before.AccountCount), float64(report.AccountCount))
	report.Drifts = appendDrift(report.Drifts, periodID, MetaRecordCount, float64(before.RecordCount), float64(report.RecordCount))
	report.Drifts = appendDrift(report.Drifts, periodID, MetaEndValue, before.EndValue, report.EndValue)
	return report, nil
}

// ReconcileAccount recounts one account and reports the fields that had drifted.
func (b *Balancer) ReconcileAccount(ctx context.Context, accountID int64) ([]Drift, error) {
	before, err := b.entities.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	count, err := b.RecountAccountRecords(ctx, accountID)
	if err != nil {
		return nil, err
	}
	value, err := b.RecomputeAccountToValue(ctx, accountID, nil)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	drifts = appendDrift(drifts, accountID, MetaRecordCount, float64(before.RecordCount), float64(count))
	drifts = appendDrift(drifts, accountID, MetaToValue, before.ToValue, value)
	return drifts, nil
}

func appendDrift(drifts []Drift, id int64, field string, stored, actual float64) []Drift {
	if decimal.NewFromFloat(stored).Equal(decimal.NewFromFloat(actual)) {
		return drifts
	}
	return append(drifts, Drift{EntityID: id, Field: field, Stored: stored, Actual: actual})
}

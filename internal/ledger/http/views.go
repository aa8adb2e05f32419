package ledgerhttp

import (
	"time"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

type periodView struct {
	ID           int64      `json:"id"`
	Status       string     `json:"status"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	AccountCount int        `json:"account_count"`
	RecordCount  int        `json:"record_count"`
	EndValue     float64    `json:"end_value"`
	Spectators   []int64    `json:"spectators"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toPeriodView(p ledger.Period) periodView {
	return periodView{
		ID:           p.ID,
		Status:       string(p.Status),
		ClosedAt:     p.ClosedAt,
		AccountCount: p.AccountCount,
		RecordCount:  p.RecordCount,
		EndValue:     p.EndValue,
		Spectators:   nonNil(p.Spectators),
		CreatedAt:    p.CreatedAt,
	}
}

type accountView struct {
	ID          int64   `json:"id"`
	PeriodID    int64   `json:"period_id"`
	LedgerID    int64   `json:"ledger_id"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	RecordCount int     `json:"record_count"`
	FromValue   float64 `json:"from_value"`
	ToValue     float64 `json:"to_value"`
	Spectators  []int64 `json:"spectators"`
}

func toAccountView(a ledger.Account) accountView {
	return accountView{
		ID:          a.ID,
		PeriodID:    a.PeriodID,
		LedgerID:    a.LedgerID,
		Type:        string(a.Type),
		Status:      string(a.Status),
		RecordCount: a.RecordCount,
		FromValue:   a.FromValue,
		ToValue:     a.ToValue,
		Spectators:  nonNil(a.Spectators),
	}
}

type recordView struct {
	ID        int64   `json:"id"`
	AccountID int64   `json:"account_id"`
	Value     float64 `json:"value"`
	ValueType string  `json:"value_type"`
	Status    string  `json:"status"`
}

func toRecordView(r ledger.Record) recordView {
	return recordView{
		ID:        r.ID,
		AccountID: r.AccountID,
		Value:     r.Value,
		ValueType: string(r.ValueType),
		Status:    string(r.Status),
	}
}

type changedView struct {
	Changed bool `json:"changed"`
}

type driftView struct {
	EntityID int64   `json:"entity_id"`
	Field    string  `json:"field"`
	Stored   float64 `json:"stored"`
	Actual   float64 `json:"actual"`
}

type reconcileView struct {
	PeriodID     int64       `json:"period_id"`
	AccountCount int         `json:"account_count"`
	RecordCount  int         `json:"record_count"`
	EndValue     float64     `json:"end_value"`
	Drifts       []driftView `json:"drifts"`
}

func toReconcileView(r ledger.ReconcileReport) reconcileView {
	out := reconcileView{
		PeriodID:     r.PeriodID,
		AccountCount: r.AccountCount,
		RecordCount:  r.RecordCount,
		EndValue:     r.EndValue,
		Drifts:       make([]driftView, 0, len(r.Drifts)),
	}
	for _, d := range r.Drifts {
		out.Drifts = append(out.Drifts, driftView(d))
	}
	return out
}

type periodRequest struct {
	Spectators []int64 `json:"spectators"`
}

type accountRequest struct {
	LedgerID   int64   `json:"ledger_id"`
	Type       string  `json:"type"`
	FromValue  float64 `json:"from_value"`
	Spectators []int64 `json:"spectators"`
}

type ledgerIDRequest struct {
	LedgerID int64 `json:"ledger_id"`
}

type accountPatch struct {
	LedgerID   *int64   `json:"ledger_id"`
	Type       *string  `json:"type"`
	FromValue  *float64 `json:"from_value"`
	Spectators []int64  `json:"spectators"`
}

func (p accountPatch) input() ledger.UpdateAccountInput {
	in := ledger.UpdateAccountInput{LedgerID: p.LedgerID, FromValue: p.FromValue, Spectators: p.Spectators}
	if p.Type != nil {
		typ := ledger.AccountType(*p.Type)
		in.Type = &typ
	}
	return in
}

type recordRequest struct {
	Value     float64 `json:"value"`
	ValueType string  `json:"value_type"`
}

type recordPatch struct {
	Value     *float64 `json:"value"`
	ValueType *string  `json:"value_type"`
}

func (p recordPatch) input() ledger.UpdateRecordInput {
	in := ledger.UpdateRecordInput{Value: p.Value}
	if p.ValueType != nil {
		vt := ledger.ValueType(*p.ValueType)
		in.ValueType = &vt
	}
	return in
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

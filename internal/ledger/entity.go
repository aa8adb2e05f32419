package ledger

import (
	"time"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// Status mirrors the document status of an entity.
type Status = docstore.Status

// Entity statuses used by the ledger.
const (
	StatusOpen   = docstore.StatusPublic
	StatusClosed = docstore.StatusClosed
	StatusTrash  = docstore.StatusTrash
)

// Kind mirrors docstore kinds.
type Kind = docstore.Kind

const (
	KindPeriod  = docstore.KindPeriod
	KindAccount = docstore.KindAccount
	KindRecord  = docstore.KindRecord
)

// AccountType decides whether an account feeds the period result.
type AccountType string

const (
	AccountTypeUnset   AccountType = ""
	AccountTypeResult  AccountType = "result"
	AccountTypeCapital AccountType = "capital"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeUnset, AccountTypeResult, AccountTypeCapital:
		return true
	default:
		return false
	}
}

// ValueType is the side a record is booked on.
type ValueType string

const (
	Debit  ValueType = "debit"
	Credit ValueType = "credit"
)

// Metadata keys persisted per entity.
const (
	MetaClosed             = "closed"
	MetaAccountCount       = "account_count"
	MetaRecordCount        = "record_count"
	MetaEndValue           = "end_value"
	MetaPriorStatus        = "status"
	MetaSpectators         = "spectators"
	MetaPreTrashedAccounts = "pre_trashed_accounts"

	MetaPeriodID          = "period_id"
	MetaLegacyYearID      = "year_id"
	MetaLedgerID          = "ledger_id"
	MetaAccountType       = "account_type"
	MetaFromValue         = "from_value"
	MetaToValue           = "to_value"
	MetaPreTrashedRecords = "pre_trashed_records"

	MetaValue     = "value"
	MetaValueType = "value_type"
)

// Period is a fiscal year, the root of the hierarchy.
type Period struct {
	ID           int64
	Status       Status
	PriorStatus  Status
	TrashedFrom  Status
	ClosedAt     *time.Time
	AccountCount int
	RecordCount  int
	EndValue     float64
	Spectators   []int64
	PreTrashed   Cascade
	AuthorID     int64
	CreatedAt    time.Time
}

// IsOpen reports whether the period accepts changes.
func (p Period) IsOpen() bool {
	return p.Status == StatusOpen
}

// RestoresTo is the status an untrash brings the period back to. A missing or
// unusable remembered status restores it as open.
func (p Period) RestoresTo() Status {
	if p.TrashedFrom == StatusTrash || !docstore.ValidStatus(p.TrashedFrom) {
		return StatusOpen
	}
	return p.TrashedFrom
}

// Account is a ledger account within one period.
type Account struct {
	ID          int64
	PeriodID    int64
	LedgerID    int64
	Type        AccountType
	RecordCount int
	FromValue   float64
	ToValue     float64
	Spectators  []int64
	Status      Status
	PreTrashed  Cascade
	AuthorID    int64
	CreatedAt   time.Time
}

// IsOpen reports whether the account accepts changes.
func (a Account) IsOpen() bool {
	return a.Status == StatusOpen
}

// Record is a single debit or credit entry.
type Record struct {
	ID        int64
	AccountID int64
	Value     float64
	ValueType ValueType
	Status    Status
	AuthorID  int64
	CreatedAt time.Time
}

// Signed returns the record's contribution to a balance: credit adds, debit subtracts.
func (r Record) Signed() float64 {
	if r.ValueType == Debit {
		return -r.Value
	}
	return r.Value
}

func hasSpectator(list []int64, userID int64) bool {
	for _, id := range list {
		if id == userID {
			return true
		}
	}
	return false
}

// HasSpectator reports whether userID may read the period.
func (p Period) HasSpectator(userID int64) bool { return hasSpectator(p.Spectators, userID) }

// HasSpectator reports whether userID may read the account.
func (a Account) HasSpectator(userID int64) bool { return hasSpectator(a.Spectators, userID) }

package ledger

// CreatePeriodInput carries the optional fields of a new period.
type CreatePeriodInput struct {
	Spectators []int64 `validate:"dive,gt=0"`
}

// CreateAccountInput carries the fields of a new account. A zero LedgerID leaves the
// account unnumbered.
type CreateAccountInput struct {
	LedgerID   int64       `validate:"gte=0"`
	Type       AccountType `validate:"omitempty,oneof=result capital"`
	FromValue  float64
	Spectators []int64 `validate:"dive,gt=0"`
}

// UpdateAccountInput changes only the fields that are set.
type UpdateAccountInput struct {
	LedgerID   *int64
	Type       *AccountType
	FromValue  *float64
	Spectators []int64 `validate:"omitempty,dive,gt=0"`
}

// RecordInput carries the fields of a new record.
type RecordInput struct {
	Value     float64   `validate:"gte=0"`
	ValueType ValueType `validate:"required,oneof=debit credit"`
}

// UpdateRecordInput changes only the fields that are set.
type UpdateRecordInput struct {
	Value     *float64   `validate:"omitempty,gte=0"`
	ValueType *ValueType `validate:"omitempty,oneof=debit credit"`
}

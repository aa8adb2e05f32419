package ledger

import (
	"errors"
	"fmt"
)

// ErrNotAllowed is the capability denial every lifecycle guard wraps.
var ErrNotAllowed = errors.New("ledger: not allowed")

var (
	// ErrNotFound indicates the id does not resolve to an entity of the expected kind.
	ErrNotFound = errors.New("ledger: entity not found")
	// ErrInsertFailed indicates the underlying document could not be created.
	ErrInsertFailed = errors.New("ledger: insert failed")
	// ErrInvalidInput indicates request validation failed.
	ErrInvalidInput = errors.New("ledger: invalid input")
)

// Guard reasons. Each wraps ErrNotAllowed so callers can test either the generic
// denial or the specific cause.
var (
	ErrPeriodAlreadyOpen = fmt.Errorf("%w: another period is already open", ErrNotAllowed)
	ErrPeriodClosed      = fmt.Errorf("%w: period is closed", ErrNotAllowed)
	ErrPeriodNotClosed   = fmt.Errorf("%w: period is not closed", ErrNotAllowed)
	ErrAccountsStillOpen = fmt.Errorf("%w: close accounts before closing the period", ErrNotAllowed)
	ErrOtherPeriodOpen   = fmt.Errorf("%w: another period is open", ErrNotAllowed)
	ErrPeriodHasRecords  = fmt.Errorf("%w: open period still has records", ErrNotAllowed)
	ErrAccountClosed     = fmt.Errorf("%w: account is closed", ErrNotAllowed)
	ErrAccountHasRecords = fmt.Errorf("%w: cannot delete account with records", ErrNotAllowed)
	ErrTrashed           = fmt.Errorf("%w: entity is in the trash", ErrNotAllowed)
	ErrHookRejected      = fmt.Errorf("%w: rejected by hook", ErrNotAllowed)
)

// Ledger id message codes surfaced to the edit form.
const (
	CodeLedgerIDTaken   = 12
	CodeLedgerIDCleared = 13
)

// LedgerIDError rejects a ledger id write before anything is persisted.
type LedgerIDError struct {
	AccountID int64
	LedgerID  int64
	Code      int
}

func (e *LedgerIDError) Error() string {
	switch e.Code {
	case CodeLedgerIDTaken:
		return fmt.Sprintf("ledger: ledger id %d already in use in this period", e.LedgerID)
	case CodeLedgerIDCleared:
		return "ledger: ledger id cannot be cleared"
	default:
		return fmt.Sprintf("ledger: ledger id %d rejected", e.LedgerID)
	}
}

// MessageCode returns the numeric code the edit form understands.
func (e *LedgerIDError) MessageCode() int {
	return e.Code
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *LedgerIDError) Unwrap() error {
	return ErrInvalidInput
}

package ledger

// The guards below are pure: they look only at the state handed to them and never
// touch the store. Service loads the state, the rbac layer reuses the same checks.

// CanCreatePeriod denies a new period while any period is open.
func CanCreatePeriod(openPeriods []int64) error {
	if len(openPeriods) > 0 {
		return ErrPeriodAlreadyOpen
	}
	return nil
}

// CanClosePeriod requires an open period whose accounts are all closed.
func CanClosePeriod(p Period, openAccounts int) error {
	if p.Status == StatusTrash {
		return ErrTrashed
	}
	if !p.IsOpen() {
		return ErrPeriodClosed
	}
	if openAccounts > 0 {
		return ErrAccountsStillOpen
	}
	return nil
}

// CanOpenPeriod denies a reopen while a different period is open.
func CanOpenPeriod(p Period, otherOpen bool) error {
	if p.Status == StatusTrash {
		return ErrTrashed
	}
	if otherOpen {
		return ErrOtherPeriodOpen
	}
	return nil
}

// CanDeletePeriod allows an open period without records, or a closed one while no
// other period is open. Trash and hard delete share this guard.
func CanDeletePeriod(p Period, otherOpen bool) error {
	if p.IsOpen() {
		if p.RecordCount > 0 {
			return ErrPeriodHasRecords
		}
		return nil
	}
	if otherOpen {
		return ErrOtherPeriodOpen
	}
	return nil
}

// CanUntrashPeriod denies restoring an open period next to another open one.
func CanUntrashPeriod(restoresTo Status, otherOpen bool) error {
	if restoresTo == StatusOpen && otherOpen {
		return ErrOtherPeriodOpen
	}
	return nil
}

// CanEditPeriod requires the period to be open.
func CanEditPeriod(p Period) error {
	if p.Status == StatusTrash {
		return ErrTrashed
	}
	if !p.IsOpen() {
		return ErrPeriodClosed
	}
	return nil
}

// CanCreateAccount requires the parent period to be open.
func CanCreateAccount(p Period) error {
	return CanEditPeriod(p)
}

// CanEditAccount requires both the period and the account to be open.
func CanEditAccount(p Period, a Account) error {
	if err := CanEditPeriod(p); err != nil {
		return err
	}
	if a.Status == StatusTrash {
		return ErrTrashed
	}
	if !a.IsOpen() {
		return ErrAccountClosed
	}
	return nil
}

// CanCloseAccount only looks at the period; the account's records do not matter.
func CanCloseAccount(p Period, a Account) error {
	if err := CanEditPeriod(p); err != nil {
		return err
	}
	if a.Status == StatusTrash {
		return ErrTrashed
	}
	return nil
}

// CanDeleteAccount requires no live records and an open period.
func CanDeleteAccount(p Period, liveRecords int) error {
	if liveRecords > 0 {
		return ErrAccountHasRecords
	}
	return CanEditPeriod(p)
}

// CanTrashAccount requires an open period.
func CanTrashAccount(p Period) error {
	return CanEditPeriod(p)
}

// CanWriteRecord gates record create, edit, trash and delete.
func CanWriteRecord(p Period, a Account) error {
	if a.Status == StatusTrash {
		return ErrTrashed
	}
	if !a.IsOpen() {
		return ErrAccountClosed
	}
	if !p.IsOpen() {
		return ErrPeriodClosed
	}
	return nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// CreatePeriod opens a new period. Only one period may be open at a time.
func (s *Service) CreatePeriod(ctx context.Context, actorID int64, in CreatePeriodInput) (Period, error) {
	if err := s.check(in); err != nil {
		return Period{}, err
	}
	open, err := s.openPeriods(ctx)
	if err != nil {
		return Period{}, err
	}
	if err := CanCreatePeriod(open); err != nil {
		return Period{}, err
	}
	ev := s.event(OpCreate, KindPeriod, 0, 0, actorID)
	if err := s.before(ctx, ev); err != nil {
		return Period{}, err
	}
	meta := map[string]any{}
	if in.Spectators != nil {
		meta[MetaSpectators] = in.Spectators
	}
	id, err := s.entities.Insert(ctx, KindPeriod, Core{Status: StatusOpen, AuthorID: actorID}, meta)
	if err != nil {
		return Period{}, err
	}
	s.periodsChanged(ctx)
	ev.EntityID = id
	s.after(ctx, ev)
	return s.entities.Period(ctx, id)
}

// ClosePeriod closes an open period once all its accounts are closed. Closing a
// closed period is a no-op.
func (s *Service) ClosePeriod(ctx context.Context, actorID, id int64) (bool, error) {
	p, err := s.entities.Period(ctx, id)
	if err != nil {
		return false, err
	}
	if p.Status == StatusClosed {
		return false, nil
	}
	openAccounts, err := s.store.QueryChildren(ctx, id, KindAccount, StatusOpen)
	if err != nil {
		return false, translate(err)
	}
	if err := CanClosePeriod(p, len(openAccounts)); err != nil {
		return false, err
	}
	ev := s.event(OpClose, KindPeriod, id, 0, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	meta := s.entities.Meta()
	if err := meta.Update(ctx, id, MetaPriorStatus, string(p.Status)); err != nil {
		return false, err
	}
	if err := meta.Update(ctx, id, MetaClosed, ev.At.Format(time.RFC3339)); err != nil {
		return false, err
	}
	if err := s.store.SetStatus(ctx, id, StatusClosed); err != nil {
		return false, translate(err)
	}
	s.periodsChanged(ctx)
	s.after(ctx, ev)
	return true, nil
}

// OpenPeriod reopens a closed period, restoring the status it had before closing.
func (s *Service) OpenPeriod(ctx context.Context, actorID, id int64) (bool, error) {
	p, err := s.entities.Period(ctx, id)
	if err != nil {
		return false, err
	}
	if p.Status != StatusClosed && p.Status != StatusTrash {
		return false, nil
	}
	otherOpen, err := s.otherPeriodOpen(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanOpenPeriod(p, otherOpen); err != nil {
		return false, err
	}
	ev := s.event(OpOpen, KindPeriod, id, 0, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	restore := p.PriorStatus
	if restore == "" || restore == StatusClosed || restore == StatusTrash {
		restore = StatusOpen
	}
	if err := s.store.SetStatus(ctx, id, restore); err != nil {
		return false, translate(err)
	}
	meta := s.entities.Meta()
	if err := meta.Delete(ctx, id, MetaClosed); err != nil {
		return false, err
	}
	if err := meta.Delete(ctx, id, MetaPriorStatus); err != nil {
		return false, err
	}
	s.periodsChanged(ctx)
	s.after(ctx, ev)
	return true, nil
}

// DeletePeriod hard deletes a period together with all of its accounts and records.
func (s *Service) DeletePeriod(ctx context.Context, actorID, id int64) (bool, error) {
	p, err := s.entities.Period(ctx, id)
	if err != nil {
		return false, err
	}
	otherOpen, err := s.otherPeriodOpen(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanDeletePeriod(p, otherOpen); err != nil {
		return false, err
	}
	ev := s.event(OpDelete, KindPeriod, id, 0, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	accounts, err := s.store.QueryChildren(ctx, id, KindAccount)
	if err != nil {
		return false, translate(err)
	}
	if _, err := (Cascade{IDs: accounts}).Apply(ctx, s.deleteAccountTree); err != nil {
		s.reconcileAfterFailure(ctx, id, err)
		return false, fmt.Errorf("ledger: delete period %d: %w", id, err)
	}
	if err := s.store.DeleteDocument(ctx, id, true); err != nil {
		return false, translate(err)
	}
	s.periodsChanged(ctx)
	s.after(ctx, ev)
	return true, nil
}

// deleteAccountTree hard deletes every record of an account, trashed ones included,
// then the account. The account survives when any record could not be removed.
func (s *Service) deleteAccountTree(ctx context.Context, accountID int64) error {
	records, err := s.store.QueryChildren(ctx, accountID, KindRecord)
	if err != nil {
		return translate(err)
	}
	_, err = (Cascade{IDs: records}).Apply(ctx, func(ctx context.Context, id int64) error {
		return s.store.DeleteDocument(ctx, id, true)
	})
	if err != nil {
		return err
	}
	return translate(s.store.DeleteDocument(ctx, accountID, true))
}

// TrashPeriod moves a period and its live accounts to the trash, remembering exactly
// which accounts it trashed.
func (s *Service) TrashPeriod(ctx context.Context, actorID, id int64) (bool, error) {
	p, err := s.entities.Period(ctx, id)
	if err != nil {
		return false, err
	}
	if p.Status == StatusTrash {
		return false, nil
	}
	otherOpen, err := s.otherPeriodOpen(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanDeletePeriod(p, otherOpen); err != nil {
		return false, err
	}
	ev := s.event(OpTrash, KindPeriod, id, 0, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	accounts, err := s.store.QueryChildren(ctx, id, KindAccount, docstore.LiveStatuses()...)
	if err != nil {
		return false, translate(err)
	}
	applied, cascadeErr := (Cascade{IDs: accounts}).Apply(ctx, s.trashAccountTree)
	if err := s.entities.Meta().Update(ctx, id, MetaPreTrashedAccounts, applied.IDs); err != nil {
		return false, errors.Join(cascadeErr, err)
	}
	if err := s.store.TrashDocument(ctx, id); err != nil {
		return false, errors.Join(cascadeErr, translate(err))
	}
	if cascadeErr != nil {
		s.reconcileAfterFailure(ctx, id, cascadeErr)
		s.periodsChanged(ctx)
		return true, fmt.Errorf("ledger: trash period %d: %w", id, cascadeErr)
	}
	if err := s.balance.RefreshPeriod(ctx, id); err != nil {
		return true, err
	}
	s.periodsChanged(ctx)
	s.after(ctx, ev)
	return true, nil
}

// UntrashPeriod restores a trashed period and exactly the accounts its trash cascaded.
func (s *Service) UntrashPeriod(ctx context.Context, actorID, id int64) (bool, error) {
	p, err := s.entities.Period(ctx, id)
	if err != nil {
		return false, err
	}
	if p.Status != StatusTrash {
		return false, nil
	}
	otherOpen, err := s.otherPeriodOpen(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanUntrashPeriod(p.RestoresTo(), otherOpen); err != nil {
		return false, err
	}
	ev := s.event(OpUntrash, KindPeriod, id, 0, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.store.UntrashDocument(ctx, id); err != nil {
		return false, translate(err)
	}
	cascadeErr := p.PreTrashed.Reverse(ctx, s.untrashAccountTree)
	if err := s.entities.Meta().Update(ctx, id, MetaPreTrashedAccounts, []int64{}); err != nil {
		return true, errors.Join(cascadeErr, err)
	}
	s.periodsChanged(ctx)
	if cascadeErr != nil {
		s.reconcileAfterFailure(ctx, id, cascadeErr)
		return true, fmt.Errorf("ledger: untrash period %d: %w", id, cascadeErr)
	}
	if err := s.balance.RefreshPeriod(ctx, id); err != nil {
		return true, err
	}
	s.after(ctx, ev)
	return true, nil
}

// CreateAccount adds an account to an open period.
func (s *Service) CreateAccount(ctx context.Context, actorID, periodID int64, in CreateAccountInput) (Account, error) {
	if err := s.check(in); err != nil {
		return Account{}, err
	}
	p, err := s.entities.Period(ctx, periodID)
	if err != nil {
		return Account{}, err
	}
	if err := CanCreateAccount(p); err != nil {
		return Account{}, err
	}
	if in.LedgerID > 0 {
		if err := s.ledgerIDAvailable(ctx, periodID, 0, in.LedgerID); err != nil {
			return Account{}, err
		}
	}
	ev := s.event(OpCreate, KindAccount, 0, periodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return Account{}, err
	}
	meta := map[string]any{
		MetaPeriodID:    periodID,
		MetaLedgerID:    in.LedgerID,
		MetaAccountType: string(in.Type),
		MetaFromValue:   in.FromValue,
	}
	if in.Spectators != nil {
		meta[MetaSpectators] = in.Spectators
	}
	id, err := s.entities.Insert(ctx, KindAccount, Core{ParentID: periodID, Status: StatusOpen, AuthorID: actorID}, meta)
	if err != nil {
		return Account{}, err
	}
	if err := s.balance.RefreshPeriod(ctx, periodID); err != nil {
		return Account{}, err
	}
	ev.EntityID = id
	s.after(ctx, ev)
	return s.entities.Account(ctx, id)
}

// UpdateAccount edits an open account of an open period. Every field is checked
// before the first write. Changing the type moves the account in or out of the
// period result.
func (s *Service) UpdateAccount(ctx context.Context, actorID, id int64, in UpdateAccountInput) (Account, error) {
	if err := s.check(in); err != nil {
		return Account{}, err
	}
	if in.Type != nil && !in.Type.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, *in.Type)
	}
	a, p, err := s.accountWithPeriod(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if err := CanEditAccount(p, a); err != nil {
		return Account{}, err
	}
	if in.LedgerID != nil && (*in.LedgerID != a.LedgerID || *in.LedgerID <= 0) {
		if err := s.checkLedgerID(ctx, a, *in.LedgerID); err != nil {
			return Account{}, err
		}
	}
	ev := s.event(OpUpdate, KindAccount, id, a.PeriodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return Account{}, err
	}
	meta := s.entities.Meta()
	if in.LedgerID != nil {
		if err := meta.Update(ctx, id, MetaLedgerID, *in.LedgerID); err != nil {
			return Account{}, err
		}
	}
	if in.FromValue != nil {
		if err := meta.Update(ctx, id, MetaFromValue, *in.FromValue); err != nil {
			return Account{}, err
		}
	}
	if in.Spectators != nil {
		if err := meta.Update(ctx, id, MetaSpectators, in.Spectators); err != nil {
			return Account{}, err
		}
	}
	if in.Type != nil && *in.Type != a.Type {
		if err := meta.Update(ctx, id, MetaAccountType, string(*in.Type)); err != nil {
			return Account{}, err
		}
		if _, err := s.balance.RecomputePeriodEndValue(ctx, a.PeriodID, nil); err != nil {
			return Account{}, err
		}
	}
	s.after(ctx, ev)
	return s.entities.Account(ctx, id)
}

// SetLedgerID numbers an account. The id must be positive and unused by the other
// accounts of the period; on rejection nothing is written.
func (s *Service) SetLedgerID(ctx context.Context, actorID, id, ledgerID int64) (bool, error) {
	a, p, err := s.accountWithPeriod(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanEditAccount(p, a); err != nil {
		return false, err
	}
	if ledgerID == a.LedgerID && ledgerID > 0 {
		return false, nil
	}
	if err := s.checkLedgerID(ctx, a, ledgerID); err != nil {
		return false, err
	}
	ev := s.event(OpUpdate, KindAccount, id, a.PeriodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.entities.Meta().Update(ctx, id, MetaLedgerID, ledgerID); err != nil {
		return false, err
	}
	s.after(ctx, ev)
	return true, nil
}

func (s *Service) checkLedgerID(ctx context.Context, a Account, ledgerID int64) error {
	if ledgerID <= 0 {
		return &LedgerIDError{AccountID: a.ID, LedgerID: ledgerID, Code: CodeLedgerIDCleared}
	}
	return s.ledgerIDAvailable(ctx, a.PeriodID, a.ID, ledgerID)
}

// ledgerIDAvailable compares against every sibling, trashed ones included, since an
// untrash would otherwise bring back a duplicate.
func (s *Service) ledgerIDAvailable(ctx context.Context, periodID, self, ledgerID int64) error {
	siblings, err := s.store.QueryChildren(ctx, periodID, KindAccount)
	if err != nil {
		return translate(err)
	}
	meta := s.entities.Meta()
	for _, sibling := range siblings {
		if sibling == self {
			continue
		}
		taken, err := meta.ID(ctx, sibling, MetaLedgerID)
		if err != nil {
			return err
		}
		if taken == ledgerID {
			return &LedgerIDError{AccountID: self, LedgerID: ledgerID, Code: CodeLedgerIDTaken}
		}
	}
	return nil
}

// CloseAccount closes an account of an open period.
func (s *Service) CloseAccount(ctx context.Context, actorID, id int64) (bool, error) {
	return s.setAccountStatus(ctx, actorID, id, StatusClosed, OpClose)
}

// OpenAccount reopens a closed account of an open period.
func (s *Service) OpenAccount(ctx context.Context, actorID, id int64) (bool, error) {
	return s.setAccountStatus(ctx, actorID, id, StatusOpen, OpOpen)
}

func (s *Service) setAccountStatus(ctx context.Context, actorID, id int64, target Status, op Op) (bool, error) {
	a, p, err := s.accountWithPeriod(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanCloseAccount(p, a); err != nil {
		return false, err
	}
	if a.Status == target {
		return false, nil
	}
	ev := s.event(op, KindAccount, id, a.PeriodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.store.SetStatus(ctx, id, target); err != nil {
		return false, translate(err)
	}
	s.after(ctx, ev)
	return true, nil
}

// DeleteAccount hard deletes an account without live records, along with any
// trashed records it still owns.
func (s *Service) DeleteAccount(ctx context.Context, actorID, id int64) (bool, error) {
	a, p, err := s.accountWithPeriod(ctx, id)
	if err != nil {
		return false, err
	}
	live, err := s.store.QueryChildren(ctx, id, KindRecord, docstore.LiveStatuses()...)
	if err != nil {
		return false, translate(err)
	}
	if err := CanDeleteAccount(p, len(live)); err != nil {
		return false, err
	}
	ev := s.event(OpDelete, KindAccount, id, a.PeriodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.deleteAccountTree(ctx, id); err != nil {
		s.reconcileAfterFailure(ctx, a.PeriodID, err)
		return false, fmt.Errorf("ledger: delete account %d: %w", id, err)
	}
	if err := s.balance.RefreshPeriod(ctx, a.PeriodID); err != nil {
		return true, err
	}
	s.after(ctx, ev)
	return true, nil
}

// TrashAccount trashes an account and its public records, remembering which records
// the cascade touched.
func (s *Service) TrashAccount(ctx context.Context, actorID, id int64) (bool, error) {
	a, p, err := s.accountWithPeriod(ctx, id)
	if err != nil {
		return false, err
	}
	if a.Status == StatusTrash {
		return false, nil
	}
	if err := CanTrashAccount(p); err != nil {
		return false, err
	}
	ev := s.event(OpTrash, KindAccount, id, a.PeriodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.trashAccountTree(ctx, id); err != nil {
		s.reconcileAfterFailure(ctx, a.PeriodID, err)
		return true, fmt.Errorf("ledger: trash account %d: %w", id, err)
	}
	if err := s.balance.RefreshPeriod(ctx, a.PeriodID); err != nil {
		return true, err
	}
	s.after(ctx, ev)
	return true, nil
}

// UntrashAccount restores an account and exactly the records its trash cascaded.
func (s *Service) UntrashAccount(ctx context.Context, actorID, id int64) (bool, error) {
	a, p, err := s.accountWithPeriod(ctx, id)
	if err != nil {
		return false, err
	}
	if a.Status != StatusTrash {
		return false, nil
	}
	if err := CanTrashAccount(p); err != nil {
		return false, err
	}
	ev := s.event(OpUntrash, KindAccount, id, a.PeriodID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.untrashAccountTree(ctx, id); err != nil {
		s.reconcileAfterFailure(ctx, a.PeriodID, err)
		return true, fmt.Errorf("ledger: untrash account %d: %w", id, err)
	}
	if err := s.balance.RefreshPeriod(ctx, a.PeriodID); err != nil {
		return true, err
	}
	s.after(ctx, ev)
	return true, nil
}

func (s *Service) trashAccountTree(ctx context.Context, accountID int64) error {
	public, err := s.store.QueryChildren(ctx, accountID, KindRecord, StatusOpen)
	if err != nil {
		return translate(err)
	}
	applied, cascadeErr := (Cascade{IDs: public}).Apply(ctx, s.store.TrashDocument)
	if err := s.entities.Meta().Update(ctx, accountID, MetaPreTrashedRecords, applied.IDs); err != nil {
		return errors.Join(cascadeErr, err)
	}
	if err := s.store.TrashDocument(ctx, accountID); err != nil {
		return errors.Join(cascadeErr, translate(err))
	}
	if err := s.balance.RefreshAccount(ctx, accountID); err != nil {
		return errors.Join(cascadeErr, err)
	}
	return cascadeErr
}

func (s *Service) untrashAccountTree(ctx context.Context, accountID int64) error {
	meta := s.entities.Meta()
	cascaded, err := meta.IDs(ctx, accountID, MetaPreTrashedRecords)
	if err != nil {
		return err
	}
	if err := s.store.UntrashDocument(ctx, accountID); err != nil {
		return translate(err)
	}
	cascadeErr := (Cascade{IDs: cascaded}).Reverse(ctx, s.store.UntrashDocument)
	if err := meta.Update(ctx, accountID, MetaPreTrashedRecords, []int64{}); err != nil {
		return errors.Join(cascadeErr, err)
	}
	if err := s.balance.RefreshAccount(ctx, accountID); err != nil {
		return errors.Join(cascadeErr, err)
	}
	return cascadeErr
}

func (s *Service) accountWithPeriod(ctx context.Context, id int64) (Account, Period, error) {
	a, err := s.entities.Account(ctx, id)
	if err != nil {
		return Account{}, Period{}, err
	}
	p, err := s.entities.Period(ctx, a.PeriodID)
	if err != nil {
		return Account{}, Period{}, fmt.Errorf("ledger: account %d period: %w", id, err)
	}
	return a, p, nil
}

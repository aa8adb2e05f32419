package ledger

import (
	"context"
	"fmt"
)

// CreateRecord books a debit or credit on an open account.
func (s *Service) CreateRecord(ctx context.Context, actorID, accountID int64, in RecordInput) (Record, error) {
	if err := s.check(in); err != nil {
		return Record{}, err
	}
	a, p, err := s.accountWithPeriod(ctx, accountID)
	if err != nil {
		return Record{}, err
	}
	if err := CanWriteRecord(p, a); err != nil {
		return Record{}, err
	}
	ev := s.event(OpCreate, KindRecord, 0, accountID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return Record{}, err
	}
	id, err := s.entities.Insert(ctx, KindRecord, Core{ParentID: accountID, Status: StatusOpen, AuthorID: actorID}, map[string]any{
		MetaValue:     in.Value,
		MetaValueType: string(in.ValueType),
	})
	if err != nil {
		return Record{}, err
	}
	if err := s.recordsChanged(ctx, a, 1); err != nil {
		return Record{}, err
	}
	ev.EntityID = id
	s.after(ctx, ev)
	return s.entities.Record(ctx, id)
}

// UpdateRecord changes the amount or side of a live record.
func (s *Service) UpdateRecord(ctx context.Context, actorID, id int64, in UpdateRecordInput) (Record, error) {
	if err := s.check(in); err != nil {
		return Record{}, err
	}
	r, a, p, err := s.recordChain(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if r.Status == StatusTrash {
		return Record{}, ErrTrashed
	}
	if err := CanWriteRecord(p, a); err != nil {
		return Record{}, err
	}
	ev := s.event(OpUpdate, KindRecord, id, a.ID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return Record{}, err
	}
	meta := s.entities.Meta()
	if in.Value != nil {
		if err := meta.Update(ctx, id, MetaValue, *in.Value); err != nil {
			return Record{}, err
		}
	}
	if in.ValueType != nil {
		if err := meta.Update(ctx, id, MetaValueType, string(*in.ValueType)); err != nil {
			return Record{}, err
		}
	}
	if err := s.recordsChanged(ctx, a, 0); err != nil {
		return Record{}, err
	}
	s.after(ctx, ev)
	return s.entities.Record(ctx, id)
}

// DeleteRecord hard deletes a record.
func (s *Service) DeleteRecord(ctx context.Context, actorID, id int64) (bool, error) {
	r, a, p, err := s.recordChain(ctx, id)
	if err != nil {
		return false, err
	}
	if err := CanWriteRecord(p, a); err != nil {
		return false, err
	}
	ev := s.event(OpDelete, KindRecord, id, a.ID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := s.store.DeleteDocument(ctx, id, true); err != nil {
		return false, translate(err)
	}
	delta := 0
	if r.Status != StatusTrash {
		delta = -1
	}
	if err := s.recordsChanged(ctx, a, delta); err != nil {
		return true, err
	}
	s.after(ctx, ev)
	return true, nil
}

// TrashRecord moves a record to the trash.
func (s *Service) TrashRecord(ctx context.Context, actorID, id int64) (bool, error) {
	return s.toggleRecordTrash(ctx, actorID, id, true)
}

// UntrashRecord restores a trashed record.
func (s *Service) UntrashRecord(ctx context.Context, actorID, id int64) (bool, error) {
	return s.toggleRecordTrash(ctx, actorID, id, false)
}

func (s *Service) toggleRecordTrash(ctx context.Context, actorID, id int64, trash bool) (bool, error) {
	r, a, p, err := s.recordChain(ctx, id)
	if err != nil {
		return false, err
	}
	if (r.Status == StatusTrash) == trash {
		return false, nil
	}
	if err := CanWriteRecord(p, a); err != nil {
		return false, err
	}
	op, delta, apply := OpUntrash, 1, s.store.UntrashDocument
	if trash {
		op, delta, apply = OpTrash, -1, s.store.TrashDocument
	}
	ev := s.event(op, KindRecord, id, a.ID, actorID)
	if err := s.before(ctx, ev); err != nil {
		return false, err
	}
	if err := apply(ctx, id); err != nil {
		return false, translate(err)
	}
	if err := s.recordsChanged(ctx, a, delta); err != nil {
		return true, err
	}
	s.after(ctx, ev)
	return true, nil
}

// recordsChanged propagates a record mutation up the hierarchy. A non-zero delta
// bumps the account count instead of recounting it.
func (s *Service) recordsChanged(ctx context.Context, a Account, delta int) error {
	if delta != 0 {
		if _, err := s.balance.BumpAccountRecordCount(ctx, a.ID, delta); err != nil {
			return err
		}
	}
	if _, err := s.balance.RecomputeAccountToValue(ctx, a.ID, nil); err != nil {
		return err
	}
	if _, err := s.balance.RecountPeriodRecords(ctx, a.PeriodID); err != nil {
		return err
	}
	_, err := s.balance.RecomputePeriodEndValue(ctx, a.PeriodID, nil)
	return err
}

func (s *Service) recordChain(ctx context.Context, id int64) (Record, Account, Period, error) {
	r, err := s.entities.Record(ctx, id)
	if err != nil {
		return Record{}, Account{}, Period{}, err
	}
	a, p, err := s.accountWithPeriod(ctx, r.AccountID)
	if err != nil {
		return Record{}, Account{}, Period{}, fmt.Errorf("ledger: record %d account: %w", id, err)
	}
	return r, a, p, nil
}

package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

// Ledger is the read side of the ledger the authorizer inspects.
type Ledger interface {
	GetPeriod(ctx context.Context, id int64) (ledger.Period, error)
	GetAccount(ctx context.Context, id int64) (ledger.Account, error)
	GetRecord(ctx context.Context, id int64) (ledger.Record, error)
	ListPeriods(ctx context.Context, statuses ...ledger.Status) ([]ledger.Period, error)
	ListAccounts(ctx context.Context, periodID int64) ([]ledger.Account, error)
	ListRecords(ctx context.Context, accountID int64) ([]ledger.Record, error)
}

type capabilityKey struct {
	action Action
	kind   ledger.Kind
}

// rolePredicate checks the principal, with the loaded subject at hand for spectator lists.
type rolePredicate func(a *Authorizer, p Principal, s subject) bool

// stateGuard composes the ledger lifecycle guards for one request.
type stateGuard func(s subject) error

// Rule pairs a role predicate with the ledger guard it must also satisfy.
type Rule struct {
	Role  rolePredicate
	Guard stateGuard
	// Load names the entity state the rule needs before it can run.
	Load loadFunc
}

type subject struct {
	period      ledger.Period
	account     ledger.Account
	record      ledger.Record
	openPeriods []int64
	openAccts   int
	liveRecords int
	soft        bool
	reverse     bool
}

type loadFunc func(ctx context.Context, a *Authorizer, req Request) (subject, error)

// Authorizer decides actions against a data-driven rule table.
type Authorizer struct {
	ledger     Ledger
	current    ledger.PeriodResolver
	spectators map[int64]struct{}
	rules      map[capabilityKey]Rule
}

// NewAuthorizer builds an Authorizer. globalSpectators may read every period and
// account; current resolves the parent of account creates that name no period.
func NewAuthorizer(l Ledger, current ledger.PeriodResolver, globalSpectators []int64) *Authorizer {
	a := &Authorizer{
		ledger:     l,
		current:    current,
		spectators: make(map[int64]struct{}, len(globalSpectators)),
		rules:      defaultRules(),
	}
	for _, id := range globalSpectators {
		a.spectators[id] = struct{}{}
	}
	return a
}

// Decide returns whether principal may perform req.
func (a *Authorizer) Decide(ctx context.Context, principal Principal, req Request) Decision {
	rule, ok := a.rules[capabilityKey{req.Action, req.Kind}]
	if !ok {
		return Decision{Reason: ErrNoRule}
	}
	var subj subject
	if rule.Load != nil {
		var err error
		subj, err = rule.Load(ctx, a, req)
		if err != nil {
			return Decision{Reason: err}
		}
	}
	subj.soft = req.Soft
	subj.reverse = req.Reverse
	if rule.Role != nil && !rule.Role(a, principal, subj) {
		if req.Action == ActionRead {
			return Decision{Reason: ErrNotSpectator}
		}
		return Decision{Reason: ErrRoleRequired}
	}
	if rule.Guard != nil {
		if err := rule.Guard(subj); err != nil {
			return Decision{Reason: err}
		}
	}
	return Decision{Allowed: true}
}

func (a *Authorizer) globalSpectator(p Principal) bool {
	if p.Has(RoleSpectator) {
		return true
	}
	_, ok := a.spectators[p.UserID]
	return ok
}

func elevated(_ *Authorizer, p Principal, _ subject) bool { return p.Elevated() }

func adminOnly(_ *Authorizer, p Principal, _ subject) bool { return p.Has(RoleAdmin) }

func canReadPeriod(a *Authorizer, p Principal, s subject) bool {
	return p.Elevated() || a.globalSpectator(p) || s.period.HasSpectator(p.UserID)
}

func canReadAccount(a *Authorizer, p Principal, s subject) bool {
	return p.Elevated() || a.globalSpectator(p) || s.account.HasSpectator(p.UserID)
}

func loadPeriod(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	p, err := a.ledger.GetPeriod(ctx, req.EntityID)
	return subject{period: p}, err
}

func loadPeriodForClose(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	s, err := loadPeriod(ctx, a, req)
	if err != nil {
		return s, err
	}
	if s.openPeriods, err = a.openPeriodsExcept(ctx, s.period.ID); err != nil {
		return s, err
	}
	accounts, err := a.ledger.ListAccounts(ctx, s.period.ID)
	if err != nil {
		return s, err
	}
	for _, acct := range accounts {
		if acct.IsOpen() {
			s.openAccts++
		}
	}
	return s, nil
}

func loadPeriodWithOthers(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	s, err := loadPeriod(ctx, a, req)
	if err != nil {
		return s, err
	}
	s.openPeriods, err = a.openPeriodsExcept(ctx, s.period.ID)
	return s, err
}

func loadOpenPeriods(ctx context.Context, a *Authorizer, _ Request) (subject, error) {
	ids, err := a.openPeriodsExcept(ctx, 0)
	return subject{openPeriods: ids}, err
}

func loadParentPeriod(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	periodID := req.ParentID
	if periodID == 0 && a.current != nil {
		id, err := a.current.CurrentPeriodID(ctx)
		if err != nil {
			return subject{}, err
		}
		periodID = id
	}
	p, err := a.ledger.GetPeriod(ctx, periodID)
	return subject{period: p}, err
}

func (a *Authorizer) accountChain(ctx context.Context, accountID int64) (subject, error) {
	acct, err := a.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return subject{}, err
	}
	p, err := a.ledger.GetPeriod(ctx, acct.PeriodID)
	if err != nil {
		return subject{}, err
	}
	return subject{period: p, account: acct}, nil
}

func loadAccount(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	return a.accountChain(ctx, req.EntityID)
}

func loadAccountForDelete(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	s, err := a.accountChain(ctx, req.EntityID)
	if err != nil || req.Soft {
		return s, err
	}
	records, err := a.ledger.ListRecords(ctx, s.account.ID)
	s.liveRecords = len(records)
	return s, err
}

func loadParentAccount(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	return a.accountChain(ctx, req.ParentID)
}

func loadRecord(ctx context.Context, a *Authorizer, req Request) (subject, error) {
	rec, err := a.ledger.GetRecord(ctx, req.EntityID)
	if err != nil {
		return subject{}, err
	}
	s, err := a.accountChain(ctx, rec.AccountID)
	s.record = rec
	return s, err
}

func (a *Authorizer) openPeriodsExcept(ctx context.Context, self int64) ([]int64, error) {
	open, err := a.ledger.ListPeriods(ctx, ledger.StatusOpen)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(open))
	for _, p := range open {
		if p.ID != self {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func writeRecordGuard(s subject) error {
	if s.record.Status == ledger.StatusTrash {
		return ledger.ErrTrashed
	}
	return ledger.CanWriteRecord(s.period, s.account)
}

func defaultRules() map[capabilityKey]Rule {
	return map[capabilityKey]Rule{
		{ActionRead, ledger.KindPeriod}:  {Role: canReadPeriod, Load: loadPeriod},
		{ActionRead, ledger.KindAccount}: {Role: canReadAccount, Load: loadAccount},
		{ActionRead, ledger.KindRecord}:  {Role: canReadAccount, Load: loadRecord},

		{ActionCreate, ledger.KindPeriod}: {Role: elevated, Load: loadOpenPeriods, Guard: func(s subject) error {
			return ledger.CanCreatePeriod(s.openPeriods)
		}},
		{ActionCreate, ledger.KindAccount}: {Role: elevated, Load: loadParentPeriod, Guard: func(s subject) error {
			return ledger.CanCreateAccount(s.period)
		}},
		{ActionCreate, ledger.KindRecord}: {Role: elevated, Load: loadParentAccount, Guard: func(s subject) error {
			return ledger.CanWriteRecord(s.period, s.account)
		}},

		{ActionEdit, ledger.KindPeriod}: {Role: elevated, Load: loadPeriod, Guard: func(s subject) error {
			return ledger.CanEditPeriod(s.period)
		}},
		{ActionEdit, ledger.KindAccount}: {Role: elevated, Load: loadAccount, Guard: func(s subject) error {
			return ledger.CanEditAccount(s.period, s.account)
		}},
		{ActionEdit, ledger.KindRecord}: {Role: elevated, Load: loadRecord, Guard: writeRecordGuard},

		// a request that already matches the current state passes through to the
		// service, which answers it as unchanged
		{ActionClose, ledger.KindPeriod}: {Role: elevated, Load: loadPeriodForClose, Guard: func(s subject) error {
			if s.reverse {
				if s.period.IsOpen() {
					return nil
				}
				return ledger.CanOpenPeriod(s.period, len(s.openPeriods) > 0)
			}
			if s.period.Status == ledger.StatusClosed {
				return nil
			}
			return ledger.CanClosePeriod(s.period, s.openAccts)
		}},
		{ActionClose, ledger.KindAccount}: {Role: elevated, Load: loadAccount, Guard: func(s subject) error {
			return ledger.CanCloseAccount(s.period, s.account)
		}},

		{ActionDelete, ledger.KindPeriod}: {Role: elevated, Load: loadPeriodWithOthers, Guard: func(s subject) error {
			trashed := s.period.Status == ledger.StatusTrash
			switch {
			case s.soft && s.reverse && !trashed, s.soft && !s.reverse && trashed:
				return nil
			case s.soft && s.reverse:
				return ledger.CanUntrashPeriod(s.period.RestoresTo(), len(s.openPeriods) > 0)
			}
			return ledger.CanDeletePeriod(s.period, len(s.openPeriods) > 0)
		}},
		{ActionDelete, ledger.KindAccount}: {Role: elevated, Load: loadAccountForDelete, Guard: func(s subject) error {
			if s.soft {
				return ledger.CanTrashAccount(s.period)
			}
			return ledger.CanDeleteAccount(s.period, s.liveRecords)
		}},
		{ActionDelete, ledger.KindRecord}: {Role: elevated, Load: loadRecord, Guard: func(s subject) error {
			return ledger.CanWriteRecord(s.period, s.account)
		}},

		{ActionAdmin, ledger.KindPeriod}:  {Role: adminOnly},
		{ActionAdmin, ledger.KindAccount}: {Role: adminOnly},
		{ActionAdmin, ledger.KindRecord}:  {Role: adminOnly},
	}
}

// Allow is Decide for callers that only need an error.
func (a *Authorizer) Allow(ctx context.Context, principal Principal, req Request) error {
	if err := a.Decide(ctx, principal, req).Err(); err != nil {
		if errors.Is(err, ledger.ErrNotAllowed) || errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return fmt.Errorf("rbac: decide %s %s: %w", req.Action, req.Kind, err)
	}
	return nil
}

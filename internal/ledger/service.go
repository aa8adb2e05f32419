package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// PeriodInvalidator is told whenever the set of open periods may have changed.
type PeriodInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service applies lifecycle transitions to periods, accounts and records and keeps
// the aggregates up to date.
type Service struct {
	store        docstore.Store
	entities     Entities
	balance      *Balancer
	validate     *validator.Validate
	logger       *slog.Logger
	hooks        []Hook
	invalidators []PeriodInvalidator
	now          func() time.Time
}

// NewService constructs a Service instance.
func NewService(store docstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		entities: NewEntities(store),
		balance:  NewBalancer(store),
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Use registers hooks in call order.
func (s *Service) Use(hooks ...Hook) {
	for _, h := range hooks {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// OnPeriodChange registers an invalidator called after period state changes.
func (s *Service) OnPeriodChange(inv PeriodInvalidator) {
	if inv != nil {
		s.invalidators = append(s.invalidators, inv)
	}
}

// Entities exposes typed loaders.
func (s *Service) Entities() Entities {
	return s.entities
}

// Balancer exposes the aggregate engine.
func (s *Service) Balancer() *Balancer {
	return s.balance
}

func (s *Service) event(op Op, kind Kind, id, parentID, actorID int64) Event {
	return Event{
		ID:       uuid.New(),
		Op:       op,
		Kind:     kind,
		EntityID: id,
		ParentID: parentID,
		ActorID:  actorID,
		At:       s.now().UTC(),
	}
}

func (s *Service) before(ctx context.Context, ev Event) error {
	for _, h := range s.hooks {
		if err := h.Before(ctx, ev); err != nil {
			return fmt.Errorf("%w: %w", ErrHookRejected, err)
		}
	}
	return nil
}

func (s *Service) after(ctx context.Context, ev Event) {
	for _, h := range s.hooks {
		h.After(ctx, ev)
	}
}

func (s *Service) periodsChanged(ctx context.Context) {
	for _, inv := range s.invalidators {
		if err := inv.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "open period invalidation failed", slog.Any("error", err))
		}
	}
}

func (s *Service) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// openPeriods lists every period currently open.
func (s *Service) openPeriods(ctx context.Context) ([]int64, error) {
	ids, err := s.store.QueryDocuments(ctx, KindPeriod, StatusOpen)
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (s *Service) otherPeriodOpen(ctx context.Context, self int64) (bool, error) {
	ids, err := s.openPeriods(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id != self {
			return true, nil
		}
	}
	return false, nil
}

// reconcileAfterFailure re-derives aggregates after a partial cascade so they match
// whatever persisted. The reconcile error is logged; the cascade error is what the
// caller sees.
func (s *Service) reconcileAfterFailure(ctx context.Context, periodID int64, cause error) {
	s.logger.WarnContext(ctx, "cascade partially failed, reconciling",
		slog.Int64("period_id", periodID), slog.Any("error", cause))
	if _, err := s.balance.ReconcilePeriod(ctx, periodID); err != nil {
		s.logger.ErrorContext(ctx, "reconcile after cascade failed",
			slog.Int64("period_id", periodID), slog.Any("error", err))
	}
}

// GetPeriod loads one period.
func (s *Service) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return s.entities.Period(ctx, id)
}

// GetAccount loads one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.entities.Account(ctx, id)
}

// GetRecord loads one record.
func (s *Service) GetRecord(ctx context.Context, id int64) (Record, error) {
	return s.entities.Record(ctx, id)
}

// ListPeriods returns periods filtered by status; no status means all of them.
func (s *Service) ListPeriods(ctx context.Context, statuses ...Status) ([]Period, error) {
	ids, err := s.store.QueryDocuments(ctx, KindPeriod, statuses...)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Period, 0, len(ids))
	for _, id := range ids {
		p, err := s.entities.Period(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListAccounts returns the live accounts of a period.
func (s *Service) ListAccounts(ctx context.Context, periodID int64) ([]Account, error) {
	if _, err := s.entities.Period(ctx, periodID); err != nil {
		return nil, err
	}
	ids, err := s.store.QueryChildren(ctx, periodID, KindAccount, docstore.LiveStatuses()...)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		a, err := s.entities.Account(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ListRecords returns the live records of an account.
func (s *Service) ListRecords(ctx context.Context, accountID int64) ([]Record, error) {
	if _, err := s.entities.Account(ctx, accountID); err != nil {
		return nil, err
	}
	ids, err := s.store.QueryChildren(ctx, accountID, KindRecord, docstore.LiveStatuses()...)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.entities.Record(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Reconcile recounts every aggregate of a period.
func (s *Service) Reconcile(ctx context.Context, periodID int64) (ReconcileReport, error) {
	return s.balance.ReconcilePeriod(ctx, periodID)
}

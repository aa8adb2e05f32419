package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/bookkeeping/internal/shared"
)

// Op names a lifecycle operation observed by hooks.
type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpClose   Op = "close"
	OpOpen    Op = "open"
	OpDelete  Op = "delete"
	OpTrash   Op = "trash"
	OpUntrash Op = "untrash"
)

// Event describes one mutation. EntityID is zero in the Before call of a create.
type Event struct {
	ID       uuid.UUID
	Op       Op
	Kind     Kind
	EntityID int64
	ParentID int64
	ActorID  int64
	At       time.Time
}

// Hook observes service mutations. A Before error aborts the operation before any
// write; After runs only once the mutation persisted.
type Hook interface {
	Before(ctx context.Context, ev Event) error
	After(ctx context.Context, ev Event)
}

// HookFuncs adapts plain functions to Hook. Nil members are skipped.
type HookFuncs struct {
	BeforeFunc func(ctx context.Context, ev Event) error
	AfterFunc  func(ctx context.Context, ev Event)
}

func (h HookFuncs) Before(ctx context.Context, ev Event) error {
	if h.BeforeFunc == nil {
		return nil
	}
	return h.BeforeFunc(ctx, ev)
}

func (h HookFuncs) After(ctx context.Context, ev Event) {
	if h.AfterFunc != nil {
		h.AfterFunc(ctx, ev)
	}
}

// LogHook logs every completed mutation.
type LogHook struct {
	Logger *slog.Logger
}

func (h LogHook) Before(context.Context, Event) error { return nil }

func (h LogHook) After(ctx context.Context, ev Event) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "ledger mutation",
		slog.String("event_id", ev.ID.String()),
		slog.String("op", string(ev.Op)),
		slog.String("kind", string(ev.Kind)),
		slog.Int64("entity_id", ev.EntityID),
		slog.Int64("actor_id", ev.ActorID),
	)
}

// AuditRecorder persists audit rows.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditHook writes every completed mutation to the audit log. Write failures are
// logged and never surface to the caller.
type AuditHook struct {
	Recorder AuditRecorder
	Logger   *slog.Logger
}

func (h AuditHook) Before(context.Context, Event) error { return nil }

func (h AuditHook) After(ctx context.Context, ev Event) {
	if h.Recorder == nil {
		return
	}
	err := h.Recorder.Record(ctx, shared.AuditLog{
		EventID:  ev.ID.String(),
		ActorID:  ev.ActorID,
		Action:   fmt.Sprintf("ledger.%s.%s", ev.Kind, ev.Op),
		Entity:   string(ev.Kind),
		EntityID: ev.EntityID,
		Meta:     map[string]any{"parent_id": ev.ParentID},
		At:       ev.At,
	})
	if err != nil && h.Logger != nil {
		h.Logger.ErrorContext(ctx, "audit write failed", slog.String("event_id", ev.ID.String()), slog.Any("error", err))
	}
}

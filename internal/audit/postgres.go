package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository reads ledger_audit_logs.
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository returns a repository over db.
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const timelineSelect = `SELECT event_id, actor_id, action, entity, entity_id, meta, occurred_at FROM ledger_audit_logs`

// Window implements Repository.
func (r *PostgresRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	args = append(args, limit, offset)
	sql := fmt.Sprintf("%s%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", timelineSelect, where, len(args)-1, len(args))
	return r.query(ctx, sql, args...)
}

// All implements Repository.
func (r *PostgresRepository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	return r.query(ctx, timelineSelect+where+" ORDER BY occurred_at DESC, id DESC", args...)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out      TimelineRow
			entityID string
			meta     []byte
		)
		if err := row.Scan(&out.EventID, &out.ActorID, &out.Action, &out.Entity, &entityID, &meta, &out.At); err != nil {
			return out, err
		}
		out.EntityID, _ = strconv.ParseInt(entityID, 10, 64)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return out, fmt.Errorf("audit: decode meta of %s: %w", out.EventID, err)
			}
		}
		return out, nil
	})
}

func timelineWhere(f TimelineFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To.UTC().Add(24*time.Hour))
	}
	if f.ActorID > 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if e := strings.TrimSpace(f.Entity); e != "" {
		add("entity = $%d", e)
	}
	if f.EntityID > 0 {
		add("entity_id = $%d", strconv.FormatInt(f.EntityID, 10))
	}
	if a := strings.TrimSpace(f.Action); a != "" {
		add("action = $%d", a)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

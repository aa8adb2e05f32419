package rbac

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// RoleStore resolves and maintains user roles.
type RoleStore interface {
	RolesFor(ctx context.Context, userID int64) ([]Role, error)
	Assign(ctx context.Context, userID int64, role Role) error
	Remove(ctx context.Context, userID int64, role Role) error
}

// DB is the subset of pgxpool.Pool the postgres store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRoleStore keeps role assignments in ledger_user_roles.
type PostgresRoleStore struct {
	db DB
}

// NewPostgresRoleStore constructs a store backed by the provided pool.
func NewPostgresRoleStore(db DB) *PostgresRoleStore {
	return &PostgresRoleStore{db: db}
}

// Migrate creates the role table when missing.
func (s *PostgresRoleStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS ledger_user_roles (
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, role)
)`)
	return err
}

// RolesFor returns the user's roles ordered by name. Unknown stored names are skipped.
func (s *PostgresRoleStore) RolesFor(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.db.Query(ctx, `SELECT role FROM ledger_user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		if r, err := ParseRole(name); err == nil {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// Assign grants a role; granting twice is harmless.
func (s *PostgresRoleStore) Assign(ctx context.Context, userID int64, role Role) error {
	_, err := s.db.Exec(ctx, `INSERT INTO ledger_user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, string(role))
	return err
}

// Remove revokes a role. Returns ErrNotFound if nothing was deleted.
func (s *PostgresRoleStore) Remove(ctx context.Context, userID int64, role Role) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM ledger_user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryRoleStore keeps assignments in process, for tests and the memory driver.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[int64]map[Role]struct{}
}

// NewMemoryRoleStore returns a store seeded with the given assignments.
func NewMemoryRoleStore(seed map[int64][]Role) *MemoryRoleStore {
	s := &MemoryRoleStore{roles: make(map[int64]map[Role]struct{})}
	for userID, roles := range seed {
		for _, r := range roles {
			_ = s.Assign(context.Background(), userID, r)
		}
	}
	return s
}

func (s *MemoryRoleStore) RolesFor(_ context.Context, userID int64) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles[userID]))
	for r := range s.roles[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryRoleStore) Assign(_ context.Context, userID int64, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[userID] == nil {
		s.roles[userID] = make(map[Role]struct{})
	}
	s.roles[userID][role] = struct{}{}
	return nil
}

func (s *MemoryRoleStore) Remove(_ context.Context, userID int64, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[userID][role]; !ok {
		return ErrNotFound
	}
	delete(s.roles[userID], role)
	return nil
}

// LoadPrincipal loads the roles of userID.
func LoadPrincipal(ctx context.Context, store RoleStore, userID int64) (Principal, error) {
	roles, err := store.RolesFor(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, Roles: roles}, nil
}

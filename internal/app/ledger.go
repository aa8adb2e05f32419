package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/bookkeeping/internal/audit"
	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/memory"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/postgres"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/sqlite"
	"github.com/odyssey-erp/bookkeeping/internal/ledger"
	"github.com/odyssey-erp/bookkeeping/internal/platform/cache"
	"github.com/odyssey-erp/bookkeeping/internal/platform/db"
	"github.com/odyssey-erp/bookkeeping/internal/rbac"
	"github.com/odyssey-erp/bookkeeping/internal/shared"
)

// Ledger bundles the ledger service with the infrastructure it runs on. The
// server, the worker and ledgerctl all build one.
type Ledger struct {
	Store    docstore.Store
	Service  *ledger.Service
	Resolver ledger.PeriodResolver
	Roles    rbac.RoleStore
	Audit    *audit.Service
	Pool     *pgxpool.Pool
	Redis    *redis.Client

	closers []func()
}

// OpenLedger opens the configured store, runs migrations and wires hooks, the
// open period cache and the role store. Redis is optional: without it the
// current period is read from the store on every call.
func OpenLedger(ctx context.Context, cfg *Config, logger *slog.Logger) (*Ledger, error) {
	l := &Ledger{}
	if err := l.openStore(ctx, cfg, logger); err != nil {
		l.Close()
		return nil, err
	}

	l.Service = ledger.NewService(l.Store, logger)
	l.Service.Use(ledger.LogHook{Logger: logger})

	if l.Pool != nil {
		auditLog := shared.NewAuditLogger(l.Pool)
		if err := auditLog.Migrate(ctx); err != nil {
			l.Close()
			return nil, fmt.Errorf("app: migrate audit log: %w", err)
		}
		l.Service.Use(ledger.AuditHook{Recorder: auditLog, Logger: logger})
		l.Audit = audit.NewService(audit.NewPostgresRepository(l.Pool))

		roles := rbac.NewPostgresRoleStore(l.Pool)
		if err := roles.Migrate(ctx); err != nil {
			l.Close()
			return nil, fmt.Errorf("app: migrate roles: %w", err)
		}
		l.Roles = roles
	} else {
		l.Roles = rbac.NewMemoryRoleStore(nil)
	}
	for _, id := range cfg.BootstrapAdmins {
		if err := l.Roles.Assign(ctx, id, rbac.RoleAdmin); err != nil {
			l.Close()
			return nil, fmt.Errorf("app: bootstrap admin %d: %w", id, err)
		}
	}

	locator := ledger.NewOpenPeriodLocator(l.Store)
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, open period cache disabled", slog.Any("error", err))
	} else {
		l.Redis = client
		l.closers = append(l.closers, func() { _ = client.Close() })
	}
	periodCache := ledger.NewOpenPeriodCache(locator, l.Redis, cfg.OpenPeriodCacheTTL)
	l.Service.OnPeriodChange(periodCache)
	l.Resolver = periodCache

	return l, nil
}

func (l *Ledger) openStore(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	switch cfg.StoreDriver {
	case StoreMemory:
		if cfg.IsProduction() {
			logger.Warn("memory store in production, data is lost on restart")
		}
		l.Store = memory.New()
	case StoreSQLite:
		conn, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		store := sqlite.New(conn)
		l.closers = append(l.closers, func() { _ = store.Close() })
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		l.Store = store
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{
			MaxConns:        cfg.PGMaxConns,
			MaxConnLifetime: time.Hour,
			ApplicationName: "bookkeeping",
		})
		if err != nil {
			return err
		}
		l.Pool = pool
		l.closers = append(l.closers, pool.Close)
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		l.Store = store
	default:
		return fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
	logger.Info("ledger store opened", slog.String("driver", cfg.StoreDriver))
	return nil
}

// Close releases everything OpenLedger acquired, newest first.
func (l *Ledger) Close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
	l.closers = nil
}

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/storetest"
	"github.com/odyssey-erp/bookkeeping/internal/platform/db"
)

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) docstore.Store {
		ctx := context.Background()
		pool, err := db.New(ctx, dsn, db.Options{MaxConns: 4})
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		store := New(pool)
		require.NoError(t, store.Migrate(ctx))
		_, err = pool.Exec(ctx, `TRUNCATE ledger_meta, ledger_documents RESTART IDENTITY`)
		require.NoError(t, err)
		return store
	})
}

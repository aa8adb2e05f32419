package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		conn, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		store := New(conn)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Migrate(context.Background()))
		return store
	})
}

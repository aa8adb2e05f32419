package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore/memory"
	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	srv := miniredis.RunT(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", srv.Addr())
	t.Setenv("LOG_FORMAT", "json")

	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestReconcileWithoutOpenPeriod(t *testing.T) {
	out, err := runCLI(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "no open period")
}

func TestReconcileUnknownPeriod(t *testing.T) {
	_, err := runCLI(t, "reconcile", "--period", "42")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRolesAssign(t *testing.T) {
	out, err := runCLI(t, "roles", "assign", "--user", "7", "--role", "accountant")
	require.NoError(t, err)
	assert.Equal(t, "granted accountant to 7\n", out)

	_, err = runCLI(t, "roles", "assign", "--user", "7", "--role", "auditor")
	require.Error(t, err)

	_, err = runCLI(t, "roles", "assign", "--role", "admin")
	require.Error(t, err)
}

const seedYAML = `actor: 1
spectators: [5]
accounts:
  - ledger_id: 100
    type: result
    records:
      - {value: 40, type: credit}
      - {value: 15, type: debit}
  - ledger_id: 200
    type: capital
    from_value: 10
`

func TestSeedAppliesFile(t *testing.T) {
	svc := ledger.NewService(memory.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	f, err := decodeSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	res, err := applySeed(context.Background(), svc, f)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accounts)
	assert.Equal(t, 2, res.Records)

	p, err := svc.GetPeriod(context.Background(), res.PeriodID)
	require.NoError(t, err)
	assert.InDelta(t, 25, p.EndValue, 1e-9)
	assert.Equal(t, 2, p.RecordCount)
}

func TestSeedRejectsUnknownFields(t *testing.T) {
	_, err := decodeSeed(strings.NewReader("actor: 1\nperiods: []\n"))
	require.Error(t, err)

	_, err = decodeSeed(strings.NewReader("accounts: []\n"))
	require.Error(t, err)
}

func TestSeedCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	out, err := runCLI(t, "seed", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "seeded period 1: 2 accounts, 2 records\n", out)
}

package shared

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type stubExecer struct {
	calls []execCall
}

func (s *stubExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &stubExecer{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{
		EventID: "ev-1", ActorID: 3, Action: "record.created", Entity: "record", EntityID: 42,
		Meta: map[string]any{"parent_id": 7},
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	assert.Equal(t, "ev-1", args[0])
	assert.Equal(t, int64(3), args[1])
	assert.Equal(t, "42", args[4])
	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[5].([]byte), &meta))
	assert.EqualValues(t, 7, meta["parent_id"])
	assert.Nil(t, args[6])
}

func TestAuditLoggerRejectsIncompleteLog(t *testing.T) {
	db := &stubExecer{}
	err := NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "record.created", Entity: "record"})
	require.Error(t, err)
	assert.Empty(t, db.calls)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Migrate(context.Background()))
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	id, ok := ActorFromContext(ContextWithActor(context.Background(), 9))
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

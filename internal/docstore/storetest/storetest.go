// Package storetest holds behaviour checks shared by every docstore adapter.
package storetest

import (
	"context"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// Run exercises an adapter returned by newStore against the docstore contract.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.CreateDocument(ctx, docstore.KindPeriod, 0, docstore.StatusPublic, 7)
		require.NoError(t, err)

		doc, err := s.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, docstore.KindPeriod, doc.Kind)
		assert.Equal(t, docstore.StatusPublic, doc.Status)
		assert.Equal(t, int64(7), doc.AuthorID)

		_, err = s.GetDocument(ctx, id+1000)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateDocument(context.Background(), docstore.Kind("page"), 0, docstore.StatusPublic, 1)
		assert.ErrorIs(t, err, docstore.ErrInvalidKind)
	})

	t.Run("meta round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.CreateDocument(ctx, docstore.KindAccount, 0, docstore.StatusPublic, 1)
		require.NoError(t, err)

		require.NoError(t, s.SetMeta(ctx, id, "to_value", 120.5))
		require.NoError(t, s.SetMeta(ctx, id, "spectators", []int64{3, 4}))

		v, ok, err := s.GetMeta(ctx, id, "to_value")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 120.5, cast.ToFloat64(v), 0.0001)

		v, ok, err = s.GetMeta(ctx, id, "spectators")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []int{3, 4}, cast.ToIntSlice(v))

		require.NoError(t, s.DeleteMeta(ctx, id, "to_value"))
		_, ok, err = s.GetMeta(ctx, id, "to_value")
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = s.GetMeta(ctx, id+1000, "to_value")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("trash remembers prior status", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.CreateDocument(ctx, docstore.KindAccount, 0, docstore.StatusClosed, 1)
		require.NoError(t, err)

		require.NoError(t, s.TrashDocument(ctx, id))
		require.NoError(t, s.TrashDocument(ctx, id))
		doc, err := s.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, docstore.StatusTrash, doc.Status)

		require.NoError(t, s.UntrashDocument(ctx, id))
		doc, err = s.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, docstore.StatusClosed, doc.Status)

		_, ok, err := s.GetMeta(ctx, id, docstore.TrashStatusKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("query children filters kind and status", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		parent, err := s.CreateDocument(ctx, docstore.KindAccount, 0, docstore.StatusPublic, 1)
		require.NoError(t, err)
		a, err := s.CreateDocument(ctx, docstore.KindRecord, parent, docstore.StatusPublic, 1)
		require.NoError(t, err)
		b, err := s.CreateDocument(ctx, docstore.KindRecord, parent, docstore.StatusPublic, 1)
		require.NoError(t, err)
		_, err = s.CreateDocument(ctx, docstore.KindRecord, parent+1000, docstore.StatusPublic, 1)
		require.NoError(t, err)
		require.NoError(t, s.TrashDocument(ctx, b))

		ids, err := s.QueryChildren(ctx, parent, docstore.KindRecord, docstore.StatusPublic)
		require.NoError(t, err)
		assert.Equal(t, []int64{a}, ids)

		ids, err = s.QueryChildren(ctx, parent, docstore.KindRecord)
		require.NoError(t, err)
		assert.Equal(t, []int64{a, b}, ids)

		ids, err = s.QueryChildren(ctx, parent, docstore.KindAccount)
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = s.QueryDocuments(ctx, docstore.KindAccount, docstore.StatusPublic)
		require.NoError(t, err)
		assert.Equal(t, []int64{parent}, ids)
	})

	t.Run("hard delete removes document", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.CreateDocument(ctx, docstore.KindRecord, 0, docstore.StatusPublic, 1)
		require.NoError(t, err)
		require.NoError(t, s.SetMeta(ctx, id, "value", 10))

		require.NoError(t, s.DeleteDocument(ctx, id, true))
		_, err = s.GetDocument(ctx, id)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.ErrorIs(t, s.DeleteDocument(ctx, id, true), docstore.ErrNotFound)
	})

	t.Run("soft delete trashes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.CreateDocument(ctx, docstore.KindRecord, 0, docstore.StatusPublic, 1)
		require.NoError(t, err)
		require.NoError(t, s.DeleteDocument(ctx, id, false))
		doc, err := s.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, docstore.StatusTrash, doc.Status)
	})
}

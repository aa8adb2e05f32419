package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	id    int64
	calls int
}

func (r *countingResolver) CurrentPeriodID(context.Context) (int64, error) {
	r.calls++
	return r.id, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestOpenPeriodCacheServesFromRedis(t *testing.T) {
	mr, client := newRedis(t)
	next := &countingResolver{id: 7}
	cache := NewOpenPeriodCache(next, client, time.Minute)
	ctx := context.Background()

	id, err := cache.CurrentPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = cache.CurrentPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 1, next.calls)

	cached, err := mr.Get(openPeriodKey)
	require.NoError(t, err)
	assert.Equal(t, "7", cached)

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists(openPeriodKey))

	_, err = cache.CurrentPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestOpenPeriodCacheFollowsServiceChanges(t *testing.T) {
	_, client := newRedis(t)
	f := newFixture(t)
	cache := NewOpenPeriodCache(NewOpenPeriodLocator(f.store), client, time.Minute)
	f.svc.OnPeriodChange(cache)

	_, err := cache.CurrentPeriodID(f.ctx)
	require.ErrorIs(t, err, ErrNoOpenPeriod)

	first := f.period()
	id, err := cache.CurrentPeriodID(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	f.closePeriod(first.ID)
	_, err = cache.CurrentPeriodID(f.ctx)
	require.ErrorIs(t, err, ErrNoOpenPeriod)

	second := f.period()
	id, err = cache.CurrentPeriodID(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
}

func TestOpenPeriodCacheWithoutRedis(t *testing.T) {
	next := &countingResolver{id: 3}
	cache := NewOpenPeriodCache(next, nil, 0)

	id, err := cache.CurrentPeriodID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NoError(t, cache.Invalidate(context.Background()))
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
)

// ErrNoOpenPeriod is returned when the boundary asks for the current period and none is open.
var ErrNoOpenPeriod = fmt.Errorf("%w: no open period", ErrNotFound)

// PeriodResolver resolves the open period for callers that were not given an id.
type PeriodResolver interface {
	CurrentPeriodID(ctx context.Context) (int64, error)
}

// OpenPeriodLocator queries the store for the open period.
type OpenPeriodLocator struct {
	store docstore.Store
}

// NewOpenPeriodLocator constructs a locator.
func NewOpenPeriodLocator(store docstore.Store) *OpenPeriodLocator {
	return &OpenPeriodLocator{store: store}
}

// CurrentPeriodID returns the open period, the newest one if the store somehow holds several.
func (l *OpenPeriodLocator) CurrentPeriodID(ctx context.Context) (int64, error) {
	ids, err := l.store.QueryDocuments(ctx, KindPeriod, StatusOpen)
	if err != nil {
		return 0, translate(err)
	}
	if len(ids) == 0 {
		return 0, ErrNoOpenPeriod
	}
	return ids[len(ids)-1], nil
}

const openPeriodKey = "ledger:open_period"

// OpenPeriodCache keeps the open period id in Redis. Concurrent misses share one
// lookup. A nil client degrades to the wrapped resolver.
type OpenPeriodCache struct {
	next   PeriodResolver
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewOpenPeriodCache decorates next with Redis caching.
func NewOpenPeriodCache(next PeriodResolver, client *redis.Client, ttl time.Duration) *OpenPeriodCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OpenPeriodCache{next: next, client: client, ttl: ttl}
}

// CurrentPeriodID serves from Redis when possible.
func (c *OpenPeriodCache) CurrentPeriodID(ctx context.Context) (int64, error) {
	if c.client == nil {
		return c.next.CurrentPeriodID(ctx)
	}
	id, err := c.client.Get(ctx, openPeriodKey).Int64()
	if err == nil && id > 0 {
		return id, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("ledger: open period cache: %w", err)
	}
	res := c.group.DoChan(openPeriodKey, func() (interface{}, error) {
		id, err := c.next.CurrentPeriodID(ctx)
		if err != nil {
			return int64(0), err
		}
		if err := c.client.Set(ctx, openPeriodKey, strconv.FormatInt(id, 10), c.ttl).Err(); err != nil {
			return id, fmt.Errorf("ledger: open period cache: %w", err)
		}
		return id, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case out := <-res:
		return out.Val.(int64), out.Err
	}
}

// Invalidate drops the cached id.
func (c *OpenPeriodCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, openPeriodKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ledger: open period cache: %w", err)
	}
	return nil
}

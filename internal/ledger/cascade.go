package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Cascade is the undo log of a trash cascade: the exact child ids a parent trashed,
// so an untrash restores that set and nothing else.
type Cascade struct {
	IDs []int64
}

// Empty reports whether no children were cascaded.
func (c Cascade) Empty() bool {
	return len(c.IDs) == 0
}

// Contains reports whether id was part of the cascade.
func (c Cascade) Contains(id int64) bool {
	for _, v := range c.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Apply runs step for every id in order. Failures do not stop the remaining ids;
// the returned Cascade holds only the ids that were applied.
func (c Cascade) Apply(ctx context.Context, step func(context.Context, int64) error) (Cascade, error) {
	applied := Cascade{IDs: make([]int64, 0, len(c.IDs))}
	var errs []error
	for _, id := range c.IDs {
		if err := step(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("cascade %d: %w", id, err))
			continue
		}
		applied.IDs = append(applied.IDs, id)
	}
	return applied, errors.Join(errs...)
}

// Reverse runs step for every id from last to first, continuing past failures.
func (c Cascade) Reverse(ctx context.Context, step func(context.Context, int64) error) error {
	var errs []error
	for i := len(c.IDs) - 1; i >= 0; i-- {
		if err := step(ctx, c.IDs[i]); err != nil {
			errs = append(errs, fmt.Errorf("reverse cascade %d: %w", c.IDs[i], err))
		}
	}
	return errors.Join(errs...)
}

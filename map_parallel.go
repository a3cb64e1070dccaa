package segmap

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RangeParallel calls fn for every entry, walking up to parallelism
// segments at once; parallelism <= 0 means no limit. fn must be safe for
// concurrent use.
//
// Each segment is walked like Iterator walks it, without locking. The first
// error returned by fn, or the cancellation of ctx, stops the remaining
// segments at their next bucket and is returned.
func (m *Map[K, V]) RangeParallel(
	ctx context.Context,
	parallelism int,
	fn func(key K, value V) error,
) error {
	segments := m.loadTable().segments
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i := range segments {
		s := &segments[i]
		if s.count.Load() == 0 {
			continue
		}
		g.Go(func() error {
			return s.rangeEntries(ctx, fn)
		})
	}
	return g.Wait()
}

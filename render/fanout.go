package render

import (
	"sync"

	"github.com/NOT-REAL-GAMES/vkrt/staging"
	"golang.org/x/sync/errgroup"
)

// Producer reserves its own disjoint region of the staging arena (via the
// serialized lock passed in) and writes into it. Producers run concurrently;
// only the reservation itself is serialized, so the actual memcpy work
// overlaps — texture slices, geometry uploads, and TLAS instance writes
// racing to fill one frame's staging arena before Staging.Commit.
type Producer func(lock func(size uint32) (staging.Region, error)) error

// RunUploadProducers is the one place in this core where real concurrency
// is plausible without breaking the single-combuf-owner rule (spec.md §5):
// every producer's mutation is confined to the disjoint region the
// serialized rawLock call hands it, so there is no shared-state race beyond
// the arena's own bump pointer. rawLock is ordinarily arena.Lock; it is
// taken as a function (rather than *staging.Arena directly) so the
// serialization wrapper is testable without a live staging arena. Returns
// the first error encountered, if any, via errgroup's aggregation; all
// other producers still run to completion.
func RunUploadProducers(rawLock func(size uint32) (staging.Region, error), producers []Producer) error {
	var mu sync.Mutex
	lock := func(size uint32) (staging.Region, error) {
		mu.Lock()
		defer mu.Unlock()
		return rawLock(size)
	}

	var g errgroup.Group
	for _, p := range producers {
		p := p
		g.Go(func() error { return p(lock) })
	}
	return g.Wait()
}

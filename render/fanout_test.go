package render

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/NOT-REAL-GAMES/vkrt/staging"
	"github.com/stretchr/testify/assert"
)

// fakeArena hands out disjoint byte ranges of a backing slice, the same
// shape as staging.Arena.Lock, so the serialization wrapper can be tested
// without a live device.
type fakeArena struct {
	mu     sync.Mutex
	buf    []byte
	cursor uint32
}

func (a *fakeArena) lock(size uint32) (staging.Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cursor+size > uint32(len(a.buf)) {
		return staging.Region{}, errors.New("fakeArena: out of room")
	}
	offset := a.cursor
	a.cursor += size
	return staging.Region{Offset: offset, Size: size}, nil
}

func TestRunUploadProducersAllocatesDisjointRegions(t *testing.T) {
	arena := &fakeArena{buf: make([]byte, 1024)}
	var seen [3]staging.Region
	var mu sync.Mutex

	producers := make([]Producer, 3)
	for i := 0; i < 3; i++ {
		i := i
		producers[i] = func(lock func(uint32) (staging.Region, error)) error {
			r, err := lock(100)
			if err != nil {
				return err
			}
			mu.Lock()
			seen[i] = r
			mu.Unlock()
			return nil
		}
	}

	err := RunUploadProducers(arena.lock, producers)
	assert.NoError(t, err)

	offsets := map[uint32]bool{}
	for _, r := range seen {
		assert.False(t, offsets[r.Offset], "regions must not overlap")
		offsets[r.Offset] = true
		assert.EqualValues(t, 100, r.Size)
	}
	assert.Len(t, offsets, 3)
}

func TestRunUploadProducersPropagatesFirstError(t *testing.T) {
	arena := &fakeArena{buf: make([]byte, 0)}
	var ran int32

	producers := []Producer{
		func(lock func(uint32) (staging.Region, error)) error {
			atomic.AddInt32(&ran, 1)
			_, err := lock(1)
			return err
		},
	}

	err := RunUploadProducers(arena.lock, producers)
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

package staging

import (
	"testing"

	"github.com/NOT-REAL-GAMES/vkrt/alloc"
	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/stretchr/testify/assert"
)

func newTestFlipping(size uint32) *alloc.Flipping { return alloc.NewFlipping(size) }

// TestEmptyCommitIsNoop is the §8 "Staging idempotence" invariant: committing
// with an empty queue must not touch the combuf/cmdbuf at all, so it is safe
// to call with no device resources backing the arena.
func TestEmptyCommitIsNoop(t *testing.T) {
	a := &Arena{}
	assert.NotPanics(t, func() {
		a.Commit(nil, vk.CommandBuffer{}, nil)
	})
	assert.Empty(t, a.order)
	assert.Empty(t, a.pending)
}

// TestLockForBufferTracksOrderOnce verifies repeated locks against the same
// destination buffer are coalesced under one order entry.
func TestLockForBufferTracksOrderOnce(t *testing.T) {
	a := &Arena{
		ring:    newTestFlipping(4096),
		pending: make(map[vk.Buffer][]pendingCopy),
	}
	dst := vk.Buffer{}

	_, err := a.LockForBuffer(LockForBufferRequest{DstBuffer: dst, DstOffset: 0, Size: 64})
	assert.NoError(t, err)
	_, err = a.LockForBuffer(LockForBufferRequest{DstBuffer: dst, DstOffset: 64, Size: 64})
	assert.NoError(t, err)

	assert.Len(t, a.order, 1)
	assert.Len(t, a.pending[dst], 2)
}

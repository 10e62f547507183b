package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRingLinearAndWrap mirrors the original engine's embedded testRing():
// a scripted alloc/free sequence that exercises linear allocation, failure
// on exhaustion, and wraparound.
func TestRingLinearAndWrap(t *testing.T) {
	r := NewRing(128)

	p0 := r.Alloc(64, 1)
	assert.EqualValues(t, 0, p0)

	p1 := r.Alloc(64, 1)
	assert.EqualValues(t, 64, p1)

	p2 := r.Alloc(64, 1)
	assert.Equal(t, RingFailed, p2)

	r.Free(p1) // 64

	p3 := r.Alloc(32, 1)
	assert.EqualValues(t, 0, p3)

	r.Free(p3) // 0

	p4 := r.Alloc(64, 1)
	assert.EqualValues(t, 32, p4)

	p5 := r.Alloc(64, 1)
	assert.Equal(t, RingFailed, p5)

	p6 := r.Alloc(16, 1)
	assert.EqualValues(t, 96, p6)

	p7 := r.Alloc(32, 1)
	assert.Equal(t, RingFailed, p7)

	r.Free(p4) // 32

	p8 := r.Alloc(32, 1)
	assert.EqualValues(t, 0, p8)
}

// TestRingWrapRequiresFit verifies the §8 "Ring wrap" property: wrapping to
// offset 0 only succeeds when size <= tail.
func TestRingWrapRequiresFit(t *testing.T) {
	r := NewRing(128)
	r.Alloc(100, 1) // head=100, tail=128
	r.Free(100)     // upToPos == head: ring resets to head=0, tail=128 (empty)
	// re-establish a non-trivial head/tail split
	r = NewRing(128)
	a := r.Alloc(100, 1)
	assert.EqualValues(t, 0, a)
	r.Free(30) // tail = 30, head = 100 (linear-occupied layout: [30,100) live)

	// size(40) does not fit in front of head (28 bytes left) and > tail(30):
	// must fail, not wrap.
	assert.Equal(t, RingFailed, r.Alloc(40, 1))

	// size(30) does not fit in front of head either, but <= tail(30): wraps to 0.
	assert.EqualValues(t, 0, r.Alloc(30, 1))
}

func TestRingEmptyAfterFreeToHead(t *testing.T) {
	r := NewRing(64)
	a := r.Alloc(16, 1)
	assert.EqualValues(t, 0, a)
	r.Free(r.Head()) // free "up to head" -> fully empty
	assert.EqualValues(t, 0, r.Head())
	assert.Equal(t, r.Size(), r.Tail())

	b := r.Alloc(64, 1)
	assert.EqualValues(t, 0, b)
}

func TestRingSoundnessNoOverlap(t *testing.T) {
	r := NewRing(128)
	type live struct{ pos, size uint32 }
	var liveRanges []live

	alloc := func(size uint32) uint32 {
		pos := r.Alloc(size, 1)
		if pos == RingFailed {
			return RingFailed
		}
		for _, l := range liveRanges {
			overlap := pos < l.pos+l.size && l.pos < pos+size
			assert.False(t, overlap, "new range [%d,%d) overlaps live [%d,%d)", pos, pos+size, l.pos, l.pos+size)
		}
		liveRanges = append(liveRanges, live{pos, size})
		return pos
	}

	_ = alloc(64)
	_ = alloc(64)
	_ = alloc(64) // fails, ring full
	r.Free(64)
	liveRanges = liveRanges[1:] // first range [0,64) retired
	_ = alloc(32)
}

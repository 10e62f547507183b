package alloc

// Flipping is a frame-paired sub-allocator over a Ring: it remembers the
// first allocation offset of the previous frame and of the frame currently
// being recorded. On Flip() everything allocated before the previous
// frame's first allocation is retired with one ring_free call, so the
// previous and the current frame's data both stay live. Used by the staging
// arena and by any
// per-frame transient buffer region (the "DE-buffer" dynamic half).
type Flipping struct {
	ring         *Ring
	frameOffsets [2]uint32 // [0]=last frame's first alloc, [1]=this frame's first alloc
	hasOffset    [2]bool
}

// NewFlipping wraps a ring of the given size.
func NewFlipping(size uint32) *Flipping {
	return &Flipping{ring: NewRing(size)}
}

// Ring exposes the underlying ring, e.g. for diagnostics.
func (f *Flipping) Ring() *Ring { return f.ring }

// Alloc reserves size bytes aligned to alignment. The first successful
// allocation in a frame (since the last Flip) is remembered as this frame's
// retirement point.
func (f *Flipping) Alloc(size, alignment uint32) uint32 {
	pos := f.ring.Alloc(size, alignment)
	if pos == RingFailed {
		return RingFailed
	}
	if !f.hasOffset[1] {
		f.frameOffsets[1] = pos
		f.hasOffset[1] = true
	}
	return pos
}

// Flip retires everything allocated before the previous frame's first
// allocation (the previous frame's own span stays live until the next
// Flip), then shifts this frame's first-alloc offset into the
// previous-frame slot and clears the current slot.
func (f *Flipping) Flip() {
	if f.hasOffset[0] {
		f.ring.Free(f.frameOffsets[0])
	}
	f.frameOffsets[0] = f.frameOffsets[1]
	f.hasOffset[0] = f.hasOffset[1]
	f.frameOffsets[1] = 0
	f.hasOffset[1] = false
}

package gpubuf

import (
	"github.com/NOT-REAL-GAMES/vkrt/alloc"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// Flipping pairs a device Buffer with a Flipping ring sub-allocator, for
// per-frame transient data (TLAS instance descriptors, dynamic geometry,
// per-frame UBOs) that must survive until the GPU has consumed it and then
// be reclaimed.
type Flipping struct {
	Buffer *Buffer
	ring   *alloc.Flipping
}

// NewFlipping creates a buffer of the given size and wraps it with a
// flipping sub-allocator over the same extent.
func NewFlipping(device vk.Device, allocator *memory.Allocator, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, mapped bool) (*Flipping, error) {
	buf, err := Create(device, allocator, CreateOptions{
		Size:       size,
		Usage:      usage,
		Properties: properties,
		Map:        mapped,
	})
	if err != nil {
		return nil, err
	}
	return &Flipping{Buffer: buf, ring: alloc.NewFlipping(uint32(size))}, nil
}

// Alloc reserves size bytes aligned to alignment from this frame's region.
func (f *Flipping) Alloc(size, alignment uint32) (offset uint32, ok bool) {
	pos := f.ring.Alloc(size, alignment)
	if pos == alloc.RingFailed {
		return 0, false
	}
	return pos, true
}

// Flip retires everything allocated before the previous frame's first
// allocation; the previous frame's own span stays live until the next Flip.
func (f *Flipping) Flip() { f.ring.Flip() }

// Destroy releases the backing buffer.
func (f *Flipping) Destroy(device vk.Device, allocator *memory.Allocator) {
	f.Buffer.Destroy(device, allocator)
}

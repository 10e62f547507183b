package gpubuf

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/alloc"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// Lifetime selects which half of a DEBuffer an allocation goes to.
type Lifetime int

const (
	LifetimeStatic Lifetime = iota
	LifetimeDynamic
)

// DEBuffer ("static+dynamic buffer") is one device buffer split into a
// long-lived monotone-bump static region starting at offset 0, and a
// per-frame flipping region occupying [staticSize, staticSize+dynamicSize).
type DEBuffer struct {
	Buffer *Buffer

	staticSize  uint32
	dynamicSize uint32
	staticBump  uint32 // monotone; the static half is never individually freed

	dynamic *alloc.Flipping
}

// NewDEBuffer creates one buffer of staticSize+dynamicSize bytes.
func NewDEBuffer(device vk.Device, allocator *memory.Allocator, staticSize, dynamicSize uint32, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, mapped bool) (*DEBuffer, error) {
	buf, err := Create(device, allocator, CreateOptions{
		Size:       uint64(staticSize) + uint64(dynamicSize),
		Usage:      usage,
		Properties: properties,
		Map:        mapped,
	})
	if err != nil {
		return nil, err
	}
	return &DEBuffer{
		Buffer:      buf,
		staticSize:  staticSize,
		dynamicSize: dynamicSize,
		dynamic:     alloc.NewFlipping(dynamicSize),
	}, nil
}

// Alloc dispatches to the static bump or the dynamic flipping ring depending
// on lifetime, returning an absolute offset into Buffer.
func (d *DEBuffer) Alloc(lifetime Lifetime, size, align uint32) (uint32, error) {
	switch lifetime {
	case LifetimeStatic:
		offset := alignUp(d.staticBump, align)
		if offset+size > d.staticSize {
			return 0, fmt.Errorf("gpubuf: DEBuffer static region exhausted (want %d at %d, cap %d)", size, offset, d.staticSize)
		}
		d.staticBump = offset + size
		return offset, nil
	case LifetimeDynamic:
		pos := d.dynamic.Alloc(size, align)
		if pos == alloc.RingFailed {
			return 0, fmt.Errorf("gpubuf: DEBuffer dynamic region exhausted (want %d)", size)
		}
		return d.staticSize + pos, nil
	default:
		panic("gpubuf: unknown lifetime")
	}
}

// Flip advances the dynamic flipping ring to the next frame; it does not
// reset the dynamic region, so the next allocation continues after the
// still-live previous frames.
func (d *DEBuffer) Flip() { d.dynamic.Flip() }

// Destroy releases the backing buffer.
func (d *DEBuffer) Destroy(device vk.Device, allocator *memory.Allocator) {
	d.Buffer.Destroy(device, allocator)
}

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

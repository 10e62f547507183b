// Package geometry implements the unified vertex+index buffer (§4.7): one
// device buffer split into a long-lived static region for persistent model
// data and a per-frame monotone-bump dynamic region for transient draws.
// Ported from the teacher engine's buffer-range allocator idiom, generalized
// from a single vertex format to the ray-tracing core's fixed R32G32B32
// position/UINT16 index layout.
package geometry

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/gpubuf"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	"github.com/NOT-REAL-GAMES/vkrt/staging"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// VertexSize is the fixed per-vertex byte stride (R32G32B32_SFLOAT
// position, matching the BLAS TRIANGLES geometry vertex format §4.8).
const VertexSize = 12

// IndexSize is the fixed index byte stride (VK_INDEX_TYPE_UINT16).
const IndexSize = 2

// Range is a unit-offset allocation: VertexOffset/IndexOffset are counted in
// vertices/indices (suitable for firstVertex/firstIndex), not bytes.
type Range struct {
	VertexOffset uint32
	VertexCount  uint32
	IndexOffset  uint32
	IndexCount   uint32
}

// Buffer is the geometry module's combined vertex/index device buffer.
type Buffer struct {
	buf *gpubuf.Buffer

	staticSize  uint32
	dynamicSize uint32
	staticBump  uint32
	dynamicBump uint32
}

// New creates one buffer of staticSize+dynamicSize bytes with vertex, index,
// and shader-device-address usage (device addresses are patched into BLAS
// triangle data at build time per §4.8).
func New(device vk.Device, allocator *memory.Allocator, staticSize, dynamicSize uint32) (*Buffer, error) {
	buf, err := gpubuf.Create(device, allocator, gpubuf.CreateOptions{
		Size: uint64(staticSize) + uint64(dynamicSize),
		Usage: vk.BUFFER_USAGE_VERTEX_BUFFER_BIT | vk.BUFFER_USAGE_INDEX_BUFFER_BIT |
			vk.BUFFER_USAGE_TRANSFER_DST_BIT | vk.BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT |
			vk.BUFFER_USAGE_ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY_BIT,
		Properties:    vk.MEMORY_PROPERTY_DEVICE_LOCAL_BIT,
		DeviceAddress: true,
	})
	if err != nil {
		return nil, fmt.Errorf("geometry: create buffer: %w", err)
	}
	return &Buffer{buf: buf, staticSize: staticSize, dynamicSize: dynamicSize}, nil
}

// Destroy releases the backing device buffer.
func (b *Buffer) Destroy(device vk.Device, allocator *memory.Allocator) {
	b.buf.Destroy(device, allocator)
}

// Handle returns the backing VkBuffer (the BLAS triangle-data source).
func (b *Buffer) Handle() vk.Buffer { return b.buf.Handle }

// DeviceAddress returns the buffer's base device address.
func (b *Buffer) DeviceAddress() uint64 { return b.buf.DeviceAddress() }

// Sync is the access-tracking block combuf's barrier inference consumes.
func (b *Buffer) Sync() *combuf.Sync { return &b.buf.Sync }

func byteSize(vCount, iCount uint32) uint32 {
	return vCount*VertexSize + iCount*IndexSize
}

// rangeAlloc reserves size bytes from region [base, base+cap), bumping
// *bump, aligned to VertexSize, and splits it into vertex/index sub-ranges.
func rangeAlloc(bump *uint32, cap_, base, vCount, iCount uint32) (Range, error) {
	size := byteSize(vCount, iCount)
	offset := alignUp(*bump, VertexSize)
	if offset+size > cap_ {
		return Range{}, fmt.Errorf("geometry: region exhausted (want %d at %d, cap %d)", size, offset, cap_)
	}
	*bump = offset + size

	vertexByteOffset := base + offset
	indexByteOffset := vertexByteOffset + vCount*VertexSize
	return Range{
		VertexOffset: vertexByteOffset / VertexSize,
		VertexCount:  vCount,
		IndexOffset:  indexByteOffset / IndexSize,
		IndexCount:   iCount,
	}, nil
}

// RangeAlloc allocates a long-lived static range for persistent model data.
func (b *Buffer) RangeAlloc(vCount, iCount uint32) (Range, error) {
	return rangeAlloc(&b.staticBump, b.staticSize, 0, vCount, iCount)
}

// BufferAllocOnceAndLock is the dynamic single-frame variant: allocates from
// the per-frame bump region and immediately returns a staging-backed
// writable pointer for the whole range.
func (b *Buffer) BufferAllocOnceAndLock(arena *staging.Arena, vCount, iCount uint32) (Range, staging.Region, staging.Region, error) {
	r, err := rangeAlloc(&b.dynamicBump, b.dynamicSize, b.staticSize, vCount, iCount)
	if err != nil {
		return Range{}, staging.Region{}, staging.Region{}, err
	}
	vRegion, iRegion, err := b.rangeLock(arena, r)
	return r, vRegion, iRegion, err
}

// rangeLock returns staging-backed writable pointers into the vertex and
// index sub-ranges of r.
func (b *Buffer) rangeLock(arena *staging.Arena, r Range) (staging.Region, staging.Region, error) {
	vOff := uint64(r.VertexOffset) * VertexSize
	vRegion, err := arena.LockForBuffer(staging.LockForBufferRequest{
		DstBuffer: b.buf.Handle, DstOffset: vOff, Size: r.VertexCount * VertexSize, Alignment: VertexSize,
	})
	if err != nil {
		return staging.Region{}, staging.Region{}, fmt.Errorf("geometry: range_lock vertices: %w", err)
	}

	if r.IndexCount == 0 {
		return vRegion, staging.Region{}, nil
	}

	iOff := uint64(r.IndexOffset) * IndexSize
	iRegion, err := arena.LockForBuffer(staging.LockForBufferRequest{
		DstBuffer: b.buf.Handle, DstOffset: iOff, Size: r.IndexCount * IndexSize, Alignment: IndexSize,
	})
	if err != nil {
		return staging.Region{}, staging.Region{}, fmt.Errorf("geometry: range_lock indices: %w", err)
	}
	return vRegion, iRegion, nil
}

// RangeLock locks the whole of r for writing.
func (b *Buffer) RangeLock(arena *staging.Arena, r Range) (staging.Region, staging.Region, error) {
	return b.rangeLock(arena, r)
}

// RangeLockSubrange locks vCount vertices starting vOff vertices into r,
// honouring the same 4-byte alignment as RangeLock.
func (b *Buffer) RangeLockSubrange(arena *staging.Arena, r Range, vOff, vCount uint32) (staging.Region, error) {
	if vOff+vCount > r.VertexCount {
		return staging.Region{}, fmt.Errorf("geometry: range_lock_subrange: [%d,%d) exceeds range of %d vertices", vOff, vOff+vCount, r.VertexCount)
	}
	byteOffset := uint64(r.VertexOffset+vOff) * VertexSize
	return arena.LockForBuffer(staging.LockForBufferRequest{
		DstBuffer: b.buf.Handle, DstOffset: byteOffset, Size: vCount * VertexSize, Alignment: VertexSize,
	})
}

// StagingCommit commits all pending writes to this buffer.
func (b *Buffer) StagingCommit(cb *combuf.Combuf, cmd vk.CommandBuffer, arena *staging.Arena) {
	b.buf.StagingCommit(cb, cmd, arena)
}

// Flip resets the per-frame dynamic bump.
func (b *Buffer) Flip() { b.dynamicBump = 0 }

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

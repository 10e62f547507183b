// Package gpubuf implements the device Buffer and its per-frame
// sub-allocator variants (Flipping, DE-buffer), ported from the teacher
// engine's buffer module and generalized to the ray-tracing core's usage
// patterns (shader binding tables, device-addressable geometry/accel
// buffers).
package gpubuf

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	"github.com/NOT-REAL-GAMES/vkrt/staging"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// RTGroupBaseAlignment is the shaderGroupBaseAlignment floor this core
// assumes (64 bytes); shader-binding-table buffers round their
// memory-requirement alignment up to at least this.
const RTGroupBaseAlignment = 64

// Buffer is a device buffer plus its backing memory and access-tracking
// sync block. Sync is plain data (no back-pointer), consumed by combuf.
type Buffer struct {
	Handle vk.Buffer
	Mem    memory.Allocation
	Size   uint64
	Usage  vk.BufferUsageFlags
	Sync   combuf.Sync

	address uint64 // 0 unless created with DeviceAddress
}

// CreateOptions configures Buffer creation.
type CreateOptions struct {
	Size                uint64
	Usage               vk.BufferUsageFlags
	Properties          vk.MemoryPropertyFlags
	ShaderBindingTable  bool // bumps alignment to the RT group base alignment
	DeviceAddress       bool // allocate with VK_MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT
	Map                 bool
}

// Create allocates and binds a device buffer per §4.5: query memory
// requirements, bump alignment for shader binding tables, allocate with the
// device-address flag when requested, bind, and optionally map.
func Create(device vk.Device, allocator *memory.Allocator, opts CreateOptions) (*Buffer, error) {
	usage := opts.Usage
	if opts.DeviceAddress {
		usage |= vk.BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT
	}

	handle, err := device.CreateBuffer(&vk.BufferCreateInfo{
		Size:        opts.Size,
		Usage:       usage,
		SharingMode: vk.SHARING_MODE_EXCLUSIVE,
	})
	if err != nil {
		return nil, fmt.Errorf("gpubuf: create buffer: %w", err)
	}

	reqs := device.GetBufferMemoryRequirements(handle)
	if opts.ShaderBindingTable && reqs.Alignment < RTGroupBaseAlignment {
		reqs.Alignment = RTGroupBaseAlignment
	}

	mem, err := allocator.Allocate(memory.Request{
		Requirements:  reqs,
		Properties:    opts.Properties,
		DeviceAddress: opts.DeviceAddress,
		Map:           opts.Map,
	})
	if err != nil {
		device.DestroyBuffer(handle)
		return nil, fmt.Errorf("gpubuf: allocate memory: %w", err)
	}

	if err := device.BindBufferMemory(handle, mem.Memory, 0); err != nil {
		allocator.Free(mem)
		device.DestroyBuffer(handle)
		return nil, fmt.Errorf("gpubuf: bind buffer memory: %w", err)
	}

	b := &Buffer{Handle: handle, Mem: mem, Size: opts.Size, Usage: usage}
	if opts.DeviceAddress {
		b.address = device.GetBufferDeviceAddress(handle)
	}
	return b, nil
}

// Destroy frees the buffer and its backing memory.
func (b *Buffer) Destroy(device vk.Device, allocator *memory.Allocator) {
	device.DestroyBuffer(b.Handle)
	allocator.Free(b.Mem)
}

// DeviceAddress returns the buffer's device address. Panics if the buffer
// was not created with DeviceAddress: true, matching the source's assumption
// that callers only ask for addresses they provisioned for.
func (b *Buffer) DeviceAddress() uint64 {
	if b.address == 0 {
		panic("gpubuf: DeviceAddress() on a buffer not created with DeviceAddress option")
	}
	return b.address
}

// Lock requests a staging-backed writable pointer into [offset, offset+size)
// of this buffer. The write only lands after StagingCommit runs.
func (b *Buffer) Lock(arena *staging.Arena, offset, size uint64) (staging.Region, error) {
	return arena.LockForBuffer(staging.LockForBufferRequest{
		DstBuffer: b.Handle,
		DstOffset: offset,
		Size:      uint32(size),
		Alignment: 4,
	})
}

// StagingCommit emits a TRANSFER_WRITE barrier on this buffer and a single
// vkCmdCopyBuffer of every queued region via the shared staging arena. A
// no-op when arena has nothing queued for this buffer (delegated to Arena's
// own idempotence).
func (b *Buffer) StagingCommit(cb *combuf.Combuf, cmd vk.CommandBuffer, arena *staging.Arena) {
	arena.CommitBuffer(cb, cmd, b.Handle, &b.Sync)
}

// Package staging implements the host-visible upload arena: a flipping
// sub-allocator over one big mapped buffer, pending-copy coalescing by
// destination, and commit-time barrier emission. Ported from the teacher
// engine's staging module.
package staging

import (
	"fmt"
	"unsafe"

	"github.com/NOT-REAL-GAMES/vkrt/alloc"
	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/rs/zerolog"
)

// Region is a live allocation in the staging arena.
type Region struct {
	Offset uint32
	Size   uint32
	Ptr    unsafe.Pointer
}

type pendingCopy struct {
	dstOffset uint64
	srcOffset uint32
	size      uint32
}

// Arena is the staging allocator: one mapped, host-visible buffer plus a
// flipping sub-allocator and a per-destination pending-copy list.
type Arena struct {
	device vk.Device
	alloc  *memory.Allocator
	log    zerolog.Logger

	buffer vk.Buffer
	mem    memory.Allocation
	base   unsafe.Pointer
	size   uint32

	ring *alloc.Flipping

	pending map[vk.Buffer][]pendingCopy
	order   []vk.Buffer // first-seen order, for deterministic commit

	activeLocks int
}

// New creates a staging arena of the given byte size.
func New(device vk.Device, allocator *memory.Allocator, size uint32, log zerolog.Logger) (*Arena, error) {
	buffer, err := device.CreateBuffer(&vk.BufferCreateInfo{
		Size:        uint64(size),
		Usage:       vk.BUFFER_USAGE_TRANSFER_SRC_BIT,
		SharingMode: vk.SHARING_MODE_EXCLUSIVE,
	})
	if err != nil {
		return nil, fmt.Errorf("staging: create buffer: %w", err)
	}

	reqs := device.GetBufferMemoryRequirements(buffer)
	mem, err := allocator.Allocate(memory.Request{
		Requirements: reqs,
		Properties:   vk.MEMORY_PROPERTY_HOST_VISIBLE_BIT | vk.MEMORY_PROPERTY_HOST_COHERENT_BIT,
		Map:          true,
	})
	if err != nil {
		device.DestroyBuffer(buffer)
		return nil, fmt.Errorf("staging: allocate memory: %w", err)
	}

	if err := device.BindBufferMemory(buffer, mem.Memory, 0); err != nil {
		allocator.Free(mem)
		device.DestroyBuffer(buffer)
		return nil, fmt.Errorf("staging: bind buffer memory: %w", err)
	}

	return &Arena{
		device:  device,
		alloc:   allocator,
		log:     log.With().Str("subsystem", "staging").Logger(),
		buffer:  buffer,
		mem:     mem,
		base:    mem.Mapped,
		size:    size,
		ring:    alloc.NewFlipping(size),
		pending: make(map[vk.Buffer][]pendingCopy),
	}, nil
}

// Destroy frees the underlying buffer and memory.
func (a *Arena) Destroy() {
	a.device.DestroyBuffer(a.buffer)
	a.alloc.Free(a.mem)
}

// Buffer returns the arena's backing VkBuffer (the copy source for commits).
func (a *Arena) Buffer() vk.Buffer { return a.buffer }

// Lock reserves size bytes (4-byte aligned) from the arena and returns a
// mapped pointer the caller may write into directly.
func (a *Arena) Lock(size uint32) (Region, error) {
	offset := a.ring.Alloc(size, 4)
	if offset == alloc.RingFailed {
		return Region{}, fmt.Errorf("staging: out of room (requested %d of %d byte arena); caller must flush and retry", size, a.size)
	}
	a.activeLocks++
	return Region{
		Offset: offset,
		Size:   size,
		Ptr:    unsafe.Add(a.base, offset),
	}, nil
}

// Unlock declares a region writable by the GPU. Commit accumulates pending
// copies until this point; unlocking does not itself enqueue anything for a
// bare Lock (only LockForBuffer does, since only it knows a destination).
func (a *Arena) Unlock(Region) {
	a.activeLocks--
}

// LockForBufferRequest describes a staged write destined for dstBuffer.
type LockForBufferRequest struct {
	DstBuffer vk.Buffer
	DstOffset uint64
	Size      uint32
	Alignment uint32
}

// LockForBuffer reserves arena space and enqueues a pending copy to
// (DstBuffer, DstOffset) once committed.
func (a *Arena) LockForBuffer(req LockForBufferRequest) (Region, error) {
	align := req.Alignment
	if align == 0 {
		align = 4
	}
	offset := a.ring.Alloc(req.Size, align)
	if offset == alloc.RingFailed {
		return Region{}, fmt.Errorf("staging: out of room for buffer copy (requested %d)", req.Size)
	}
	a.activeLocks++

	if _, seen := a.pending[req.DstBuffer]; !seen {
		a.order = append(a.order, req.DstBuffer)
	}
	a.pending[req.DstBuffer] = append(a.pending[req.DstBuffer], pendingCopy{
		dstOffset: req.DstOffset,
		srcOffset: offset,
		size:      req.Size,
	})

	return Region{Offset: offset, Size: req.Size, Ptr: unsafe.Add(a.base, offset)}, nil
}

// Commit coalesces pending copies by destination buffer, declares
// TRANSFER_WRITE on every destination in one combuf.IssueBarrier call, then
// records one vkCmdCopyBuffer per distinct destination. Barrier source stages
// come from each destination's tracked Sync, barriers cover WHOLE_SIZE, and a
// destination's first use in the command buffer gets no barrier; no fixed
// ALL_COMMANDS->TRANSFER barrier is emitted. A Commit against an empty queue
// is a no-op (§8 "Staging idempotence").
func (a *Arena) Commit(cb *combuf.Combuf, cmd vk.CommandBuffer, syncOf func(vk.Buffer) *combuf.Sync) {
	if len(a.order) == 0 {
		return
	}

	decls := make([]combuf.BufferDecl, 0, len(a.order))
	for _, dst := range a.order {
		decls = append(decls, combuf.BufferDecl{
			Sync:   syncOf(dst),
			Buffer: dst,
			Access: vk.ACCESS_TRANSFER_WRITE_BIT,
		})
	}
	cb.IssueBarrier(cmd, vk.PIPELINE_STAGE_TRANSFER_BIT, decls, nil)

	for _, dst := range a.order {
		copies := a.pending[dst]
		regions := make([]vk.BufferCopy, len(copies))
		for i, c := range copies {
			regions[i] = vk.BufferCopy{SrcOffset: uint64(c.srcOffset), DstOffset: c.dstOffset, Size: uint64(c.size)}
		}
		cmd.CmdCopyBuffer(a.buffer, dst, regions)
		delete(a.pending, dst)
	}
	a.order = a.order[:0]
}

// CommitBuffer is the single-destination variant used by gpubuf.Buffer's
// own staging_commit: emits a TRANSFER_WRITE barrier and one vkCmdCopyBuffer
// covering only dst's queued regions, leaving any other destination's
// pending copies queued for a later global Commit. No-op if dst has nothing
// queued.
func (a *Arena) CommitBuffer(cb *combuf.Combuf, cmd vk.CommandBuffer, dst vk.Buffer, sync *combuf.Sync) {
	copies, ok := a.pending[dst]
	if !ok || len(copies) == 0 {
		return
	}

	cb.IssueBarrier(cmd, vk.PIPELINE_STAGE_TRANSFER_BIT, []combuf.BufferDecl{
		{Sync: sync, Buffer: dst, Access: vk.ACCESS_TRANSFER_WRITE_BIT},
	}, nil)

	regions := make([]vk.BufferCopy, len(copies))
	for i, c := range copies {
		regions[i] = vk.BufferCopy{SrcOffset: uint64(c.srcOffset), DstOffset: c.dstOffset, Size: uint64(c.size)}
	}
	cmd.CmdCopyBuffer(a.buffer, dst, regions)

	delete(a.pending, dst)
	for i, b := range a.order {
		if b == dst {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// FrameBegin/FrameEnd bracket one frame's staging traffic; FrameEnd advances
// the flipping allocator so the oldest frame's arena space is reclaimed.
func (a *Arena) FrameBegin() {}

func (a *Arena) FrameEnd() {
	a.ring.Flip()
}

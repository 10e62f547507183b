package gpuimage

import (
	"fmt"
	"unsafe"

	"github.com/NOT-REAL-GAMES/vkrt/staging"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// uploadSlot tracks one image's in-flight staged upload: a reserved staging
// region, a write cursor into it, and the BufferImageCopy list accumulated
// by each upload_slice call.
type uploadSlot struct {
	image      *Image
	region     staging.Region
	cursor     uint32
	imageSize  uint32 // total bytes reserved at upload_begin
	copies     []vk.BufferImageCopy
	sliceBegin int
	sliceEnd   int
	sliceIdx   int
}

// Queue is the image module's upload queue: a batch of in-flight staged
// image uploads committed together in three barrier/copy/barrier phases.
type Queue struct {
	arena *staging.Arena
	slots []*uploadSlot
}

// NewQueue wraps a staging arena for image upload batching.
func NewQueue(arena *staging.Arena) *Queue {
	return &Queue{arena: arena}
}

// Begin reserves imageSize bytes of staging room for img and opens a new
// upload slot spanning layers*mips slices. Allocation happens before the
// slot is appended so a nested staging commit triggered by exhaustion never
// observes a half-built slot.
func (q *Queue) Begin(img *Image, imageSize uint32) error {
	region, err := q.arena.Lock(imageSize)
	if err != nil {
		return fmt.Errorf("gpuimage: upload_begin: %w", err)
	}

	sliceCount := int(img.Layers * img.Mips)
	slot := &uploadSlot{
		image:      img,
		region:     region,
		imageSize:  imageSize,
		sliceBegin: 0,
		sliceEnd:   sliceCount,
	}
	img.uploadSlot = len(q.slots)
	q.slots = append(q.slots, slot)
	return nil
}

// Slice copies data into the reserved region at the current cursor and
// records a BufferImageCopy for it, advancing the cursor and slice index.
func (q *Queue) Slice(img *Image, layer, mip uint32, width, height, depth uint32, data []byte) error {
	if img.uploadSlot < 0 || img.uploadSlot >= len(q.slots) {
		return fmt.Errorf("gpuimage: upload_slice: image has no open upload slot")
	}
	slot := q.slots[img.uploadSlot]
	if slot.cursor+uint32(len(data)) > slot.imageSize {
		return fmt.Errorf("gpuimage: upload_slice: write of %d bytes at cursor %d exceeds reserved %d", len(data), slot.cursor, slot.imageSize)
	}

	dst := unsafe.Add(slot.region.Ptr, slot.cursor)
	copy(unsafe.Slice((*byte)(dst), len(data)), data)

	slot.copies = append(slot.copies, vk.BufferImageCopy{
		BufferOffset: uint64(slot.region.Offset + slot.cursor),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.IMAGE_ASPECT_COLOR_BIT,
			MipLevel:       mip,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: depth},
	})

	slot.cursor += uint32(len(data))
	slot.sliceIdx++
	return nil
}

// End asserts the slice/cursor invariants: every reserved byte was written
// and every declared slice was recorded.
func (q *Queue) End(img *Image) error {
	if img.uploadSlot < 0 || img.uploadSlot >= len(q.slots) {
		return fmt.Errorf("gpuimage: upload_end: image has no open upload slot")
	}
	slot := q.slots[img.uploadSlot]
	if slot.cursor != slot.imageSize {
		return fmt.Errorf("gpuimage: upload_end: cursor %d != reserved size %d", slot.cursor, slot.imageSize)
	}
	if slot.sliceIdx != slot.sliceEnd-slot.sliceBegin {
		return fmt.Errorf("gpuimage: upload_end: wrote %d slices, expected %d", slot.sliceIdx, slot.sliceEnd-slot.sliceBegin)
	}
	return nil
}

// Cancel releases img's reserved staging region and clears its slot without
// recording any copy.
func (q *Queue) Cancel(img *Image) {
	if img.uploadSlot < 0 || img.uploadSlot >= len(q.slots) {
		return
	}
	slot := q.slots[img.uploadSlot]
	q.arena.Unlock(slot.region)
	q.removeSlot(img)
}

// Commit records the three-phase barrier/copy/barrier sequence for every
// image currently queued: UNDEFINED->TRANSFER_DST_OPTIMAL for all of them,
// one CopyBufferToImage per image, then TRANSFER_DST_OPTIMAL->
// SHADER_READ_ONLY_OPTIMAL for every image. Staging regions are
// released (deferred one frame by the arena's own flipping ring) and every
// slot's upload_slot is cleared. A commit against an empty queue is a no-op.
func (q *Queue) Commit(cmd vk.CommandBuffer, dstStageMask vk.PipelineStageFlags) {
	if len(q.slots) == 0 {
		return
	}

	preBarriers := make([]vk.ImageMemoryBarrier, len(q.slots))
	for i, slot := range q.slots {
		preBarriers[i] = vk.ImageMemoryBarrier{
			SrcAccessMask: vk.ACCESS_NONE, DstAccessMask: vk.ACCESS_TRANSFER_WRITE_BIT,
			OldLayout: vk.IMAGE_LAYOUT_UNDEFINED, NewLayout: vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
			Image: slot.image.Handle, SubresourceRange: slot.image.subresourceRange(),
		}
	}
	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, vk.PIPELINE_STAGE_TRANSFER_BIT, 0, preBarriers)

	for _, slot := range q.slots {
		cmd.CopyBufferToImage(q.arena.Buffer(), slot.image.Handle, vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, slot.copies)
	}

	postBarriers := make([]vk.ImageMemoryBarrier, len(q.slots))
	for i, slot := range q.slots {
		postBarriers[i] = vk.ImageMemoryBarrier{
			SrcAccessMask: vk.ACCESS_TRANSFER_WRITE_BIT, DstAccessMask: vk.ACCESS_SHADER_READ_BIT,
			OldLayout: vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, NewLayout: vk.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
			Image: slot.image.Handle, SubresourceRange: slot.image.subresourceRange(),
		}
	}
	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TRANSFER_BIT, dstStageMask, 0, postBarriers)

	for _, slot := range q.slots {
		q.arena.Unlock(slot.region)
		slot.image.uploadSlot = -1
	}
	q.slots = q.slots[:0]
}

func (q *Queue) removeSlot(img *Image) {
	idx := img.uploadSlot
	img.uploadSlot = -1
	q.slots = append(q.slots[:idx], q.slots[idx+1:]...)
	for i := idx; i < len(q.slots); i++ {
		q.slots[i].image.uploadSlot = i
	}
}

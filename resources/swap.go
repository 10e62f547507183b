package resources

import (
	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// FrameBeginStateChange is frame_begin_state_change(combuf, discontinuity):
// for every slot declaring a prev-frame partner, swap (resource, image) with
// its partner so "current" and "previous" trade places each frame, then
// clear the new "previous" half to zero on a discontinuity (camera cut,
// pipeline reload) or on first use (partner never written: Sync.Write.Stage
// == 0).
func (g *Graph) FrameBeginStateChange(cb *combuf.Combuf, cmd vk.CommandBuffer, discontinuity bool) {
	for _, slot := range g.slots {
		if slot.sourceIndexPlus1 == 0 {
			continue
		}
		partner := g.slots[slot.sourceIndexPlus1-1]

		slot.Image, partner.Image = partner.Image, slot.Image
		slot.Buffer, partner.Buffer = partner.Buffer, slot.Buffer
		slot.Sync, partner.Sync = partner.Sync, slot.Sync

		if discontinuity || partner.Sync.Write.Stage == 0 {
			g.clearSlot(cb, cmd, partner)
		}
	}
}

// clearSlot resets a slot's access-tracking state and zero-fills its image
// (storage images only; buffers are re-populated by their producers every
// frame regardless) so a just-swapped "previous frame" slot never exposes
// stale data across a discontinuity.
func (g *Graph) clearSlot(cb *combuf.Combuf, cmd vk.CommandBuffer, slot *Slot) {
	slot.Sync = combuf.Sync{}
	if slot.Image == nil {
		return
	}
	cmd.PipelineBarrier(
		vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, vk.PIPELINE_STAGE_TRANSFER_BIT, 0,
		[]vk.ImageMemoryBarrier{{
			SrcAccessMask: vk.ACCESS_NONE, DstAccessMask: vk.ACCESS_TRANSFER_WRITE_BIT,
			OldLayout: vk.IMAGE_LAYOUT_GENERAL, NewLayout: vk.IMAGE_LAYOUT_GENERAL,
			Image: slot.Image.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.IMAGE_ASPECT_COLOR_BIT, LevelCount: 1, LayerCount: 1,
			},
		}},
	)
	cmd.CmdClearColorImage(slot.Image.Handle, vk.IMAGE_LAYOUT_GENERAL, &vk.ClearColorValue{}, []vk.ImageSubresourceRange{{
		AspectMask: vk.IMAGE_ASPECT_COLOR_BIT, LevelCount: 1, LayerCount: 1,
	}})
}

// AddToBarrier is add_to_barrier: routes a slot into the pending barrier
// declarations by descriptor type. Storage images get a GENERAL-layout image
// barrier; since RT compute passes read and write the same storage image in
// one dispatch, the declaration uses SHADER_WRITE alone (combuf.IssueBarrier
// rejects a declaration mixing its read and write masks) — the write-side
// state-machine branch already sources from the union of the previous
// write+read, which is the correct barrier for a read-modify-write image.
// Storage buffers get a buffer barrier with SHADER_READ; samplers and
// uniform buffers need no barrier (samplers are read-only and never written
// by the RT core; UBOs are host-written and synchronized by the frame's
// host-visible mapping fence, not by combuf).
func (g *Graph) AddToBarrier(slot *Slot, bufs *[]combuf.BufferDecl, imgs *[]combuf.ImageDecl) {
	switch slot.DescriptorType {
	case DescriptorStorageImage:
		if slot.Image == nil {
			return
		}
		*imgs = append(*imgs, combuf.ImageDecl{
			Sync:       &slot.Sync,
			Image:      slot.Image.Handle,
			AspectMask: vk.IMAGE_ASPECT_COLOR_BIT,
			Access:     vk.ACCESS_SHADER_WRITE_BIT,
		})
	case DescriptorStorageBuffer:
		*bufs = append(*bufs, combuf.BufferDecl{
			Sync:   &slot.Sync,
			Buffer: slot.Buffer,
			Access: vk.ACCESS_SHADER_READ_BIT,
		})
	case DescriptorSampler, DescriptorUniformBuffer, DescriptorAccelerationStructure:
		// Samplers/UBOs need no barrier (see doc comment above); the TLAS's
		// own barrier is already issued by accel.Builder.PrepareTLAS.
	}
}

// Commit is commit(combuf, barrier, dst_stage): collects every slot a
// pipeline binds into one set of declarations and forwards it to
// combuf.IssueBarrier in a single vkCmdPipelineBarrier call.
func (g *Graph) Commit(cb *combuf.Combuf, cmd vk.CommandBuffer, dstStage vk.PipelineStageFlags, slots []*Slot) {
	var bufs []combuf.BufferDecl
	var imgs []combuf.ImageDecl
	for _, slot := range slots {
		g.AddToBarrier(slot, &bufs, &imgs)
	}
	cb.IssueBarrier(cmd, dstStage, bufs, imgs)
}

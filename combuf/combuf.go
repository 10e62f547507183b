// Package combuf orchestrates the RT core's command buffers: a small fixed
// pool of primaries, automatic access-tracking barrier inference, and
// GPU/CPU timing scopes. Ported from the teacher engine's combuf module,
// generalized from render-only barriers to the buffer+image access model the
// ray-tracing core needs.
package combuf

import (
	"fmt"

	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/rs/zerolog"
)

// NumBuffers is the fixed size of the primary command-buffer pool (N=6 in
// the source).
const NumBuffers = 6

// AccessState is one side (write or read) of a Sync block: the accumulated
// access bits and the pipeline stages that produced/consumed them.
type AccessState struct {
	Access vk.AccessFlags
	Stage  vk.PipelineStageFlags
}

func (s AccessState) contains(access vk.AccessFlags, stage vk.PipelineStageFlags) bool {
	return s.Stage != 0 && access&^s.Access == 0 && stage&^s.Stage == 0
}

// Sync is the access-tracking block embedded by every buffer/image this
// layer touches. It is plain data — no back-pointer to the owning resource —
// so combuf never imports gpubuf/gpuimage.
type Sync struct {
	CombufTag uint64
	Write     AccessState
	Read      AccessState
}

// Known write/read access bits. Declaring a bit outside this union is a bug.
const (
	AccessWriteMask = vk.ACCESS_TRANSFER_WRITE_BIT |
		vk.ACCESS_SHADER_WRITE_BIT |
		vk.ACCESS_HOST_WRITE_BIT |
		vk.ACCESS_ACCELERATION_STRUCTURE_WRITE_BIT |
		vk.ACCESS_COLOR_ATTACHMENT_WRITE_BIT

	AccessReadMask = vk.ACCESS_TRANSFER_READ_BIT |
		vk.ACCESS_SHADER_READ_BIT |
		vk.ACCESS_ACCELERATION_STRUCTURE_READ_BIT
)

// BufferDecl is one buffer access declaration passed to IssueBarrier.
type BufferDecl struct {
	Sync   *Sync
	Buffer vk.Buffer
	Access vk.AccessFlags
}

// ImageDecl is one image access declaration. Images routed through combuf
// (as opposed to the image module's own upload/blit/clear barriers) are
// always in GENERAL layout — the resource-graph storage-image case.
type ImageDecl struct {
	Sync       *Sync
	Image      vk.Image
	AspectMask vk.ImageAspectFlags
	Access     vk.AccessFlags
}

// Combuf owns the fixed command-buffer pool, one fence per slot gating its
// reuse, the submission queue, the timestamp query pool, and the
// monotonically increasing generation tag.
type Combuf struct {
	device         vk.Device
	physicalDevice vk.PhysicalDevice
	queue          vk.Queue
	pool           vk.CommandPool
	buffers        [NumBuffers]vk.CommandBuffer
	fences         [NumBuffers]vk.Fence
	log            zerolog.Logger

	tag     uint64
	current int // index into buffers of the open cmdbuf, -1 if none

	scopes perCmdbufScopes
}

// New creates the command pool, allocates NumBuffers primaries with one
// signaled fence each, and the timing-scope query pool. queueFamilyIndex's
// first queue is used for every submission this pool issues.
func New(device vk.Device, physicalDevice vk.PhysicalDevice, queueFamilyIndex uint32, log zerolog.Logger) (*Combuf, error) {
	pool, err := device.CreateCommandPool(&vk.CommandPoolCreateInfo{
		Flags:            vk.COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER_BIT,
		QueueFamilyIndex: queueFamilyIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("combuf: create command pool: %w", err)
	}

	buffers, err := device.AllocateCommandBuffers(&vk.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              vk.COMMAND_BUFFER_LEVEL_PRIMARY,
		CommandBufferCount: NumBuffers,
	})
	if err != nil {
		device.DestroyCommandPool(pool)
		return nil, fmt.Errorf("combuf: allocate command buffers: %w", err)
	}

	c := &Combuf{
		device:         device,
		physicalDevice: physicalDevice,
		queue:          device.GetQueue(queueFamilyIndex, 0),
		pool:           pool,
		log:            log.With().Str("subsystem", "combuf").Logger(),
		current:        -1,
	}
	copy(c.buffers[:], buffers)

	for i := range c.fences {
		fence, err := device.CreateFence(&vk.FenceCreateInfo{Flags: vk.FENCE_CREATE_SIGNALED_BIT})
		if err != nil {
			for j := 0; j < i; j++ {
				device.DestroyFence(c.fences[j])
			}
			device.FreeCommandBuffers(pool, buffers)
			device.DestroyCommandPool(pool)
			return nil, fmt.Errorf("combuf: create fence: %w", err)
		}
		c.fences[i] = fence
	}

	if err := c.scopes.init(device); err != nil {
		for _, fence := range c.fences {
			device.DestroyFence(fence)
		}
		device.FreeCommandBuffers(pool, buffers)
		device.DestroyCommandPool(pool)
		return nil, err
	}

	return c, nil
}

// Destroy frees the query pool, per-slot fences, and command pool (which
// implicitly frees its command buffers).
func (c *Combuf) Destroy() {
	c.scopes.destroy(c.device)
	for _, fence := range c.fences {
		c.device.DestroyFence(fence)
	}
	c.device.DestroyCommandPool(c.pool)
}

// Tag returns the current generation tag. Once Begin has run it is never 0;
// IssueBarrier treats Sync.CombufTag == 0 as "never touched".
func (c *Combuf) Tag() uint64 { return c.tag }

// Open returns the command buffer of the caller-chosen slot (taken modulo
// NumBuffers) without beginning recording. It does not track which slots
// are in use and does not search for an unused one.
func (c *Combuf) Open(slot int) vk.CommandBuffer {
	return c.buffers[slot%NumBuffers]
}

// Begin waits for this slot's previous submission to retire (its fence),
// then increments the generation tag and resets per-cmdbuf scope state. The
// tag is never allowed to be 0 even across a uint64 wrap, so
// Sync.CombufTag == 0 always unambiguously means "untouched".
func (c *Combuf) Begin(slot int) (vk.CommandBuffer, error) {
	idx := slot % NumBuffers
	if err := c.device.WaitForFences([]vk.Fence{c.fences[idx]}, true, ^uint64(0)); err != nil {
		return vk.CommandBuffer{}, fmt.Errorf("combuf: wait fence: %w", err)
	}
	if err := c.device.ResetFences([]vk.Fence{c.fences[idx]}); err != nil {
		return vk.CommandBuffer{}, fmt.Errorf("combuf: reset fence: %w", err)
	}

	c.tag++
	if c.tag == 0 {
		c.tag = 1
	}
	c.current = idx
	c.scopes.beginCmdbuf(c.current)

	cmd := c.buffers[c.current]
	if err := cmd.Begin(&vk.CommandBufferBeginInfo{Flags: vk.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT}); err != nil {
		return cmd, fmt.Errorf("combuf: begin: %w", err)
	}
	return cmd, nil
}

// End closes the currently open command buffer and submits it, signaling
// this slot's fence on completion so the next Begin of the same slot can
// wait on it before reuse.
func (c *Combuf) End() error {
	cmd := c.buffers[c.current]
	if err := cmd.End(); err != nil {
		return fmt.Errorf("combuf: end: %w", err)
	}

	submit := vk.SubmitInfo{CommandBuffers: []vk.CommandBuffer{cmd}}
	if err := c.queue.Submit([]vk.SubmitInfo{submit}, c.fences[c.current]); err != nil {
		return fmt.Errorf("combuf: submit: %w", err)
	}
	return nil
}

func isWriteOnly(access vk.AccessFlags) bool  { return access&AccessReadMask == 0 && access&AccessWriteMask != 0 }
func isReadOnly(access vk.AccessFlags) bool   { return access&AccessWriteMask == 0 && access&AccessReadMask != 0 }

// IssueBarrier applies the automatic barrier-inference rule (§4.4) to every
// declared buffer/image and emits a single vkCmdPipelineBarrier call covering
// every barrier it decided was necessary.
func (c *Combuf) IssueBarrier(cmd vk.CommandBuffer, stage vk.PipelineStageFlags, buffers []BufferDecl, images []ImageDecl) {
	var bufBarriers []vk.BufferMemoryBarrier
	var imgBarriers []vk.ImageMemoryBarrier
	var srcStageAccum vk.PipelineStageFlags

	for _, d := range buffers {
		if d.Access&AccessWriteMask != 0 && d.Access&AccessReadMask != 0 {
			panic("combuf: mixed read+write access in one buffer declaration")
		}
		if !isWriteOnly(d.Access) && !isReadOnly(d.Access) {
			panic(fmt.Sprintf("combuf: unknown access bits 0x%x", d.Access))
		}

		src, need := c.track(d.Sync, d.Access, stage)
		if !need {
			continue
		}
		srcStageAccum |= src.Stage
		bufBarriers = append(bufBarriers, vk.BufferMemoryBarrier{
			SrcAccessMask: src.Access,
			DstAccessMask: d.Access,
			Buffer:        d.Buffer,
			Offset:        0,
			Size:          vk.WholeSize,
		})
	}

	for _, d := range images {
		if d.Access&AccessWriteMask != 0 && d.Access&AccessReadMask != 0 {
			panic("combuf: mixed read+write access in one image declaration")
		}

		src, need := c.track(d.Sync, d.Access, stage)
		if !need {
			continue
		}
		srcStageAccum |= src.Stage
		imgBarriers = append(imgBarriers, vk.ImageMemoryBarrier{
			SrcAccessMask: src.Access,
			DstAccessMask: d.Access,
			OldLayout:     vk.IMAGE_LAYOUT_GENERAL,
			NewLayout:     vk.IMAGE_LAYOUT_GENERAL,
			Image:         d.Image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: d.AspectMask,
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}

	if len(bufBarriers) == 0 && len(imgBarriers) == 0 {
		return
	}
	if srcStageAccum == 0 {
		srcStageAccum = vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT
	}
	cmd.PipelineBarrierFull(srcStageAccum, stage, bufBarriers, imgBarriers)
}

// track applies the per-declaration state machine and returns the source
// access/stage to barrier from, plus whether a barrier must be emitted.
func (c *Combuf) track(sync *Sync, access vk.AccessFlags, stage vk.PipelineStageFlags) (AccessState, bool) {
	if sync.CombufTag != c.tag {
		sync.CombufTag = c.tag
		if access&AccessWriteMask != 0 {
			sync.Write = AccessState{Access: access, Stage: stage}
			sync.Read = AccessState{}
		} else {
			sync.Read = AccessState{Access: access, Stage: stage}
			sync.Write = AccessState{}
		}
		return AccessState{}, false
	}

	if isWriteOnly(access) {
		src := AccessState{
			Access: sync.Write.Access | sync.Read.Access,
			Stage:  sync.Write.Stage | sync.Read.Stage,
		}
		skip := sync.Write.Stage == 0 && sync.Read.Stage == 0
		sync.Write = AccessState{Access: access, Stage: stage}
		sync.Read = AccessState{}
		return src, !skip
	}

	// read-only
	if sync.Read.contains(access, stage) {
		return AccessState{}, false
	}
	src := sync.Write
	skip := sync.Write.Stage == 0
	sync.Read.Access |= access
	sync.Read.Stage |= stage
	return src, !skip
}

// command.go covers command pool/buffer lifetime, the copy and layout-
// transition commands the staging and upload paths issue, and the
// timestamp-query pairs used for frame-time telemetry. This core never
// binds a graphics pipeline or descriptor set the traditional way — ray
// queries run from compute/ray shaders bound by the accel package's own
// path — so the rasterization-pipeline command surface from the bound-in
// source (BindPipeline, SetViewport/Scissor, Draw, dynamic rendering) is not
// carried here.
package vk

/*
#include <vulkan/vulkan.h>
#include <stdlib.h>
*/
import "C"
import "unsafe"

type CommandPool struct {
	handle C.VkCommandPool
}

type CommandBuffer struct {
	handle C.VkCommandBuffer
}

type CommandPoolCreateInfo struct {
	Flags            CommandPoolCreateFlags
	QueueFamilyIndex uint32
}

type CommandPoolCreateFlags uint32

const (
	COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER_BIT CommandPoolCreateFlags = C.VK_COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER_BIT
)

type CommandBufferAllocateInfo struct {
	CommandPool        CommandPool
	Level              CommandBufferLevel
	CommandBufferCount uint32
}

type CommandBufferLevel int32

const (
	COMMAND_BUFFER_LEVEL_PRIMARY CommandBufferLevel = C.VK_COMMAND_BUFFER_LEVEL_PRIMARY
)

type CommandBufferBeginInfo struct {
	Flags CommandBufferUsageFlags
}

type CommandBufferUsageFlags uint32

const (
	COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT CommandBufferUsageFlags = C.VK_COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT
)

type ImageLayout int32

const (
	IMAGE_LAYOUT_UNDEFINED                ImageLayout = C.VK_IMAGE_LAYOUT_UNDEFINED
	IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL ImageLayout = C.VK_IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL
)

type ClearColorValue struct {
	Float32 [4]float32
}

func (device Device) CreateCommandPool(createInfo *CommandPoolCreateInfo) (CommandPool, error) {
	cInfo := (*C.VkCommandPoolCreateInfo)(C.calloc(1, C.sizeof_VkCommandPoolCreateInfo))
	defer C.free(unsafe.Pointer(cInfo))

	cInfo.sType = C.VK_STRUCTURE_TYPE_COMMAND_POOL_CREATE_INFO
	cInfo.pNext = nil
	cInfo.flags = C.VkCommandPoolCreateFlags(createInfo.Flags)
	cInfo.queueFamilyIndex = C.uint32_t(createInfo.QueueFamilyIndex)

	var pool C.VkCommandPool
	result := C.vkCreateCommandPool(device.handle, cInfo, nil, &pool)
	if result != C.VK_SUCCESS {
		return CommandPool{}, Result(result)
	}
	return CommandPool{handle: pool}, nil
}

func (device Device) DestroyCommandPool(pool CommandPool) {
	C.vkDestroyCommandPool(device.handle, pool.handle, nil)
}

func (device Device) AllocateCommandBuffers(allocInfo *CommandBufferAllocateInfo) ([]CommandBuffer, error) {
	cInfo := (*C.VkCommandBufferAllocateInfo)(C.calloc(1, C.sizeof_VkCommandBufferAllocateInfo))
	defer C.free(unsafe.Pointer(cInfo))

	cInfo.sType = C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_ALLOCATE_INFO
	cInfo.pNext = nil
	cInfo.commandPool = allocInfo.CommandPool.handle
	cInfo.level = C.VkCommandBufferLevel(allocInfo.Level)
	cInfo.commandBufferCount = C.uint32_t(allocInfo.CommandBufferCount)

	cBuffers := make([]C.VkCommandBuffer, allocInfo.CommandBufferCount)
	result := C.vkAllocateCommandBuffers(device.handle, cInfo, &cBuffers[0])
	if result != C.VK_SUCCESS {
		return nil, Result(result)
	}

	buffers := make([]CommandBuffer, allocInfo.CommandBufferCount)
	for i := range buffers {
		buffers[i] = CommandBuffer{handle: cBuffers[i]}
	}
	return buffers, nil
}

func (device Device) FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	cBuffers := make([]C.VkCommandBuffer, len(buffers))
	for i, buf := range buffers {
		cBuffers[i] = buf.handle
	}
	C.vkFreeCommandBuffers(device.handle, pool.handle, C.uint32_t(len(cBuffers)), &cBuffers[0])
}

func (cmd CommandBuffer) Begin(beginInfo *CommandBufferBeginInfo) error {
	cInfo := (*C.VkCommandBufferBeginInfo)(C.calloc(1, C.sizeof_VkCommandBufferBeginInfo))
	defer C.free(unsafe.Pointer(cInfo))

	cInfo.sType = C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_BEGIN_INFO
	cInfo.pNext = nil
	cInfo.flags = C.VkCommandBufferUsageFlags(beginInfo.Flags)
	cInfo.pInheritanceInfo = nil

	result := C.vkBeginCommandBuffer(cmd.handle, cInfo)
	if result != C.VK_SUCCESS {
		return Result(result)
	}
	return nil
}

func (cmd CommandBuffer) End() error {
	result := C.vkEndCommandBuffer(cmd.handle)
	if result != C.VK_SUCCESS {
		return Result(result)
	}
	return nil
}

type IndexType int32

const (
	INDEX_TYPE_UINT16 IndexType = C.VK_INDEX_TYPE_UINT16
	INDEX_TYPE_UINT32 IndexType = C.VK_INDEX_TYPE_UINT32
)

// BufferCopy describes one buffer-to-buffer copy region.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

func (cmd CommandBuffer) CmdCopyBuffer(srcBuffer, dstBuffer Buffer, regions []BufferCopy) {
	if len(regions) == 0 {
		return
	}
	cRegions := make([]C.VkBufferCopy, len(regions))
	for i, region := range regions {
		cRegions[i] = C.VkBufferCopy{
			srcOffset: C.VkDeviceSize(region.SrcOffset),
			dstOffset: C.VkDeviceSize(region.DstOffset),
			size:      C.VkDeviceSize(region.Size),
		}
	}
	C.vkCmdCopyBuffer(cmd.handle, srcBuffer.handle, dstBuffer.handle, C.uint32_t(len(cRegions)), &cRegions[0])
}

type BufferImageCopy struct {
	BufferOffset      uint64
	BufferRowLength   uint32
	BufferImageHeight uint32
	ImageSubresource  ImageSubresourceLayers
	ImageOffset       Offset3D
	ImageExtent       Extent3D
}

type ImageSubresourceLayers struct {
	AspectMask     ImageAspectFlags
	MipLevel       uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

type Offset3D struct {
	X int32
	Y int32
	Z int32
}

func (cmd CommandBuffer) CopyBufferToImage(srcBuffer Buffer, dstImage Image, dstImageLayout ImageLayout, regions []BufferImageCopy) {
	cRegions := make([]C.VkBufferImageCopy, len(regions))
	for i, region := range regions {
		cRegions[i].bufferOffset = C.VkDeviceSize(region.BufferOffset)
		cRegions[i].bufferRowLength = C.uint32_t(region.BufferRowLength)
		cRegions[i].bufferImageHeight = C.uint32_t(region.BufferImageHeight)
		cRegions[i].imageSubresource.aspectMask = C.VkImageAspectFlags(region.ImageSubresource.AspectMask)
		cRegions[i].imageSubresource.mipLevel = C.uint32_t(region.ImageSubresource.MipLevel)
		cRegions[i].imageSubresource.baseArrayLayer = C.uint32_t(region.ImageSubresource.BaseArrayLayer)
		cRegions[i].imageSubresource.layerCount = C.uint32_t(region.ImageSubresource.LayerCount)
		cRegions[i].imageOffset.x = C.int32_t(region.ImageOffset.X)
		cRegions[i].imageOffset.y = C.int32_t(region.ImageOffset.Y)
		cRegions[i].imageOffset.z = C.int32_t(region.ImageOffset.Z)
		cRegions[i].imageExtent.width = C.uint32_t(region.ImageExtent.Width)
		cRegions[i].imageExtent.height = C.uint32_t(region.ImageExtent.Height)
		cRegions[i].imageExtent.depth = C.uint32_t(region.ImageExtent.Depth)
	}
	C.vkCmdCopyBufferToImage(cmd.handle, srcBuffer.handle, dstImage.handle,
		C.VkImageLayout(dstImageLayout), C.uint32_t(len(cRegions)), &cRegions[0])
}

// Image layout transitions and their access/stage masks.
type ImageMemoryBarrier struct {
	SrcAccessMask       AccessFlags
	DstAccessMask       AccessFlags
	OldLayout           ImageLayout
	NewLayout           ImageLayout
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Image               Image
	SubresourceRange    ImageSubresourceRange
}

type AccessFlags uint32
type PipelineStageFlags uint32

const (
	ACCESS_NONE                       AccessFlags = 0
	ACCESS_COLOR_ATTACHMENT_WRITE_BIT AccessFlags = C.VK_ACCESS_COLOR_ATTACHMENT_WRITE_BIT

	PIPELINE_STAGE_TOP_OF_PIPE_BIT             PipelineStageFlags = C.VK_PIPELINE_STAGE_TOP_OF_PIPE_BIT
	PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT PipelineStageFlags = C.VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT
)

func (cmd CommandBuffer) PipelineBarrier(srcStageMask, dstStageMask PipelineStageFlags, dependencyFlags uint32, imageMemoryBarriers []ImageMemoryBarrier) {
	var cBarriers []C.VkImageMemoryBarrier
	if len(imageMemoryBarriers) > 0 {
		cBarriers = make([]C.VkImageMemoryBarrier, len(imageMemoryBarriers))
		for i, barrier := range imageMemoryBarriers {
			cBarriers[i].sType = C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER
			cBarriers[i].pNext = nil
			cBarriers[i].srcAccessMask = C.VkAccessFlags(barrier.SrcAccessMask)
			cBarriers[i].dstAccessMask = C.VkAccessFlags(barrier.DstAccessMask)
			cBarriers[i].oldLayout = C.VkImageLayout(barrier.OldLayout)
			cBarriers[i].newLayout = C.VkImageLayout(barrier.NewLayout)
			cBarriers[i].srcQueueFamilyIndex = C.uint32_t(barrier.SrcQueueFamilyIndex)
			cBarriers[i].dstQueueFamilyIndex = C.uint32_t(barrier.DstQueueFamilyIndex)
			cBarriers[i].image = barrier.Image.handle
			cBarriers[i].subresourceRange.aspectMask = C.VkImageAspectFlags(barrier.SubresourceRange.AspectMask)
			cBarriers[i].subresourceRange.baseMipLevel = C.uint32_t(barrier.SubresourceRange.BaseMipLevel)
			cBarriers[i].subresourceRange.levelCount = C.uint32_t(barrier.SubresourceRange.LevelCount)
			cBarriers[i].subresourceRange.baseArrayLayer = C.uint32_t(barrier.SubresourceRange.BaseArrayLayer)
			cBarriers[i].subresourceRange.layerCount = C.uint32_t(barrier.SubresourceRange.LayerCount)
		}
	}

	var pImageBarriers *C.VkImageMemoryBarrier
	if len(cBarriers) > 0 {
		pImageBarriers = &cBarriers[0]
	}

	C.vkCmdPipelineBarrier(
		cmd.handle,
		C.VkPipelineStageFlags(srcStageMask),
		C.VkPipelineStageFlags(dstStageMask),
		C.VkDependencyFlags(dependencyFlags),
		0, nil,
		0, nil,
		C.uint32_t(len(cBarriers)), pImageBarriers,
	)
}

// --- folded in from the acceleration-structure barrier helpers ---

const (
	ACCESS_HOST_WRITE_BIT                     AccessFlags = C.VK_ACCESS_HOST_WRITE_BIT
	ACCESS_ACCELERATION_STRUCTURE_READ_BIT    AccessFlags = C.VK_ACCESS_ACCELERATION_STRUCTURE_READ_BIT_KHR
	ACCESS_ACCELERATION_STRUCTURE_WRITE_BIT   AccessFlags = C.VK_ACCESS_ACCELERATION_STRUCTURE_WRITE_BIT_KHR

	PIPELINE_STAGE_ALL_COMMANDS_BIT               PipelineStageFlags = C.VK_PIPELINE_STAGE_ALL_COMMANDS_BIT
	PIPELINE_STAGE_HOST_BIT                        PipelineStageFlags = C.VK_PIPELINE_STAGE_HOST_BIT
	PIPELINE_STAGE_ACCELERATION_STRUCTURE_BUILD_BIT PipelineStageFlags = C.VK_PIPELINE_STAGE_ACCELERATION_STRUCTURE_BUILD_BIT_KHR
	PIPELINE_STAGE_RAY_TRACING_SHADER_BIT          PipelineStageFlags = C.VK_PIPELINE_STAGE_RAY_TRACING_SHADER_BIT_KHR
	PIPELINE_STAGE_VERTEX_INPUT_BIT                PipelineStageFlags = C.VK_PIPELINE_STAGE_VERTEX_INPUT_BIT
)

const WholeSize uint64 = C.VK_WHOLE_SIZE

type BufferMemoryBarrier struct {
	SrcAccessMask       AccessFlags
	DstAccessMask       AccessFlags
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Buffer              Buffer
	Offset              uint64
	Size                uint64
}

// PipelineBarrierFull is PipelineBarrier extended with buffer barriers, for
// the accel builder's scratch-buffer and TLAS-instance-buffer hazard tracking
// that a plain image barrier can't express.
func (cmd CommandBuffer) PipelineBarrierFull(srcStageMask, dstStageMask PipelineStageFlags, bufferBarriers []BufferMemoryBarrier, imageMemoryBarriers []ImageMemoryBarrier) {
	var cBufBarriers []C.VkBufferMemoryBarrier
	if len(bufferBarriers) > 0 {
		cBufBarriers = make([]C.VkBufferMemoryBarrier, len(bufferBarriers))
		for i, b := range bufferBarriers {
			cBufBarriers[i].sType = C.VK_STRUCTURE_TYPE_BUFFER_MEMORY_BARRIER
			cBufBarriers[i].pNext = nil
			cBufBarriers[i].srcAccessMask = C.VkAccessFlags(b.SrcAccessMask)
			cBufBarriers[i].dstAccessMask = C.VkAccessFlags(b.DstAccessMask)
			cBufBarriers[i].srcQueueFamilyIndex = C.uint32_t(b.SrcQueueFamilyIndex)
			cBufBarriers[i].dstQueueFamilyIndex = C.uint32_t(b.DstQueueFamilyIndex)
			cBufBarriers[i].buffer = b.Buffer.handle
			cBufBarriers[i].offset = C.VkDeviceSize(b.Offset)
			cBufBarriers[i].size = C.VkDeviceSize(b.Size)
		}
	}

	var cImgBarriers []C.VkImageMemoryBarrier
	if len(imageMemoryBarriers) > 0 {
		cImgBarriers = make([]C.VkImageMemoryBarrier, len(imageMemoryBarriers))
		for i, barrier := range imageMemoryBarriers {
			cImgBarriers[i].sType = C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER
			cImgBarriers[i].pNext = nil
			cImgBarriers[i].srcAccessMask = C.VkAccessFlags(barrier.SrcAccessMask)
			cImgBarriers[i].dstAccessMask = C.VkAccessFlags(barrier.DstAccessMask)
			cImgBarriers[i].oldLayout = C.VkImageLayout(barrier.OldLayout)
			cImgBarriers[i].newLayout = C.VkImageLayout(barrier.NewLayout)
			cImgBarriers[i].srcQueueFamilyIndex = C.uint32_t(barrier.SrcQueueFamilyIndex)
			cImgBarriers[i].dstQueueFamilyIndex = C.uint32_t(barrier.DstQueueFamilyIndex)
			cImgBarriers[i].image = barrier.Image.handle
			cImgBarriers[i].subresourceRange.aspectMask = C.VkImageAspectFlags(barrier.SubresourceRange.AspectMask)
			cImgBarriers[i].subresourceRange.baseMipLevel = C.uint32_t(barrier.SubresourceRange.BaseMipLevel)
			cImgBarriers[i].subresourceRange.levelCount = C.uint32_t(barrier.SubresourceRange.LevelCount)
			cImgBarriers[i].subresourceRange.baseArrayLayer = C.uint32_t(barrier.SubresourceRange.BaseArrayLayer)
			cImgBarriers[i].subresourceRange.layerCount = C.uint32_t(barrier.SubresourceRange.LayerCount)
		}
	}

	var pBufBarriers *C.VkBufferMemoryBarrier
	if len(cBufBarriers) > 0 {
		pBufBarriers = &cBufBarriers[0]
	}
	var pImgBarriers *C.VkImageMemoryBarrier
	if len(cImgBarriers) > 0 {
		pImgBarriers = &cImgBarriers[0]
	}

	C.vkCmdPipelineBarrier(
		cmd.handle,
		C.VkPipelineStageFlags(srcStageMask),
		C.VkPipelineStageFlags(dstStageMask),
		0,
		0, nil,
		C.uint32_t(len(cBufBarriers)), pBufBarriers,
		C.uint32_t(len(cImgBarriers)), pImgBarriers,
	)
}

type ImageBlit struct {
	SrcSubresource ImageSubresourceLayers
	SrcOffsets     [2]Offset3D
	DstSubresource ImageSubresourceLayers
	DstOffsets     [2]Offset3D
}

// CmdBlitImage issues a filtered blit, used by gpuimage.Blit's full-extent
// image copy.
func (cmd CommandBuffer) CmdBlitImage(srcImage Image, srcLayout ImageLayout, dstImage Image, dstLayout ImageLayout, regions []ImageBlit, filter Filter) {
	cRegions := make([]C.VkImageBlit, len(regions))
	for i, r := range regions {
		cRegions[i].srcSubresource.aspectMask = C.VkImageAspectFlags(r.SrcSubresource.AspectMask)
		cRegions[i].srcSubresource.mipLevel = C.uint32_t(r.SrcSubresource.MipLevel)
		cRegions[i].srcSubresource.baseArrayLayer = C.uint32_t(r.SrcSubresource.BaseArrayLayer)
		cRegions[i].srcSubresource.layerCount = C.uint32_t(r.SrcSubresource.LayerCount)
		cRegions[i].srcOffsets[0] = C.VkOffset3D{x: C.int32_t(r.SrcOffsets[0].X), y: C.int32_t(r.SrcOffsets[0].Y), z: C.int32_t(r.SrcOffsets[0].Z)}
		cRegions[i].srcOffsets[1] = C.VkOffset3D{x: C.int32_t(r.SrcOffsets[1].X), y: C.int32_t(r.SrcOffsets[1].Y), z: C.int32_t(r.SrcOffsets[1].Z)}
		cRegions[i].dstSubresource.aspectMask = C.VkImageAspectFlags(r.DstSubresource.AspectMask)
		cRegions[i].dstSubresource.mipLevel = C.uint32_t(r.DstSubresource.MipLevel)
		cRegions[i].dstSubresource.baseArrayLayer = C.uint32_t(r.DstSubresource.BaseArrayLayer)
		cRegions[i].dstSubresource.layerCount = C.uint32_t(r.DstSubresource.LayerCount)
		cRegions[i].dstOffsets[0] = C.VkOffset3D{x: C.int32_t(r.DstOffsets[0].X), y: C.int32_t(r.DstOffsets[0].Y), z: C.int32_t(r.DstOffsets[0].Z)}
		cRegions[i].dstOffsets[1] = C.VkOffset3D{x: C.int32_t(r.DstOffsets[1].X), y: C.int32_t(r.DstOffsets[1].Y), z: C.int32_t(r.DstOffsets[1].Z)}
	}
	C.vkCmdBlitImage(cmd.handle, srcImage.handle, C.VkImageLayout(srcLayout), dstImage.handle, C.VkImageLayout(dstLayout),
		C.uint32_t(len(cRegions)), &cRegions[0], C.VkFilter(filter))
}

// --- folded in from the timestamp-query helpers ---

type QueryPool struct {
	handle C.VkQueryPool
}

type QueryType int32

const QUERY_TYPE_TIMESTAMP QueryType = C.VK_QUERY_TYPE_TIMESTAMP

type QueryPoolCreateInfo struct {
	QueryType  QueryType
	QueryCount uint32
}

func (device Device) CreateQueryPool(createInfo *QueryPoolCreateInfo) (QueryPool, error) {
	cInfo := (*C.VkQueryPoolCreateInfo)(C.calloc(1, C.sizeof_VkQueryPoolCreateInfo))
	defer C.free(unsafe.Pointer(cInfo))

	cInfo.sType = C.VK_STRUCTURE_TYPE_QUERY_POOL_CREATE_INFO
	cInfo.queryType = C.VkQueryType(createInfo.QueryType)
	cInfo.queryCount = C.uint32_t(createInfo.QueryCount)

	var pool C.VkQueryPool
	result := C.vkCreateQueryPool(device.handle, cInfo, nil, &pool)
	if result != C.VK_SUCCESS {
		return QueryPool{}, Result(result)
	}
	return QueryPool{handle: pool}, nil
}

func (device Device) DestroyQueryPool(pool QueryPool) {
	C.vkDestroyQueryPool(device.handle, pool.handle, nil)
}

func (cmd CommandBuffer) CmdResetQueryPool(pool QueryPool, firstQuery, queryCount uint32) {
	C.vkCmdResetQueryPool(cmd.handle, pool.handle, C.uint32_t(firstQuery), C.uint32_t(queryCount))
}

func (cmd CommandBuffer) CmdWriteTimestamp(stage PipelineStageFlags, pool QueryPool, query uint32) {
	C.vkCmdWriteTimestamp(cmd.handle, C.VkPipelineStageFlagBits(stage), pool.handle, C.uint32_t(query))
}

// GetQueryPoolResultsU64Wait reads back queryCount consecutive uint64 results
// starting at firstQuery, blocking (VK_QUERY_RESULT_WAIT_BIT) until available.
func (device Device) GetQueryPoolResultsU64Wait(pool QueryPool, firstQuery, queryCount uint32) ([]uint64, error) {
	results := make([]uint64, queryCount)
	const flags = C.VK_QUERY_RESULT_64_BIT | C.VK_QUERY_RESULT_WAIT_BIT
	result := C.vkGetQueryPoolResults(
		device.handle, pool.handle,
		C.uint32_t(firstQuery), C.uint32_t(queryCount),
		C.size_t(queryCount)*8, unsafe.Pointer(&results[0]), 8,
		C.VkQueryResultFlags(flags),
	)
	if result != C.VK_SUCCESS {
		return nil, Result(result)
	}
	return results, nil
}

// GetTimestampPeriod returns nanoseconds-per-tick for this physical device,
// used to convert raw timestamp query ticks to nanoseconds.
func (physicalDevice PhysicalDevice) GetTimestampPeriod() float32 {
	var props C.VkPhysicalDeviceProperties
	C.vkGetPhysicalDeviceProperties(physicalDevice.handle, &props)
	return float32(props.limits.timestampPeriod)
}

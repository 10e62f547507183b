// image.go covers image creation, views, and the formats and usage flags
// the RT pipeline's render targets and the KTX2-sourced texture loader need.
// Sampler state and any image variant not exercised by this core (mipmapped
// filtering, border-color samplers) are not modeled here — every texture
// this core reads is sampled bindlessly by a shader-owned sampler, not one
// this package manages.
package vk

/*
#include <vulkan/vulkan.h>
#include <stdlib.h>
*/
import "C"
import "unsafe"

type ImageCreateInfo struct {
	Flags         ImageCreateFlags
	ImageType     ImageType
	Format        Format
	Extent        Extent3D
	MipLevels     uint32
	ArrayLayers   uint32
	Samples       SampleCountFlags
	Tiling        ImageTiling
	Usage         ImageUsageFlags
	SharingMode   SharingMode
	InitialLayout ImageLayout
}

type ImageCreateFlags uint32

const (
	IMAGE_CREATE_CUBE_COMPATIBLE_BIT ImageCreateFlags = C.VK_IMAGE_CREATE_CUBE_COMPATIBLE_BIT
	IMAGE_CREATE_MUTABLE_FORMAT_BIT  ImageCreateFlags = C.VK_IMAGE_CREATE_MUTABLE_FORMAT_BIT
)

type ImageType int32

const (
	IMAGE_TYPE_1D ImageType = C.VK_IMAGE_TYPE_1D
	IMAGE_TYPE_2D ImageType = C.VK_IMAGE_TYPE_2D
	IMAGE_TYPE_3D ImageType = C.VK_IMAGE_TYPE_3D
)

type ImageTiling int32

const (
	IMAGE_TILING_OPTIMAL ImageTiling = C.VK_IMAGE_TILING_OPTIMAL
	IMAGE_TILING_LINEAR  ImageTiling = C.VK_IMAGE_TILING_LINEAR
)

// SampleCountFlags mirrors VkSampleCountFlagBits. This core's render targets
// are never multisampled; only the 1-sample case is wired.
type SampleCountFlags int32

const SAMPLE_COUNT_1_BIT SampleCountFlags = C.VK_SAMPLE_COUNT_1_BIT

const (
	IMAGE_LAYOUT_GENERAL                  ImageLayout = C.VK_IMAGE_LAYOUT_GENERAL
	IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL ImageLayout = C.VK_IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL
	IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL     ImageLayout = C.VK_IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL
	IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL     ImageLayout = C.VK_IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL
)

const (
	ACCESS_TRANSFER_READ_BIT  AccessFlags = C.VK_ACCESS_TRANSFER_READ_BIT
	ACCESS_TRANSFER_WRITE_BIT AccessFlags = C.VK_ACCESS_TRANSFER_WRITE_BIT
	ACCESS_SHADER_READ_BIT    AccessFlags = C.VK_ACCESS_SHADER_READ_BIT
	ACCESS_SHADER_WRITE_BIT   AccessFlags = C.VK_ACCESS_SHADER_WRITE_BIT
)

const (
	PIPELINE_STAGE_TRANSFER_BIT        PipelineStageFlags = C.VK_PIPELINE_STAGE_TRANSFER_BIT
	PIPELINE_STAGE_FRAGMENT_SHADER_BIT PipelineStageFlags = C.VK_PIPELINE_STAGE_FRAGMENT_SHADER_BIT
	PIPELINE_STAGE_COMPUTE_SHADER_BIT  PipelineStageFlags = C.VK_PIPELINE_STAGE_COMPUTE_SHADER_BIT
)

const (
	IMAGE_USAGE_COLOR_ATTACHMENT_BIT ImageUsageFlags = C.VK_IMAGE_USAGE_COLOR_ATTACHMENT_BIT
	IMAGE_USAGE_TRANSFER_DST_BIT     ImageUsageFlags = C.VK_IMAGE_USAGE_TRANSFER_DST_BIT
	IMAGE_USAGE_TRANSFER_SRC_BIT     ImageUsageFlags = C.VK_IMAGE_USAGE_TRANSFER_SRC_BIT
	IMAGE_USAGE_SAMPLED_BIT          ImageUsageFlags = C.VK_IMAGE_USAGE_SAMPLED_BIT
	IMAGE_USAGE_STORAGE_BIT          ImageUsageFlags = C.VK_IMAGE_USAGE_STORAGE_BIT
)

const (
	FORMAT_R8G8B8A8_UNORM      Format = C.VK_FORMAT_R8G8B8A8_UNORM
	FORMAT_R8G8B8A8_SRGB       Format = C.VK_FORMAT_R8G8B8A8_SRGB
	FORMAT_B8G8R8A8_UNORM      Format = C.VK_FORMAT_B8G8R8A8_UNORM
	FORMAT_B8G8R8A8_SRGB       Format = C.VK_FORMAT_B8G8R8A8_SRGB
	FORMAT_R32G32B32_SFLOAT    Format = C.VK_FORMAT_R32G32B32_SFLOAT
	FORMAT_R16G16B16A16_SFLOAT Format = C.VK_FORMAT_R16G16B16A16_SFLOAT
	FORMAT_R32_SFLOAT          Format = C.VK_FORMAT_R32_SFLOAT
	FORMAT_UNDEFINED           Format = C.VK_FORMAT_UNDEFINED
)

// SRGBToUNORMSibling returns the UNORM format sharing bit layout with an
// SRGB format, for loading a texture through both an sRGB-decoding view and
// a raw-bits view of the same allocation. Returns (format, false) unchanged
// if format has no known UNORM sibling.
func SRGBToUNORMSibling(format Format) (Format, bool) {
	switch format {
	case FORMAT_R8G8B8A8_SRGB:
		return FORMAT_R8G8B8A8_UNORM, true
	case FORMAT_B8G8R8A8_SRGB:
		return FORMAT_B8G8R8A8_UNORM, true
	default:
		return format, false
	}
}

func (device Device) CreateImage(createInfo *ImageCreateInfo) (Image, error) {
	cInfo := (*C.VkImageCreateInfo)(C.calloc(1, C.sizeof_VkImageCreateInfo))
	defer C.free(unsafe.Pointer(cInfo))

	cInfo.sType = C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO
	cInfo.pNext = nil
	cInfo.flags = C.VkImageCreateFlags(createInfo.Flags)
	cInfo.imageType = C.VkImageType(createInfo.ImageType)
	cInfo.format = C.VkFormat(createInfo.Format)
	cInfo.extent.width = C.uint32_t(createInfo.Extent.Width)
	cInfo.extent.height = C.uint32_t(createInfo.Extent.Height)
	cInfo.extent.depth = C.uint32_t(createInfo.Extent.Depth)
	cInfo.mipLevels = C.uint32_t(createInfo.MipLevels)
	cInfo.arrayLayers = C.uint32_t(createInfo.ArrayLayers)
	cInfo.samples = C.VkSampleCountFlagBits(createInfo.Samples)
	cInfo.tiling = C.VkImageTiling(createInfo.Tiling)
	cInfo.usage = C.VkImageUsageFlags(createInfo.Usage)
	cInfo.sharingMode = C.VkSharingMode(createInfo.SharingMode)
	cInfo.queueFamilyIndexCount = 0
	cInfo.pQueueFamilyIndices = nil
	cInfo.initialLayout = C.VkImageLayout(createInfo.InitialLayout)

	var image C.VkImage
	result := C.vkCreateImage(device.handle, cInfo, nil, &image)
	if result != C.VK_SUCCESS {
		return Image{}, Result(result)
	}
	return Image{handle: image}, nil
}

func (device Device) DestroyImage(image Image) {
	C.vkDestroyImage(device.handle, image.handle, nil)
}

func (device Device) GetImageMemoryRequirements(image Image) MemoryRequirements {
	var memReqs C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(device.handle, image.handle, &memReqs)
	return MemoryRequirements{
		Size:           uint64(memReqs.size),
		Alignment:      uint64(memReqs.alignment),
		MemoryTypeBits: uint32(memReqs.memoryTypeBits),
	}
}

func (device Device) BindImageMemory(image Image, memory DeviceMemory, offset uint64) error {
	result := C.vkBindImageMemory(device.handle, image.handle, memory.handle, C.VkDeviceSize(offset))
	if result != C.VK_SUCCESS {
		return Result(result)
	}
	return nil
}

type ImageViewCreateInfo struct {
	Image            Image
	ViewType         ImageViewType
	Format           Format
	Components       ComponentMapping
	SubresourceRange ImageSubresourceRange
}

func (device Device) CreateImageView(createInfo *ImageViewCreateInfo) (ImageView, error) {
	cInfo := (*C.VkImageViewCreateInfo)(C.calloc(1, C.sizeof_VkImageViewCreateInfo))
	defer C.free(unsafe.Pointer(cInfo))

	cInfo.sType = C.VK_STRUCTURE_TYPE_IMAGE_VIEW_CREATE_INFO
	cInfo.pNext = nil
	cInfo.flags = 0
	cInfo.image = createInfo.Image.handle
	cInfo.viewType = C.VkImageViewType(createInfo.ViewType)
	cInfo.format = C.VkFormat(createInfo.Format)
	cInfo.components.r = C.VkComponentSwizzle(createInfo.Components.R)
	cInfo.components.g = C.VkComponentSwizzle(createInfo.Components.G)
	cInfo.components.b = C.VkComponentSwizzle(createInfo.Components.B)
	cInfo.components.a = C.VkComponentSwizzle(createInfo.Components.A)
	cInfo.subresourceRange.aspectMask = C.VkImageAspectFlags(createInfo.SubresourceRange.AspectMask)
	cInfo.subresourceRange.baseMipLevel = C.uint32_t(createInfo.SubresourceRange.BaseMipLevel)
	cInfo.subresourceRange.levelCount = C.uint32_t(createInfo.SubresourceRange.LevelCount)
	cInfo.subresourceRange.baseArrayLayer = C.uint32_t(createInfo.SubresourceRange.BaseArrayLayer)
	cInfo.subresourceRange.layerCount = C.uint32_t(createInfo.SubresourceRange.LayerCount)

	var view C.VkImageView
	result := C.vkCreateImageView(device.handle, cInfo, nil, &view)
	if result != C.VK_SUCCESS {
		return ImageView{}, Result(result)
	}
	return ImageView{handle: view}, nil
}

func (device Device) DestroyImageView(view ImageView) {
	C.vkDestroyImageView(device.handle, view.handle, nil)
}

// CreateImageViewForTexture builds a plain 2D, identity-swizzle view of mip 0
// and array layer 0 only.
func (device Device) CreateImageViewForTexture(image Image, format Format) (ImageView, error) {
	return device.CreateImageView(&ImageViewCreateInfo{
		Image:    image,
		ViewType: IMAGE_VIEW_TYPE_2D,
		Format:   format,
		Components: ComponentMapping{
			R: COMPONENT_SWIZZLE_IDENTITY,
			G: COMPONENT_SWIZZLE_IDENTITY,
			B: COMPONENT_SWIZZLE_IDENTITY,
			A: COMPONENT_SWIZZLE_IDENTITY,
		},
		SubresourceRange: ImageSubresourceRange{
			AspectMask:     IMAGE_ASPECT_COLOR_BIT,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
}

// Filter mirrors VkFilter. Only NEAREST is wired: the only blit this core
// records (gpuimage.Blit) uses nearest filtering.
type Filter int32

const FILTER_NEAREST Filter = C.VK_FILTER_NEAREST

// CmdClearColorImage fills the given subresource ranges of image with a flat
// color, used to reset the resource graph's fixed render-target slots on a
// resolution or swap discontinuity.
func (cmd CommandBuffer) CmdClearColorImage(image Image, imageLayout ImageLayout, color *ClearColorValue, ranges []ImageSubresourceRange) {
	var cRanges []C.VkImageSubresourceRange
	for _, r := range ranges {
		cRanges = append(cRanges, C.VkImageSubresourceRange{
			aspectMask:     C.VkImageAspectFlags(r.AspectMask),
			baseMipLevel:   C.uint32_t(r.BaseMipLevel),
			levelCount:     C.uint32_t(r.LevelCount),
			baseArrayLayer: C.uint32_t(r.BaseArrayLayer),
			layerCount:     C.uint32_t(r.LayerCount),
		})
	}

	var cRangesPtr *C.VkImageSubresourceRange
	if len(cRanges) > 0 {
		cRangesPtr = &cRanges[0]
	}

	C.vkCmdClearColorImage(
		cmd.handle,
		image.handle,
		C.VkImageLayout(imageLayout),
		(*C.VkClearColorValue)(unsafe.Pointer(color)),
		C.uint32_t(len(ranges)),
		cRangesPtr,
	)
}

// Package gpuimage implements the device Image type, its upload queue, blit
// and clear operations — ported from the teacher engine's image module and
// generalized with the sync-tracking block the RT core's barrier inference
// needs.
package gpuimage

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// Image is a device image plus an optional secondary view (for the
// SRGB/UNORM dual-interpretation case) and the sync block combuf tracks.
type Image struct {
	Handle     vk.Image
	View       vk.ImageView
	SecondView vk.ImageView // zero value if not requested
	Mem        memory.Allocation

	Width, Height, Depth uint32
	Mips, Layers         uint32
	Format               vk.Format
	Usage                vk.ImageUsageFlags

	Sync combuf.Sync

	uploadSlot int // index into the owning UploadQueue's slots, -1 if none
}

// CreateOptions configures Image creation.
type CreateOptions struct {
	Width, Height, Depth uint32
	Mips, Layers         uint32
	Format               vk.Format
	Tiling               vk.ImageTiling
	Usage                vk.ImageUsageFlags
	Flags                vk.ImageCreateFlags
	SecondView           bool // request the UNORM sibling view of an SRGB format
}

// Create chooses 2D/3D/cube by shape, allocates DEVICE_LOCAL memory by
// default, binds, and builds the primary (and optional secondary) view.
func Create(device vk.Device, allocator *memory.Allocator, opts CreateOptions) (*Image, error) {
	imageType := vk.IMAGE_TYPE_2D
	if opts.Depth > 1 {
		imageType = vk.IMAGE_TYPE_3D
	}

	flags := opts.Flags
	if opts.Layers == 6 {
		flags |= vk.IMAGE_CREATE_CUBE_COMPATIBLE_BIT
	}
	if opts.SecondView {
		flags |= vk.IMAGE_CREATE_MUTABLE_FORMAT_BIT
	}

	handle, err := device.CreateImage(&vk.ImageCreateInfo{
		Flags:         flags,
		ImageType:     imageType,
		Format:        opts.Format,
		Extent:        vk.Extent3D{Width: opts.Width, Height: opts.Height, Depth: opts.Depth},
		MipLevels:     opts.Mips,
		ArrayLayers:   opts.Layers,
		Samples:       vk.SAMPLE_COUNT_1_BIT,
		Tiling:        opts.Tiling,
		Usage:         opts.Usage,
		SharingMode:   vk.SHARING_MODE_EXCLUSIVE,
		InitialLayout: vk.IMAGE_LAYOUT_UNDEFINED,
	})
	if err != nil {
		return nil, fmt.Errorf("gpuimage: create image: %w", err)
	}

	reqs := device.GetImageMemoryRequirements(handle)
	mem, err := allocator.Allocate(memory.Request{
		Requirements: reqs,
		Properties:   vk.MEMORY_PROPERTY_DEVICE_LOCAL_BIT,
	})
	if err != nil {
		device.DestroyImage(handle)
		return nil, fmt.Errorf("gpuimage: allocate memory: %w", err)
	}

	if err := device.BindImageMemory(handle, mem.Memory, 0); err != nil {
		allocator.Free(mem)
		device.DestroyImage(handle)
		return nil, fmt.Errorf("gpuimage: bind image memory: %w", err)
	}

	view, err := device.CreateImageViewForTexture(handle, opts.Format)
	if err != nil {
		allocator.Free(mem)
		device.DestroyImage(handle)
		return nil, fmt.Errorf("gpuimage: create view: %w", err)
	}

	img := &Image{
		Handle: handle, View: view, Mem: mem,
		Width: opts.Width, Height: opts.Height, Depth: opts.Depth,
		Mips: opts.Mips, Layers: opts.Layers,
		Format: opts.Format, Usage: opts.Usage,
		uploadSlot: -1,
	}

	if opts.SecondView {
		sibling, ok := vk.SRGBToUNORMSibling(opts.Format)
		if ok {
			secondView, err := device.CreateImageViewForTexture(handle, sibling)
			if err == nil {
				img.SecondView = secondView
			}
		}
	}

	return img, nil
}

// Destroy releases the view(s), image, and backing memory.
func (img *Image) Destroy(device vk.Device, allocator *memory.Allocator) {
	device.DestroyImageView(img.View)
	if img.SecondView != (vk.ImageView{}) {
		device.DestroyImageView(img.SecondView)
	}
	device.DestroyImage(img.Handle)
	allocator.Free(img.Mem)
}

func (img *Image) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.IMAGE_ASPECT_COLOR_BIT,
		BaseMipLevel:   0,
		LevelCount:     img.Mips,
		BaseArrayLayer: 0,
		LayerCount:     img.Layers,
	}
}

// Blit records the two-barrier nearest-filter full-extent copy from src to
// dst, leaving dst in COLOR_ATTACHMENT_OPTIMAL.
func Blit(cmd vk.CommandBuffer, src, dst *Image) {
	cmd.PipelineBarrier(
		vk.PIPELINE_STAGE_TRANSFER_BIT, vk.PIPELINE_STAGE_TRANSFER_BIT, 0,
		[]vk.ImageMemoryBarrier{
			{
				SrcAccessMask: vk.ACCESS_NONE, DstAccessMask: vk.ACCESS_TRANSFER_READ_BIT,
				OldLayout: vk.IMAGE_LAYOUT_GENERAL, NewLayout: vk.IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
				Image: src.Handle, SubresourceRange: src.subresourceRange(),
			},
			{
				SrcAccessMask: vk.ACCESS_NONE, DstAccessMask: vk.ACCESS_TRANSFER_WRITE_BIT,
				OldLayout: vk.IMAGE_LAYOUT_UNDEFINED, NewLayout: vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
				Image: dst.Handle, SubresourceRange: dst.subresourceRange(),
			},
		},
	)

	cmd.CmdBlitImage(
		src.Handle, vk.IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
		dst.Handle, vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
		[]vk.ImageBlit{{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: vk.IMAGE_ASPECT_COLOR_BIT, LayerCount: 1},
			SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(src.Width), Y: int32(src.Height), Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: vk.IMAGE_ASPECT_COLOR_BIT, LayerCount: 1},
			DstOffsets:     [2]vk.Offset3D{{}, {X: int32(dst.Width), Y: int32(dst.Height), Z: 1}},
		}},
		vk.FILTER_NEAREST,
	)

	cmd.PipelineBarrier(
		vk.PIPELINE_STAGE_TRANSFER_BIT, vk.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT, 0,
		[]vk.ImageMemoryBarrier{{
			SrcAccessMask: vk.ACCESS_TRANSFER_WRITE_BIT, DstAccessMask: vk.ACCESS_COLOR_ATTACHMENT_WRITE_BIT,
			OldLayout: vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, NewLayout: vk.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
			Image: dst.Handle, SubresourceRange: dst.subresourceRange(),
		}},
	)
}

// Clear barriers UNDEFINED->GENERAL and zero-fills the image.
func Clear(cmd vk.CommandBuffer, img *Image) {
	cmd.PipelineBarrier(
		vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, vk.PIPELINE_STAGE_TRANSFER_BIT, 0,
		[]vk.ImageMemoryBarrier{{
			SrcAccessMask: vk.ACCESS_NONE, DstAccessMask: vk.ACCESS_TRANSFER_WRITE_BIT,
			OldLayout: vk.IMAGE_LAYOUT_UNDEFINED, NewLayout: vk.IMAGE_LAYOUT_GENERAL,
			Image: img.Handle, SubresourceRange: img.subresourceRange(),
		}},
	)
	cmd.CmdClearColorImage(img.Handle, vk.IMAGE_LAYOUT_GENERAL, &vk.ClearColorValue{}, []vk.ImageSubresourceRange{img.subresourceRange()})
}

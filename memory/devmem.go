// Package memory implements the device-memory allocator: the thinnest layer
// of the GPU resource core, wrapping driver vkAllocateMemory/vkMapMemory
// calls and picking a memory type that satisfies a requested property mask.
package memory

import (
	"fmt"
	"unsafe"

	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// Allocation is one driver memory object bound to a single resource. Offset
// is always 0 at this layer: the device-memory allocator does not itself
// sub-allocate one VkDeviceMemory across multiple resources, it only picks
// the memory type and (optionally) keeps it persistently mapped. Higher
// layers (gpubuf, accel) sub-allocate ranges of a buffer, not of memory.
type Allocation struct {
	Memory vk.DeviceMemory
	Offset uint64
	Size   uint64
	Mapped unsafe.Pointer // nil unless HOST_VISIBLE was requested
}

// Allocator wraps a device and its memory-type table.
type Allocator struct {
	device         vk.Device
	physicalDevice vk.PhysicalDevice
	props          vk.PhysicalDeviceMemoryProperties
}

// New queries the physical device's memory properties once and caches them;
// VkPhysicalDeviceMemoryProperties does not change over the device's lifetime.
func New(device vk.Device, physicalDevice vk.PhysicalDevice) *Allocator {
	return &Allocator{
		device:         device,
		physicalDevice: physicalDevice,
		props:          physicalDevice.GetMemoryProperties(),
	}
}

// Request describes what a caller needs from a memory allocation.
type Request struct {
	Requirements  vk.MemoryRequirements
	Properties    vk.MemoryPropertyFlags
	DeviceAddress bool // chain VkMemoryAllocateFlagsInfo with DEVICE_ADDRESS_BIT
	Map           bool // map the full allocation immediately; requires HOST_VISIBLE
}

// Allocate picks a memory type satisfying req.Properties among the bits set
// in req.Requirements.MemoryTypeBits, allocates, and optionally maps it.
func (a *Allocator) Allocate(req Request) (Allocation, error) {
	typeIndex, ok := vk.FindMemoryType(a.props, req.Requirements.MemoryTypeBits, req.Properties)
	if !ok {
		return Allocation{}, fmt.Errorf("memory: no memory type satisfies mask 0x%x with properties 0x%x",
			req.Requirements.MemoryTypeBits, req.Properties)
	}

	allocInfo := &vk.MemoryAllocateInfo{
		AllocationSize:  req.Requirements.Size,
		MemoryTypeIndex: typeIndex,
	}

	var flags vk.MemoryAllocateFlags
	if req.DeviceAddress {
		flags |= vk.MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT
	}

	devMem, err := a.device.AllocateMemoryWithFlags(allocInfo, flags)
	if err != nil {
		return Allocation{}, fmt.Errorf("memory: vkAllocateMemory: %w", err)
	}

	alloc := Allocation{Memory: devMem, Size: req.Requirements.Size}

	if req.Map {
		if req.Properties&vk.MEMORY_PROPERTY_HOST_VISIBLE_BIT == 0 {
			a.device.FreeMemory(devMem)
			return Allocation{}, fmt.Errorf("memory: Map requested on non-HOST_VISIBLE allocation")
		}
		ptr, err := a.device.MapMemory(devMem, 0, req.Requirements.Size)
		if err != nil {
			a.device.FreeMemory(devMem)
			return Allocation{}, fmt.Errorf("memory: vkMapMemory: %w", err)
		}
		alloc.Mapped = ptr
	}

	return alloc, nil
}

// Free releases the underlying VkDeviceMemory. Unmapping is implicit: Vulkan
// requires memory be unmapped before being freed, and vkFreeMemory on
// currently-mapped memory implicitly unmaps it.
func (a *Allocator) Free(alloc Allocation) {
	a.device.FreeMemory(alloc.Memory)
}

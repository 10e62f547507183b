// instance.go covers VkInstance creation/teardown and physical-device
// enumeration — the one-time setup the demo harness performs before handing
// a device and surface to the rest of the core.
package vk

// #cgo LDFLAGS: -lvulkan

/*
#include <vulkan/vulkan.h>
#include <stdlib.h>
*/
import "C"
import "unsafe"

func EnumerateInstanceVersion() (uint32, error) {
	var version C.uint32_t
	result := C.vkEnumerateInstanceVersion(&version)

	if result != C.VK_SUCCESS {
		return 0, Result(result)
	}

	return uint32(version), nil
}

func CreateInstance(createInfo *InstanceCreateInfo) (Instance, error) {
	data := createInfo.vulkanize()
	defer data.free()

	var instance C.VkInstance
	result := C.vkCreateInstance(data.cInfo, nil, &instance)
	if result != C.VK_SUCCESS {
		return Instance{}, Result(result)
	}
	return Instance{handle: instance}, nil
}

func (instance Instance) Destroy() {
	C.vkDestroyInstance(instance.handle, nil)
}

// Handle returns the raw VkInstance as an unsafe.Pointer, for windowing
// libraries (SDL's VulkanCreateSurface) that need the instance handle but
// can't import this package's C types.
func (instance Instance) Handle() unsafe.Pointer {
	return unsafe.Pointer(instance.handle)
}

func (instance Instance) EnumeratePhysicalDevices() ([]PhysicalDevice, error) {
	var count C.uint32_t
	result := C.vkEnumeratePhysicalDevices(instance.handle, &count, nil)
	if result != C.VK_SUCCESS {
		return nil, Result(result)
	}
	if count == 0 {
		return nil, nil
	}

	cDevices := make([]C.VkPhysicalDevice, count)
	result = C.vkEnumeratePhysicalDevices(instance.handle, &count, &cDevices[0])
	if result != C.VK_SUCCESS {
		return nil, Result(result)
	}

	devices := make([]PhysicalDevice, count)
	for i := range devices {
		devices[i] = PhysicalDevice{handle: cDevices[i]}
	}
	return devices, nil
}

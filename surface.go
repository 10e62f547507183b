// surface.go wraps the one surface operation this core needs: taking
// ownership of a VkSurfaceKHR handle created by the windowing layer (SDL in
// the demo harness). Surface capability/format/present-mode queries belong
// to swapchain presentation, which this core does not perform — see
// device.go's GetSurfaceSupportKHR for the one query it does need, to pick
// a presentable queue family.
package vk

/*
#include <vulkan/vulkan.h>
*/
import "C"
import "unsafe"

func NewSurfaceKHR(handle unsafe.Pointer) SurfaceKHR {
	return SurfaceKHR{handle: C.VkSurfaceKHR(handle)}
}

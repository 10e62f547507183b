// Command demo is a minimal host driver exercising the RT resource core:
// it opens one SDL3 window, stands up a Vulkan instance/device the way
// vala's main() does, and runs a handful of frames through vkcore.Context's
// begin/end-frame glue. It has no rendering output of its own — the point
// is wiring, not a renderer.
package main

import (
	"fmt"
	"os"
	"runtime"

	sdl "github.com/NOT-REAL-GAMES/sdl3go"
	"github.com/NOT-REAL-GAMES/vkrt/vkcore"
	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if runtime.GOOS == "linux" {
		os.Setenv("SDL_VIDEODRIVER", "X11")
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		log.Fatal().Err(err).Msg("sdl init")
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("vkrt demo", 960, 540, sdl.WINDOW_VULKAN)
	if err != nil {
		log.Fatal().Err(err).Msg("create window")
	}
	defer window.Destroy()

	exts, err := sdl.VulkanGetInstanceExtensions()
	if err != nil {
		log.Fatal().Err(err).Msg("vulkan instance extensions")
	}

	instance, err := vk.CreateInstance(&vk.InstanceCreateInfo{
		ApplicationInfo: &vk.ApplicationInfo{
			ApplicationName:    "vkrt demo",
			ApplicationVersion: vk.MakeApiVersion(0, 1, 0, 0),
			EngineName:         "vkrt",
			EngineVersion:      vk.MakeApiVersion(0, 1, 0, 0),
			ApiVersion:         vk.ApiVersion_1_4,
		},
		EnabledExtensionNames: exts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create instance")
	}
	defer instance.Destroy()

	devices, err := instance.EnumeratePhysicalDevices()
	if err != nil || len(devices) == 0 {
		log.Fatal().Err(err).Msg("no physical devices")
	}
	physicalDevice := devices[0]

	surfHandle, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		log.Fatal().Err(err).Msg("create surface")
	}
	surface := vk.NewSurfaceKHR(surfHandle)

	queueFamilies := physicalDevice.GetQueueFamilyProperties()
	graphicsFamily := -1
	for i, family := range queueFamilies {
		if family.QueueFlags&vk.QUEUE_GRAPHICS_BIT == 0 {
			continue
		}
		if supported, _ := physicalDevice.GetSurfaceSupportKHR(uint32(i), surface); supported {
			graphicsFamily = i
			break
		}
	}
	if graphicsFamily == -1 {
		log.Fatal().Msg("no graphics+present queue family")
	}

	device, err := physicalDevice.CreateDevice(&vk.DeviceCreateInfo{
		QueueCreateInfos: []vk.DeviceQueueCreateInfo{
			{QueueFamilyIndex: uint32(graphicsFamily), QueuePriorities: []float32{1.0}},
		},
		EnabledExtensionNames: []string{
			"VK_KHR_swapchain",
			"VK_KHR_acceleration_structure",
			"VK_KHR_deferred_host_operations",
			"VK_KHR_buffer_device_address",
		},
		Vulkan13Features: &vk.PhysicalDeviceVulkan13Features{DynamicRendering: true},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create device")
	}
	defer device.Destroy()

	ctx, err := vkcore.New(device, physicalDevice, uint32(graphicsFamily), vkcore.Config{
		StagingSize:         16 << 20,
		GeometryStaticSize:  64 << 20,
		GeometryDynamicSize: 8 << 20,
		AccelsBytes:         64 << 20,
		ScratchBytes:        16 << 20,
		MaxTLASInstances:    4096,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("vkcore context")
	}
	defer ctx.Destroy()

	fmt.Println("vkrt demo: context constructed, running 3 empty frames")
	for frame := 0; frame < 3; frame++ {
		cmd, err := ctx.Combuf.Begin(frame)
		if err != nil {
			log.Fatal().Err(err).Msg("begin cmdbuf")
		}
		ctx.Glue.BeginFrame(ctx.Combuf, cmd, frame == 0)
		if err := ctx.Glue.EndFrame(ctx.Combuf, cmd, ctx.Geometry, ctx.Staging); err != nil {
			log.Fatal().Err(err).Msg("end frame")
		}
		if err := ctx.Combuf.End(); err != nil {
			log.Fatal().Err(err).Msg("end cmdbuf")
		}
	}

	log.Info().Msg("demo complete")
}

// Package vkcore is the explicit GPU context spec.md §9 calls for in place
// of the source's implicit globals (g_combuf, g_staging, g_geom, g_accel,
// g_res): one struct owning every subsystem as a field, constructed in
// L0->L5 dependency order.
package vkcore

import (
	"fmt"
	"os"

	"github.com/NOT-REAL-GAMES/vkrt/accel"
	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/geometry"
	"github.com/NOT-REAL-GAMES/vkrt/gpuimage"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	"github.com/NOT-REAL-GAMES/vkrt/metrics"
	"github.com/NOT-REAL-GAMES/vkrt/render"
	"github.com/NOT-REAL-GAMES/vkrt/resources"
	"github.com/NOT-REAL-GAMES/vkrt/rtcvar"
	"github.com/NOT-REAL-GAMES/vkrt/staging"
	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/rs/zerolog"
)

// Config sizes every sub-allocator the context owns.
type Config struct {
	StagingSize           uint32
	GeometryStaticSize    uint32
	GeometryDynamicSize   uint32
	AccelsBytes           uint32
	ScratchBytes          uint32
	MaxTLASInstances      uint32
}

// Context owns every subsystem L0 (allocators) through L5 (render glue),
// constructed in that order so each layer's constructor can depend on the
// ones before it — the direct replacement for the source's initialization-
// order-dependent globals.
type Context struct {
	Device         vk.Device
	PhysicalDevice vk.PhysicalDevice
	Allocator      *memory.Allocator // L0: device-memory allocator

	Combuf *combuf.Combuf // L0: command-buffer orchestration
	Staging *staging.Arena // L1: staging arena, sits atop Allocator+Combuf

	Images  *gpuimage.Queue  // L2: image upload queue
	Geometry *geometry.Buffer // L2: geometry buffer

	AccelProcs vk.AccelProcs  // L3: resolved VK_KHR_acceleration_structure entry points
	Accel      *accel.Builder // L3: acceleration-structure builder

	Graph *resources.Graph // L4: resource graph
	CVars *rtcvar.Registry // L4: debug CVar registry
	Stats *metrics.Registry // L4: per-frame stats counters

	Glue *render.Glue // L5: render/meatpipe glue

	log zerolog.Logger
}

// New constructs every subsystem in dependency order. queueFamilyIndex is
// the graphics/compute queue family the command pool is allocated against.
func New(device vk.Device, physicalDevice vk.PhysicalDevice, queueFamilyIndex uint32, cfg Config, log zerolog.Logger) (*Context, error) {
	c := &Context{Device: device, PhysicalDevice: physicalDevice, log: log.With().Str("subsystem", "vkcore").Logger()}

	c.Allocator = memory.New(device, physicalDevice)

	var err error
	c.Combuf, err = combuf.New(device, physicalDevice, queueFamilyIndex, log)
	if err != nil {
		return nil, fmt.Errorf("vkcore: combuf: %w", err)
	}

	c.Staging, err = staging.New(device, c.Allocator, cfg.StagingSize, log)
	if err != nil {
		return nil, fmt.Errorf("vkcore: staging: %w", err)
	}

	c.Images = gpuimage.NewQueue(c.Staging)

	c.Geometry, err = geometry.New(device, c.Allocator, cfg.GeometryStaticSize, cfg.GeometryDynamicSize)
	if err != nil {
		return nil, fmt.Errorf("vkcore: geometry: %w", err)
	}

	c.AccelProcs = device.LoadAccelProcs()
	c.Accel, err = accel.NewBuilder(device, c.Allocator, c.AccelProcs, cfg.AccelsBytes, cfg.ScratchBytes, cfg.MaxTLASInstances)
	if err != nil {
		return nil, fmt.Errorf("vkcore: accel: %w", err)
	}

	c.Graph = resources.New(device, c.Allocator)
	c.CVars = rtcvar.NewRegistry()
	c.Stats = metrics.NewRegistry()

	c.Glue = render.New(c.Graph, c.Accel, c.CVars)

	c.log.Info().Msg("vkcore context constructed")
	return c, nil
}

// Destroy tears down every owned subsystem. Order does not matter for
// correctness (each subsystem only frees its own handles), but mirrors
// construction order in reverse for readability.
func (c *Context) Destroy() {
	c.Accel.Destroy(c.Device, c.Allocator)
	c.Geometry.Destroy(c.Device, c.Allocator)
	c.Staging.Destroy()
	c.Combuf.Destroy()
}

// Check is the checked-Vulkan-error helper: a fatal VkResult is logged and
// the process exits, the direct analogue of the source's
// XVK_CHECK/Host_Error abort semantics (see spec.md §7 error taxonomy
// category 3 — driver/device errors never return).
func Check(log zerolog.Logger, err error, context string) {
	if err == nil {
		return
	}
	log.Fatal().Err(err).Str("context", context).Msg("fatal Vulkan error")
	os.Exit(1)
}

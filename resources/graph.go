// Package resources implements the RT resource graph (§4.9): a fixed table
// of named slots, pipeline ("meatpipe") loading that creates or reuses
// storage images sized to the current frame, prev-frame swap, and barrier
// collation by descriptor type. Ported from the teacher engine's resource
// registry idiom, generalized from render targets to the full RT resource
// set (TLAS, UBO, geometry/light buffers, textures).
package resources

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/gpuimage"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// DescriptorType classifies how a slot's resource is bound and barriered.
type DescriptorType int

const (
	DescriptorStorageImage DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorSampler
	DescriptorUniformBuffer
	DescriptorAccelerationStructure
)

// Fixed external-resource slot indices, pre-registered at graph creation.
const (
	SlotTLAS = iota
	SlotUBO
	SlotKusochki
	SlotModelHeaders
	SlotIndices
	SlotVertices
	SlotLights
	SlotLightGrid
	SlotTextures
	SlotSkybox
	SlotBlueNoise
	numFixedSlots
)

var fixedSlotNames = [numFixedSlots]string{
	SlotTLAS:         "tlas",
	SlotUBO:          "ubo",
	SlotKusochki:     "kusochki",
	SlotModelHeaders: "model_headers",
	SlotIndices:      "indices",
	SlotVertices:     "vertices",
	SlotLights:       "lights",
	SlotLightGrid:    "light_grid",
	SlotTextures:     "textures",
	SlotSkybox:       "skybox",
	SlotBlueNoise:    "blue_noise",
}

// Slot is one entry in the resource table: either a storage image (Image !=
// nil) or a buffer (Buffer.handle valid), plus the access-tracking block and
// prev-frame pairing.
type Slot struct {
	Name           string
	DescriptorType DescriptorType
	Image          *gpuimage.Image
	Buffer         vk.Buffer
	Accel          vk.AccelerationStructureKHR
	Format         vk.Format
	Sync           combuf.Sync

	// sourceIndexPlus1 > 0 marks this slot as the "current" half of a
	// prev-frame pair; it names the partner slot's index, offset by one so
	// 0 means "not paired".
	sourceIndexPlus1 int
}

// ResourceRef is one pipeline's reference to a named resource.
type ResourceRef struct {
	Name           string
	DescriptorType DescriptorType
	ImageFormat    vk.Format // used only when Create && DescriptorStorageImage
	Create         bool
	Write          bool
	PrevFrameOf    string // non-empty to register this ref as the prev-frame partner of another
}

// Graph owns the fixed resource table.
type Graph struct {
	device    vk.Device
	allocator *memory.Allocator

	slots  []*Slot
	byName map[string]int

	frameWidth, frameHeight uint32
}

// New creates the graph and pre-registers the fixed external resources at
// their named indices. External resources arrive already created (buffers
// owned by geometry/accel/staging, the TLAS owned by the accel builder);
// Register binds them into the table.
func New(device vk.Device, allocator *memory.Allocator) *Graph {
	g := &Graph{device: device, allocator: allocator, byName: make(map[string]int)}
	for i := 0; i < numFixedSlots; i++ {
		g.slots = append(g.slots, &Slot{Name: fixedSlotNames[i]})
		g.byName[fixedSlotNames[i]] = i
	}
	return g
}

// Register binds an externally-owned buffer resource into its fixed slot by
// name.
func (g *Graph) Register(name string, descriptorType DescriptorType, buffer vk.Buffer) error {
	idx, ok := g.byName[name]
	if !ok {
		return fmt.Errorf("resources: register: unknown fixed slot %q", name)
	}
	g.slots[idx].DescriptorType = descriptorType
	g.slots[idx].Buffer = buffer
	return nil
}

// RegisterAccel binds the TLAS handle into its fixed slot. Barrier
// collation is a no-op for DescriptorAccelerationStructure: the
// acceleration builder already issues the AS-write/shader-read barrier
// itself once per build (see accel.Builder.PrepareTLAS), so the resource
// graph only needs to track the handle for descriptor binding.
func (g *Graph) RegisterAccel(name string, as vk.AccelerationStructureKHR) error {
	idx, ok := g.byName[name]
	if !ok {
		return fmt.Errorf("resources: register_accel: unknown fixed slot %q", name)
	}
	g.slots[idx].DescriptorType = DescriptorAccelerationStructure
	g.slots[idx].Accel = as
	return nil
}

// SetFrameSize updates the size new CREATE storage images are allocated at.
func (g *Graph) SetFrameSize(width, height uint32) {
	g.frameWidth, g.frameHeight = width, height
}

// slotByName finds an existing slot, or nil.
func (g *Graph) slotByName(name string) *Slot {
	if idx, ok := g.byName[name]; ok {
		return g.slots[idx]
	}
	return nil
}

// LoadPipeline resolves refs against the table: existing slots are reused by
// name; CREATE refs create (or reuse, if already created) a storage image
// sized to the current frame and a compatible format. Returns the parallel
// slot-pointer array the pipeline binds against.
func (g *Graph) LoadPipeline(refs []ResourceRef) ([]*Slot, error) {
	out := make([]*Slot, len(refs))
	for i, ref := range refs {
		slot := g.slotByName(ref.Name)
		if slot == nil {
			idx := len(g.slots)
			slot = &Slot{Name: ref.Name, DescriptorType: ref.DescriptorType}
			g.slots = append(g.slots, slot)
			g.byName[ref.Name] = idx
		}

		if ref.Create && ref.DescriptorType == DescriptorStorageImage && slot.Image == nil {
			format := ref.ImageFormat
			if format == vk.FORMAT_UNDEFINED {
				format = vk.FORMAT_R16G16B16A16_SFLOAT
			}
			img, err := gpuimage.Create(g.device, g.allocator, gpuimage.CreateOptions{
				Width: g.frameWidth, Height: g.frameHeight, Depth: 1,
				Mips: 1, Layers: 1, Format: format,
				Tiling: vk.IMAGE_TILING_OPTIMAL,
				Usage:  vk.IMAGE_USAGE_STORAGE_BIT | vk.IMAGE_USAGE_SAMPLED_BIT,
			})
			if err != nil {
				return nil, fmt.Errorf("resources: create storage image %q: %w", ref.Name, err)
			}
			slot.Image = img
			slot.Format = format
			slot.DescriptorType = DescriptorStorageImage
		}

		if ref.PrevFrameOf != "" {
			partner := g.slotByName(ref.PrevFrameOf)
			if partner == nil {
				return nil, fmt.Errorf("resources: %q declares prev_frame_of unknown slot %q", ref.Name, ref.PrevFrameOf)
			}
			partnerIdx := g.byName[ref.PrevFrameOf]
			slot.sourceIndexPlus1 = partnerIdx + 1
		}

		out[i] = slot
	}
	return out, nil
}

// Package accel implements the BLAS/TLAS lifecycle (§4.8): a shared
// accel-storage buffer sub-pool, a per-frame scratch bump allocator, the
// TLAS instance-descriptor flipping buffer, and the per-frame build/prepare
// entry points. Ported from the teacher engine's device-buffer idiom and
// generalized to VK_KHR_acceleration_structure via the root package's accel.go.
package accel

import (
	"fmt"
	"unsafe"

	"github.com/NOT-REAL-GAMES/vkrt/alloc"
	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/geometry"
	"github.com/NOT-REAL-GAMES/vkrt/gpubuf"
	"github.com/NOT-REAL-GAMES/vkrt/memory"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// ScratchOffsetAlignment is used in place of a queried
// minAccelerationStructureScratchOffsetAlignment; 256 satisfies every
// shipping RT implementation's reported minimum.
const ScratchOffsetAlignment = 256

// AccelsAlignment is the sub-pool alignment for individual AS allocations.
const AccelsAlignment = 256

// Usage selects a BLAS's build-speed/update tradeoff.
type Usage int

const (
	UsageStatic Usage = iota
	UsageDynamicUpdate
	UsageDynamicFast
)

func (u Usage) buildFlags() vk.BuildAccelerationStructureFlags {
	switch u {
	case UsageDynamicUpdate:
		return vk.BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT | vk.BUILD_ACCELERATION_STRUCTURE_ALLOW_UPDATE_BIT
	case UsageDynamicFast:
		return vk.BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_BUILD_BIT
	default:
		return vk.BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT
	}
}

// GeomInput is one triangle-mesh input to BLAS create/update: a range
// already resident in the shared geometry buffer.
type GeomInput struct {
	Range geometry.Range
}

// subPoolRange is one live or freed allocation in the accels sub-pool.
type subPoolRange struct {
	offset uint32
	size   uint32
}

// BLAS is one bottom-level acceleration structure.
type BLAS struct {
	Name    string
	Handle  vk.AccelerationStructureKHR
	Usage   Usage
	Geoms   []GeomInput
	Address uint64
	Built   bool
	Sync    combuf.Sync

	poolRange subPoolRange
	dontBuild bool
}

// Builder owns the accel-structure shared buffers and the per-frame build
// queue. A Builder is a process-wide singleton per §5's shared-resource
// policy.
type Builder struct {
	device vk.Device
	procs  vk.AccelProcs

	accelsBuffer *gpubuf.Buffer
	accelsBump   uint32
	accelsFree   []subPoolRange
	accelsCap    uint32

	scratchBuffer *gpubuf.Buffer
	scratchBump   uint32
	scratchCap    uint32

	tlasGeomBuffer *gpubuf.Buffer
	tlasGeomRing   *alloc.Flipping
	tlasMapped     unsafe.Pointer
	tlasGeomSync   combuf.Sync

	queue []*BLAS
	tlas  *BLAS
}

// NewBuilder creates the accels/scratch/tlas-geom shared buffers.
func NewBuilder(device vk.Device, allocator *memory.Allocator, procs vk.AccelProcs, maxAccelsBytes, maxScratchBytes uint32, maxInstances uint32) (*Builder, error) {
	accelsBuffer, err := gpubuf.Create(device, allocator, gpubuf.CreateOptions{
		Size:          uint64(maxAccelsBytes),
		Usage:         vk.BUFFER_USAGE_ACCELERATION_STRUCTURE_STORAGE_BIT | vk.BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT,
		Properties:    vk.MEMORY_PROPERTY_DEVICE_LOCAL_BIT,
		DeviceAddress: true,
	})
	if err != nil {
		return nil, fmt.Errorf("accel: create accels buffer: %w", err)
	}

	scratchBuffer, err := gpubuf.Create(device, allocator, gpubuf.CreateOptions{
		Size:          uint64(maxScratchBytes),
		Usage:         vk.BUFFER_USAGE_STORAGE_BUFFER_BIT | vk.BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT,
		Properties:    vk.MEMORY_PROPERTY_DEVICE_LOCAL_BIT,
		DeviceAddress: true,
	})
	if err != nil {
		accelsBuffer.Destroy(device, allocator)
		return nil, fmt.Errorf("accel: create scratch buffer: %w", err)
	}

	instanceBytes := maxInstances * uint32(vk.InstanceKHRSize)
	tlasGeomBuffer, err := gpubuf.Create(device, allocator, gpubuf.CreateOptions{
		Size:          uint64(instanceBytes) * 2, // two generations, flipping
		Usage:         vk.BUFFER_USAGE_ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY_BIT | vk.BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT,
		Properties:    vk.MEMORY_PROPERTY_HOST_VISIBLE_BIT | vk.MEMORY_PROPERTY_HOST_COHERENT_BIT,
		DeviceAddress: true,
		Map:           true,
	})
	if err != nil {
		scratchBuffer.Destroy(device, allocator)
		accelsBuffer.Destroy(device, allocator)
		return nil, fmt.Errorf("accel: create tlas geometry buffer: %w", err)
	}

	return &Builder{
		device:         device,
		procs:          procs,
		accelsBuffer:   accelsBuffer,
		accelsCap:      maxAccelsBytes,
		scratchBuffer:  scratchBuffer,
		scratchCap:     maxScratchBytes,
		tlasGeomBuffer: tlasGeomBuffer,
		tlasGeomRing:   alloc.NewFlipping(instanceBytes * 2),
		tlasMapped:     tlasGeomBuffer.Mem.Mapped,
	}, nil
}

// Destroy releases every shared buffer. Live BLAS/TLAS objects must be
// destroyed first.
func (b *Builder) Destroy(device vk.Device, allocator *memory.Allocator) {
	b.tlasGeomBuffer.Destroy(device, allocator)
	b.scratchBuffer.Destroy(device, allocator)
	b.accelsBuffer.Destroy(device, allocator)
}

// allocAccelsRange reserves size bytes (256-aligned) from the sub-pool,
// reusing a freed range if one is large enough before bumping.
func (b *Builder) allocAccelsRange(size uint32) (subPoolRange, error) {
	aligned := alignUp(size, AccelsAlignment)
	for i, r := range b.accelsFree {
		if r.size >= aligned {
			b.accelsFree = append(b.accelsFree[:i], b.accelsFree[i+1:]...)
			return subPoolRange{offset: r.offset, size: aligned}, nil
		}
	}
	offset := alignUp(b.accelsBump, AccelsAlignment)
	if offset+aligned > b.accelsCap {
		return subPoolRange{}, fmt.Errorf("accel: accels sub-pool exhausted (want %d at %d, cap %d)", aligned, offset, b.accelsCap)
	}
	b.accelsBump = offset + aligned
	return subPoolRange{offset: offset, size: aligned}, nil
}

func (b *Builder) freeAccelsRange(r subPoolRange) {
	b.accelsFree = append(b.accelsFree, r)
}

// geomToGeometryKHR builds the TRIANGLES geometry description and matching
// build-range for one geometry buffer range, per §4.8's geometry fill rule.
func geomToGeometryKHR(geomBuf *geometry.Buffer, g GeomInput) (vk.GeometryKHR, vk.BuildRangeInfo, uint32) {
	base := geomBuf.DeviceAddress()
	vertexByteOffset := uint64(g.Range.VertexOffset) * geometry.VertexSize
	indexByteOffset := uint64(g.Range.IndexOffset) * geometry.IndexSize

	geo := vk.GeometryKHR{
		GeometryType: vk.GEOMETRY_TYPE_TRIANGLES,
		Flags:        vk.GEOMETRY_OPAQUE_BIT,
		Triangles: vk.TrianglesData{
			VertexFormat: vk.FORMAT_R32G32B32_SFLOAT,
			VertexData:   vk.DeviceOrHostAddress(base + vertexByteOffset),
			VertexStride: geometry.VertexSize,
			MaxVertex:    g.Range.VertexCount - 1,
			IndexType:    vk.INDEX_TYPE_UINT16,
			IndexData:    vk.DeviceOrHostAddress(base + indexByteOffset),
		},
	}
	primitiveCount := g.Range.IndexCount / 3
	rng := vk.BuildRangeInfo{
		PrimitiveCount:  primitiveCount,
		PrimitiveOffset: 0, // index data address already points at this range's base
		FirstVertex:     0, // likewise pre-offset via VertexData
	}
	return geo, rng, primitiveCount
}

// Create builds the geometry description, queries build sizes, allocates a
// sub-pool range, and creates the AS object. Unless dontBuild, the BLAS is
// enqueued for the next build_blases pass.
func (b *Builder) Create(name string, usage Usage, geomBuf *geometry.Buffer, geoms []GeomInput, dontBuild bool) (*BLAS, error) {
	blas := &BLAS{Name: name, Usage: usage, Geoms: geoms, dontBuild: dontBuild}

	cGeoms := make([]vk.GeometryKHR, len(geoms))
	maxPrims := make([]uint32, len(geoms))
	for i, g := range geoms {
		geo, _, prims := geomToGeometryKHR(geomBuf, g)
		cGeoms[i] = geo
		maxPrims[i] = prims
	}

	info := vk.BuildGeometryInfo{
		Type:       vk.ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL,
		Flags:      usage.buildFlags(),
		Mode:       vk.BUILD_ACCELERATION_STRUCTURE_MODE_BUILD,
		Geometries: cGeoms,
	}
	sizes := b.procs.GetBuildSizes(&info, maxPrims)

	poolRange, err := b.allocAccelsRange(uint32(sizes.AccelerationStructureSize))
	if err != nil {
		return nil, fmt.Errorf("accel: create %q: %w", name, err)
	}

	handle, err := b.procs.CreateAccelerationStructure(b.accelsBuffer.Handle, uint64(poolRange.offset), uint64(poolRange.size), vk.ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL)
	if err != nil {
		b.freeAccelsRange(poolRange)
		return nil, fmt.Errorf("accel: create %q: create AS: %w", name, err)
	}

	blas.Handle = handle
	blas.poolRange = poolRange

	if !dontBuild {
		b.queue = append(b.queue, blas)
	}
	return blas, nil
}

// Update refills blas's geometries; if DynamicUpdate and already built, the
// next build_blases pass performs an in-place UPDATE instead of a fresh
// BUILD. Rejects the update if the recomputed size exceeds the original
// sub-pool allocation.
func (b *Builder) Update(blas *BLAS, geomBuf *geometry.Buffer, geoms []GeomInput) error {
	cGeoms := make([]vk.GeometryKHR, len(geoms))
	maxPrims := make([]uint32, len(geoms))
	for i, g := range geoms {
		geo, _, prims := geomToGeometryKHR(geomBuf, g)
		cGeoms[i] = geo
		maxPrims[i] = prims
	}

	info := vk.BuildGeometryInfo{
		Type:       vk.ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL,
		Flags:      blas.Usage.buildFlags(),
		Geometries: cGeoms,
	}
	sizes := b.procs.GetBuildSizes(&info, maxPrims)
	if uint32(sizes.AccelerationStructureSize) > blas.poolRange.size {
		return fmt.Errorf("accel: update %q: required size %d exceeds allocation %d", blas.Name, sizes.AccelerationStructureSize, blas.poolRange.size)
	}

	blas.Geoms = geoms
	b.queue = append(b.queue, blas)
	return nil
}

// DestroyBLAS destroys the AS object and frees its sub-pool range.
func (b *Builder) DestroyBLAS(blas *BLAS) {
	b.procs.DestroyAccelerationStructure(blas.Handle)
	b.freeAccelsRange(blas.poolRange)
}

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

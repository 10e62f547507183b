package accel

import (
	"fmt"
	"unsafe"

	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/geometry"
	"github.com/NOT-REAL-GAMES/vkrt/staging"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// buildOne records the scratch-patch and single vkCmdBuildAccelerationStructures
// call for one queued BLAS, as a named sub-step so build_blases and
// prepare_tlas's TLAS build share the scratch-bump/skip-on-overflow logic.
func (b *Builder) buildOne(cmd vk.CommandBuffer, geoms []vk.GeometryKHR, maxPrims []uint32, ranges []vk.BuildRangeInfo, asType vk.AccelerationStructureType, flags vk.BuildAccelerationStructureFlags, mode vk.BuildAccelerationStructureMode, src, dst vk.AccelerationStructureKHR) error {
	info := vk.BuildGeometryInfo{Type: asType, Flags: flags, Mode: mode, SrcAS: src, DstAS: dst, Geometries: geoms}
	sizes := b.procs.GetBuildSizes(&info, maxPrims)

	scratchSize := sizes.BuildScratchSize
	if mode == vk.BUILD_ACCELERATION_STRUCTURE_MODE_UPDATE {
		scratchSize = sizes.UpdateScratchSize
	}

	offset := alignUp(b.scratchBump, ScratchOffsetAlignment)
	if uint64(offset)+scratchSize > uint64(b.scratchCap) {
		return fmt.Errorf("accel: scratch buffer exhausted (want %d at %d, cap %d)", scratchSize, offset, b.scratchCap)
	}
	b.scratchBump = offset + uint32(scratchSize)
	info.ScratchData = vk.DeviceOrHostAddress(b.scratchBuffer.DeviceAddress() + uint64(offset))

	b.procs.CmdBuildAccelerationStructures(cmd, []vk.BuildGeometryInfo{info}, [][]vk.BuildRangeInfo{ranges})
	return nil
}

// BuildBLASes is build_blases(combuf): commits geometry staging, barriers
// the geometry buffer for acceleration-structure reads, then builds (or
// updates) every queued BLAS with one vkCmdBuildAccelerationStructures call
// each, skipping any whose scratch requirement doesn't fit this frame.
func (b *Builder) BuildBLASes(cb *combuf.Combuf, cmd vk.CommandBuffer, geomBuf *geometry.Buffer, arena *staging.Arena) {
	geomBuf.StagingCommit(cb, cmd, arena)

	if len(b.queue) > 0 {
		cb.IssueBarrier(cmd, vk.PIPELINE_STAGE_ACCELERATION_STRUCTURE_BUILD_BIT, []combuf.BufferDecl{
			{Sync: geomBuf.Sync(), Buffer: geomBuf.Handle(), Access: vk.ACCESS_ACCELERATION_STRUCTURE_READ_BIT},
		}, nil)
	}

	for _, blas := range b.queue {
		cGeoms := make([]vk.GeometryKHR, len(blas.Geoms))
		maxPrims := make([]uint32, len(blas.Geoms))
		ranges := make([]vk.BuildRangeInfo, len(blas.Geoms))
		for i, g := range blas.Geoms {
			geo, rng, prims := geomToGeometryKHR(geomBuf, g)
			cGeoms[i], ranges[i], maxPrims[i] = geo, rng, prims
		}

		mode := vk.BUILD_ACCELERATION_STRUCTURE_MODE_BUILD
		src := vk.AccelerationStructureKHR{}
		if blas.Usage == UsageDynamicUpdate && blas.Built {
			mode = vk.BUILD_ACCELERATION_STRUCTURE_MODE_UPDATE
			src = blas.Handle
		}

		if err := b.buildOne(cmd, cGeoms, maxPrims, ranges, vk.ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL, blas.Usage.buildFlags(), mode, src, blas.Handle); err != nil {
			continue
		}
		blas.Built = true
		blas.Address = b.procs.GetAccelerationStructureDeviceAddress(blas.Handle)
	}
	b.queue = b.queue[:0]
}

// MaterialMode selects instance mask/flags per §4.8's material-mode table.
type MaterialMode int

const (
	MaterialOpaque MaterialMode = iota
	MaterialOpaqueAlphaTest
	MaterialTranslucent
	MaterialBlendAdd
	MaterialBlendMix
	MaterialBlendGlow
)

// Instance is one TLAS instance request: a transform, the BLAS it
// references, a custom index (kusochki offset), and its material mode.
type Instance struct {
	Transform           [12]float32
	BLAS                *BLAS
	CustomIndex         uint32
	Mode                MaterialMode
	CullBackFace        bool
	ForceNoBackfaceCull bool // host CVar override: disable cull-disable even for CullBackFace==false
}

func (inst Instance) flags() vk.GeometryInstanceFlagsKHR {
	var f vk.GeometryInstanceFlagsKHR
	switch inst.Mode {
	case MaterialTranslucent, MaterialBlendAdd, MaterialBlendMix, MaterialBlendGlow:
		f |= vk.GEOMETRY_INSTANCE_FORCE_NO_OPAQUE_BIT
	default:
		f |= vk.GEOMETRY_INSTANCE_FORCE_OPAQUE_BIT
	}
	if !inst.CullBackFace && !inst.ForceNoBackfaceCull {
		f |= vk.GEOMETRY_INSTANCE_TRIANGLE_FACING_CULL_DISABLE_BIT
	}
	return f
}

func (inst Instance) mask() uint8 {
	switch inst.Mode {
	case MaterialOpaque, MaterialOpaqueAlphaTest:
		return 0xFF
	default:
		return 0x01 // matches the translucent/blend mask the RT shaders filter on
	}
}

// PrepareTLAS is prepare_tlas(combuf): builds all queued BLASes, reserves
// this frame's slots in the TLAS instance-descriptor flipping buffer (it does
// not flip it; Builder.Flip does), writes one VkAccelerationStructureInstanceKHR
// per instance through the host mapping, declares the build's read of the
// instance buffer to combuf, and builds (or updates) the TLAS. Returns the
// TLAS so the resource graph can bind its descriptor.
func (b *Builder) PrepareTLAS(cb *combuf.Combuf, cmd vk.CommandBuffer, geomBuf *geometry.Buffer, arena *staging.Arena, instances []Instance) (*BLAS, error) {
	b.BuildBLASes(cb, cmd, geomBuf, arena)

	instanceBytes := uint32(len(instances)) * uint32(vk.InstanceKHRSize)
	offset := b.tlasGeomRing.Alloc(instanceBytes, uint32(vk.InstanceKHRSize))
	if offset == ^uint32(0) {
		return nil, fmt.Errorf("accel: tlas geometry buffer exhausted for %d instances", len(instances))
	}

	base := unsafe.Add(b.tlasMapped, offset)
	for i, inst := range instances {
		dst := unsafe.Add(base, i*int(vk.InstanceKHRSize))
		vk.MarshalInstance(vk.InstanceKHR{
			Transform:                      inst.Transform,
			InstanceCustomIndex:            inst.CustomIndex,
			Mask:                           inst.mask(),
			Flags:                          inst.flags(),
			AccelerationStructureReference: inst.BLAS.Address,
		}, dst)
	}

	if b.tlas == nil {
		b.tlas = &BLAS{Name: "tlas"}
	}

	// Step 4: declare the build's read of the instance buffer. The instance
	// data is written through the host mapping, not by a GPU command, and as
	// the buffer's first declaration in this command buffer it emits no barrier.
	cb.IssueBarrier(cmd, vk.PIPELINE_STAGE_ACCELERATION_STRUCTURE_BUILD_BIT, []combuf.BufferDecl{
		{Sync: &b.tlasGeomSync, Buffer: b.tlasGeomBuffer.Handle, Access: vk.ACCESS_ACCELERATION_STRUCTURE_READ_BIT},
	}, nil)

	instanceData := vk.DeviceOrHostAddress(b.tlasGeomBuffer.DeviceAddress() + uint64(offset))
	geo := vk.GeometryKHR{GeometryType: vk.GEOMETRY_TYPE_INSTANCES, InstanceData: instanceData}

	mode := vk.BUILD_ACCELERATION_STRUCTURE_MODE_BUILD
	src := vk.AccelerationStructureKHR{}
	if b.tlas.Built {
		mode = vk.BUILD_ACCELERATION_STRUCTURE_MODE_UPDATE
		src = b.tlas.Handle
	}

	buildFlags := vk.BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT | vk.BUILD_ACCELERATION_STRUCTURE_ALLOW_UPDATE_BIT
	maxPrims := []uint32{uint32(len(instances))}

	if !b.tlas.Built {
		sizeInfo := vk.BuildGeometryInfo{Type: vk.ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL, Flags: buildFlags, Geometries: []vk.GeometryKHR{geo}}
		sizes := b.procs.GetBuildSizes(&sizeInfo, maxPrims)
		poolRange, err := b.allocAccelsRange(uint32(sizes.AccelerationStructureSize))
		if err != nil {
			return nil, fmt.Errorf("accel: prepare_tlas: %w", err)
		}
		handle, err := b.procs.CreateAccelerationStructure(b.accelsBuffer.Handle, uint64(poolRange.offset), uint64(poolRange.size), vk.ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL)
		if err != nil {
			b.freeAccelsRange(poolRange)
			return nil, fmt.Errorf("accel: prepare_tlas: create AS: %w", err)
		}
		b.tlas.Handle = handle
		b.tlas.poolRange = poolRange
		src = b.tlas.Handle
	}

	ranges := []vk.BuildRangeInfo{{PrimitiveCount: uint32(len(instances))}}
	if err := b.buildOne(cmd, []vk.GeometryKHR{geo}, maxPrims, ranges, vk.ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL, buildFlags, mode, src, b.tlas.Handle); err != nil {
		return nil, fmt.Errorf("accel: prepare_tlas: build: %w", err)
	}
	b.tlas.Built = true
	b.tlas.Address = b.procs.GetAccelerationStructureDeviceAddress(b.tlas.Handle)

	// Register the build's write (no barrier emitted yet: nothing has
	// observed the TLAS this generation) then declare the read every
	// ray-tracing/compute consumer needs, which is where the real trailing
	// barrier is emitted per §4.8 step 5.
	cb.IssueBarrier(cmd, vk.PIPELINE_STAGE_ACCELERATION_STRUCTURE_BUILD_BIT, []combuf.BufferDecl{
		{Sync: &b.tlas.Sync, Buffer: b.accelsBuffer.Handle, Access: vk.ACCESS_ACCELERATION_STRUCTURE_WRITE_BIT},
	}, nil)
	cb.IssueBarrier(cmd, vk.PIPELINE_STAGE_RAY_TRACING_SHADER_BIT|vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT, []combuf.BufferDecl{
		{Sync: &b.tlas.Sync, Buffer: b.accelsBuffer.Handle, Access: vk.ACCESS_SHADER_READ_BIT},
	}, nil)
	return b.tlas, nil
}

// Flip advances the TLAS instance-buffer generation for the next frame.
func (b *Builder) Flip() {
	b.tlasGeomRing.Flip()
	b.scratchBump = 0
}

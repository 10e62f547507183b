// accel.go wraps the subset of VK_KHR_acceleration_structure needed by the
// BLAS/TLAS builder. Acceleration-structure entry points are extension
// functions, not part of the core loader table, so they are resolved once
// per device via vkGetDeviceProcAddr and cached.
package vk

/*
#include <vulkan/vulkan.h>
#include <stdlib.h>

typedef VkResult (*PFN_vkCreateAccelerationStructureKHR_t)(VkDevice, const VkAccelerationStructureCreateInfoKHR*, const VkAllocationCallbacks*, VkAccelerationStructureKHR*);
typedef void (*PFN_vkDestroyAccelerationStructureKHR_t)(VkDevice, VkAccelerationStructureKHR, const VkAllocationCallbacks*);
typedef void (*PFN_vkGetAccelerationStructureBuildSizesKHR_t)(VkDevice, VkAccelerationStructureBuildTypeKHR, const VkAccelerationStructureBuildGeometryInfoKHR*, const uint32_t*, VkAccelerationStructureBuildSizesInfoKHR*);
typedef void (*PFN_vkCmdBuildAccelerationStructuresKHR_t)(VkCommandBuffer, uint32_t, const VkAccelerationStructureBuildGeometryInfoKHR*, const VkAccelerationStructureBuildRangeInfoKHR* const*);
typedef VkDeviceAddress (*PFN_vkGetAccelerationStructureDeviceAddressKHR_t)(VkDevice, const VkAccelerationStructureDeviceAddressInfoKHR*);

static VkResult vkrt_CreateAccelerationStructureKHR(VkDevice device, void *fn, const VkAccelerationStructureCreateInfoKHR *pCreateInfo, VkAccelerationStructureKHR *pAS) {
	return ((PFN_vkCreateAccelerationStructureKHR_t)fn)(device, pCreateInfo, 0, pAS);
}
static void vkrt_DestroyAccelerationStructureKHR(VkDevice device, void *fn, VkAccelerationStructureKHR as) {
	((PFN_vkDestroyAccelerationStructureKHR_t)fn)(device, as, 0);
}
static void vkrt_GetAccelerationStructureBuildSizesKHR(VkDevice device, void *fn, const VkAccelerationStructureBuildGeometryInfoKHR *pInfo, const uint32_t *maxPrimCounts, VkAccelerationStructureBuildSizesInfoKHR *pSizes) {
	((PFN_vkGetAccelerationStructureBuildSizesKHR_t)fn)(device, VK_ACCELERATION_STRUCTURE_BUILD_TYPE_DEVICE_KHR, pInfo, maxPrimCounts, pSizes);
}
static void vkrt_CmdBuildAccelerationStructuresKHR(VkCommandBuffer cmd, void *fn, uint32_t count, const VkAccelerationStructureBuildGeometryInfoKHR *pInfos, const VkAccelerationStructureBuildRangeInfoKHR * const *ppRanges) {
	((PFN_vkCmdBuildAccelerationStructuresKHR_t)fn)(cmd, count, pInfos, ppRanges);
}
static VkDeviceAddress vkrt_GetAccelerationStructureDeviceAddressKHR(VkDevice device, void *fn, const VkAccelerationStructureDeviceAddressInfoKHR *pInfo) {
	return ((PFN_vkGetAccelerationStructureDeviceAddressKHR_t)fn)(device, pInfo);
}

// Bitfield writers for VkAccelerationStructureInstanceKHR: cgo exposes C
// bitfield members as an opaque byte blob with no generated accessors, so
// packing instanceCustomIndex/mask and instanceShaderBindingTableRecordOffset/
// flags goes through these instead.
static void vkrt_SetInstanceCustomIndexAndMask(VkAccelerationStructureInstanceKHR *inst, uint32_t customIndex, uint8_t mask) {
	inst->instanceCustomIndex = customIndex;
	inst->mask = mask;
}
static void vkrt_SetInstanceSBTOffsetAndFlags(VkAccelerationStructureInstanceKHR *inst, uint32_t sbtOffset, uint8_t flags) {
	inst->instanceShaderBindingTableRecordOffset = sbtOffset;
	inst->flags = flags;
}
*/
import "C"
import "unsafe"

// AccelProcs caches the resolved VK_KHR_acceleration_structure entry points
// for one device. Resolve once at device-creation time and pass it to every
// accel package call; there is no global state here by design (see the
// resource core's "no implicit singletons" rule).
type AccelProcs struct {
	device                     Device
	createAS                   unsafe.Pointer
	destroyAS                  unsafe.Pointer
	getBuildSizes              unsafe.Pointer
	cmdBuildAS                 unsafe.Pointer
	getASDeviceAddress         unsafe.Pointer
}

func (device Device) LoadAccelProcs() AccelProcs {
	get := func(name string) unsafe.Pointer {
		cName := C.CString(name)
		defer C.free(unsafe.Pointer(cName))
		return unsafe.Pointer(C.vkGetDeviceProcAddr(device.handle, (*C.char)(cName)))
	}
	return AccelProcs{
		device:             device,
		createAS:           get("vkCreateAccelerationStructureKHR"),
		destroyAS:          get("vkDestroyAccelerationStructureKHR"),
		getBuildSizes:      get("vkGetAccelerationStructureBuildSizesKHR"),
		cmdBuildAS:         get("vkCmdBuildAccelerationStructuresKHR"),
		getASDeviceAddress: get("vkGetAccelerationStructureDeviceAddressKHR"),
	}
}

type AccelerationStructureKHR struct {
	handle C.VkAccelerationStructureKHR
}

type AccelerationStructureType int32

const (
	ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL AccelerationStructureType = C.VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR
	ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL    AccelerationStructureType = C.VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR
)

// Buffer usage bits the accel builder's geometry/instance/accel-storage
// buffers need, not carried by the core loader's buffer.go.
const (
	BUFFER_USAGE_ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY_BIT BufferUsageFlags = C.VK_BUFFER_USAGE_ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY_BIT_KHR
	BUFFER_USAGE_ACCELERATION_STRUCTURE_STORAGE_BIT               BufferUsageFlags = C.VK_BUFFER_USAGE_ACCELERATION_STRUCTURE_STORAGE_BIT_KHR
	BUFFER_USAGE_SHADER_BINDING_TABLE_BIT                         BufferUsageFlags = C.VK_BUFFER_USAGE_SHADER_BINDING_TABLE_BIT_KHR
	BUFFER_USAGE_STORAGE_BUFFER_BIT                               BufferUsageFlags = C.VK_BUFFER_USAGE_STORAGE_BUFFER_BIT
)

type BuildAccelerationStructureFlags uint32

const (
	BUILD_ACCELERATION_STRUCTURE_ALLOW_UPDATE_BIT  BuildAccelerationStructureFlags = C.VK_BUILD_ACCELERATION_STRUCTURE_ALLOW_UPDATE_BIT_KHR
	BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT BuildAccelerationStructureFlags = C.VK_BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT_KHR
	BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_BUILD_BIT BuildAccelerationStructureFlags = C.VK_BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_BUILD_BIT_KHR
)

type BuildAccelerationStructureMode int32

const (
	BUILD_ACCELERATION_STRUCTURE_MODE_BUILD  BuildAccelerationStructureMode = C.VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR
	BUILD_ACCELERATION_STRUCTURE_MODE_UPDATE BuildAccelerationStructureMode = C.VK_BUILD_ACCELERATION_STRUCTURE_MODE_UPDATE_KHR
)

type GeometryTypeKHR int32

const (
	GEOMETRY_TYPE_TRIANGLES GeometryTypeKHR = C.VK_GEOMETRY_TYPE_TRIANGLES_KHR
	GEOMETRY_TYPE_INSTANCES GeometryTypeKHR = C.VK_GEOMETRY_TYPE_INSTANCES_KHR
)

type GeometryFlagsKHR uint32

const (
	GEOMETRY_OPAQUE_BIT GeometryFlagsKHR = C.VK_GEOMETRY_OPAQUE_BIT_KHR
)

// DeviceOrHostAddress is a device-address-only view of VkDeviceOrHostAddressConstKHR/VkDeviceOrHostAddressKHR.
type DeviceOrHostAddress uint64

// TrianglesData mirrors the triangle fields of VkAccelerationStructureGeometryDataKHR.
type TrianglesData struct {
	VertexFormat  Format
	VertexData    DeviceOrHostAddress
	VertexStride  uint64
	MaxVertex     uint32
	IndexType     IndexType
	IndexData     DeviceOrHostAddress
}

// GeometryKHR is a triangles-only view of VkAccelerationStructureGeometryKHR —
// the RT core only ever builds with TRIANGLES or INSTANCES geometry.
type GeometryKHR struct {
	GeometryType GeometryTypeKHR
	Triangles    TrianglesData
	InstanceData DeviceOrHostAddress // valid when GeometryType == INSTANCES
	Flags        GeometryFlagsKHR
}

// BuildRangeInfo mirrors VkAccelerationStructureBuildRangeInfoKHR.
type BuildRangeInfo struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// BuildGeometryInfo mirrors the device-build subset of
// VkAccelerationStructureBuildGeometryInfoKHR.
type BuildGeometryInfo struct {
	Type          AccelerationStructureType
	Flags         BuildAccelerationStructureFlags
	Mode          BuildAccelerationStructureMode
	SrcAS         AccelerationStructureKHR // valid when Mode == UPDATE
	DstAS         AccelerationStructureKHR
	Geometries    []GeometryKHR
	ScratchData   DeviceOrHostAddress
}

// BuildSizesInfo mirrors VkAccelerationStructureBuildSizesInfoKHR.
type BuildSizesInfo struct {
	AccelerationStructureSize uint64
	UpdateScratchSize         uint64
	BuildScratchSize          uint64
}

func vulkanizeGeometries(geoms []GeometryKHR) []C.VkAccelerationStructureGeometryKHR {
	out := make([]C.VkAccelerationStructureGeometryKHR, len(geoms))
	for i, g := range geoms {
		out[i].sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR
		out[i].geometryType = C.VkGeometryTypeKHR(g.GeometryType)
		out[i].flags = C.VkGeometryFlagsKHR(g.Flags)

		switch g.GeometryType {
		case GEOMETRY_TYPE_TRIANGLES:
			tri := (*C.VkAccelerationStructureGeometryTrianglesDataKHR)(unsafe.Pointer(&out[i].geometry[0]))
			tri.sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_TRIANGLES_DATA_KHR
			tri.vertexFormat = C.VkFormat(g.Triangles.VertexFormat)
			*(*C.VkDeviceAddress)(unsafe.Pointer(&tri.vertexData)) = C.VkDeviceAddress(g.Triangles.VertexData)
			tri.vertexStride = C.VkDeviceSize(g.Triangles.VertexStride)
			tri.maxVertex = C.uint32_t(g.Triangles.MaxVertex)
			tri.indexType = C.VkIndexType(g.Triangles.IndexType)
			*(*C.VkDeviceAddress)(unsafe.Pointer(&tri.indexData)) = C.VkDeviceAddress(g.Triangles.IndexData)
		case GEOMETRY_TYPE_INSTANCES:
			inst := (*C.VkAccelerationStructureGeometryInstancesDataKHR)(unsafe.Pointer(&out[i].geometry[0]))
			inst.sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_INSTANCES_DATA_KHR
			inst.arrayOfPointers = 0
			*(*C.VkDeviceAddress)(unsafe.Pointer(&inst.data)) = C.VkDeviceAddress(g.InstanceData)
		}
	}
	return out
}

func vulkanizeBuildInfo(info *BuildGeometryInfo, cGeoms []C.VkAccelerationStructureGeometryKHR) *C.VkAccelerationStructureBuildGeometryInfoKHR {
	cInfo := (*C.VkAccelerationStructureBuildGeometryInfoKHR)(C.calloc(1, C.sizeof_VkAccelerationStructureBuildGeometryInfoKHR))
	cInfo.sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR
	cInfo._type = C.VkAccelerationStructureTypeKHR(info.Type)
	cInfo.flags = C.VkBuildAccelerationStructureFlagsKHR(info.Flags)
	cInfo.mode = C.VkBuildAccelerationStructureModeKHR(info.Mode)
	cInfo.srcAccelerationStructure = info.SrcAS.handle
	cInfo.dstAccelerationStructure = info.DstAS.handle
	if len(cGeoms) > 0 {
		cInfo.geometryCount = C.uint32_t(len(cGeoms))
		cInfo.pGeometries = &cGeoms[0]
	}
	*(*C.VkDeviceAddress)(unsafe.Pointer(&cInfo.scratchData)) = C.VkDeviceAddress(info.ScratchData)
	return cInfo
}

// GetBuildSizes queries build/update/AS-storage sizes for a build.
func (p AccelProcs) GetBuildSizes(info *BuildGeometryInfo, maxPrimitiveCounts []uint32) BuildSizesInfo {
	cGeoms := vulkanizeGeometries(info.Geometries)
	cInfo := vulkanizeBuildInfo(info, cGeoms)
	defer C.free(unsafe.Pointer(cInfo))

	var cSizes C.VkAccelerationStructureBuildSizesInfoKHR
	cSizes.sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_SIZES_INFO_KHR

	var pCounts *C.uint32_t
	if len(maxPrimitiveCounts) > 0 {
		cCounts := make([]C.uint32_t, len(maxPrimitiveCounts))
		for i, c := range maxPrimitiveCounts {
			cCounts[i] = C.uint32_t(c)
		}
		pCounts = &cCounts[0]
	}

	C.vkrt_GetAccelerationStructureBuildSizesKHR(p.device.handle, p.getBuildSizes, cInfo, pCounts, &cSizes)

	return BuildSizesInfo{
		AccelerationStructureSize: uint64(cSizes.accelerationStructureSize),
		UpdateScratchSize:         uint64(cSizes.updateScratchSize),
		BuildScratchSize:          uint64(cSizes.buildScratchSize),
	}
}

// CreateAccelerationStructure creates an AS object over an existing buffer range.
func (p AccelProcs) CreateAccelerationStructure(buffer Buffer, offset, size uint64, asType AccelerationStructureType) (AccelerationStructureKHR, error) {
	cInfo := (*C.VkAccelerationStructureCreateInfoKHR)(C.calloc(1, C.sizeof_VkAccelerationStructureCreateInfoKHR))
	defer C.free(unsafe.Pointer(cInfo))
	cInfo.sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_CREATE_INFO_KHR
	cInfo.buffer = buffer.handle
	cInfo.offset = C.VkDeviceSize(offset)
	cInfo.size = C.VkDeviceSize(size)
	cInfo._type = C.VkAccelerationStructureTypeKHR(asType)

	var as C.VkAccelerationStructureKHR
	result := C.vkrt_CreateAccelerationStructureKHR(p.device.handle, p.createAS, cInfo, &as)
	if result != C.VK_SUCCESS {
		return AccelerationStructureKHR{}, Result(result)
	}
	return AccelerationStructureKHR{handle: as}, nil
}

func (p AccelProcs) DestroyAccelerationStructure(as AccelerationStructureKHR) {
	C.vkrt_DestroyAccelerationStructureKHR(p.device.handle, p.destroyAS, as.handle)
}

func (p AccelProcs) GetAccelerationStructureDeviceAddress(as AccelerationStructureKHR) uint64 {
	cInfo := (*C.VkAccelerationStructureDeviceAddressInfoKHR)(C.calloc(1, C.sizeof_VkAccelerationStructureDeviceAddressInfoKHR))
	defer C.free(unsafe.Pointer(cInfo))
	cInfo.sType = C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_DEVICE_ADDRESS_INFO_KHR
	cInfo.accelerationStructure = as.handle
	return uint64(C.vkrt_GetAccelerationStructureDeviceAddressKHR(p.device.handle, p.getASDeviceAddress, cInfo))
}

// CmdBuildAccelerationStructures records one vkCmdBuildAccelerationStructuresKHR
// call covering all given builds, each with its single build-range entry.
func (p AccelProcs) CmdBuildAccelerationStructures(cmd CommandBuffer, infos []BuildGeometryInfo, ranges [][]BuildRangeInfo) {
	if len(infos) == 0 {
		return
	}

	cInfos := make([]C.VkAccelerationStructureBuildGeometryInfoKHR, len(infos))
	// keep geometry slices alive for the duration of the call
	keepAlive := make([][]C.VkAccelerationStructureGeometryKHR, len(infos))
	for i := range infos {
		cGeoms := vulkanizeGeometries(infos[i].Geometries)
		keepAlive[i] = cGeoms
		built := vulkanizeBuildInfo(&infos[i], cGeoms)
		cInfos[i] = *built
		C.free(unsafe.Pointer(built))
	}

	cRangePtrs := make([]*C.VkAccelerationStructureBuildRangeInfoKHR, len(infos))
	cRangeStorage := make([][]C.VkAccelerationStructureBuildRangeInfoKHR, len(infos))
	for i, rs := range ranges {
		cr := make([]C.VkAccelerationStructureBuildRangeInfoKHR, len(rs))
		for j, r := range rs {
			cr[j].primitiveCount = C.uint32_t(r.PrimitiveCount)
			cr[j].primitiveOffset = C.uint32_t(r.PrimitiveOffset)
			cr[j].firstVertex = C.uint32_t(r.FirstVertex)
			cr[j].transformOffset = C.uint32_t(r.TransformOffset)
		}
		cRangeStorage[i] = cr
		if len(cr) > 0 {
			cRangePtrs[i] = &cr[0]
		}
	}

	C.vkrt_CmdBuildAccelerationStructuresKHR(
		cmd.handle, p.cmdBuildAS,
		C.uint32_t(len(cInfos)), &cInfos[0],
		(**C.VkAccelerationStructureBuildRangeInfoKHR)(unsafe.Pointer(&cRangePtrs[0])),
	)
}

// GeometryInstanceFlagsKHR mirrors VkGeometryInstanceFlagBitsKHR, used by the
// TLAS instance-descriptor packer below.
type GeometryInstanceFlagsKHR uint32

const (
	GEOMETRY_INSTANCE_TRIANGLE_FACING_CULL_DISABLE_BIT GeometryInstanceFlagsKHR = C.VK_GEOMETRY_INSTANCE_TRIANGLE_FACING_CULL_DISABLE_BIT_KHR
	GEOMETRY_INSTANCE_FORCE_OPAQUE_BIT                 GeometryInstanceFlagsKHR = C.VK_GEOMETRY_INSTANCE_FORCE_OPAQUE_BIT_KHR
	GEOMETRY_INSTANCE_FORCE_NO_OPAQUE_BIT              GeometryInstanceFlagsKHR = C.VK_GEOMETRY_INSTANCE_FORCE_NO_OPAQUE_BIT_KHR
)

// InstanceKHR is the Go-side view of VkAccelerationStructureInstanceKHR: a
// row-major 3x4 object-to-world transform plus the packed
// index/mask/offset/flags bitfields and a BLAS device address.
type InstanceKHR struct {
	Transform                     [12]float32 // 3 rows x 4 columns, row-major
	InstanceCustomIndex            uint32      // low 24 bits used
	Mask                           uint8
	InstanceShaderBindingTableOffset uint32    // low 24 bits used
	Flags                          GeometryInstanceFlagsKHR
	AccelerationStructureReference uint64
}

// InstanceKHRSize is sizeof(VkAccelerationStructureInstanceKHR) — the
// tlas_geom_buffer's per-instance stride.
const InstanceKHRSize = C.sizeof_VkAccelerationStructureInstanceKHR

// MarshalInstance packs inst into dst (which must be at least
// InstanceKHRSize bytes) using the driver's own struct layout, so the
// custom-index/mask/offset/flags bitfield packing always matches what the
// loader expects regardless of host byte order assumptions.
func MarshalInstance(inst InstanceKHR, dst unsafe.Pointer) {
	c := (*C.VkAccelerationStructureInstanceKHR)(dst)
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			c.transform.matrix[row][col] = C.float(inst.Transform[row*4+col])
		}
	}
	C.vkrt_SetInstanceCustomIndexAndMask(c, C.uint32_t(inst.InstanceCustomIndex&0xFFFFFF), C.uint8_t(inst.Mask))
	C.vkrt_SetInstanceSBTOffsetAndFlags(c, C.uint32_t(inst.InstanceShaderBindingTableOffset&0xFFFFFF), C.uint8_t(inst.Flags))
	*(*C.uint64_t)(unsafe.Pointer(&c.accelerationStructureReference)) = C.uint64_t(inst.AccelerationStructureReference)
}

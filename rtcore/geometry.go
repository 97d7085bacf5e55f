package rtcore

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// AABBPositionsSize is the byte size of one VkAabbPositionsKHR.
const AABBPositionsSize = 24

// AABBStride is the stride recorded for every AABB geometry.
const AABBStride = 16

// InstanceRecordSize is the byte size of one VkAccelerationStructureInstanceKHR.
const InstanceRecordSize = 64

// TransformSize is the byte size of a 3x4 row-major float32 transform.
const TransformSize = 48

// TrianglesData mirrors VkAccelerationStructureGeometryTrianglesDataKHR.
// Spans are referenced by device address.
type TrianglesData struct {
	VertexFormat vk.Format
	VertexData   vk.DeviceAddress
	VertexStride uint64
	MaxVertex    uint32
	IndexType    vk.IndexType
	IndexData    vk.DeviceAddress

	// TransformData is the address of a 3x4 transform, or 0 for none.
	TransformData vk.DeviceAddress
}

// AABBsData mirrors VkAccelerationStructureGeometryAabbsDataKHR.
type AABBsData struct {
	Data   vk.DeviceAddress
	Stride uint64
}

// InstancesData mirrors VkAccelerationStructureGeometryInstancesDataKHR.
type InstancesData struct {
	// ArrayOfPointers selects whether Data holds packed instance records or
	// an array of device addresses of individual records.
	ArrayOfPointers bool
	Data            vk.DeviceAddress
}

// GeometryRecord mirrors VkAccelerationStructureGeometryKHR. Type selects
// which of Triangles, AABBs and Instances is meaningful.
type GeometryRecord struct {
	Type      vk.GeometryTypeKHR
	Flags     vk.GeometryFlagsKHR
	Triangles TrianglesData
	AABBs     AABBsData
	Instances InstancesData
}

// BuildGeometryInfo mirrors VkAccelerationStructureBuildGeometryInfoKHR for
// one-shot builds.
type BuildGeometryInfo struct {
	Type        vk.AccelerationStructureTypeKHR
	Flags       vk.BuildAccelerationStructureFlagsKHR
	Geometries  []GeometryRecord
	Destination vk.AccelerationStructureKHR
	ScratchData vk.DeviceAddress
}

// BuildSizes mirrors VkAccelerationStructureBuildSizesInfoKHR.
type BuildSizes struct {
	AccelerationStructureSize uint64
	BuildScratchSize          uint64
}

// InstanceRecord is the host form of VkAccelerationStructureInstanceKHR.
type InstanceRecord struct {
	// Transform is a 3x4 row-major affine transform.
	Transform f32.Aff4

	// CustomIndex is the 24-bit value visible to shaders as
	// InstanceCustomIndexKHR.
	CustomIndex uint32
	Mask        uint8

	// SBTRecordOffset is the 24-bit hit group offset.
	SBTRecordOffset uint32
	Flags           vk.GeometryInstanceFlagsKHR

	// AccelerationStructureReference is the BLAS device address.
	AccelerationStructureReference vk.DeviceAddress
}

// Encode writes the record in driver layout into dst, which must hold at
// least InstanceRecordSize bytes.
func (r *InstanceRecord) Encode(dst []byte) {
	_ = dst[InstanceRecordSize-1]
	PutTransform(dst[:TransformSize], r.Transform)
	binary.LittleEndian.PutUint32(dst[48:], r.CustomIndex&0xFFFFFF|uint32(r.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], r.SBTRecordOffset&0xFFFFFF|uint32(r.Flags&0xFF)<<24)
	binary.LittleEndian.PutUint64(dst[56:], uint64(r.AccelerationStructureReference))
}

// DecodeInstanceRecord reads a record written by Encode.
func DecodeInstanceRecord(src []byte) InstanceRecord {
	_ = src[InstanceRecordSize-1]
	w0 := binary.LittleEndian.Uint32(src[48:])
	w1 := binary.LittleEndian.Uint32(src[52:])
	return InstanceRecord{
		Transform:                      Transform(src[:TransformSize]),
		CustomIndex:                    w0 & 0xFFFFFF,
		Mask:                           uint8(w0 >> 24),
		SBTRecordOffset:                w1 & 0xFFFFFF,
		Flags:                          vk.GeometryInstanceFlagsKHR(w1 >> 24),
		AccelerationStructureReference: vk.DeviceAddress(binary.LittleEndian.Uint64(src[56:])),
	}
}

// PutTransform writes m as twelve little-endian float32 values.
func PutTransform(dst []byte, m f32.Aff4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

// Transform reads twelve little-endian float32 values.
func Transform(src []byte) f32.Aff4 {
	var m f32.Aff4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
	return m
}

// Identity is the identity 3x4 transform.
var Identity = f32.Aff4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
}

package software

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

func float32Bytes(vs ...float32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func uint32Bytes(vs ...uint32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

func mustBuffer(t *testing.T, d *Device, name string, data []byte) rtcore.Buffer {
	t.Helper()
	b, err := d.CreateBufferWithData(name, data,
		rtcore.BufferUsageBuildInputReadOnly|rtcore.BufferUsageShaderDeviceAddress, rtcore.MemoryCPUToGPU)
	if err != nil {
		t.Fatalf("CreateBufferWithData(%s) error = %v", name, err)
	}
	return b
}

// build runs one build through the size query, allocation and a compute
// queue submission.
func build(t *testing.T, d *Device, info rtcore.BuildGeometryInfo, ranges []vk.AccelerationStructureBuildRangeInfoKHR) (vk.AccelerationStructureKHR, error) {
	t.Helper()
	counts := make([]uint32, len(ranges))
	for i, r := range ranges {
		counts[i] = r.PrimitiveCount
	}
	as := allocate(t, d, &info, counts)
	scratch, err := d.CreateBuffer("scratch", 1<<12, rtcore.BufferUsageStorage, rtcore.MemoryGPUOnly)
	if err != nil {
		t.Fatalf("CreateBuffer(scratch) error = %v", err)
	}
	defer scratch.Destroy()

	info.Destination = as
	info.ScratchData = scratch.DeviceAddress()
	cb, err := d.CreateCommandBuffer(rtcore.QueueCompute)
	if err != nil {
		t.Fatalf("CreateCommandBuffer() error = %v", err)
	}
	cb.BuildAccelerationStructures([]rtcore.BuildGeometryInfo{info}, [][]vk.AccelerationStructureBuildRangeInfoKHR{ranges})
	return as, d.Queue(rtcore.QueueCompute).SubmitBlocking(cb)
}

func allocate(t *testing.T, d *Device, info *rtcore.BuildGeometryInfo, counts []uint32) vk.AccelerationStructureKHR {
	t.Helper()
	sizes, err := d.AccelerationStructureBuildSizes(info, counts)
	if err != nil {
		t.Fatalf("AccelerationStructureBuildSizes() error = %v", err)
	}
	buf, err := d.CreateBuffer("result", sizes.AccelerationStructureSize,
		rtcore.BufferUsageAccelerationStructureStorage, rtcore.MemoryGPUOnly)
	if err != nil {
		t.Fatalf("CreateBuffer(result) error = %v", err)
	}
	as, err := d.CreateAccelerationStructure(&rtcore.AccelerationStructureDescriptor{
		Name:   "test",
		Type:   info.Type,
		Buffer: buf,
		Size:   sizes.AccelerationStructureSize,
	})
	if err != nil {
		t.Fatalf("CreateAccelerationStructure() error = %v", err)
	}
	return as
}

func triangleInfo(t *testing.T, d *Device) rtcore.BuildGeometryInfo {
	t.Helper()
	vertices := mustBuffer(t, d, "vertices", float32Bytes(
		0, 0, 0,
		1, 0, 0,
		0, 2, 0,
	))
	indices := mustBuffer(t, d, "indices", uint32Bytes(0, 1, 2))
	return rtcore.BuildGeometryInfo{
		Type: vk.AccelerationStructureTypeBottomLevelKhr,
		Geometries: []rtcore.GeometryRecord{{
			Type: vk.GeometryTypeTrianglesKhr,
			Triangles: rtcore.TrianglesData{
				VertexFormat: vk.FormatR32g32b32Sfloat,
				VertexData:   vertices.DeviceAddress(),
				VertexStride: 12,
				MaxVertex:    3,
				IndexType:    vk.IndexTypeUint32,
				IndexData:    indices.DeviceAddress(),
			},
		}},
	}
}

func instanceInfo(t *testing.T, d *Device, ref vk.DeviceAddress, xf f32.Aff4) rtcore.BuildGeometryInfo {
	t.Helper()
	rec := rtcore.InstanceRecord{Transform: xf, Mask: 0xFF, AccelerationStructureReference: ref}
	raw := make([]byte, rtcore.InstanceRecordSize)
	rec.Encode(raw)
	instances := mustBuffer(t, d, "instances", raw)
	return rtcore.BuildGeometryInfo{
		Type: vk.AccelerationStructureTypeTopLevelKhr,
		Geometries: []rtcore.GeometryRecord{{
			Type:      vk.GeometryTypeInstancesKhr,
			Instances: rtcore.InstancesData{Data: instances.DeviceAddress()},
		}},
	}
}

func TestBuildSizes(t *testing.T) {
	tests := []struct {
		prims   uint64
		size    uint64
		scratch uint64
	}{
		{0, 256, 256},
		{1, 256, 256},
		{2, 256, 256},
		{3, 512, 256},
		{100, 6656, 3328},
	}
	for _, tt := range tests {
		got := buildSizes(tt.prims)
		if got.AccelerationStructureSize != tt.size || got.BuildScratchSize != tt.scratch {
			t.Errorf("buildSizes(%d) = %+v, want {%d %d}", tt.prims, got, tt.size, tt.scratch)
		}
	}
}

func TestBuildSizesValidation(t *testing.T) {
	d := newTestDevice(t)
	info := triangleInfo(t, d)

	if _, err := d.AccelerationStructureBuildSizes(&info, nil); !errors.Is(err, rtcore.ErrValidation) {
		t.Errorf("count mismatch error = %v, want ErrValidation", err)
	}

	tlas := info
	tlas.Type = vk.AccelerationStructureTypeTopLevelKhr
	if _, err := d.AccelerationStructureBuildSizes(&tlas, []uint32{1}); !errors.Is(err, rtcore.ErrValidation) {
		t.Errorf("top-level triangles error = %v, want ErrValidation", err)
	}

	d.InjectFault(FaultBuildSizes)
	if _, err := d.AccelerationStructureBuildSizes(&info, []uint32{1}); !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("injected fault error = %v, want ErrDevice", err)
	}
}

func TestCreateAccelerationStructureValidation(t *testing.T) {
	d := newTestDevice(t)
	plain, err := d.CreateBuffer("plain", 1024, rtcore.BufferUsageStorage, rtcore.MemoryGPUOnly)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	storage, err := d.CreateBuffer("storage", 1024, rtcore.BufferUsageAccelerationStructureStorage, rtcore.MemoryGPUOnly)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	tests := []struct {
		name string
		desc rtcore.AccelerationStructureDescriptor
	}{
		{"missing usage", rtcore.AccelerationStructureDescriptor{Buffer: plain, Size: 256}},
		{"unaligned offset", rtcore.AccelerationStructureDescriptor{Buffer: storage, Offset: 128, Size: 256}},
		{"out of range", rtcore.AccelerationStructureDescriptor{Buffer: storage, Offset: 768, Size: 512}},
		{"below header", rtcore.AccelerationStructureDescriptor{Buffer: storage, Size: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateAccelerationStructure(&tt.desc); !errors.Is(err, rtcore.ErrValidation) {
				t.Errorf("CreateAccelerationStructure() error = %v, want ErrValidation", err)
			}
		})
	}
	if got := d.Stats().LiveAccelerationStructures; got != 0 {
		t.Errorf("LiveAccelerationStructures = %d, want 0", got)
	}
}

func TestBuildTriangles(t *testing.T) {
	d := newTestDevice(t)
	info := triangleInfo(t, d)

	as, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if err != nil {
		t.Fatalf("build error = %v", err)
	}
	s, err := d.Describe(as)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if s.Type != vk.AccelerationStructureTypeBottomLevelKhr || s.PrimitiveCount != 1 || s.GeometryCount != 1 {
		t.Errorf("Describe() = %+v", s)
	}
	if s.Min != (f32.Vec3{0, 0, 0}) || s.Max != (f32.Vec3{1, 2, 0}) {
		t.Errorf("bounds = %v..%v, want [0 0 0]..[1 2 0]", s.Min, s.Max)
	}
	if d.AccelerationStructureAddress(as) == 0 {
		t.Error("AccelerationStructureAddress() = 0")
	}
}

func TestBuildTrianglesWithTransform(t *testing.T) {
	d := newTestDevice(t)
	info := triangleInfo(t, d)
	raw := make([]byte, rtcore.TransformSize)
	rtcore.PutTransform(raw, f32.Aff4{
		2, 0, 0, 5,
		0, 1, 0, 0,
		0, 0, 1, -1,
	})
	info.Geometries[0].Triangles.TransformData = mustBuffer(t, d, "transform", raw).DeviceAddress()

	as, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if err != nil {
		t.Fatalf("build error = %v", err)
	}
	s, err := d.Describe(as)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if s.Min != (f32.Vec3{5, 0, -1}) || s.Max != (f32.Vec3{7, 2, -1}) {
		t.Errorf("bounds = %v..%v, want [5 0 -1]..[7 2 -1]", s.Min, s.Max)
	}
}

func TestBuildTrianglesIndexOutOfRange(t *testing.T) {
	d := newTestDevice(t)
	info := triangleInfo(t, d)
	info.Geometries[0].Triangles.MaxVertex = 1

	_, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("build error = %v, want ErrDevice", err)
	}
}

func TestBuildAABBs(t *testing.T) {
	d := newTestDevice(t)
	boxes := mustBuffer(t, d, "boxes", float32Bytes(
		-1, -1, -1, 1, 1, 1,
		2, 2, 2, 3, 4, 5,
	))
	info := rtcore.BuildGeometryInfo{
		Type: vk.AccelerationStructureTypeBottomLevelKhr,
		Geometries: []rtcore.GeometryRecord{{
			Type:  vk.GeometryTypeAabbsKhr,
			AABBs: rtcore.AABBsData{Data: boxes.DeviceAddress(), Stride: rtcore.AABBPositionsSize},
		}},
	}
	as, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 2}})
	if err != nil {
		t.Fatalf("build error = %v", err)
	}
	s, err := d.Describe(as)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if s.Min != (f32.Vec3{-1, -1, -1}) || s.Max != (f32.Vec3{3, 4, 5}) {
		t.Errorf("bounds = %v..%v", s.Min, s.Max)
	}
}

func TestBuildAABBsNotResident(t *testing.T) {
	d := newTestDevice(t)
	boxes := mustBuffer(t, d, "boxes", make([]byte, 16))
	info := rtcore.BuildGeometryInfo{
		Type: vk.AccelerationStructureTypeBottomLevelKhr,
		Geometries: []rtcore.GeometryRecord{{
			Type:  vk.GeometryTypeAabbsKhr,
			AABBs: rtcore.AABBsData{Data: boxes.DeviceAddress(), Stride: rtcore.AABBStride},
		}},
	}
	_, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 4}})
	if !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("build error = %v, want ErrDevice", err)
	}
}

func TestBuildInstances(t *testing.T) {
	d := newTestDevice(t)
	blas, err := build(t, d, triangleInfo(t, d), []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if err != nil {
		t.Fatalf("bottom-level build error = %v", err)
	}

	xf := rtcore.Identity
	xf[3] = 10
	info := instanceInfo(t, d, d.AccelerationStructureAddress(blas), xf)
	tlas, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if err != nil {
		t.Fatalf("top-level build error = %v", err)
	}
	s, err := d.Describe(tlas)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if s.Type != vk.AccelerationStructureTypeTopLevelKhr || s.PrimitiveCount != 1 {
		t.Errorf("Describe() = %+v", s)
	}
	if s.Min != (f32.Vec3{10, 0, 0}) || s.Max != (f32.Vec3{11, 2, 0}) {
		t.Errorf("bounds = %v..%v, want [10 0 0]..[11 2 0]", s.Min, s.Max)
	}
}

func TestBuildInstancePointers(t *testing.T) {
	d := newTestDevice(t)
	blas, err := build(t, d, triangleInfo(t, d), []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if err != nil {
		t.Fatalf("bottom-level build error = %v", err)
	}

	rec := rtcore.InstanceRecord{Transform: rtcore.Identity, Mask: 0xFF,
		AccelerationStructureReference: d.AccelerationStructureAddress(blas)}
	raw := make([]byte, rtcore.InstanceRecordSize)
	rec.Encode(raw)
	record := mustBuffer(t, d, "record", raw)
	ptrs := make([]byte, 8)
	binary.LittleEndian.PutUint64(ptrs, uint64(record.DeviceAddress()))
	pointers := mustBuffer(t, d, "pointers", ptrs)

	info := rtcore.BuildGeometryInfo{
		Type: vk.AccelerationStructureTypeTopLevelKhr,
		Geometries: []rtcore.GeometryRecord{{
			Type:      vk.GeometryTypeInstancesKhr,
			Instances: rtcore.InstancesData{ArrayOfPointers: true, Data: pointers.DeviceAddress()},
		}},
	}
	tlas, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if err != nil {
		t.Fatalf("top-level build error = %v", err)
	}
	s, err := d.Describe(tlas)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if s.Max != (f32.Vec3{1, 2, 0}) {
		t.Errorf("Max = %v, want [1 2 0]", s.Max)
	}
}

func TestBuildInstancesRequiresBuiltBottomLevel(t *testing.T) {
	d := newTestDevice(t)
	blasInfo := triangleInfo(t, d)
	unbuilt := allocate(t, d, &blasInfo, []uint32{1})

	info := instanceInfo(t, d, d.AccelerationStructureAddress(unbuilt), rtcore.Identity)
	_, err := build(t, d, info, []vk.AccelerationStructureBuildRangeInfoKHR{{PrimitiveCount: 1}})
	if !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("top-level build error = %v, want ErrDevice", err)
	}
}

func TestDestroyAccelerationStructure(t *testing.T) {
	d := newTestDevice(t)
	info := triangleInfo(t, d)
	as := allocate(t, d, &info, []uint32{1})
	d.SetDebugName(vk.ObjectTypeAccelerationStructureKhr, uint64(as), "blas")

	d.DestroyAccelerationStructure(as)
	d.DestroyAccelerationStructure(as)
	if got := d.Stats().LiveAccelerationStructures; got != 0 {
		t.Errorf("LiveAccelerationStructures = %d, want 0", got)
	}
	if d.AccelerationStructureAddress(as) != 0 {
		t.Error("AccelerationStructureAddress() of destroyed structure should be 0")
	}
	if got := d.DebugName(vk.ObjectTypeAccelerationStructureKhr, uint64(as)); got != "" {
		t.Errorf("DebugName() = %q after destroy", got)
	}
}

func TestCorners(t *testing.T) {
	var bb bounds
	for _, c := range corners(f32.Vec3{-1, 0, 2}, f32.Vec3{1, 3, 4}) {
		bb.extend(c)
	}
	if bb.min != (f32.Vec3{-1, 0, 2}) || bb.max != (f32.Vec3{1, 3, 4}) {
		t.Errorf("corner bounds = %v..%v", bb.min, bb.max)
	}
}

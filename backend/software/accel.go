package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// Size model for acceleration structures.
const (
	baseStructureSize  = 128
	bytesPerPrimitive  = 64
	sizeGranularity    = 256
	structureAlignment = 256
)

// Result buffer header written by a build.
const (
	headerMagic = 0x53415452 // "RTAS"
	headerSize  = 40
)

// accelStructure is a native acceleration structure bound to a buffer range.
type accelStructure struct {
	handle vk.AccelerationStructureKHR
	name   string
	typ    vk.AccelerationStructureTypeKHR
	buf    *Buffer
	offset uint64
	size   uint64
}

func (s *accelStructure) address() vk.DeviceAddress {
	return s.buf.addr + vk.DeviceAddress(s.offset)
}

// Summary describes a built acceleration structure as read back from its
// result buffer.
type Summary struct {
	Type           vk.AccelerationStructureTypeKHR
	PrimitiveCount uint32
	GeometryCount  uint32
	Min, Max       f32.Vec3
}

// buildSizes is the size model shared by the size query and the build.
func buildSizes(primitives uint64) rtcore.BuildSizes {
	size := rtcore.AlignUp(baseStructureSize+bytesPerPrimitive*primitives, sizeGranularity)
	return rtcore.BuildSizes{
		AccelerationStructureSize: size,
		BuildScratchSize:          rtcore.AlignUp(size/2, sizeGranularity),
	}
}

// checkLevel validates that the geometry types match the structure level.
func checkLevel(info *rtcore.BuildGeometryInfo) error {
	switch info.Type {
	case vk.AccelerationStructureTypeBottomLevelKhr:
		for i, g := range info.Geometries {
			if g.Type != vk.GeometryTypeTrianglesKhr && g.Type != vk.GeometryTypeAabbsKhr {
				return fmt.Errorf("%w: bottom-level geometry %d has type %d", rtcore.ErrValidation, i, g.Type)
			}
		}
	case vk.AccelerationStructureTypeTopLevelKhr:
		if len(info.Geometries) != 1 {
			return fmt.Errorf("%w: top-level build needs exactly one instance geometry, got %d",
				rtcore.ErrValidation, len(info.Geometries))
		}
		if info.Geometries[0].Type != vk.GeometryTypeInstancesKhr {
			return fmt.Errorf("%w: top-level geometry has type %d", rtcore.ErrValidation, info.Geometries[0].Type)
		}
	default:
		return fmt.Errorf("%w: unknown acceleration structure type %d", rtcore.ErrValidation, info.Type)
	}
	return nil
}

// AccelerationStructureBuildSizes returns the result and scratch sizes for
// a build with the given per-geometry primitive counts.
func (d *Device) AccelerationStructureBuildSizes(info *rtcore.BuildGeometryInfo, maxPrimitiveCounts []uint32) (rtcore.BuildSizes, error) {
	if err := d.faults.check(FaultBuildSizes); err != nil {
		return rtcore.BuildSizes{}, err
	}
	if len(maxPrimitiveCounts) != len(info.Geometries) {
		return rtcore.BuildSizes{}, fmt.Errorf("%w: %d primitive counts for %d geometries",
			rtcore.ErrValidation, len(maxPrimitiveCounts), len(info.Geometries))
	}
	if err := checkLevel(info); err != nil {
		return rtcore.BuildSizes{}, err
	}
	var total uint64
	for _, n := range maxPrimitiveCounts {
		total += uint64(n)
	}
	return buildSizes(total), nil
}

// CreateAccelerationStructure binds a new structure to a buffer range.
func (d *Device) CreateAccelerationStructure(desc *rtcore.AccelerationStructureDescriptor) (vk.AccelerationStructureKHR, error) {
	if err := d.faults.check(FaultCreateAccelerationStructure); err != nil {
		return 0, err
	}
	b, err := d.ownBuffer(desc.Buffer)
	if err != nil {
		return 0, err
	}
	if !b.usage.Has(rtcore.BufferUsageAccelerationStructureStorage) {
		return 0, fmt.Errorf("%w: buffer %q lacks acceleration structure storage usage", rtcore.ErrValidation, b.name)
	}
	if desc.Offset%structureAlignment != 0 {
		return 0, fmt.Errorf("%w: offset %d not %d-byte aligned", rtcore.ErrValidation, desc.Offset, structureAlignment)
	}
	if err := b.checkRange(desc.Offset, desc.Size); err != nil {
		return 0, err
	}
	if desc.Size < headerSize {
		return 0, fmt.Errorf("%w: structure size %d below %d", rtcore.ErrValidation, desc.Size, headerSize)
	}

	s := &accelStructure{
		handle: vk.AccelerationStructureKHR(d.newID()),
		name:   desc.Name,
		typ:    desc.Type,
		buf:    b,
		offset: desc.Offset,
		size:   desc.Size,
	}
	d.objMu.Lock()
	d.structures[s.handle] = s
	d.objMu.Unlock()
	d.liveStructures.Add(1)
	return s.handle, nil
}

// DestroyAccelerationStructure forgets a structure. The backing buffer is
// owned by the caller.
func (d *Device) DestroyAccelerationStructure(as vk.AccelerationStructureKHR) {
	d.objMu.Lock()
	_, ok := d.structures[as]
	delete(d.structures, as)
	delete(d.names, debugKey{vk.ObjectTypeAccelerationStructureKhr, uint64(as)})
	d.objMu.Unlock()
	if !ok {
		slogger().Warn("software: destroy of unknown acceleration structure", "handle", uint64(as))
		return
	}
	d.liveStructures.Add(-1)
}

// AccelerationStructureAddress returns the device address of a structure,
// or 0 if the handle is unknown.
func (d *Device) AccelerationStructureAddress(as vk.AccelerationStructureKHR) vk.DeviceAddress {
	s := d.structure(as)
	if s == nil {
		return 0
	}
	return s.address()
}

// Describe reads back the header of a built structure.
func (d *Device) Describe(as vk.AccelerationStructureKHR) (Summary, error) {
	s := d.structure(as)
	if s == nil {
		return Summary{}, fmt.Errorf("%w: unknown acceleration structure %d", rtcore.ErrValidation, uint64(as))
	}
	return d.readHeader(s.address())
}

func (d *Device) structure(as vk.AccelerationStructureKHR) *accelStructure {
	d.objMu.Lock()
	defer d.objMu.Unlock()
	return d.structures[as]
}

// executeBuild runs one recorded build on the host.
func (d *Device) executeBuild(info *rtcore.BuildGeometryInfo, ranges []vk.AccelerationStructureBuildRangeInfoKHR) error {
	if err := checkLevel(info); err != nil {
		return err
	}
	if len(ranges) != len(info.Geometries) {
		return fmt.Errorf("%w: %d build ranges for %d geometries", rtcore.ErrValidation, len(ranges), len(info.Geometries))
	}
	dst := d.structure(info.Destination)
	if dst == nil {
		return fmt.Errorf("%w: unknown destination structure %d", rtcore.ErrDevice, uint64(info.Destination))
	}
	if dst.typ != info.Type {
		return fmt.Errorf("%w: destination %q has type %d, build has type %d", rtcore.ErrValidation, dst.name, dst.typ, info.Type)
	}

	var total uint64
	for _, r := range ranges {
		total += uint64(r.PrimitiveCount)
	}
	sizes := buildSizes(total)
	if dst.size < sizes.AccelerationStructureSize {
		return fmt.Errorf("%w: destination %q holds %d bytes, build needs %d",
			rtcore.ErrDevice, dst.name, dst.size, sizes.AccelerationStructureSize)
	}
	if _, _, err := d.mem.resolve(info.ScratchData, sizes.BuildScratchSize); err != nil {
		return fmt.Errorf("scratch: %w", err)
	}

	var bb bounds
	for i, g := range info.Geometries {
		var (
			gb  bounds
			err error
		)
		switch g.Type {
		case vk.GeometryTypeTrianglesKhr:
			gb, err = d.triangleBounds(&g.Triangles, ranges[i])
		case vk.GeometryTypeAabbsKhr:
			gb, err = d.aabbBounds(&g.AABBs, ranges[i])
		case vk.GeometryTypeInstancesKhr:
			gb, err = d.instanceBounds(&g.Instances, ranges[i])
		}
		if err != nil {
			return fmt.Errorf("geometry %d: %w", i, err)
		}
		bb.union(gb)
	}

	hdr := encodeHeader(Summary{
		Type:           info.Type,
		PrimitiveCount: uint32(total),
		GeometryCount:  uint32(len(info.Geometries)),
		Min:            bb.min,
		Max:            bb.max,
	})
	if err := dst.buf.store(dst.offset, hdr); err != nil {
		return err
	}
	slogger().Debug("software: acceleration structure built",
		"name", dst.name, "primitives", total, "min", bb.min, "max", bb.max)
	return nil
}

func (d *Device) triangleBounds(t *rtcore.TrianglesData, r vk.AccelerationStructureBuildRangeInfoKHR) (bounds, error) {
	var bb bounds
	if t.VertexFormat != vk.FormatR32g32b32Sfloat {
		return bb, fmt.Errorf("%w: unsupported vertex format %d", rtcore.ErrDevice, t.VertexFormat)
	}
	n := uint64(r.PrimitiveCount) * 3

	var indices []uint32
	switch t.IndexType {
	case vk.IndexTypeUint16, vk.IndexTypeUint32:
		size := uint64(2)
		if t.IndexType == vk.IndexTypeUint32 {
			size = 4
		}
		raw, err := d.ReadAddress(t.IndexData+vk.DeviceAddress(r.PrimitiveOffset), n*size)
		if err != nil {
			return bb, fmt.Errorf("index data: %w", err)
		}
		indices = make([]uint32, n)
		for i := range indices {
			if size == 2 {
				indices[i] = uint32(binary.LittleEndian.Uint16(raw[2*i:]))
			} else {
				indices[i] = binary.LittleEndian.Uint32(raw[4*i:])
			}
		}
	case vk.IndexTypeNoneKhr:
		indices = make([]uint32, n)
		for i := range indices {
			indices[i] = uint32(i)
		}
	default:
		return bb, fmt.Errorf("%w: unsupported index type %d", rtcore.ErrDevice, t.IndexType)
	}

	xf := rtcore.Identity
	if t.TransformData != 0 {
		raw, err := d.ReadAddress(t.TransformData+vk.DeviceAddress(r.TransformOffset), rtcore.TransformSize)
		if err != nil {
			return bb, fmt.Errorf("transform data: %w", err)
		}
		xf = rtcore.Transform(raw)
	}

	for _, idx := range indices {
		if idx > t.MaxVertex {
			return bb, fmt.Errorf("%w: index %d exceeds max vertex %d", rtcore.ErrDevice, idx, t.MaxVertex)
		}
		v := uint64(r.FirstVertex) + uint64(idx)
		raw, err := d.ReadAddress(t.VertexData+vk.DeviceAddress(v*t.VertexStride), 12)
		if err != nil {
			return bb, fmt.Errorf("vertex %d: %w", v, err)
		}
		bb.extend(transformPoint(xf, readVec3(raw)))
	}
	return bb, nil
}

func (d *Device) aabbBounds(a *rtcore.AABBsData, r vk.AccelerationStructureBuildRangeInfoKHR) (bounds, error) {
	var bb bounds
	if r.PrimitiveCount == 0 {
		return bb, nil
	}
	base := a.Data + vk.DeviceAddress(r.PrimitiveOffset)
	span := uint64(r.PrimitiveCount) * a.Stride
	if _, _, err := d.mem.resolve(base, span); err != nil {
		return bb, fmt.Errorf("aabb data: %w", err)
	}
	// Boxes packed tighter than VkAabbPositionsKHR overlap; they contribute
	// residency only.
	if a.Stride < rtcore.AABBPositionsSize {
		return bb, nil
	}
	for i := range uint64(r.PrimitiveCount) {
		raw, err := d.ReadAddress(base+vk.DeviceAddress(i*a.Stride), rtcore.AABBPositionsSize)
		if err != nil {
			return bb, err
		}
		bb.extend(readVec3(raw[:12]))
		bb.extend(readVec3(raw[12:]))
	}
	return bb, nil
}

// instanceBounds reads every instance record, dereferences its bottom-level
// address and unions the transformed bottom-level bounds. An instance that
// points at memory without a completed bottom-level build fails the build.
func (d *Device) instanceBounds(in *rtcore.InstancesData, r vk.AccelerationStructureBuildRangeInfoKHR) (bounds, error) {
	var bb bounds
	base := in.Data + vk.DeviceAddress(r.PrimitiveOffset)
	for i := range uint64(r.PrimitiveCount) {
		recAddr := base + vk.DeviceAddress(i*rtcore.InstanceRecordSize)
		if in.ArrayOfPointers {
			p, err := d.readUint64(base + vk.DeviceAddress(i*8))
			if err != nil {
				return bb, fmt.Errorf("instance pointer %d: %w", i, err)
			}
			recAddr = vk.DeviceAddress(p)
		}
		raw, err := d.ReadAddress(recAddr, rtcore.InstanceRecordSize)
		if err != nil {
			return bb, fmt.Errorf("instance %d: %w", i, err)
		}
		rec := rtcore.DecodeInstanceRecord(raw)
		blas, err := d.readHeader(rec.AccelerationStructureReference)
		if err != nil {
			return bb, fmt.Errorf("instance %d: %w", i, err)
		}
		if blas.Type != vk.AccelerationStructureTypeBottomLevelKhr {
			return bb, fmt.Errorf("%w: instance %d references a top-level structure", rtcore.ErrDevice, i)
		}
		if blas.PrimitiveCount == 0 {
			continue
		}
		for _, c := range corners(blas.Min, blas.Max) {
			bb.extend(transformPoint(rec.Transform, c))
		}
	}
	return bb, nil
}

// readHeader reads a build header from device memory.
func (d *Device) readHeader(addr vk.DeviceAddress) (Summary, error) {
	raw, err := d.ReadAddress(addr, headerSize)
	if err != nil {
		return Summary{}, err
	}
	if binary.LittleEndian.Uint32(raw) != headerMagic {
		return Summary{}, fmt.Errorf("%w: no completed acceleration structure build at %#x", rtcore.ErrDevice, uint64(addr))
	}
	return Summary{
		Type:           vk.AccelerationStructureTypeKHR(binary.LittleEndian.Uint32(raw[4:])),
		PrimitiveCount: binary.LittleEndian.Uint32(raw[8:]),
		GeometryCount:  binary.LittleEndian.Uint32(raw[12:]),
		Min:            readVec3(raw[16:]),
		Max:            readVec3(raw[28:]),
	}, nil
}

func encodeHeader(s Summary) []byte {
	raw := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(raw, headerMagic)
	binary.LittleEndian.PutUint32(raw[4:], uint32(s.Type))
	binary.LittleEndian.PutUint32(raw[8:], s.PrimitiveCount)
	binary.LittleEndian.PutUint32(raw[12:], s.GeometryCount)
	putVec3(raw[16:], s.Min)
	putVec3(raw[28:], s.Max)
	return raw
}

// bounds is an axis-aligned box that starts empty.
type bounds struct {
	min, max f32.Vec3
	valid    bool
}

func (b *bounds) extend(p f32.Vec3) {
	if !b.valid {
		b.min, b.max, b.valid = p, p, true
		return
	}
	for i := range p {
		b.min[i] = min(b.min[i], p[i])
		b.max[i] = max(b.max[i], p[i])
	}
}

func (b *bounds) union(o bounds) {
	if o.valid {
		b.extend(o.min)
		b.extend(o.max)
	}
}

func corners(lo, hi f32.Vec3) [8]f32.Vec3 {
	var out [8]f32.Vec3
	for i := range out {
		for axis := range 3 {
			if i&(1<<axis) != 0 {
				out[i][axis] = hi[axis]
			} else {
				out[i][axis] = lo[axis]
			}
		}
	}
	return out
}

// transformPoint applies a 3x4 row-major affine transform.
func transformPoint(m f32.Aff4, p f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

func readVec3(raw []byte) f32.Vec3 {
	return f32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(raw[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(raw[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(raw[8:])),
	}
}

func putVec3(raw []byte, v f32.Vec3) {
	for i, c := range v {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(c))
	}
}

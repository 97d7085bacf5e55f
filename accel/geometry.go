package accel

import (
	"fmt"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// geometryFlags is applied to every geometry record.
const geometryFlags = vk.GeometryFlagsKHR(vk.GeometryOpaqueBitKhr | vk.GeometryNoDuplicateAnyHitInvocationBitKhr)

// defaultVertexStride is the size of one R32G32B32_SFLOAT vertex.
const defaultVertexStride = 12

// Geometry converts a host-side description into a driver geometry record.
type Geometry interface {
	// BuildRange returns the build range for the record.
	BuildRange() vk.AccelerationStructureBuildRangeInfoKHR

	// Record returns the driver geometry record.
	Record() rtcore.GeometryRecord

	// PrimitiveCount returns the number of triangles, boxes or instances.
	PrimitiveCount() uint32
}

// Triangles is an indexed triangle mesh.
type Triangles struct {
	indices  IndexBufferView
	vertices VertexBufferView

	transformAddr vk.DeviceAddress
	transform     *f32.Aff4
}

var _ Geometry = (*Triangles)(nil)

// TrianglesOption configures a triangle geometry.
type TrianglesOption func(*Triangles)

// WithTransformAddress applies the 3x4 transform stored at addr to every
// vertex during the build.
func WithTransformAddress(addr vk.DeviceAddress) TrianglesOption {
	return func(t *Triangles) {
		t.transformAddr = addr
		t.transform = nil
	}
}

// WithTransform applies m to every vertex during the build. The transform
// is uploaded into a build input buffer owned by the built structure.
func WithTransform(m f32.Aff4) TrianglesOption {
	return func(t *Triangles) {
		t.transform = &m
		t.transformAddr = 0
	}
}

// NewTriangles describes the triangle list formed by indices over vertices.
func NewTriangles(indices IndexBufferView, vertices VertexBufferView, opts ...TrianglesOption) (*Triangles, error) {
	if indices.Count%3 != 0 {
		return nil, fmt.Errorf("%w: index count %d is not a multiple of 3", rtcore.ErrValidation, indices.Count)
	}
	switch indices.IndexType {
	case vk.IndexTypeUint16, vk.IndexTypeUint32:
	default:
		return nil, fmt.Errorf("%w: unsupported index type %d", rtcore.ErrValidation, indices.IndexType)
	}
	if indices.View.Buffer == nil || vertices.View.Buffer == nil {
		return nil, fmt.Errorf("%w: triangles need index and vertex buffers", rtcore.ErrValidation)
	}
	if vertices.Format == 0 {
		vertices.Format = vk.FormatR32g32b32Sfloat
	}
	if vertices.Stride == 0 {
		vertices.Stride = defaultVertexStride
	}

	t := &Triangles{indices: indices, vertices: vertices}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TriangleCount returns the number of triangles.
func (t *Triangles) TriangleCount() uint32 { return t.indices.Count / 3 }

// PrimitiveCount returns the number of triangles.
func (t *Triangles) PrimitiveCount() uint32 { return t.TriangleCount() }

// BuildRange returns a range covering every triangle.
func (t *Triangles) BuildRange() vk.AccelerationStructureBuildRangeInfoKHR {
	return vk.AccelerationStructureBuildRangeInfoKHR{PrimitiveCount: t.TriangleCount()}
}

// Record returns the triangles record. An embedded transform is not
// resident yet, so TransformData is only set for WithTransformAddress.
func (t *Triangles) Record() rtcore.GeometryRecord {
	return rtcore.GeometryRecord{
		Type:  vk.GeometryTypeTrianglesKhr,
		Flags: geometryFlags,
		Triangles: rtcore.TrianglesData{
			VertexFormat:  t.vertices.Format,
			VertexData:    t.vertices.View.Address(),
			VertexStride:  t.vertices.Stride,
			MaxVertex:     t.vertices.Count,
			IndexType:     t.indices.IndexType,
			IndexData:     t.indices.View.Address(),
			TransformData: t.transformAddr,
		},
	}
}

// embeddedTransform returns the transform to upload at build time, if any.
func (t *Triangles) embeddedTransform() (f32.Aff4, bool) {
	if t.transform == nil {
		return f32.Aff4{}, false
	}
	return *t.transform, true
}

// AABBs is a set of axis-aligned boxes for procedural geometry.
type AABBs struct {
	view  BufferView
	count uint32
}

var _ Geometry = (*AABBs)(nil)

// NewAABBs describes count boxes starting at view.
func NewAABBs(view BufferView, count uint32) *AABBs {
	return &AABBs{view: view, count: count}
}

// PrimitiveCount returns the number of boxes.
func (a *AABBs) PrimitiveCount() uint32 { return a.count }

// BuildRange returns a range covering every box.
func (a *AABBs) BuildRange() vk.AccelerationStructureBuildRangeInfoKHR {
	return vk.AccelerationStructureBuildRangeInfoKHR{PrimitiveCount: a.count}
}

// Record returns the AABB record with the fixed stride.
func (a *AABBs) Record() rtcore.GeometryRecord {
	return rtcore.GeometryRecord{
		Type:  vk.GeometryTypeAabbsKhr,
		Flags: geometryFlags,
		AABBs: rtcore.AABBsData{
			Data:   a.view.Address(),
			Stride: rtcore.AABBStride,
		},
	}
}

package raytrace

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/rtcore"
)

const meshUsage = rtcore.BufferUsageBuildInputReadOnly | rtcore.BufferUsageShaderDeviceAddress

// Mesh is a triangle geometry whose index and vertex buffers were uploaded
// by a Context. The buffers live until Release.
type Mesh struct {
	Triangles *accel.Triangles

	indices  rtcore.Buffer
	vertices rtcore.Buffer
}

// UploadMesh uploads an indexed triangle list into device-local build input
// buffers. Indices are stored as uint16 when every vertex is addressable
// that way, as uint32 otherwise.
func (c *Context) UploadMesh(name string, vertices []f32.Vec3, indices []uint32, opts ...accel.TrianglesOption) (*Mesh, error) {
	name = c.opts.objectName(nameOr(name, "mesh"))
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("%w: %s: empty mesh", rtcore.ErrValidation, name)
	}

	vraw := make([]byte, 12*len(vertices))
	for i, v := range vertices {
		for j := range 3 {
			binary.LittleEndian.PutUint32(vraw[12*i+4*j:], math.Float32bits(v[j]))
		}
	}

	indexType := vk.IndexTypeUint16
	if len(vertices) > math.MaxUint16+1 {
		indexType = vk.IndexTypeUint32
	}
	var iraw []byte
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, fmt.Errorf("%w: %s: index %d refers to vertex %d of %d",
				rtcore.ErrValidation, name, i, idx, len(vertices))
		}
		if indexType == vk.IndexTypeUint16 {
			iraw = binary.LittleEndian.AppendUint16(iraw, uint16(idx))
		} else {
			iraw = binary.LittleEndian.AppendUint32(iraw, idx)
		}
	}

	m := &Mesh{}
	var err error
	m.indices, err = c.dev.CreateBufferWithData(name+" index buffer", iraw, meshUsage, rtcore.MemoryGPUOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: upload indices: %w", name, err)
	}
	m.vertices, err = c.dev.CreateBufferWithData(name+" vertex buffer", vraw, meshUsage, rtcore.MemoryGPUOnly)
	if err != nil {
		m.indices.Destroy()
		return nil, fmt.Errorf("%s: upload vertices: %w", name, err)
	}

	m.Triangles, err = accel.NewTriangles(
		accel.IndexBufferView{View: accel.BufferView{Buffer: m.indices}, IndexType: indexType, Count: uint32(len(indices))},
		accel.VertexBufferView{View: accel.BufferView{Buffer: m.vertices}, Count: uint32(len(vertices))},
		opts...,
	)
	if err != nil {
		m.Release()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// Release destroys the index and vertex buffers. Structures already built
// from the mesh are unaffected.
func (m *Mesh) Release() {
	if m.indices != nil {
		m.indices.Destroy()
		m.indices = nil
	}
	if m.vertices != nil {
		m.vertices.Destroy()
		m.vertices = nil
	}
}

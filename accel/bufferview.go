package accel

import (
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// BufferView is a byte offset into a device buffer.
type BufferView struct {
	Buffer rtcore.Buffer
	Offset uint64
}

// Address returns the device address of the first viewed byte.
func (v BufferView) Address() vk.DeviceAddress {
	if v.Buffer == nil {
		return 0
	}
	return v.Buffer.DeviceAddress() + vk.DeviceAddress(v.Offset)
}

// IndexBufferView describes Count indices of one type.
type IndexBufferView struct {
	View      BufferView
	IndexType vk.IndexType
	Count     uint32
}

// VertexBufferView describes Count vertices. Zero Format and Stride
// select three packed float32 components.
type VertexBufferView struct {
	View   BufferView
	Format vk.Format
	Stride uint64
	Count  uint32
}

package raytracing

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// sbtUsage is the usage of every shader binding table buffer.
const sbtUsage = rtcore.BufferUsageShaderBindingTable | rtcore.BufferUsageShaderDeviceAddress | rtcore.BufferUsageTransferSrc

// ShaderBindingTable is a device buffer holding the raygen, miss and hit
// group handles of a pipeline, laid out for a trace dispatch.
//
// It holds a reference on its pipeline until the last Release.
type ShaderBindingTable struct {
	pipeline *Pipeline
	buf      rtcore.Buffer
	layout   Layout
	hitOrder []uint32

	refs atomic.Int32
}

// NewShaderBindingTable packs p's handles into a new buffer. hitOrder
// lists the hit groups to place in the hit region, slot by slot; without
// it every hit group is placed in pipeline order.
//
// The handle for hit slot i is read from group 2+hitOrder[i] of the handle
// blob. That index is the pipeline group of the hit group only when the
// pipeline has exactly one miss stage.
func NewShaderBindingTable(dev rtcore.Device, p *Pipeline, hitOrder ...uint32) (*ShaderBindingTable, error) {
	hitCount := p.table.HitGroupCount()
	if len(hitOrder) == 0 {
		hitOrder = make([]uint32, hitCount)
		for i := range hitOrder {
			hitOrder[i] = uint32(i)
		}
	} else {
		hitOrder = slices.Clone(hitOrder)
	}

	groups := uint64(p.table.Len())
	for i, h := range hitOrder {
		if int(h) >= hitCount {
			return nil, fmt.Errorf("%w: hit slot %d requests group %d of %d", rtcore.ErrValidation, i, h, hitCount)
		}
		if 2+uint64(h) >= groups {
			return nil, fmt.Errorf("%w: hit slot %d reads handle %d past %d groups", rtcore.ErrValidation, i, 2+h, groups)
		}
	}

	props := dev.Properties()
	if props.ShaderGroupHandleSize != p.handleSize {
		return nil, fmt.Errorf("%w: device handle size %d, pipeline handle size %d",
			rtcore.ErrValidation, props.ShaderGroupHandleSize, p.handleSize)
	}
	layout, err := NewLayout(props, p.table.MissCount(), len(hitOrder))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	data := pack(layout, p, hitOrder)
	buf, err := dev.CreateBufferWithData(p.name+" sbt buffer", data, sbtUsage, rtcore.MemoryGPUOnly)
	if err != nil {
		return nil, deviceError(p.name, "upload shader binding table", err)
	}

	t := &ShaderBindingTable{
		pipeline: p.Retain(),
		buf:      buf,
		layout:   layout,
		hitOrder: hitOrder,
	}
	t.refs.Store(1)

	slogger().Debug("raytracing: shader binding table created",
		"pipeline", p.name, "stride", layout.Stride, "size", layout.Size,
		"missOffset", layout.Miss.Offset, "hitOffset", layout.Hit.Offset, "hitOrder", hitOrder)
	return t, nil
}

// pack copies handles into their slots. Bytes outside the handles are zero.
func pack(l Layout, p *Pipeline, hitOrder []uint32) []byte {
	data := make([]byte, l.Size)
	copy(data[l.Raygen.Offset:], p.groupHandle(0))
	for i := range l.Miss.Slots() {
		copy(data[l.Miss.Offset+i*l.Stride:], p.groupHandle(1+i))
	}
	for i, h := range hitOrder {
		copy(data[l.Hit.Offset+uint64(i)*l.Stride:], p.groupHandle(2+uint64(h)))
	}
	return data
}

// Layout returns the region placement.
func (t *ShaderBindingTable) Layout() Layout { return t.layout }

// Stride returns the slot stride.
func (t *ShaderBindingTable) Stride() uint64 { return t.layout.Stride }

// Size returns the buffer size in bytes.
func (t *ShaderBindingTable) Size() uint64 { return t.layout.Size }

// HitOrder returns the hit group placed in each hit slot.
func (t *ShaderBindingTable) HitOrder() []uint32 { return slices.Clone(t.hitOrder) }

// Buffer returns the table buffer.
func (t *ShaderBindingTable) Buffer() rtcore.Buffer { return t.buf }

// Pipeline returns the pipeline the table was packed from.
func (t *ShaderBindingTable) Pipeline() *Pipeline { return t.pipeline }

func (t *ShaderBindingTable) region(r Region) vk.StridedDeviceAddressRegionKHR {
	return vk.StridedDeviceAddressRegionKHR{
		DeviceAddress: t.buf.DeviceAddress() + vk.DeviceAddress(r.Offset),
		Stride:        vk.DeviceSize(r.Stride),
		Size:          vk.DeviceSize(r.Size),
	}
}

// RaygenRegion returns the raygen region. Its size equals its stride.
func (t *ShaderBindingTable) RaygenRegion() vk.StridedDeviceAddressRegionKHR {
	return t.region(t.layout.Raygen)
}

// MissRegion returns the miss region.
func (t *ShaderBindingTable) MissRegion() vk.StridedDeviceAddressRegionKHR {
	return t.region(t.layout.Miss)
}

// HitRegion returns the hit region.
func (t *ShaderBindingTable) HitRegion() vk.StridedDeviceAddressRegionKHR {
	return t.region(t.layout.Hit)
}

// CallableRegion returns the empty callable region.
func (t *ShaderBindingTable) CallableRegion() vk.StridedDeviceAddressRegionKHR {
	return vk.StridedDeviceAddressRegionKHR{}
}

// Retain adds a reference and returns t.
func (t *ShaderBindingTable) Retain() *ShaderBindingTable {
	t.refs.Add(1)
	return t
}

// Release drops a reference. The last release destroys the buffer and
// releases the pipeline.
func (t *ShaderBindingTable) Release() {
	switch n := t.refs.Add(-1); {
	case n == 0:
		t.buf.Destroy()
		t.pipeline.Release()
	case n < 0:
		slogger().Warn("raytracing: release of released shader binding table", "pipeline", t.pipeline.name)
	}
}

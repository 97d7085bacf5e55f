package accel

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// InstanceArray is the single geometry of a top-level structure.
//
// In inline mode the records of every instance are packed into one
// buffer. In pointer mode the buffer holds the device addresses of
// finalized instances. A top-level structure built from the array holds a
// reference on every bottom-level structure the instances point at.
type InstanceArray struct {
	pointers  bool
	instances []*Instance
	blases    []*AccelerationStructure
	buf       rtcore.Buffer
}

var _ Geometry = (*InstanceArray)(nil)

// NewInlineInstances packs the host records of instances, finalized or
// not, and uploads them once. A released instance fails with
// ErrInvalidState.
func NewInlineInstances(dev rtcore.Device, instances ...*Instance) (*InstanceArray, error) {
	blases, err := referencedBottomLevels(instances)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, len(instances)*rtcore.InstanceRecordSize)
	for i, in := range instances {
		rec := in.Record()
		rec.Encode(raw[i*rtcore.InstanceRecordSize:])
	}
	return newInstanceArray(dev, false, instances, blases, raw)
}

// NewInstancePointers builds an array of the device addresses of
// finalized instances. An unfinalized instance fails with ErrInvalidState.
func NewInstancePointers(dev rtcore.Device, instances ...*Instance) (*InstanceArray, error) {
	blases, err := referencedBottomLevels(instances)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, len(instances)*8)
	for i, in := range instances {
		addr, err := in.DeviceAddress()
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(addr))
	}
	return newInstanceArray(dev, true, instances, blases, raw)
}

// referencedBottomLevels returns the structure of every instance. A nil or
// released instance is rejected.
func referencedBottomLevels(instances []*Instance) ([]*AccelerationStructure, error) {
	blases := make([]*AccelerationStructure, len(instances))
	for i, in := range instances {
		if in == nil {
			return nil, fmt.Errorf("%w: instance %d is nil", rtcore.ErrValidation, i)
		}
		if blases[i] = in.BottomLevel(); blases[i] == nil {
			return nil, fmt.Errorf("%w: instance %d released", rtcore.ErrInvalidState, i)
		}
	}
	return blases, nil
}

func newInstanceArray(dev rtcore.Device, pointers bool, instances []*Instance, blases []*AccelerationStructure, raw []byte) (*InstanceArray, error) {
	name := "instance array buffer"
	if pointers {
		name = "instance pointer buffer"
	}
	buf, err := dev.CreateBufferWithData(name, raw,
		rtcore.BufferUsageBuildInputReadOnly|rtcore.BufferUsageShaderDeviceAddress, rtcore.MemoryGPUOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %s: %w", rtcore.ErrDevice, name, err)
	}
	slogger().Debug("accel: instance array uploaded",
		"pointers", pointers, "instances", len(instances), "bytes", len(raw))
	for _, blas := range blases {
		blas.Retain()
	}
	return &InstanceArray{
		pointers:  pointers,
		instances: append([]*Instance(nil), instances...),
		blases:    blases,
		buf:       buf,
	}, nil
}

// Len returns the number of instances.
func (a *InstanceArray) Len() int { return len(a.instances) }

// Pointers reports whether the array is in pointer mode.
func (a *InstanceArray) Pointers() bool { return a.pointers }

// PrimitiveCount returns the number of instances.
func (a *InstanceArray) PrimitiveCount() uint32 { return uint32(len(a.instances)) }

// BuildRange returns a range covering every instance.
func (a *InstanceArray) BuildRange() vk.AccelerationStructureBuildRangeInfoKHR {
	return vk.AccelerationStructureBuildRangeInfoKHR{PrimitiveCount: a.PrimitiveCount()}
}

// Record returns the instances record.
func (a *InstanceArray) Record() rtcore.GeometryRecord {
	var data vk.DeviceAddress
	if a.buf != nil {
		data = a.buf.DeviceAddress()
	}
	return rtcore.GeometryRecord{
		Type:  vk.GeometryTypeInstancesKhr,
		Flags: geometryFlags,
		Instances: rtcore.InstancesData{
			ArrayOfPointers: a.pointers,
			Data:            data,
		},
	}
}

// bottomLevels returns the structures referenced by the array, or nil
// after Release.
func (a *InstanceArray) bottomLevels() []*AccelerationStructure { return a.blases }

// Release destroys the array buffer and drops the array's references on
// the bottom-level structures. Instances are owned by the caller.
func (a *InstanceArray) Release() {
	if a.buf != nil {
		a.buf.Destroy()
		a.buf = nil
	}
	for _, blas := range a.blases {
		blas.Release()
	}
	a.blases = nil
}

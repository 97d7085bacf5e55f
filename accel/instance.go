package accel

import (
	"fmt"
	"sync"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// Instance defaults.
const (
	DefaultMask          = 0xFF
	DefaultInstanceFlags = vk.GeometryInstanceFlagsKHR(vk.GeometryInstanceTriangleFacingCullDisableBitKhr)
)

// Instance places a bottom-level structure in a top-level structure.
//
// An instance is built on the host and then finalized, which serializes its
// record into a dedicated device buffer. Only finalized instances can be
// referenced by an instance pointer array. The instance holds a reference
// on its bottom-level structure until Release.
type Instance struct {
	blas *AccelerationStructure

	mu     sync.Mutex
	record rtcore.InstanceRecord
	buf    rtcore.Buffer
}

// NewInstance creates an instance of blas with transform m, mask 0xFF and
// triangle facing culling disabled. A nil blas gives an instance that
// behaves as released: packing or finalizing it fails with ErrInvalidState.
func NewInstance(blas *AccelerationStructure, m f32.Aff4) *Instance {
	in := &Instance{
		record: rtcore.InstanceRecord{
			Transform: m,
			Mask:      DefaultMask,
			Flags:     DefaultInstanceFlags,
		},
	}
	if blas != nil {
		in.blas = blas.Retain()
		in.record.AccelerationStructureReference = blas.DeviceAddress()
	}
	return in
}

// BottomLevel returns the referenced structure, or nil after Release.
func (in *Instance) BottomLevel() *AccelerationStructure {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.blas
}

// SetTransform replaces the transform. It has no effect on the device
// copy once the instance is finalized.
func (in *Instance) SetTransform(m f32.Aff4) {
	in.mu.Lock()
	in.record.Transform = m
	in.mu.Unlock()
}

// SetCustomIndex sets the 24-bit InstanceCustomIndexKHR value.
func (in *Instance) SetCustomIndex(idx uint32) {
	in.mu.Lock()
	in.record.CustomIndex = idx & 0xFFFFFF
	in.mu.Unlock()
}

// SetMask sets the visibility mask.
func (in *Instance) SetMask(mask uint8) {
	in.mu.Lock()
	in.record.Mask = mask
	in.mu.Unlock()
}

// SetSBTRecordOffset sets the 24-bit hit group offset.
func (in *Instance) SetSBTRecordOffset(off uint32) {
	in.mu.Lock()
	in.record.SBTRecordOffset = off & 0xFFFFFF
	in.mu.Unlock()
}

// SetFlags sets the instance flags.
func (in *Instance) SetFlags(flags vk.GeometryInstanceFlagsKHR) {
	in.mu.Lock()
	in.record.Flags = flags & 0xFF
	in.mu.Unlock()
}

// Record returns a copy of the host record.
func (in *Instance) Record() rtcore.InstanceRecord {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.record
}

// Finalize uploads the record into its own device buffer.
func (in *Instance) Finalize(dev rtcore.Device) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.blas == nil {
		return fmt.Errorf("%w: instance released", rtcore.ErrInvalidState)
	}
	if in.buf != nil {
		return fmt.Errorf("%w: instance already finalized", rtcore.ErrInvalidState)
	}
	raw := make([]byte, rtcore.InstanceRecordSize)
	in.record.Encode(raw)
	buf, err := dev.CreateBufferWithData("instance buffer", raw,
		rtcore.BufferUsageBuildInputReadOnly|rtcore.BufferUsageShaderDeviceAddress, rtcore.MemoryGPUOnly)
	if err != nil {
		return fmt.Errorf("%w: upload instance: %w", rtcore.ErrDevice, err)
	}
	in.buf = buf
	slogger().Debug("accel: instance finalized",
		"blas", in.blas.Name(), "address", fmt.Sprintf("%#x", uint64(buf.DeviceAddress())))
	return nil
}

// Finalized reports whether Finalize succeeded.
func (in *Instance) Finalized() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buf != nil
}

// DeviceAddress returns the address of the finalized record.
func (in *Instance) DeviceAddress() (vk.DeviceAddress, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.buf == nil {
		return 0, fmt.Errorf("%w: instance not finalized", rtcore.ErrInvalidState)
	}
	return in.buf.DeviceAddress(), nil
}

// Release destroys the record buffer and drops the reference on the
// bottom-level structure.
func (in *Instance) Release() {
	in.mu.Lock()
	buf, blas := in.buf, in.blas
	in.buf, in.blas = nil, nil
	in.mu.Unlock()
	if buf != nil {
		buf.Destroy()
	}
	if blas != nil {
		blas.Release()
	}
}

package accel

import (
	"sync/atomic"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// Kind is the level of an acceleration structure.
type Kind int

const (
	// BottomLevel structures hold triangles or boxes.
	BottomLevel Kind = iota
	// TopLevel structures hold instances of bottom-level structures.
	TopLevel
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case BottomLevel:
		return "BottomLevel"
	case TopLevel:
		return "TopLevel"
	default:
		return "Unknown"
	}
}

// Vk returns the Vulkan structure type.
func (k Kind) Vk() vk.AccelerationStructureTypeKHR {
	if k == TopLevel {
		return vk.AccelerationStructureTypeTopLevelKhr
	}
	return vk.AccelerationStructureTypeBottomLevelKhr
}

// AccelerationStructure is an immutable, built acceleration structure.
//
// It is shared by reference: Retain adds a reference and Release drops
// one. The native structure, its buffer and any build inputs it owns are
// destroyed exactly once, when the last reference is released.
type AccelerationStructure struct {
	dev    rtcore.Device
	name   string
	kind   Kind
	handle vk.AccelerationStructureKHR
	buf    rtcore.Buffer
	addr   vk.DeviceAddress

	// inputs are build input buffers the structure owns, such as uploaded
	// geometry transforms.
	inputs []rtcore.Buffer

	// children are bottom-level structures referenced by instances.
	children []*AccelerationStructure

	refs atomic.Int32
}

// Name returns the debug name.
func (s *AccelerationStructure) Name() string { return s.name }

// Kind returns the level.
func (s *AccelerationStructure) Kind() Kind { return s.kind }

// Handle returns the native handle.
func (s *AccelerationStructure) Handle() vk.AccelerationStructureKHR { return s.handle }

// DeviceAddress returns the address resolved after the build.
func (s *AccelerationStructure) DeviceAddress() vk.DeviceAddress { return s.addr }

// Size returns the size of the result buffer in bytes.
func (s *AccelerationStructure) Size() uint64 { return s.buf.Size() }

// Buffer returns the result buffer.
func (s *AccelerationStructure) Buffer() rtcore.Buffer { return s.buf }

// Retain adds a reference and returns s.
func (s *AccelerationStructure) Retain() *AccelerationStructure {
	s.refs.Add(1)
	return s
}

// Release drops a reference. The last release destroys the structure.
func (s *AccelerationStructure) Release() {
	switch n := s.refs.Add(-1); {
	case n == 0:
		s.destroy()
	case n < 0:
		slogger().Warn("accel: release of released acceleration structure", "name", s.name)
	}
}

func (s *AccelerationStructure) destroy() {
	s.dev.DestroyAccelerationStructure(s.handle)
	s.buf.Destroy()
	for _, b := range s.inputs {
		b.Destroy()
	}
	for _, c := range s.children {
		c.Release()
	}
	slogger().Debug("accel: acceleration structure destroyed", "name", s.name, "kind", s.kind)
}

package rtcore

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Buffer is a device buffer with a resolved device address.
type Buffer interface {
	// Name returns the debug name given at creation.
	Name() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags given at creation.
	Usage() BufferUsage

	// Location returns the memory location the buffer was allocated in.
	Location() MemoryLocation

	// DeviceAddress returns the GPU-visible address of the first byte.
	DeviceAddress() vk.DeviceAddress

	// Write copies data into a host-visible buffer at offset. The mapping
	// is held for the duration of the copy.
	Write(offset uint64, data []byte) error

	// Destroy releases the buffer.
	Destroy()
}

// ShaderModule is compiled shader bytecode.
type ShaderModule interface {
	// Name returns the debug name given at creation.
	Name() string

	// EntryPoints lists the entry points declared by the module.
	EntryPoints() []EntryPoint

	// Destroy releases the module.
	Destroy()
}

// CommandBuffer records device work for one queue family.
type CommandBuffer interface {
	// Queue returns the queue family the buffer was allocated for.
	Queue() QueueKind

	// BuildAccelerationStructures records one build per info. ranges[i]
	// holds one build range per geometry of infos[i].
	BuildAccelerationStructures(infos []BuildGeometryInfo, ranges [][]vk.AccelerationStructureBuildRangeInfoKHR)

	// CopyBuffer records a copy of size bytes between two buffers.
	CopyBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)
}

// Queue submits command buffers to one queue family.
type Queue interface {
	// Kind returns the queue family.
	Kind() QueueKind

	// SubmitBlocking submits the command buffers and blocks until the
	// device signals completion. Submission on one queue is serialized.
	SubmitBlocking(cbs ...CommandBuffer) error
}

// AccelerationStructureDescriptor describes a native acceleration structure
// bound to a region of a storage buffer.
type AccelerationStructureDescriptor struct {
	Name   string
	Type   vk.AccelerationStructureTypeKHR
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// ShaderStageInfo mirrors VkPipelineShaderStageCreateInfo.
type ShaderStageInfo struct {
	Stage      vk.ShaderStageFlagBits
	Module     ShaderModule
	EntryPoint string
}

// RayTracingPipelineDescriptor mirrors VkRayTracingPipelineCreateInfoKHR.
type RayTracingPipelineDescriptor struct {
	Name              string
	Stages            []ShaderStageInfo
	Groups            []vk.RayTracingShaderGroupCreateInfoKHR
	MaxRecursionDepth uint32
	Layout            vk.PipelineLayout
}

// Device is the driver surface used by the ray tracing builders.
//
// Implementations must allow concurrent calls from multiple goroutines.
type Device interface {
	// === Device Info ===

	// Properties returns the ray tracing pipeline properties.
	Properties() Properties

	// AdapterInfo describes the physical device.
	AdapterInfo() gpucontext.AdapterInfo

	// === Memory ===

	// CreateBuffer allocates an uninitialized buffer.
	CreateBuffer(name string, size uint64, usage BufferUsage, loc MemoryLocation) (Buffer, error)

	// CreateBufferWithData allocates a buffer holding data. Device-local
	// buffers are filled through a staging buffer and a one-shot copy.
	CreateBufferWithData(name string, data []byte, usage BufferUsage, loc MemoryLocation) (Buffer, error)

	// === Shaders ===

	// CreateShaderModule creates a module from SPIR-V bytecode.
	CreateShaderModule(name string, code []byte) (ShaderModule, error)

	// === Commands ===

	// CreateCommandBuffer allocates a command buffer from the pool of the
	// given queue family.
	CreateCommandBuffer(kind QueueKind) (CommandBuffer, error)

	// Queue returns the queue of the given family.
	Queue(kind QueueKind) Queue

	// === Acceleration Structures ===

	// AccelerationStructureBuildSizes queries result and scratch sizes.
	// maxPrimitiveCounts holds one count per geometry of info.
	AccelerationStructureBuildSizes(info *BuildGeometryInfo, maxPrimitiveCounts []uint32) (BuildSizes, error)

	// CreateAccelerationStructure creates an empty native structure.
	CreateAccelerationStructure(desc *AccelerationStructureDescriptor) (vk.AccelerationStructureKHR, error)

	// DestroyAccelerationStructure destroys a native structure.
	DestroyAccelerationStructure(as vk.AccelerationStructureKHR)

	// AccelerationStructureAddress returns the device address of a structure.
	AccelerationStructureAddress(as vk.AccelerationStructureKHR) vk.DeviceAddress

	// === Pipelines ===

	// CreateRayTracingPipeline creates a pipeline in one call.
	CreateRayTracingPipeline(desc *RayTracingPipelineDescriptor) (vk.Pipeline, error)

	// DestroyPipeline destroys a pipeline.
	DestroyPipeline(p vk.Pipeline)

	// ShaderGroupHandles returns count handles starting at group first,
	// each Properties().ShaderGroupHandleSize bytes, in group order.
	ShaderGroupHandles(p vk.Pipeline, first, count uint32) ([]byte, error)

	// === Diagnostics ===

	// SetDebugName attaches a debug name to a native object.
	SetDebugName(objectType vk.ObjectType, handle uint64, name string)

	// WaitIdle blocks until every queue is idle.
	WaitIdle() error

	// === Lifecycle ===

	// Close waits for outstanding work and releases the device.
	// Calling Close more than once is a no-op.
	Close()
}

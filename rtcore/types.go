package rtcore

import (
	"strings"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// BufferUsage is a bitmask specifying how a buffer will be used.
// Bit values match VkBufferUsageFlagBits.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageTransferSrc indicates the buffer can be a copy source.
	BufferUsageTransferSrc = BufferUsage(vk.BufferUsageTransferSrcBit)

	// BufferUsageTransferDst indicates the buffer can be a copy destination.
	BufferUsageTransferDst = BufferUsage(vk.BufferUsageTransferDstBit)

	// BufferUsageStorage indicates the buffer can be bound as a storage buffer.
	BufferUsageStorage = BufferUsage(vk.BufferUsageStorageBufferBit)

	// BufferUsageShaderBindingTable indicates the buffer holds SBT regions.
	BufferUsageShaderBindingTable = BufferUsage(vk.BufferUsageShaderBindingTableBitKhr)

	// BufferUsageShaderDeviceAddress indicates the buffer exposes a device
	// address. The generated vk bindings do not carry this bit.
	BufferUsageShaderDeviceAddress BufferUsage = 1 << 17

	// BufferUsageBuildInputReadOnly indicates the buffer is read by an
	// acceleration structure build (vertices, indices, instances).
	BufferUsageBuildInputReadOnly = BufferUsage(vk.BufferUsageAccelerationStructureBuildInputReadOnlyBitKhr)

	// BufferUsageAccelerationStructureStorage indicates the buffer backs an
	// acceleration structure.
	BufferUsageAccelerationStructureStorage = BufferUsage(vk.BufferUsageAccelerationStructureStorageBitKhr)
)

// Vk returns the usage as Vulkan flags.
func (u BufferUsage) Vk() vk.BufferUsageFlags { return vk.BufferUsageFlags(u) }

// Has reports whether all bits of flag are set.
func (u BufferUsage) Has(flag BufferUsage) bool { return u&flag == flag }

// String returns a "|" separated list of set flags.
func (u BufferUsage) String() string {
	if u == 0 {
		return "None"
	}
	names := []struct {
		flag BufferUsage
		name string
	}{
		{BufferUsageTransferSrc, "TransferSrc"},
		{BufferUsageTransferDst, "TransferDst"},
		{BufferUsageStorage, "Storage"},
		{BufferUsageShaderBindingTable, "ShaderBindingTable"},
		{BufferUsageShaderDeviceAddress, "ShaderDeviceAddress"},
		{BufferUsageBuildInputReadOnly, "BuildInputReadOnly"},
		{BufferUsageAccelerationStructureStorage, "AccelerationStructureStorage"},
	}
	var parts []string
	for _, n := range names {
		if u.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// MemoryLocation selects the memory heap a buffer is allocated from.
type MemoryLocation int

const (
	// MemoryGPUOnly is device-local memory that the host cannot map.
	MemoryGPUOnly MemoryLocation = iota
	// MemoryCPUToGPU is host-visible memory used for uploads.
	MemoryCPUToGPU
	// MemoryGPUToCPU is host-visible memory used for readback.
	MemoryGPUToCPU
)

// String returns the string representation of MemoryLocation.
func (m MemoryLocation) String() string {
	switch m {
	case MemoryGPUOnly:
		return "GPUOnly"
	case MemoryCPUToGPU:
		return "CPUToGPU"
	case MemoryGPUToCPU:
		return "GPUToCPU"
	default:
		return "Unknown"
	}
}

// HostVisible reports whether buffers in this location can be mapped.
func (m MemoryLocation) HostVisible() bool { return m != MemoryGPUOnly }

// QueueKind identifies a queue family.
type QueueKind int

const (
	// QueueCompute is the async compute queue family. Acceleration
	// structure builds run here unless configured otherwise.
	QueueCompute QueueKind = iota
	// QueueGraphics is the graphics (universal) queue family.
	QueueGraphics
	// QueueTransfer is the dedicated transfer queue family.
	QueueTransfer

	queueKindCount
)

// QueueKinds lists every queue family in index order.
var QueueKinds = [queueKindCount]QueueKind{QueueCompute, QueueGraphics, QueueTransfer}

// String returns the string representation of QueueKind.
func (q QueueKind) String() string {
	switch q {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	case QueueTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// Valid reports whether q names a known queue family.
func (q QueueKind) Valid() bool { return q >= 0 && q < queueKindCount }

// AlignUp rounds v up to the next multiple of align. align must be non-zero.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

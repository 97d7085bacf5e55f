package software

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

const (
	// addressBase is the first device address handed out. Keeping it well
	// above zero makes a zero address always invalid.
	addressBase = 1 << 32

	// addressAlignment is the alignment of every buffer's device address.
	addressAlignment = 256

	// minAllocation is the smallest HAL allocation; zero-sized buffers
	// still get a distinct address.
	minAllocation = 4

	// halUsage lets the host map every buffer, which the software device
	// needs to execute recorded commands.
	halUsage = gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite |
		gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
		gputypes.BufferUsageStorage
)

// Buffer is a HAL buffer with a virtual device address.
type Buffer struct {
	dev   *Device
	raw   hal.Buffer
	name  string
	size  uint64
	usage rtcore.BufferUsage
	loc   rtcore.MemoryLocation
	addr  vk.DeviceAddress

	// mu guards the host mapping for the duration of a copy.
	mu        sync.Mutex
	destroyed atomic.Bool
}

var _ rtcore.Buffer = (*Buffer)(nil)

// Name returns the debug name.
func (b *Buffer) Name() string { return b.name }

// Size returns the size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags.
func (b *Buffer) Usage() rtcore.BufferUsage { return b.usage }

// Location returns the memory location.
func (b *Buffer) Location() rtcore.MemoryLocation { return b.loc }

// DeviceAddress returns the virtual device address.
func (b *Buffer) DeviceAddress() vk.DeviceAddress { return b.addr }

// Write copies data into a host-visible buffer.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if !b.loc.HostVisible() {
		return fmt.Errorf("%w: buffer %q in %v memory is not host visible",
			rtcore.ErrInvalidState, b.name, b.loc)
	}
	return b.store(offset, data)
}

// Destroy unregisters the address range and releases the HAL buffer.
// Calling Destroy more than once has no effect.
func (b *Buffer) Destroy() {
	if b.destroyed.Swap(true) {
		return
	}
	b.dev.mem.remove(b)
	b.dev.hal.DestroyBuffer(b.raw)
	b.dev.liveBuffers.Add(-1)
}

// store writes data at offset through a HAL mapping.
func (b *Buffer) store(offset uint64, data []byte) error {
	if err := b.checkRange(offset, uint64(len(data))); err != nil || len(data) == 0 {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.dev.hal.MapBuffer(b.raw, offset, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: map %q: %w", rtcore.ErrDevice, b.name, err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), len(data)), data)
	if err := b.dev.hal.UnmapBuffer(b.raw); err != nil {
		return fmt.Errorf("%w: unmap %q: %w", rtcore.ErrDevice, b.name, err)
	}
	return nil
}

// load reads n bytes at offset through a HAL mapping.
func (b *Buffer) load(offset, n uint64) ([]byte, error) {
	if err := b.checkRange(offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.dev.hal.MapBuffer(b.raw, offset, n)
	if err != nil {
		return nil, fmt.Errorf("%w: map %q: %w", rtcore.ErrDevice, b.name, err)
	}
	copy(out, unsafe.Slice((*byte)(m.Ptr), n))
	if err := b.dev.hal.UnmapBuffer(b.raw); err != nil {
		return nil, fmt.Errorf("%w: unmap %q: %w", rtcore.ErrDevice, b.name, err)
	}
	return out, nil
}

// upload writes data through the HAL queue's staging path.
func (b *Buffer) upload(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dev.halMu.Lock()
	defer b.dev.halMu.Unlock()
	if err := b.dev.halQueue.WriteBuffer(b.raw, 0, data); err != nil {
		return fmt.Errorf("%w: write %q: %w", rtcore.ErrDevice, b.name, err)
	}
	return nil
}

func (b *Buffer) checkRange(offset, n uint64) error {
	if b.destroyed.Load() {
		return fmt.Errorf("%w: buffer %q destroyed", rtcore.ErrInvalidState, b.name)
	}
	if offset > b.size || n > b.size-offset {
		return fmt.Errorf("%w: range [%d, %d) outside buffer %q of %d bytes",
			rtcore.ErrValidation, offset, offset+n, b.name, b.size)
	}
	return nil
}

// CreateBuffer allocates a buffer and assigns it a device address.
func (d *Device) CreateBuffer(name string, size uint64, usage rtcore.BufferUsage, loc rtcore.MemoryLocation) (rtcore.Buffer, error) {
	b, err := d.createBuffer(name, size, usage, loc)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Device) createBuffer(name string, size uint64, usage rtcore.BufferUsage, loc rtcore.MemoryLocation) (*Buffer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err := d.faults.check(FaultCreateBuffer); err != nil {
		return nil, err
	}
	raw, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: name,
		Size:  max(size, minAllocation),
		Usage: halUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create buffer %q: %w", rtcore.ErrDevice, name, err)
	}
	b := &Buffer{dev: d, raw: raw, name: name, size: size, usage: usage, loc: loc}
	d.mem.insert(b)
	d.liveBuffers.Add(1)

	slogger().Debug("software: buffer created",
		"name", name, "size", size, "usage", usage, "location", loc,
		"address", fmt.Sprintf("%#x", uint64(b.addr)))
	return b, nil
}

// CreateBufferWithData allocates a buffer holding data. Host-visible
// buffers are written through a mapping. Device-local buffers are filled
// from a staging buffer with a one-shot copy on the transfer queue.
func (d *Device) CreateBufferWithData(name string, data []byte, usage rtcore.BufferUsage, loc rtcore.MemoryLocation) (rtcore.Buffer, error) {
	size := uint64(len(data))
	if loc.HostVisible() {
		b, err := d.createBuffer(name, size, usage, loc)
		if err != nil {
			return nil, err
		}
		if err := b.store(0, data); err != nil {
			b.Destroy()
			return nil, err
		}
		return b, nil
	}

	b, err := d.createBuffer(name, size, usage|rtcore.BufferUsageTransferDst, loc)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return b, nil
	}
	if err := d.stage(b, data); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// stage uploads data into dst through a staging buffer and a copy
// submitted on the transfer queue.
func (d *Device) stage(dst *Buffer, data []byte) error {
	staging, err := d.createBuffer(dst.name+" staging", uint64(len(data)),
		rtcore.BufferUsageTransferSrc, rtcore.MemoryCPUToGPU)
	if err != nil {
		return err
	}
	defer staging.Destroy()

	if err := staging.upload(data); err != nil {
		return err
	}
	cb, err := d.CreateCommandBuffer(rtcore.QueueTransfer)
	if err != nil {
		return err
	}
	cb.CopyBuffer(staging, dst, 0, 0, uint64(len(data)))
	return d.queues[rtcore.QueueTransfer].SubmitBlocking(cb)
}

// ReadBuffer returns a copy of a buffer's contents regardless of its
// memory location. It is the readback path used for inspection.
func (d *Device) ReadBuffer(buf rtcore.Buffer) ([]byte, error) {
	b, err := d.ownBuffer(buf)
	if err != nil {
		return nil, err
	}
	return b.load(0, b.size)
}

// ReadAddress returns n bytes of device memory starting at addr.
func (d *Device) ReadAddress(addr vk.DeviceAddress, n uint64) ([]byte, error) {
	b, off, err := d.mem.resolve(addr, n)
	if err != nil {
		return nil, err
	}
	return b.load(off, n)
}

// readUint64 reads one little-endian uint64 of device memory.
func (d *Device) readUint64(addr vk.DeviceAddress) (uint64, error) {
	raw, err := d.ReadAddress(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// ownBuffer checks that buf was created by d.
func (d *Device) ownBuffer(buf rtcore.Buffer) (*Buffer, error) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil || b.dev != d {
		return nil, fmt.Errorf("%w: buffer %T does not belong to this device", rtcore.ErrValidation, buf)
	}
	return b, nil
}

// addressSpace assigns device addresses and resolves them back to buffers.
type addressSpace struct {
	mu      sync.RWMutex
	next    uint64
	buffers []*Buffer // sorted by address, non-overlapping
}

func (s *addressSpace) init() { s.next = addressBase }

func (s *addressSpace) insert(b *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.addr = vk.DeviceAddress(s.next)
	s.next = rtcore.AlignUp(s.next+max(b.size, minAllocation), addressAlignment)
	s.buffers = append(s.buffers, b)
}

func (s *addressSpace) remove(b *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.buffers), func(i int) bool { return s.buffers[i].addr >= b.addr })
	if i < len(s.buffers) && s.buffers[i] == b {
		s.buffers = append(s.buffers[:i], s.buffers[i+1:]...)
	}
}

// resolve maps [addr, addr+n) to a buffer and an offset inside it.
func (s *addressSpace) resolve(addr vk.DeviceAddress, n uint64) (*Buffer, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.buffers), func(i int) bool {
		b := s.buffers[i]
		return uint64(b.addr)+b.size > uint64(addr)
	})
	if i < len(s.buffers) {
		b := s.buffers[i]
		off := uint64(addr) - uint64(b.addr)
		if b.addr <= addr && n <= b.size-off {
			return b, off, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: address range [%#x, %#x) is not resident",
		rtcore.ErrDevice, uint64(addr), uint64(addr)+n)
}

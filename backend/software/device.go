package software

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("software: device closed")

// Stats is a snapshot of device counters.
type Stats struct {
	Submissions                uint64
	WaitIdles                  uint64
	CommandBuffersAllocated    uint64
	LiveBuffers                int64
	LiveAccelerationStructures int64
	LivePipelines              int64
	LiveShaderModules          int64
}

// debugKey identifies a named native object.
type debugKey struct {
	objectType vk.ObjectType
	handle     uint64
}

// Device is an in-process rtcore.Device backed by a HAL device.
type Device struct {
	cfg   Config
	props rtcore.Properties
	info  gpucontext.AdapterInfo

	instance hal.Instance // nil when the HAL was supplied by the caller
	hal      hal.Device

	// halMu serializes access to the shared HAL queue, which every
	// rtcore queue submits through.
	halMu    sync.Mutex
	halQueue hal.Queue

	mem    addressSpace
	pools  [len(rtcore.QueueKinds)]*commandPool
	queues [len(rtcore.QueueKinds)]*Queue

	objMu      sync.Mutex
	nextID     uint64
	structures map[vk.AccelerationStructureKHR]*accelStructure
	pipelines  map[vk.Pipeline]*pipeline
	names      map[debugKey]string

	faults faultSet

	submissions    atomic.Uint64
	waitIdles      atomic.Uint64
	cmdAllocated   atomic.Uint64
	liveBuffers    atomic.Int64
	liveStructures atomic.Int64
	livePipelines  atomic.Int64
	liveShaderMods atomic.Int64
	closed         atomic.Bool
}

var _ rtcore.Device = (*Device)(nil)

// New creates a software device. Zero Config fields take their defaults.
func New(cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	props := cfg.properties()
	if err := props.Validate(); err != nil {
		return nil, err
	}
	if props.ShaderGroupHandleSize < minHandleSize {
		return nil, fmt.Errorf("%w: handle size %d below minimum %d",
			rtcore.ErrValidation, props.ShaderGroupHandleSize, minHandleSize)
	}

	d := &Device{
		cfg:        cfg,
		props:      props,
		info:       gpucontext.AdapterInfo{Name: cfg.Name, Type: gpucontext.AdapterTypeSoftware},
		structures: make(map[vk.AccelerationStructureKHR]*accelStructure),
		pipelines:  make(map[vk.Pipeline]*pipeline),
		names:      make(map[debugKey]string),
	}
	d.mem.init()

	open := cfg.HAL
	if open == nil {
		inst, od, err := openNoop(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: open noop adapter: %w", rtcore.ErrDevice, err)
		}
		d.instance = inst
		open = od
	}
	d.hal = open.Device
	d.halQueue = open.Queue

	for _, kind := range rtcore.QueueKinds {
		fence, err := d.hal.CreateFence()
		if err != nil {
			d.destroyQueues()
			d.destroyHAL()
			return nil, fmt.Errorf("%w: create %v fence: %w", rtcore.ErrDevice, kind, err)
		}
		d.pools[kind] = &commandPool{kind: kind}
		d.queues[kind] = &Queue{kind: kind, dev: d, fence: fence}
	}

	slogger().Debug("software: device created",
		"name", cfg.Name,
		"handleSize", props.ShaderGroupHandleSize,
		"baseAlignment", props.ShaderGroupBaseAlignment,
		"maxGroupStride", props.MaxShaderGroupStride)
	return d, nil
}

// openNoop opens the first adapter of the noop HAL.
func openNoop(cfg Config) (hal.Instance, *hal.OpenDevice, error) {
	api := noop.API{}
	inst, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, err
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, nil, errors.New("no adapters")
	}
	od, err := adapters[0].Adapter.Open(0, *cfg.Limits)
	if err != nil {
		inst.Destroy()
		return nil, nil, err
	}
	return inst, &od, nil
}

// Properties returns the configured ray tracing properties.
func (d *Device) Properties() rtcore.Properties { return d.props }

// AdapterInfo describes the software adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo { return d.info }

// Queue returns the queue of the given family, or nil for an unknown family.
func (d *Device) Queue(kind rtcore.QueueKind) rtcore.Queue {
	if !kind.Valid() || d.queues[kind] == nil {
		return nil
	}
	return d.queues[kind]
}

// CreateCommandBuffer takes a command buffer from the family's pool.
func (d *Device) CreateCommandBuffer(kind rtcore.QueueKind) (rtcore.CommandBuffer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown queue family %d", rtcore.ErrValidation, kind)
	}
	return d.pools[kind].acquire(d), nil
}

// SetDebugName records a debug name for a native object.
func (d *Device) SetDebugName(objectType vk.ObjectType, handle uint64, name string) {
	d.objMu.Lock()
	d.names[debugKey{objectType, handle}] = name
	d.objMu.Unlock()
}

// DebugName returns the name recorded by SetDebugName.
func (d *Device) DebugName(objectType vk.ObjectType, handle uint64) string {
	d.objMu.Lock()
	defer d.objMu.Unlock()
	return d.names[debugKey{objectType, handle}]
}

// WaitIdle blocks until no queue has a submission in flight, then waits
// for the HAL device to go idle.
func (d *Device) WaitIdle() error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.waitIdle()
}

func (d *Device) waitIdle() error {
	d.waitIdles.Add(1)
	for _, q := range d.queues {
		q.mu.Lock()
	}
	defer func() {
		for _, q := range d.queues {
			q.mu.Unlock()
		}
	}()

	d.halMu.Lock()
	err := d.hal.WaitIdle()
	d.halMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: wait idle: %w", rtcore.ErrDevice, err)
	}
	return nil
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	return Stats{
		Submissions:                d.submissions.Load(),
		WaitIdles:                  d.waitIdles.Load(),
		CommandBuffersAllocated:    d.cmdAllocated.Load(),
		LiveBuffers:                d.liveBuffers.Load(),
		LiveAccelerationStructures: d.liveStructures.Load(),
		LivePipelines:              d.livePipelines.Load(),
		LiveShaderModules:          d.liveShaderMods.Load(),
	}
}

// Close waits for idle and releases the HAL device. Objects still alive
// are reported at warn level and released with the device.
func (d *Device) Close() {
	if d.closed.Swap(true) {
		return
	}
	if err := d.waitIdle(); err != nil {
		slogger().Warn("software: wait idle on close", "err", err)
	}
	s := d.Stats()
	if s.LiveAccelerationStructures > 0 || s.LivePipelines > 0 {
		slogger().Warn("software: closing device with live objects",
			"accelerationStructures", s.LiveAccelerationStructures,
			"pipelines", s.LivePipelines)
	}
	d.destroyQueues()
	d.destroyHAL()
}

func (d *Device) destroyQueues() {
	for i, q := range d.queues {
		if q != nil && q.fence != nil {
			d.hal.DestroyFence(q.fence)
		}
		d.queues[i] = nil
	}
}

func (d *Device) destroyHAL() {
	d.hal.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
}

// newID returns a fresh non-zero native handle value.
func (d *Device) newID() uint64 {
	d.objMu.Lock()
	defer d.objMu.Unlock()
	d.nextID++
	return d.nextID
}

package accel

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// DefaultName names structures built with an empty Config.Name.
const DefaultName = "acceleration structure"

// Config configures a build.
type Config struct {
	// Name is the debug name. Buffers are named "{Name} buffer" and
	// "{Name} scratch buffer". Default: "acceleration structure".
	Name string

	// WaitIdle waits for full device idle after the build submission.
	// It is a debugging aid; the fence wait already orders builds.
	WaitIdle bool

	// Queue selects the queue family whose pool records the build.
	// The zero value is rtcore.QueueCompute.
	Queue rtcore.QueueKind
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	return c
}

// resources collects objects created during a build so that a failing
// build can release them in reverse order.
type resources struct {
	undo []func()
}

func (r *resources) add(f func()) { r.undo = append(r.undo, f) }

func (r *resources) release() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
}

// build runs the shared query, allocate, record, submit and resolve
// protocol for both levels.
func build(dev rtcore.Device, cfg Config, kind Kind, geometries []Geometry) (_ *AccelerationStructure, err error) {
	cfg = cfg.withDefaults()
	if err := checkGeometries(kind, geometries); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}

	var res resources
	defer func() {
		if err != nil {
			res.release()
		}
	}()
	fail := func(step string, err error) error {
		if errors.Is(err, rtcore.ErrDevice) {
			return fmt.Errorf("%s: %s: %w", cfg.Name, step, err)
		}
		return fmt.Errorf("%w: %s: %s: %w", rtcore.ErrDevice, cfg.Name, step, err)
	}

	s := &AccelerationStructure{dev: dev, name: cfg.Name, kind: kind}

	records := make([]rtcore.GeometryRecord, len(geometries))
	ranges := make([]vk.AccelerationStructureBuildRangeInfoKHR, len(geometries))
	counts := make([]uint32, len(geometries))
	for i, g := range geometries {
		records[i] = g.Record()
		ranges[i] = g.BuildRange()
		counts[i] = g.PrimitiveCount()

		t, ok := g.(*Triangles)
		if !ok {
			continue
		}
		if m, ok := t.embeddedTransform(); ok {
			raw := make([]byte, rtcore.TransformSize)
			rtcore.PutTransform(raw, m)
			buf, err := dev.CreateBufferWithData(cfg.Name+" transform buffer", raw,
				rtcore.BufferUsageBuildInputReadOnly|rtcore.BufferUsageShaderDeviceAddress, rtcore.MemoryGPUOnly)
			if err != nil {
				return nil, fail("upload transform", err)
			}
			res.add(buf.Destroy)
			s.inputs = append(s.inputs, buf)
			records[i].Triangles.TransformData = buf.DeviceAddress()
		}
	}

	// 1. Sizes.
	info := rtcore.BuildGeometryInfo{
		Type:       kind.Vk(),
		Flags:      vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructurePreferFastTraceBitKhr),
		Geometries: records,
	}
	sizes, err := dev.AccelerationStructureBuildSizes(&info, counts)
	if err != nil {
		return nil, fail("query build sizes", err)
	}
	slogger().Debug("accel: build sizes",
		"name", cfg.Name, "kind", kind,
		"size", sizes.AccelerationStructureSize, "scratch", sizes.BuildScratchSize)

	// 2. Result buffer and native structure.
	s.buf, err = dev.CreateBuffer(cfg.Name+" buffer", sizes.AccelerationStructureSize,
		rtcore.BufferUsageAccelerationStructureStorage|rtcore.BufferUsageShaderDeviceAddress, rtcore.MemoryGPUOnly)
	if err != nil {
		return nil, fail("create buffer", err)
	}
	res.add(s.buf.Destroy)

	s.handle, err = dev.CreateAccelerationStructure(&rtcore.AccelerationStructureDescriptor{
		Name:   cfg.Name,
		Type:   kind.Vk(),
		Buffer: s.buf,
		Size:   sizes.AccelerationStructureSize,
	})
	if err != nil {
		return nil, fail("create acceleration structure", err)
	}
	res.add(func() { dev.DestroyAccelerationStructure(s.handle) })

	// 3. Scratch.
	scratch, err := dev.CreateBuffer(cfg.Name+" scratch buffer", sizes.BuildScratchSize,
		rtcore.BufferUsageStorage|rtcore.BufferUsageShaderDeviceAddress, rtcore.MemoryGPUOnly)
	if err != nil {
		return nil, fail("create scratch buffer", err)
	}
	defer scratch.Destroy()

	// 4. Record.
	q := dev.Queue(cfg.Queue)
	if q == nil {
		return nil, fail("create command buffer", fmt.Errorf("no %v queue", cfg.Queue))
	}
	cb, err := dev.CreateCommandBuffer(cfg.Queue)
	if err != nil {
		return nil, fail("create command buffer", err)
	}
	info.Destination = s.handle
	info.ScratchData = scratch.DeviceAddress()
	cb.BuildAccelerationStructures(
		[]rtcore.BuildGeometryInfo{info},
		[][]vk.AccelerationStructureBuildRangeInfoKHR{ranges})

	// 5. Submit and block.
	if err := q.SubmitBlocking(cb); err != nil {
		return nil, fail("submit", err)
	}
	if cfg.WaitIdle {
		if err := dev.WaitIdle(); err != nil {
			return nil, fail("wait idle", err)
		}
	}

	// 6. Address and debug name.
	s.addr = dev.AccelerationStructureAddress(s.handle)
	if s.addr == 0 {
		return nil, fail("resolve address", errors.New("zero device address"))
	}
	dev.SetDebugName(vk.ObjectTypeAccelerationStructureKhr, uint64(s.handle), cfg.Name)

	for _, g := range geometries {
		if a, ok := g.(*InstanceArray); ok {
			for _, blas := range a.bottomLevels() {
				s.children = append(s.children, blas.Retain())
			}
		}
	}
	s.refs.Store(1)

	slogger().Debug("accel: acceleration structure built",
		"name", cfg.Name, "kind", kind,
		"address", fmt.Sprintf("%#x", uint64(s.addr)), "queue", cfg.Queue)
	return s, nil
}

// checkGeometries rejects geometry lists the driver would reject.
func checkGeometries(kind Kind, geometries []Geometry) error {
	switch kind {
	case BottomLevel:
		if len(geometries) == 0 {
			return fmt.Errorf("%w: bottom-level build without geometries", rtcore.ErrValidation)
		}
		for i, g := range geometries {
			if g == nil {
				return fmt.Errorf("%w: geometry %d is nil", rtcore.ErrValidation, i)
			}
			if _, ok := g.(*InstanceArray); ok {
				return fmt.Errorf("%w: geometry %d is an instance array", rtcore.ErrValidation, i)
			}
		}
	case TopLevel:
		if len(geometries) != 1 {
			return fmt.Errorf("%w: top-level build needs one instance array, got %d geometries",
				rtcore.ErrValidation, len(geometries))
		}
		if _, ok := geometries[0].(*InstanceArray); !ok {
			return fmt.Errorf("%w: top-level geometry is %T, not an instance array", rtcore.ErrValidation, geometries[0])
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", rtcore.ErrValidation, kind)
	}
	return nil
}

package raytracing

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// DefaultPipelineName names pipelines created with an empty name.
const DefaultPipelineName = "ray tracing pipeline"

// PipelineDescriptor describes a ray tracing pipeline.
type PipelineDescriptor struct {
	Name              string
	Layout            vk.PipelineLayout
	Raygen            ShaderStage
	Miss              []ShaderStage
	HitGroups         []HitGroup
	MaxRecursionDepth uint32
}

// Pipeline is a created ray tracing pipeline together with its group
// table and the handle blob fetched at creation.
//
// It is shared by reference: Retain adds a reference and Release drops
// one. The native pipeline is destroyed when the last reference is
// released.
type Pipeline struct {
	dev        rtcore.Device
	name       string
	handle     vk.Pipeline
	layout     vk.PipelineLayout
	table      *GroupTable
	handles    []byte
	handleSize uint32

	refs atomic.Int32
}

// NewPipeline validates the stages, creates the pipeline in one driver call
// and fetches one handle per group.
func NewPipeline(dev rtcore.Device, desc PipelineDescriptor) (*Pipeline, error) {
	name := desc.Name
	if name == "" {
		name = DefaultPipelineName
	}
	table, err := NewGroupTable(desc.Raygen, desc.Miss, desc.HitGroups)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	handle, err := dev.CreateRayTracingPipeline(&rtcore.RayTracingPipelineDescriptor{
		Name:              name,
		Stages:            table.stageInfos(),
		Groups:            table.groups,
		MaxRecursionDepth: desc.MaxRecursionDepth,
		Layout:            desc.Layout,
	})
	if err != nil {
		return nil, deviceError(name, "create pipeline", err)
	}

	size := dev.Properties().ShaderGroupHandleSize
	n := uint32(table.Len())
	blob, err := dev.ShaderGroupHandles(handle, 0, n)
	if err != nil {
		dev.DestroyPipeline(handle)
		return nil, deviceError(name, "shader group handles", err)
	}
	if uint64(len(blob)) != uint64(n)*uint64(size) {
		dev.DestroyPipeline(handle)
		return nil, deviceError(name, "shader group handles",
			fmt.Errorf("got %d bytes, want %d groups of %d", len(blob), n, size))
	}
	dev.SetDebugName(vk.ObjectTypePipeline, uint64(handle), name)

	p := &Pipeline{
		dev:        dev,
		name:       name,
		handle:     handle,
		layout:     desc.Layout,
		table:      table,
		handles:    blob,
		handleSize: size,
	}
	p.refs.Store(1)

	slogger().Debug("raytracing: pipeline created",
		"name", name, "stages", len(table.stages), "groups", n,
		"miss", table.missCount, "hitGroups", table.hitCount, "handleSize", size)
	return p, nil
}

// deviceError wraps err as an ErrDevice unless it already is one.
func deviceError(name, step string, err error) error {
	if errors.Is(err, rtcore.ErrDevice) {
		return fmt.Errorf("%s: %s: %w", name, step, err)
	}
	return fmt.Errorf("%w: %s: %s: %w", rtcore.ErrDevice, name, step, err)
}

// Name returns the debug name.
func (p *Pipeline) Name() string { return p.name }

// Handle returns the native pipeline.
func (p *Pipeline) Handle() vk.Pipeline { return p.handle }

// Layout returns the pipeline layout given at creation.
func (p *Pipeline) Layout() vk.PipelineLayout { return p.layout }

// Table returns the group table.
func (p *Pipeline) Table() *GroupTable { return p.table }

// HandleSize returns the size of one group handle in bytes.
func (p *Pipeline) HandleSize() uint32 { return p.handleSize }

// Handles returns a copy of the handle blob, one handle per group in group
// order.
func (p *Pipeline) Handles() []byte { return slices.Clone(p.handles) }

// groupHandle returns the handle bytes of group g.
func (p *Pipeline) groupHandle(g uint64) []byte {
	size := uint64(p.handleSize)
	return p.handles[g*size : (g+1)*size]
}

// Retain adds a reference and returns p.
func (p *Pipeline) Retain() *Pipeline {
	p.refs.Add(1)
	return p
}

// Release drops a reference. The last release destroys the pipeline.
func (p *Pipeline) Release() {
	switch n := p.refs.Add(-1); {
	case n == 0:
		p.dev.DestroyPipeline(p.handle)
		slogger().Debug("raytracing: pipeline destroyed", "name", p.name)
	case n < 0:
		slogger().Warn("raytracing: release of released pipeline", "name", p.name)
	}
}

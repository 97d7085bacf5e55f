package software

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// pipeline is a created ray tracing pipeline and its group handles.
type pipeline struct {
	handle     vk.Pipeline
	name       string
	layout     vk.PipelineLayout
	groupCount uint32
	handles    []byte // groupCount * handle size, in group order
}

// CreateRayTracingPipeline validates the stages and groups and assigns
// every group a unique opaque handle.
func (d *Device) CreateRayTracingPipeline(desc *rtcore.RayTracingPipelineDescriptor) (vk.Pipeline, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}
	if err := d.faults.check(FaultCreatePipeline); err != nil {
		return 0, err
	}
	if err := d.validatePipeline(desc); err != nil {
		return 0, fmt.Errorf("%w: pipeline %q: %w", rtcore.ErrDevice, desc.Name, err)
	}

	id := d.newID()
	n := uint32(len(desc.Groups))
	size := d.props.ShaderGroupHandleSize
	handles := make([]byte, uint64(n)*uint64(size))
	for g := range n {
		h := handles[g*size : (g+1)*size]
		binary.LittleEndian.PutUint32(h[0:], uint32(id))
		binary.LittleEndian.PutUint32(h[4:], g)
		for j := uint32(8); j < size; j++ {
			h[j] = byte(g*17+j) ^ 0xA5
		}
	}

	p := &pipeline{
		handle:     vk.Pipeline(id),
		name:       desc.Name,
		layout:     desc.Layout,
		groupCount: n,
		handles:    handles,
	}
	d.objMu.Lock()
	d.pipelines[p.handle] = p
	d.objMu.Unlock()
	d.livePipelines.Add(1)

	slogger().Debug("software: ray tracing pipeline created",
		"name", desc.Name, "stages", len(desc.Stages), "groups", n)
	return p.handle, nil
}

// validatePipeline checks what vkCreateRayTracingPipelinesKHR would
// reject: unknown modules, missing entry points, stage mismatches and
// groups that reference the wrong kind of stage.
func (d *Device) validatePipeline(desc *rtcore.RayTracingPipelineDescriptor) error {
	if desc.MaxRecursionDepth > d.props.MaxRayRecursionDepth {
		return fmt.Errorf("recursion depth %d exceeds %d", desc.MaxRecursionDepth, d.props.MaxRayRecursionDepth)
	}
	for i, s := range desc.Stages {
		m, ok := s.Module.(*ShaderModule)
		if !ok || m == nil || m.dev != d {
			return fmt.Errorf("stage %d: module %T does not belong to this device", i, s.Module)
		}
		if m.destroyed.Load() {
			return fmt.Errorf("stage %d: module %q destroyed", i, m.name)
		}
		ep, ok := m.entryPoint(s.EntryPoint)
		if !ok {
			return fmt.Errorf("stage %d: module %q has no entry point %q", i, m.name, s.EntryPoint)
		}
		if ep.Stage() != s.Stage {
			return fmt.Errorf("stage %d: entry point %q is stage %#x, declared %#x", i, s.EntryPoint, ep.Stage(), s.Stage)
		}
	}

	stage := func(idx uint32) (vk.ShaderStageFlagBits, error) {
		if idx >= uint32(len(desc.Stages)) {
			return 0, fmt.Errorf("stage index %d out of %d", idx, len(desc.Stages))
		}
		return desc.Stages[idx].Stage, nil
	}
	expect := func(g int, field string, idx uint32, optional bool, allowed ...vk.ShaderStageFlagBits) error {
		if idx == vk.ShaderUnusedKhr {
			if optional {
				return nil
			}
			return fmt.Errorf("group %d: %s shader is required", g, field)
		}
		st, err := stage(idx)
		if err != nil {
			return fmt.Errorf("group %d: %s: %w", g, field, err)
		}
		for _, a := range allowed {
			if st == a {
				return nil
			}
		}
		return fmt.Errorf("group %d: %s shader has stage %#x", g, field, st)
	}
	unused := func(g int, field string, idx uint32) error {
		if idx != vk.ShaderUnusedKhr {
			return fmt.Errorf("group %d: %s shader must be unused", g, field)
		}
		return nil
	}

	for g, grp := range desc.Groups {
		var errs []error
		switch grp.Type {
		case vk.RayTracingShaderGroupTypeGeneralKhr:
			errs = append(errs,
				expect(g, "general", grp.GeneralShader, false,
					vk.ShaderStageRaygenBitKhr, vk.ShaderStageMissBitKhr, vk.ShaderStageCallableBitKhr),
				unused(g, "closest hit", grp.ClosestHitShader),
				unused(g, "any hit", grp.AnyHitShader),
				unused(g, "intersection", grp.IntersectionShader))
		case vk.RayTracingShaderGroupTypeTrianglesHitGroupKhr:
			errs = append(errs,
				unused(g, "general", grp.GeneralShader),
				expect(g, "closest hit", grp.ClosestHitShader, true, vk.ShaderStageClosestHitBitKhr),
				expect(g, "any hit", grp.AnyHitShader, true, vk.ShaderStageAnyHitBitKhr),
				unused(g, "intersection", grp.IntersectionShader))
		case vk.RayTracingShaderGroupTypeProceduralHitGroupKhr:
			errs = append(errs,
				unused(g, "general", grp.GeneralShader),
				expect(g, "closest hit", grp.ClosestHitShader, true, vk.ShaderStageClosestHitBitKhr),
				expect(g, "any hit", grp.AnyHitShader, true, vk.ShaderStageAnyHitBitKhr),
				expect(g, "intersection", grp.IntersectionShader, false, vk.ShaderStageIntersectionBitKhr))
		default:
			return fmt.Errorf("group %d: unknown type %d", g, grp.Type)
		}
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// DestroyPipeline forgets a pipeline.
func (d *Device) DestroyPipeline(p vk.Pipeline) {
	d.objMu.Lock()
	_, ok := d.pipelines[p]
	delete(d.pipelines, p)
	delete(d.names, debugKey{vk.ObjectTypePipeline, uint64(p)})
	d.objMu.Unlock()
	if !ok {
		slogger().Warn("software: destroy of unknown pipeline", "handle", uint64(p))
		return
	}
	d.livePipelines.Add(-1)
}

// ShaderGroupHandles returns count handles starting at group first.
func (d *Device) ShaderGroupHandles(p vk.Pipeline, first, count uint32) ([]byte, error) {
	if err := d.faults.check(FaultGroupHandles); err != nil {
		return nil, err
	}
	d.objMu.Lock()
	pl := d.pipelines[p]
	d.objMu.Unlock()
	if pl == nil {
		return nil, fmt.Errorf("%w: unknown pipeline %d", rtcore.ErrDevice, uint64(p))
	}
	if uint64(first)+uint64(count) > uint64(pl.groupCount) {
		return nil, fmt.Errorf("%w: groups [%d, %d) outside pipeline %q with %d groups",
			rtcore.ErrDevice, first, uint64(first)+uint64(count), pl.name, pl.groupCount)
	}
	size := d.props.ShaderGroupHandleSize
	out := make([]byte, count*size)
	copy(out, pl.handles[first*size:(first+count)*size])
	return out, nil
}

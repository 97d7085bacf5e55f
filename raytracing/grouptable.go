package raytracing

import (
	"fmt"
	"slices"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// GroupTable is the ordered stage list and shader group list of a
// pipeline. Group order is fixed at creation and is the order of the
// driver's handle blob.
type GroupTable struct {
	stages    []ShaderStage
	groups    []vk.RayTracingShaderGroupCreateInfoKHR
	missCount int
	hitCount  int
}

// NewGroupTable derives the stage and group lists.
//
// Stages are ordered raygen, miss stages, then for each hit group its
// closest hit stage, its any hit stage if present and its intersection
// stage if present. Group 0 is the raygen stage, groups 1..N are the miss
// stages and the remaining groups are the hit groups, each referencing its
// stages by index and vk.ShaderUnusedKhr for an absent stage.
func NewGroupTable(raygen ShaderStage, miss []ShaderStage, hits []HitGroup) (*GroupTable, error) {
	if err := raygen.expect("raygen", StageRaygen); err != nil {
		return nil, err
	}
	for i, m := range miss {
		if err := m.expect(fmt.Sprintf("miss %d", i), StageMiss); err != nil {
			return nil, err
		}
	}

	t := &GroupTable{missCount: len(miss), hitCount: len(hits)}
	t.stages = make([]ShaderStage, 0, 1+len(miss)+3*len(hits))
	t.groups = make([]vk.RayTracingShaderGroupCreateInfoKHR, 0, 1+len(miss)+len(hits))

	t.groups = append(t.groups, generalGroup(0))
	t.stages = append(t.stages, raygen)
	for _, m := range miss {
		t.groups = append(t.groups, generalGroup(uint32(len(t.stages))))
		t.stages = append(t.stages, m)
	}

	for i, h := range hits {
		hs, err := hitLayout(i, h)
		if err != nil {
			return nil, err
		}
		g := unusedGroup(hs.typ)
		g.ClosestHitShader = uint32(len(t.stages))
		t.stages = append(t.stages, hs.closest)
		if hs.anyHit != nil {
			g.AnyHitShader = uint32(len(t.stages))
			t.stages = append(t.stages, *hs.anyHit)
		}
		if hs.intersection != nil {
			g.IntersectionShader = uint32(len(t.stages))
			t.stages = append(t.stages, *hs.intersection)
		}
		t.groups = append(t.groups, g)
	}
	return t, nil
}

// hitLayout validates one hit group and returns its stage layout.
func hitLayout(i int, h HitGroup) (hitStages, error) {
	role := func(s string) string { return fmt.Sprintf("hit group %d %s", i, s) }

	switch h := h.(type) {
	case *TrianglesHitGroup:
		if h == nil {
			break
		}
		if err := h.ClosestHit.expect(role("closest hit"), StageClosestHit); err != nil {
			return hitStages{}, err
		}
		if h.AnyHit != nil {
			if err := h.AnyHit.expect(role("any hit"), StageAnyHit); err != nil {
				return hitStages{}, err
			}
		}
		return hitStages{
			typ:     vk.RayTracingShaderGroupTypeTrianglesHitGroupKhr,
			closest: h.ClosestHit,
			anyHit:  h.AnyHit,
		}, nil
	case *ProceduralHitGroup:
		if h == nil {
			break
		}
		if err := h.ClosestHit.expect(role("closest hit"), StageClosestHit); err != nil {
			return hitStages{}, err
		}
		if h.AnyHit != nil {
			if err := h.AnyHit.expect(role("any hit"), StageAnyHit); err != nil {
				return hitStages{}, err
			}
		}
		if err := h.Intersection.expect(role("intersection"), StageIntersection); err != nil {
			return hitStages{}, err
		}
		return hitStages{
			typ:          vk.RayTracingShaderGroupTypeProceduralHitGroupKhr,
			closest:      h.ClosestHit,
			anyHit:       h.AnyHit,
			intersection: &h.Intersection,
		}, nil
	}
	return hitStages{}, fmt.Errorf("%w: hit group %d is %T", rtcore.ErrValidation, i, h)
}

func unusedGroup(typ vk.RayTracingShaderGroupTypeKHR) vk.RayTracingShaderGroupCreateInfoKHR {
	return vk.RayTracingShaderGroupCreateInfoKHR{
		SType:              vk.StructureTypeRayTracingShaderGroupCreateInfoKhr,
		Type:               typ,
		GeneralShader:      vk.ShaderUnusedKhr,
		ClosestHitShader:   vk.ShaderUnusedKhr,
		AnyHitShader:       vk.ShaderUnusedKhr,
		IntersectionShader: vk.ShaderUnusedKhr,
	}
}

func generalGroup(stage uint32) vk.RayTracingShaderGroupCreateInfoKHR {
	g := unusedGroup(vk.RayTracingShaderGroupTypeGeneralKhr)
	g.GeneralShader = stage
	return g
}

// Len returns the number of shader groups.
func (t *GroupTable) Len() int { return len(t.groups) }

// MissCount returns the number of miss groups.
func (t *GroupTable) MissCount() int { return t.missCount }

// HitGroupCount returns the number of hit groups.
func (t *GroupTable) HitGroupCount() int { return t.hitCount }

// Stages returns the stage list in pipeline order.
func (t *GroupTable) Stages() []ShaderStage { return slices.Clone(t.stages) }

// Groups returns the shader group list in handle order.
func (t *GroupTable) Groups() []vk.RayTracingShaderGroupCreateInfoKHR { return slices.Clone(t.groups) }

func (t *GroupTable) stageInfos() []rtcore.ShaderStageInfo {
	out := make([]rtcore.ShaderStageInfo, len(t.stages))
	for i, s := range t.stages {
		out[i] = s.info()
	}
	return out
}

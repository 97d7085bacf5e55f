package raytracing

import "github.com/gogpu/wgpu/hal/vulkan/vk"

// HitGroup is the closed set of hit group variants: *TrianglesHitGroup
// and *ProceduralHitGroup.
type HitGroup interface {
	isHitGroup()
}

// TrianglesHitGroup handles hits against triangle geometry.
type TrianglesHitGroup struct {
	ClosestHit ShaderStage
	AnyHit     *ShaderStage
}

// ProceduralHitGroup handles hits against AABB geometry, reported by an
// intersection shader.
type ProceduralHitGroup struct {
	ClosestHit   ShaderStage
	Intersection ShaderStage
	AnyHit       *ShaderStage
}

func (*TrianglesHitGroup) isHitGroup()  {}
func (*ProceduralHitGroup) isHitGroup() {}

// NewTrianglesHitGroup returns a triangles hit group. anyHit may be nil.
func NewTrianglesHitGroup(closestHit ShaderStage, anyHit *ShaderStage) *TrianglesHitGroup {
	return &TrianglesHitGroup{ClosestHit: closestHit, AnyHit: anyHit}
}

// NewProceduralHitGroup returns a procedural hit group. anyHit may be nil.
func NewProceduralHitGroup(closestHit, intersection ShaderStage, anyHit *ShaderStage) *ProceduralHitGroup {
	return &ProceduralHitGroup{ClosestHit: closestHit, Intersection: intersection, AnyHit: anyHit}
}

// hitStages is the stage layout of one hit group: its stages in pipeline
// order and the shader group type.
type hitStages struct {
	typ          vk.RayTracingShaderGroupTypeKHR
	closest      ShaderStage
	anyHit       *ShaderStage
	intersection *ShaderStage
}

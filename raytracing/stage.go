package raytracing

import (
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// StageKind is the pipeline stage a shader runs in.
type StageKind int

const (
	StageRaygen StageKind = iota
	StageMiss
	StageClosestHit
	StageAnyHit
	StageIntersection
	StageCallable
)

// String returns the string representation of StageKind.
func (k StageKind) String() string {
	switch k {
	case StageRaygen:
		return "Raygen"
	case StageMiss:
		return "Miss"
	case StageClosestHit:
		return "ClosestHit"
	case StageAnyHit:
		return "AnyHit"
	case StageIntersection:
		return "Intersection"
	case StageCallable:
		return "Callable"
	default:
		return "Unknown"
	}
}

// Vk returns the Vulkan stage bit, or 0 for an unknown kind.
func (k StageKind) Vk() vk.ShaderStageFlagBits {
	switch k {
	case StageRaygen:
		return vk.ShaderStageRaygenBitKhr
	case StageMiss:
		return vk.ShaderStageMissBitKhr
	case StageClosestHit:
		return vk.ShaderStageClosestHitBitKhr
	case StageAnyHit:
		return vk.ShaderStageAnyHitBitKhr
	case StageIntersection:
		return vk.ShaderStageIntersectionBitKhr
	case StageCallable:
		return vk.ShaderStageCallableBitKhr
	default:
		return 0
	}
}

// DefaultEntryPoint is used when a stage names no entry point.
const DefaultEntryPoint = "main"

// ShaderStage is one shader entry point used by a pipeline.
type ShaderStage struct {
	Module     rtcore.ShaderModule
	Kind       StageKind
	EntryPoint string
}

// NewShaderStage returns a stage for entry in module. An empty entry
// selects DefaultEntryPoint.
func NewShaderStage(module rtcore.ShaderModule, kind StageKind, entry string) ShaderStage {
	if entry == "" {
		entry = DefaultEntryPoint
	}
	return ShaderStage{Module: module, Kind: kind, EntryPoint: entry}
}

// expect returns ErrInvalidShaderStage unless s has kind want.
func (s ShaderStage) expect(role string, want StageKind) error {
	if s.Kind != want {
		return fmt.Errorf("%w: %s stage %q has kind %v, want %v",
			rtcore.ErrInvalidShaderStage, role, s.EntryPoint, s.Kind, want)
	}
	if s.Module == nil {
		return fmt.Errorf("%w: %s stage %q has no module", rtcore.ErrValidation, role, s.EntryPoint)
	}
	return nil
}

func (s ShaderStage) info() rtcore.ShaderStageInfo {
	entry := s.EntryPoint
	if entry == "" {
		entry = DefaultEntryPoint
	}
	return rtcore.ShaderStageInfo{Stage: s.Kind.Vk(), Module: s.Module, EntryPoint: entry}
}

package rtcore

import (
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Properties holds the driver-reported ray tracing limits that govern
// shader binding table layout and pipeline creation.
type Properties struct {
	ShaderGroupHandleSize    uint32
	ShaderGroupBaseAlignment uint32
	MaxShaderGroupStride     uint32
	MaxRayRecursionDepth     uint32
}

// PropertiesFromVk copies the relevant fields of
// VkPhysicalDeviceRayTracingPipelinePropertiesKHR.
func PropertiesFromVk(p *vk.PhysicalDeviceRayTracingPipelinePropertiesKHR) Properties {
	return Properties{
		ShaderGroupHandleSize:    p.ShaderGroupHandleSize,
		ShaderGroupBaseAlignment: p.ShaderGroupBaseAlignment,
		MaxShaderGroupStride:     p.MaxShaderGroupStride,
		MaxRayRecursionDepth:     p.MaxRayRecursionDepth,
	}
}

// Validate reports whether the properties describe a usable device.
func (p Properties) Validate() error {
	if p.ShaderGroupHandleSize == 0 {
		return fmt.Errorf("%w: zero shader group handle size", ErrValidation)
	}
	a := p.ShaderGroupBaseAlignment
	if a == 0 || a&(a-1) != 0 {
		return fmt.Errorf("%w: base alignment %d is not a power of two", ErrValidation, a)
	}
	return nil
}

// GroupStride returns the SBT slot stride: the handle size rounded up to
// the base alignment. It fails with ErrAlignmentViolation when the stride
// exceeds MaxShaderGroupStride.
func (p Properties) GroupStride() (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	stride := AlignUp(uint64(p.ShaderGroupHandleSize), uint64(p.ShaderGroupBaseAlignment))
	if stride > uint64(p.MaxShaderGroupStride) {
		return 0, fmt.Errorf("%w: stride %d exceeds max group stride %d",
			ErrAlignmentViolation, stride, p.MaxShaderGroupStride)
	}
	return stride, nil
}

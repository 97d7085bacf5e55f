package rtcore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Ray tracing execution models from SPV_KHR_ray_tracing.
const (
	ExecutionModelRayGeneration spirv.ExecutionModel = 5313
	ExecutionModelIntersection  spirv.ExecutionModel = 5314
	ExecutionModelAnyHit        spirv.ExecutionModel = 5315
	ExecutionModelClosestHit    spirv.ExecutionModel = 5316
	ExecutionModelMiss          spirv.ExecutionModel = 5317
	ExecutionModelCallable      spirv.ExecutionModel = 5318
)

const (
	capabilityRayTracing spirv.Capability = 4479
	extensionRayTracing                   = "SPV_KHR_ray_tracing"
	spirvHeaderWords                      = 5
)

// EntryPoint is an OpEntryPoint declared by a SPIR-V module.
type EntryPoint struct {
	Name  string
	Model spirv.ExecutionModel
}

// Stage returns the Vulkan shader stage bit for the entry point's
// execution model, or 0 for models outside ray tracing.
func (e EntryPoint) Stage() vk.ShaderStageFlagBits {
	switch e.Model {
	case ExecutionModelRayGeneration:
		return vk.ShaderStageRaygenBitKhr
	case ExecutionModelIntersection:
		return vk.ShaderStageIntersectionBitKhr
	case ExecutionModelAnyHit:
		return vk.ShaderStageAnyHitBitKhr
	case ExecutionModelClosestHit:
		return vk.ShaderStageClosestHitBitKhr
	case ExecutionModelMiss:
		return vk.ShaderStageMissBitKhr
	case ExecutionModelCallable:
		return vk.ShaderStageCallableBitKhr
	default:
		return 0
	}
}

// ParseSPIRV validates the module header and returns its entry points.
func ParseSPIRV(code []byte) ([]EntryPoint, error) {
	if len(code)%4 != 0 || len(code) < spirvHeaderWords*4 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSPIRV, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	if words[0] != spirv.MagicNumber {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrInvalidSPIRV, words[0])
	}

	var eps []EntryPoint
	for i := spirvHeaderWords; i < len(words); {
		wc := int(words[i] >> 16)
		op := spirv.OpCode(words[i] & 0xFFFF)
		if wc == 0 || i+wc > len(words) {
			return nil, fmt.Errorf("%w: truncated instruction at word %d", ErrInvalidSPIRV, i)
		}
		if op == spirv.OpEntryPoint {
			if wc < 4 {
				return nil, fmt.Errorf("%w: short OpEntryPoint at word %d", ErrInvalidSPIRV, i)
			}
			eps = append(eps, EntryPoint{
				Name:  literalString(words[i+3 : i+wc]),
				Model: spirv.ExecutionModel(words[i+1]),
			})
		}
		i += wc
	}
	return eps, nil
}

// literalString decodes a nul-terminated SPIR-V literal string.
func literalString(words []uint32) string {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	if n := bytes.IndexByte(buf, 0); n >= 0 {
		buf = buf[:n]
	}
	return string(buf)
}

// AssembleEntryPoints builds a minimal SPIR-V 1.4 module declaring one empty
// void function per entry point. It is used to stand in for compiled ray
// tracing shaders when exercising pipeline creation.
func AssembleEntryPoints(eps ...EntryPoint) []byte {
	b := spirv.NewModuleBuilder(spirv.Version1_4)
	b.AddCapability(spirv.CapabilityShader)
	b.AddCapability(capabilityRayTracing)
	b.AddExtension(extensionRayTracing)
	b.SetMemoryModel(spirv.AddressingModelLogical, spirv.MemoryModelGLSL450)

	void := b.AddTypeVoid()
	fnType := b.AddTypeFunction(void)
	for _, ep := range eps {
		fn := b.AddFunction(fnType, void, spirv.FunctionControlNone)
		b.AddLabel()
		b.AddReturn()
		b.AddFunctionEnd()
		b.AddEntryPoint(ep.Model, fn, ep.Name, nil)
	}
	return b.Build()
}

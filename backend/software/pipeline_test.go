package software

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

func mustModule(t *testing.T, d *Device, eps ...rtcore.EntryPoint) rtcore.ShaderModule {
	t.Helper()
	m, err := d.CreateShaderModule("module", rtcore.AssembleEntryPoints(eps...))
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}
	t.Cleanup(m.Destroy)
	return m
}

func general(stage uint32) vk.RayTracingShaderGroupCreateInfoKHR {
	return vk.RayTracingShaderGroupCreateInfoKHR{
		SType:              vk.StructureTypeRayTracingShaderGroupCreateInfoKhr,
		Type:               vk.RayTracingShaderGroupTypeGeneralKhr,
		GeneralShader:      stage,
		ClosestHitShader:   vk.ShaderUnusedKhr,
		AnyHitShader:       vk.ShaderUnusedKhr,
		IntersectionShader: vk.ShaderUnusedKhr,
	}
}

func trianglesHit(closest uint32) vk.RayTracingShaderGroupCreateInfoKHR {
	return vk.RayTracingShaderGroupCreateInfoKHR{
		SType:              vk.StructureTypeRayTracingShaderGroupCreateInfoKhr,
		Type:               vk.RayTracingShaderGroupTypeTrianglesHitGroupKhr,
		GeneralShader:      vk.ShaderUnusedKhr,
		ClosestHitShader:   closest,
		AnyHitShader:       vk.ShaderUnusedKhr,
		IntersectionShader: vk.ShaderUnusedKhr,
	}
}

func basicDescriptor(t *testing.T, d *Device) *rtcore.RayTracingPipelineDescriptor {
	t.Helper()
	m := mustModule(t, d,
		rtcore.EntryPoint{Name: "rgen", Model: rtcore.ExecutionModelRayGeneration},
		rtcore.EntryPoint{Name: "rmiss", Model: rtcore.ExecutionModelMiss},
		rtcore.EntryPoint{Name: "rchit", Model: rtcore.ExecutionModelClosestHit},
	)
	return &rtcore.RayTracingPipelineDescriptor{
		Name: "basic",
		Stages: []rtcore.ShaderStageInfo{
			{Stage: vk.ShaderStageRaygenBitKhr, Module: m, EntryPoint: "rgen"},
			{Stage: vk.ShaderStageMissBitKhr, Module: m, EntryPoint: "rmiss"},
			{Stage: vk.ShaderStageClosestHitBitKhr, Module: m, EntryPoint: "rchit"},
		},
		Groups: []vk.RayTracingShaderGroupCreateInfoKHR{
			general(0),
			general(1),
			trianglesHit(2),
		},
		MaxRecursionDepth: 1,
	}
}

func TestCreateShaderModule(t *testing.T) {
	d := newTestDevice(t)
	m := mustModule(t, d, rtcore.EntryPoint{Name: "main", Model: rtcore.ExecutionModelMiss})
	eps := m.EntryPoints()
	if len(eps) != 1 || eps[0].Name != "main" {
		t.Errorf("EntryPoints() = %v", eps)
	}
	if got := d.Stats().LiveShaderModules; got != 1 {
		t.Errorf("LiveShaderModules = %d, want 1", got)
	}

	if _, err := d.CreateShaderModule("bad", []byte{1, 2, 3}); !errors.Is(err, rtcore.ErrInvalidSPIRV) {
		t.Errorf("CreateShaderModule(bad) error = %v, want ErrInvalidSPIRV", err)
	}
}

func TestCreateRayTracingPipeline(t *testing.T) {
	d := newTestDevice(t)
	p, err := d.CreateRayTracingPipeline(basicDescriptor(t, d))
	if err != nil {
		t.Fatalf("CreateRayTracingPipeline() error = %v", err)
	}
	defer d.DestroyPipeline(p)

	size := d.Properties().ShaderGroupHandleSize
	blob, err := d.ShaderGroupHandles(p, 0, 3)
	if err != nil {
		t.Fatalf("ShaderGroupHandles() error = %v", err)
	}
	if uint32(len(blob)) != 3*size {
		t.Fatalf("len(blob) = %d, want %d", len(blob), 3*size)
	}
	for g := range uint32(3) {
		h := blob[g*size : (g+1)*size]
		if got := binary.LittleEndian.Uint32(h[4:]); got != g {
			t.Errorf("handle %d encodes group %d", g, got)
		}
	}
	if bytes.Equal(blob[:size], blob[size:2*size]) {
		t.Error("group handles are not unique")
	}

	tail, err := d.ShaderGroupHandles(p, 2, 1)
	if err != nil {
		t.Fatalf("ShaderGroupHandles(2, 1) error = %v", err)
	}
	if !bytes.Equal(tail, blob[2*size:]) {
		t.Error("ShaderGroupHandles(2, 1) differs from full blob")
	}
	if _, err := d.ShaderGroupHandles(p, 2, 2); !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("ShaderGroupHandles(2, 2) error = %v, want ErrDevice", err)
	}
}

func TestCreateRayTracingPipelineRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(desc *rtcore.RayTracingPipelineDescriptor)
	}{
		{"missing entry point", func(desc *rtcore.RayTracingPipelineDescriptor) {
			desc.Stages[0].EntryPoint = "nope"
		}},
		{"stage mismatch", func(desc *rtcore.RayTracingPipelineDescriptor) {
			desc.Stages[1].Stage = vk.ShaderStageCallableBitKhr
		}},
		{"general group on hit stage", func(desc *rtcore.RayTracingPipelineDescriptor) {
			desc.Groups[0] = general(2)
		}},
		{"stage index out of range", func(desc *rtcore.RayTracingPipelineDescriptor) {
			desc.Groups[2] = trianglesHit(9)
		}},
		{"recursion too deep", func(desc *rtcore.RayTracingPipelineDescriptor) {
			desc.MaxRecursionDepth = 64
		}},
		{"procedural without intersection", func(desc *rtcore.RayTracingPipelineDescriptor) {
			desc.Groups[2].Type = vk.RayTracingShaderGroupTypeProceduralHitGroupKhr
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDevice(t)
			desc := basicDescriptor(t, d)
			tt.mutate(desc)
			if _, err := d.CreateRayTracingPipeline(desc); !errors.Is(err, rtcore.ErrDevice) {
				t.Errorf("CreateRayTracingPipeline() error = %v, want ErrDevice", err)
			}
			if got := d.Stats().LivePipelines; got != 0 {
				t.Errorf("LivePipelines = %d, want 0", got)
			}
		})
	}
}

func TestPipelineFaults(t *testing.T) {
	d := newTestDevice(t)
	desc := basicDescriptor(t, d)

	d.InjectFault(FaultCreatePipeline)
	if _, err := d.CreateRayTracingPipeline(desc); !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("CreateRayTracingPipeline() error = %v, want ErrDevice", err)
	}
	d.ClearFaults()

	p, err := d.CreateRayTracingPipeline(desc)
	if err != nil {
		t.Fatalf("CreateRayTracingPipeline() error = %v", err)
	}
	d.InjectFault(FaultGroupHandles)
	if _, err := d.ShaderGroupHandles(p, 0, 3); !errors.Is(err, rtcore.ErrDevice) {
		t.Errorf("ShaderGroupHandles() error = %v, want ErrDevice", err)
	}
	d.DestroyPipeline(p)
	if got := d.Stats().LivePipelines; got != 0 {
		t.Errorf("LivePipelines = %d, want 0", got)
	}
}

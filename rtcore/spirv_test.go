package rtcore

import (
	"errors"
	"testing"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

func TestParseSPIRVRoundTrip(t *testing.T) {
	want := []EntryPoint{
		{Name: "main", Model: ExecutionModelRayGeneration},
		{Name: "miss_sky", Model: ExecutionModelMiss},
		{Name: "closest", Model: ExecutionModelClosestHit},
	}
	code := AssembleEntryPoints(want...)

	got, err := ParseSPIRV(code)
	if err != nil {
		t.Fatalf("ParseSPIRV() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ParseSPIRV() returned %d entry points, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry point %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseSPIRVRejects(t *testing.T) {
	valid := AssembleEntryPoints(EntryPoint{Name: "main", Model: ExecutionModelMiss})
	badMagic := append([]byte(nil), valid...)
	badMagic[0] ^= 0xFF

	tests := []struct {
		name string
		code []byte
	}{
		{"empty", nil},
		{"unaligned", valid[:len(valid)-1]},
		{"bad magic", badMagic},
		{"truncated", append(append([]byte(nil), valid[:20]...), 0x0F, 0x00, 0x09, 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSPIRV(tt.code)
			if !errors.Is(err, ErrInvalidSPIRV) {
				t.Errorf("ParseSPIRV() error = %v, want ErrInvalidSPIRV", err)
			}
		})
	}
}

func TestEntryPointStage(t *testing.T) {
	tests := []struct {
		model EntryPoint
		want  vk.ShaderStageFlagBits
	}{
		{EntryPoint{Model: ExecutionModelRayGeneration}, vk.ShaderStageRaygenBitKhr},
		{EntryPoint{Model: ExecutionModelMiss}, vk.ShaderStageMissBitKhr},
		{EntryPoint{Model: ExecutionModelClosestHit}, vk.ShaderStageClosestHitBitKhr},
		{EntryPoint{Model: ExecutionModelAnyHit}, vk.ShaderStageAnyHitBitKhr},
		{EntryPoint{Model: ExecutionModelIntersection}, vk.ShaderStageIntersectionBitKhr},
		{EntryPoint{Model: ExecutionModelCallable}, vk.ShaderStageCallableBitKhr},
		{EntryPoint{Model: 5}, 0},
	}
	for _, tt := range tests {
		if got := tt.model.Stage(); got != tt.want {
			t.Errorf("Stage(%d) = %d, want %d", tt.model.Model, got, tt.want)
		}
	}
}

package rtcore

import (
	"errors"
	"testing"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 64, 0},
		{1, 64, 64},
		{32, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
		{64, 32, 64},
		{100, 1, 100},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}

func TestGroupStride(t *testing.T) {
	tests := []struct {
		name    string
		props   Properties
		want    uint64
		wantErr error
	}{
		{"handle smaller than alignment", Properties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 64, MaxShaderGroupStride: 4096}, 64, nil},
		{"handle larger than alignment", Properties{ShaderGroupHandleSize: 64, ShaderGroupBaseAlignment: 32, MaxShaderGroupStride: 4096}, 64, nil},
		{"exactly max", Properties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 64, MaxShaderGroupStride: 64}, 64, nil},
		{"exceeds max", Properties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 64, MaxShaderGroupStride: 32}, 0, ErrAlignmentViolation},
		{"zero handle", Properties{ShaderGroupBaseAlignment: 64, MaxShaderGroupStride: 4096}, 0, ErrValidation},
		{"non power of two", Properties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 48, MaxShaderGroupStride: 4096}, 0, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.props.GroupStride()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GroupStride() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GroupStride() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GroupStride() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPropertiesFromVk(t *testing.T) {
	p := PropertiesFromVk(&vk.PhysicalDeviceRayTracingPipelinePropertiesKHR{
		ShaderGroupHandleSize:    32,
		MaxRayRecursionDepth:     31,
		MaxShaderGroupStride:     4096,
		ShaderGroupBaseAlignment: 64,
	})
	want := Properties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 64, MaxShaderGroupStride: 4096, MaxRayRecursionDepth: 31}
	if p != want {
		t.Errorf("PropertiesFromVk() = %+v, want %+v", p, want)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	for _, err := range []error{ErrInvalidState, ErrInvalidShaderStage, ErrInvalidSPIRV} {
		if !errors.Is(err, ErrValidation) {
			t.Errorf("errors.Is(%v, ErrValidation) = false, want true", err)
		}
	}
	if errors.Is(ErrDevice, ErrValidation) {
		t.Error("ErrDevice must not match ErrValidation")
	}
	if errors.Is(ErrInvalidState, ErrInvalidShaderStage) {
		t.Error("ErrInvalidState must not match ErrInvalidShaderStage")
	}
}

func TestInstanceRecordEncode(t *testing.T) {
	r := InstanceRecord{
		Transform:                      Identity,
		CustomIndex:                    0x123456,
		Mask:                           0xFF,
		SBTRecordOffset:                3,
		Flags:                          vk.GeometryInstanceFlagsKHR(vk.GeometryInstanceTriangleFacingCullDisableBitKhr),
		AccelerationStructureReference: 0xDEAD0000,
	}
	buf := make([]byte, InstanceRecordSize)
	r.Encode(buf)

	if got := DecodeInstanceRecord(buf); got != r {
		t.Errorf("DecodeInstanceRecord() = %+v, want %+v", got, r)
	}
	// customIndex | mask<<24, little endian
	if buf[48] != 0x56 || buf[49] != 0x34 || buf[50] != 0x12 || buf[51] != 0xFF {
		t.Errorf("custom index word = % x, want 56 34 12 ff", buf[48:52])
	}
	if buf[52] != 3 || buf[55] != 1 {
		t.Errorf("sbt offset word = % x, want 03 00 00 01", buf[52:56])
	}
}

func TestInstanceRecordTruncatesFields(t *testing.T) {
	r := InstanceRecord{CustomIndex: 0xFFFFFFFF, SBTRecordOffset: 0x01000002}
	buf := make([]byte, InstanceRecordSize)
	r.Encode(buf)
	got := DecodeInstanceRecord(buf)
	if got.CustomIndex != 0xFFFFFF {
		t.Errorf("CustomIndex = %#x, want 0xffffff", got.CustomIndex)
	}
	if got.SBTRecordOffset != 2 {
		t.Errorf("SBTRecordOffset = %d, want 2", got.SBTRecordOffset)
	}
}

func TestBufferUsageString(t *testing.T) {
	tests := []struct {
		u    BufferUsage
		want string
	}{
		{0, "None"},
		{BufferUsageTransferSrc, "TransferSrc"},
		{BufferUsageShaderBindingTable | BufferUsageShaderDeviceAddress, "ShaderBindingTable|ShaderDeviceAddress"},
	}
	for _, tt := range tests {
		if got := tt.u.String(); got != tt.want {
			t.Errorf("BufferUsage(%d).String() = %q, want %q", uint32(tt.u), got, tt.want)
		}
	}
	if BufferUsageShaderBindingTable.Vk() != vk.BufferUsageFlags(1024) {
		t.Errorf("ShaderBindingTable.Vk() = %d, want 1024", BufferUsageShaderBindingTable.Vk())
	}
}

func TestQueueKindValid(t *testing.T) {
	for _, k := range QueueKinds {
		if !k.Valid() {
			t.Errorf("%v.Valid() = false", k)
		}
	}
	if QueueKind(7).Valid() {
		t.Error("QueueKind(7).Valid() = true")
	}
	if QueueKind(7).String() != "Unknown" {
		t.Errorf("QueueKind(7).String() = %q", QueueKind(7).String())
	}
}

package software

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raytrace/rtcore"
)

// ShaderModule is a parsed SPIR-V module registered with the HAL.
type ShaderModule struct {
	dev       *Device
	name      string
	eps       []rtcore.EntryPoint
	raw       hal.ShaderModule
	destroyed atomic.Bool
}

var _ rtcore.ShaderModule = (*ShaderModule)(nil)

// Name returns the debug name.
func (m *ShaderModule) Name() string { return m.name }

// EntryPoints returns the declared entry points.
func (m *ShaderModule) EntryPoints() []rtcore.EntryPoint { return slices.Clone(m.eps) }

// Destroy releases the module. Calling Destroy more than once has no effect.
func (m *ShaderModule) Destroy() {
	if m.destroyed.Swap(true) {
		return
	}
	m.dev.hal.DestroyShaderModule(m.raw)
	m.dev.liveShaderMods.Add(-1)
}

// entryPoint returns the entry point called name, if declared.
func (m *ShaderModule) entryPoint(name string) (rtcore.EntryPoint, bool) {
	for _, ep := range m.eps {
		if ep.Name == name {
			return ep, true
		}
	}
	return rtcore.EntryPoint{}, false
}

// CreateShaderModule validates SPIR-V bytecode and creates a module.
func (d *Device) CreateShaderModule(name string, code []byte) (rtcore.ShaderModule, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	eps, err := rtcore.ParseSPIRV(code)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	raw, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create shader module %q: %w", rtcore.ErrDevice, name, err)
	}
	d.liveShaderMods.Add(1)
	slogger().Debug("software: shader module created", "name", name, "entryPoints", len(eps))
	return &ShaderModule{dev: d, name: name, eps: eps, raw: raw}, nil
}

package raytrace

import (
	"context"
	"fmt"

	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/backend"
	"github.com/gogpu/raytrace/raytracing"
	"github.com/gogpu/raytrace/rtcore"
)

// Context carries a device and the defaults applied to everything built
// through it. It is safe for concurrent use when its device is.
type Context struct {
	dev   rtcore.Device
	owned bool
	opts  contextOptions
}

// NewContext returns a Context over dev. The caller keeps ownership of dev;
// Close does not close it.
func NewContext(dev rtcore.Device, opts ...ContextOption) *Context {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Context{dev: dev, opts: o}
}

// Open opens a device from the backend registry and returns a Context that
// owns it. Without WithBackend the registry's default order is used.
func Open(opts ...ContextOption) (*Context, error) {
	c := NewContext(nil, opts...)

	var err error
	if c.opts.backend != "" {
		c.dev, err = backend.Get(c.opts.backend)
	} else {
		c.dev, err = backend.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("raytrace: open device: %w", err)
	}
	c.owned = true

	info := c.dev.AdapterInfo()
	Logger().Info("raytrace: device opened", "adapter", info.Name, "type", info.Type)
	return c, nil
}

// Device returns the underlying device.
func (c *Context) Device() rtcore.Device { return c.dev }

// Close closes the device if the Context opened it.
func (c *Context) Close() {
	if c.owned {
		c.dev.Close()
	}
}

// BuildBottomLevel builds geometries into one bottom-level structure.
func (c *Context) BuildBottomLevel(name string, geometries ...accel.Geometry) (*accel.AccelerationStructure, error) {
	return accel.BuildBottomLevel(c.dev, c.opts.buildConfig(nameOr(name, accel.DefaultName)), geometries...)
}

// BuildBottomLevelBatch builds one bottom-level structure per mesh, with
// at most workers builds in flight.
func (c *Context) BuildBottomLevelBatch(ctx context.Context, name string, workers int, meshes [][]accel.Geometry) ([]*accel.AccelerationStructure, error) {
	cfg := c.opts.buildConfig(nameOr(name, accel.DefaultName))
	return accel.BuildBottomLevelBatch(ctx, c.dev, cfg, workers, meshes)
}

// BuildTopLevel packs instances inline and builds them into one top-level
// structure. The packed array is released once the build has finished;
// the result keeps every instanced bottom-level structure alive.
func (c *Context) BuildTopLevel(name string, instances ...*accel.Instance) (*accel.AccelerationStructure, error) {
	cfg := c.opts.buildConfig(nameOr(name, accel.DefaultName))
	arr, err := accel.NewInlineInstances(c.dev, instances...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	defer arr.Release()
	return accel.BuildTopLevel(c.dev, cfg, arr)
}

// BuildTopLevelArray builds an already packed instance array. The caller
// keeps ownership of instances.
func (c *Context) BuildTopLevelArray(name string, instances *accel.InstanceArray) (*accel.AccelerationStructure, error) {
	return accel.BuildTopLevel(c.dev, c.opts.buildConfig(nameOr(name, accel.DefaultName)), instances)
}

// NewShaderModule creates a shader module from SPIR-V bytecode.
func (c *Context) NewShaderModule(name string, code []byte) (rtcore.ShaderModule, error) {
	return c.dev.CreateShaderModule(c.opts.objectName(nameOr(name, "shader module")), code)
}

// NewPipeline creates a ray tracing pipeline and fetches its group handles.
func (c *Context) NewPipeline(desc raytracing.PipelineDescriptor) (*raytracing.Pipeline, error) {
	desc.Name = c.opts.objectName(nameOr(desc.Name, raytracing.DefaultPipelineName))
	return raytracing.NewPipeline(c.dev, desc)
}

// NewShaderBindingTable packs p's handles into a shader binding table.
// See raytracing.NewShaderBindingTable for hitOrder.
func (c *Context) NewShaderBindingTable(p *raytracing.Pipeline, hitOrder ...uint32) (*raytracing.ShaderBindingTable, error) {
	return raytracing.NewShaderBindingTable(c.dev, p, hitOrder...)
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

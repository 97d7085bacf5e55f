package software

import (
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raytrace/rtcore"
)

// Default ray tracing properties, matching common desktop drivers.
const (
	DefaultHandleSize        = 32
	DefaultBaseAlignment     = 64
	DefaultMaxGroupStride    = 4096
	DefaultMaxRecursionDepth = 31
	DefaultFenceTimeout      = 5 * time.Second

	// minHandleSize leaves room for the pipeline and group identifiers
	// encoded at the start of every handle.
	minHandleSize = 8
)

// Config configures a software device.
type Config struct {
	// Name is reported through AdapterInfo. Default: "Software Ray Tracer".
	Name string

	// HandleSize is the shader group handle size in bytes.
	HandleSize uint32

	// BaseAlignment is the shader group base alignment. Must be a power of two.
	BaseAlignment uint32

	// MaxGroupStride is the maximum SBT stride.
	MaxGroupStride uint32

	// MaxRecursionDepth is the maximum ray recursion depth.
	MaxRecursionDepth uint32

	// FenceTimeout bounds every fence wait. Exceeding it is a device error.
	FenceTimeout time.Duration

	// HAL, when set, is used instead of opening the noop adapter.
	// The device takes ownership and destroys it on Close.
	HAL *hal.OpenDevice

	// Limits are passed to the adapter when opening the noop device.
	// Default: gputypes.DefaultLimits().
	Limits *gputypes.Limits
}

// withDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "Software Ray Tracer"
	}
	if c.HandleSize == 0 {
		c.HandleSize = DefaultHandleSize
	}
	if c.BaseAlignment == 0 {
		c.BaseAlignment = DefaultBaseAlignment
	}
	if c.MaxGroupStride == 0 {
		c.MaxGroupStride = DefaultMaxGroupStride
	}
	if c.MaxRecursionDepth == 0 {
		c.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
	if c.FenceTimeout == 0 {
		c.FenceTimeout = DefaultFenceTimeout
	}
	if c.Limits == nil {
		l := gputypes.DefaultLimits()
		c.Limits = &l
	}
	return c
}

// properties returns the ray tracing properties described by c.
func (c Config) properties() rtcore.Properties {
	return rtcore.Properties{
		ShaderGroupHandleSize:    c.HandleSize,
		ShaderGroupBaseAlignment: c.BaseAlignment,
		MaxShaderGroupStride:     c.MaxGroupStride,
		MaxRayRecursionDepth:     c.MaxRecursionDepth,
	}
}

package raytrace

import (
	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/rtcore"
)

// DefaultName is the debug name prefix used when WithName is not given.
const DefaultName = "raytrace"

// ContextOption configures a Context during creation.
// Use functional options to customize Context behavior.
//
// Example:
//
//	// Defaults: builds on the compute queue, no idle wait
//	rc := raytrace.NewContext(dev)
//
//	// Wait for device idle after every build while debugging
//	rc := raytrace.NewContext(dev, raytrace.WithDebugIdle(true))
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	name      string
	debugIdle bool
	queue     rtcore.QueueKind
	backend   string
}

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		name:  DefaultName,
		queue: rtcore.QueueCompute,
	}
}

// WithDebugIdle makes every build wait for full device idle after its
// submission. Builds are already ordered without it.
func WithDebugIdle(enabled bool) ContextOption {
	return func(o *contextOptions) {
		o.debugIdle = enabled
	}
}

// WithName sets the prefix of the debug names given to structures,
// pipelines and buffers created through the Context.
//
// Example:
//
//	rc := raytrace.NewContext(dev, raytrace.WithName("level1"))
//	blas, _ := rc.BuildBottomLevel("floor", tri) // "level1 floor"
func WithName(name string) ContextOption {
	return func(o *contextOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithQueue selects the queue family that records and runs builds.
// Invalid kinds are ignored.
func WithQueue(kind rtcore.QueueKind) ContextOption {
	return func(o *contextOptions) {
		if kind.Valid() {
			o.queue = kind
		}
	}
}

// WithBackend makes Open use the named backend instead of the default
// priority order. It has no effect on NewContext.
func WithBackend(name string) ContextOption {
	return func(o *contextOptions) {
		o.backend = name
	}
}

// buildConfig returns the accel configuration for one named build.
func (o *contextOptions) buildConfig(name string) accel.Config {
	return accel.Config{
		Name:     o.objectName(name),
		WaitIdle: o.debugIdle,
		Queue:    o.queue,
	}
}

// objectName prefixes name with the context name.
func (o *contextOptions) objectName(name string) string {
	if name == "" {
		return o.name
	}
	return o.name + " " + name
}

// Package backend provides a pluggable device registry.
//
// The ray tracing packages of raytrace are written against [rtcore.Device].
// This package lets programs pick a device implementation at runtime
// without importing it directly.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The software device registers itself on import:
//
//	import _ "github.com/gogpu/raytrace/backend/software"
//
// # Backend Selection
//
// Use Default() to open a device from the best available backend, or Get()
// to request a specific backend by name:
//
//	// Open the default (best available) device
//	dev, err := backend.Default()
//
//	// Or request a specific backend
//	dev, err := backend.Get(backend.Software)
//
// Every call opens a new device. The caller closes it:
//
//	dev, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
// - "software": CPU device on the gogpu/wgpu noop HAL (always available)
// - "vulkan": hardware ray tracing (reserved, registered by an external package)
package backend

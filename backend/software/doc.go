// Package software implements rtcore.Device in process on top of a
// github.com/gogpu/wgpu/hal device.
//
// Buffers are HAL buffers with virtual device addresses. Command buffers
// record ray tracing work, and the recorded commands are executed on the
// host when a queue submits them. Each submission is paired with a HAL
// submission and a fence wait, so the blocking contract of rtcore.Queue
// holds exactly as it would on a driver.
//
// Acceleration structure builds write a small header (kind, primitive
// count, bounds) into the result buffer. Top-level builds dereference every
// instance's bottom-level address and read that header back through device
// memory, so a top-level build that races an unfinished bottom-level build
// fails instead of silently succeeding.
//
// The package registers itself as the "software" backend:
//
//	import _ "github.com/gogpu/raytrace/backend/software"
//
//	dev, err := backend.Get(backend.Software)
//
// Without a HAL device in [Config], [New] opens the noop HAL adapter.
package software

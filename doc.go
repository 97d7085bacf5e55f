// Package raytrace drives a GPU ray tracing pipeline from the host.
//
// # Overview
//
// raytrace builds acceleration structures (bottom-level meshes and
// top-level instance collections) and lays out the shader binding table a
// trace dispatch needs to find its raygen, miss and hit group shaders.
// Everything is expressed in the VK_KHR_ray_tracing_pipeline vocabulary of
// github.com/gogpu/wgpu/hal/vulkan/vk.
//
// # Quick Start
//
//	import "github.com/gogpu/raytrace"
//
//	rc, err := raytrace.Open()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rc.Close()
//
//	tri, _ := accel.NewTriangles(indices, vertices)
//	blas, err := rc.BuildBottomLevel("mesh", tri)
//	...
//	tlas, err := rc.BuildTopLevel("scene", accel.NewInstance(blas, rtcore.Identity))
//
// # Architecture
//
// The library is organized into:
//   - accel: geometries, instances, bottom and top level builds
//   - raytracing: shader stages, group tables, pipelines, shader binding tables
//   - rtcore: the device contract and KHR records shared by both
//   - backend: the device registry; backend/software is the CPU device
//
// Context is a thin facade that carries a device and build defaults.
// The sub-packages can be used directly with any rtcore.Device.
//
// # Ordering
//
// Every build blocks until the device has finished it, so a top-level
// build issued after a bottom-level build always sees the finished
// bottom-level result.
package raytrace

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)

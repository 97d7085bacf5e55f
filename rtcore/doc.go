// Package rtcore defines the device contract shared by the ray tracing
// packages of raytrace.
//
// The [Device] interface abstracts over the driver collaborators a ray
// tracing host needs: buffer creation with device addresses, command buffer
// recording, blocking queue submission, acceleration structure sizing and
// creation, ray tracing pipeline creation and shader group handle retrieval.
// The KHR vocabulary (device addresses, strided regions, build ranges, group
// create infos) is taken directly from github.com/gogpu/wgpu/hal/vulkan/vk so
// that records produced here can be handed to a Vulkan driver unchanged.
//
// # Architecture
//
//	          +------------------------------+
//	          |    raytrace (Context, Mesh)  |
//	          +--------------+---------------+
//	                         |
//	          +--------------v---------------+
//	          |   accel        raytracing    |
//	          | (BLAS/TLAS)  (groups, SBT)   |
//	          +--------------+---------------+
//	                         |
//	                  +------v------+
//	                  |   rtcore    |       backend
//	                  |  (Device)   | <---- (registry)
//	                  +------+------+
//	                         |
//	          +--------------v---------------+
//	          |       backend/software       |
//	          |  (hal.Device + hal.Queue)    |
//	          +------------------------------+
//
// # Errors
//
// Failures are reported through the sentinels in errors.go. Callers match
// them with errors.Is; [ErrInvalidState] and [ErrInvalidShaderStage] also
// match [ErrValidation].
package rtcore

// Package raytracing creates ray tracing pipelines and lays out their
// shader binding tables.
//
// A [Pipeline] is created from one raygen stage, any number of miss stages
// and any number of hit groups. The stage list and the shader group list
// are derived deterministically (see [NewGroupTable]) and the driver's
// opaque group handles are fetched once, right after creation, in group
// order.
//
// A [ShaderBindingTable] copies those handles into one device buffer with
// four regions:
//
//	offset 0                      raygen    1 slot
//	align(end of raygen)          miss      one slot per miss stage
//	align(end of miss)            hit       one slot per requested hit group
//	                              callable  always empty
//
// Every slot is stride bytes, where stride is the handle size rounded up to
// the device's shader group base alignment. Bytes past the handle are zero.
package raytracing

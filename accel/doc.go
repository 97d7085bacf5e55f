// Package accel builds ray tracing acceleration structures.
//
// Geometry is described host-side by [Triangles], [AABBs] and
// [InstanceArray]. Each descriptor converts itself into a driver geometry
// record and a build range without touching the device. The builders then
// run one blocking protocol for both levels:
//
//  1. query the result and scratch sizes,
//  2. allocate the result buffer and create the native structure,
//  3. allocate the scratch buffer,
//  4. record one build on the configured queue's pool,
//  5. submit and wait on the fence,
//  6. resolve the device address and set the debug name.
//
// Because step 5 blocks, a bottom-level structure returned by
// [BuildBottomLevel] is complete on the device, and a top-level build that
// references it through an [Instance] can never race it.
//
// Basic usage:
//
//	tri, err := accel.NewTriangles(indices, vertices)
//	blas, err := accel.BuildBottomLevel(dev, accel.Config{Name: "mesh"}, tri)
//	defer blas.Release()
//
//	inst := accel.NewInstance(blas, rtcore.Identity)
//	if err := inst.Finalize(dev); err != nil { ... }
//	instances, err := accel.NewInlineInstances(dev, inst)
//	tlas, err := accel.BuildTopLevel(dev, accel.Config{Name: "scene"}, instances)
package accel

package accel

import "github.com/gogpu/raytrace/rtcore"

// TopLevelBuilder builds an instance array into a top-level structure.
type TopLevelBuilder struct {
	dev       rtcore.Device
	cfg       Config
	instances *InstanceArray
}

// NewTopLevelBuilder returns a builder for instances.
func NewTopLevelBuilder(dev rtcore.Device, cfg Config, instances *InstanceArray) *TopLevelBuilder {
	return &TopLevelBuilder{dev: dev, cfg: cfg, instances: instances}
}

// Build builds the structure and blocks until the device has finished.
// The result holds a reference on every instanced bottom-level structure.
func (b *TopLevelBuilder) Build() (*AccelerationStructure, error) {
	var geometries []Geometry
	if b.instances != nil {
		geometries = []Geometry{b.instances}
	}
	return build(b.dev, b.cfg, TopLevel, geometries)
}

// BuildTopLevel builds instances into one top-level structure.
func BuildTopLevel(dev rtcore.Device, cfg Config, instances *InstanceArray) (*AccelerationStructure, error) {
	return NewTopLevelBuilder(dev, cfg, instances).Build()
}

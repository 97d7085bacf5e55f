package accel

import "github.com/gogpu/raytrace/rtcore"

// BottomLevelBuilder collects geometries for one bottom-level build.
type BottomLevelBuilder struct {
	dev        rtcore.Device
	cfg        Config
	geometries []Geometry
}

// NewBottomLevelBuilder returns an empty builder.
func NewBottomLevelBuilder(dev rtcore.Device, cfg Config) *BottomLevelBuilder {
	return &BottomLevelBuilder{dev: dev, cfg: cfg}
}

// Add appends geometries to the build.
func (b *BottomLevelBuilder) Add(geometries ...Geometry) *BottomLevelBuilder {
	b.geometries = append(b.geometries, geometries...)
	return b
}

// Build builds every added geometry into one structure and blocks until
// the device has finished.
func (b *BottomLevelBuilder) Build() (*AccelerationStructure, error) {
	return build(b.dev, b.cfg, BottomLevel, b.geometries)
}

// BuildBottomLevel builds geometries into one bottom-level structure.
func BuildBottomLevel(dev rtcore.Device, cfg Config, geometries ...Geometry) (*AccelerationStructure, error) {
	return NewBottomLevelBuilder(dev, cfg).Add(geometries...).Build()
}

package backend

import (
	"errors"

	"github.com/gogpu/raytrace/rtcore"
)

// Backend name constants.
const (
	// Software is the name of the CPU device built on the noop HAL.
	Software = "software"
	// Vulkan is the name reserved for a hardware device driving
	// VK_KHR_ray_tracing_pipeline through gogpu/wgpu's Vulkan HAL.
	Vulkan = "vulkan"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered
	// or no registered backend could open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory opens a new device. The caller owns the device and must Close it.
type Factory func() (rtcore.Device, error)

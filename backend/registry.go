package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/raytrace/rtcore"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Hardware before the software fallback.
	backendPriority = []string{Vulkan, Software}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get opens a device from the named backend.
// Returns ErrBackendNotAvailable if the backend is not registered.
func Get(name string) (rtcore.Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return factory()
}

// Default opens a device from the best available backend based on priority.
// Priority order: vulkan > software, then any other registered backend by name.
// A backend whose factory fails is skipped.
func Default() (rtcore.Device, error) {
	names := Available()
	order := make([]string, 0, len(names))
	for _, name := range backendPriority {
		if slices.Contains(names, name) {
			order = append(order, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	var errs []error
	for _, name := range order {
		dev, err := Get(name)
		if err == nil && dev != nil {
			return dev, nil
		}
		if err != nil {
			slogger().Warn("backend: device unavailable", "backend", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %v", ErrBackendNotAvailable, errs)
}

// MustDefault returns the default device or panics.
func MustDefault() rtcore.Device {
	dev, err := Default()
	if err != nil {
		panic(err)
	}
	return dev
}

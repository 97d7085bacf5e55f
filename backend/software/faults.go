package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raytrace/rtcore"
)

// Fault names a device step that can be made to fail.
type Fault string

// Injectable faults.
const (
	FaultBuildSizes                  Fault = "build-sizes"
	FaultCreateBuffer                Fault = "create-buffer"
	FaultCreateAccelerationStructure Fault = "create-acceleration-structure"
	FaultSubmit                      Fault = "submit"
	FaultCreatePipeline              Fault = "create-pipeline"
	FaultGroupHandles                Fault = "group-handles"
)

// faultSet holds the armed faults.
type faultSet struct {
	mu    sync.Mutex
	armed map[Fault]bool
}

func (f *faultSet) arm(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed == nil {
		f.armed = make(map[Fault]bool)
	}
	f.armed[fault] = true
}

func (f *faultSet) clear() {
	f.mu.Lock()
	f.armed = nil
	f.mu.Unlock()
}

// check returns a device error when fault is armed.
func (f *faultSet) check(fault Fault) error {
	f.mu.Lock()
	armed := f.armed[fault]
	f.mu.Unlock()
	if armed {
		return fmt.Errorf("%w: injected %s failure: %w", rtcore.ErrDevice, fault, hal.ErrDeviceLost)
	}
	return nil
}

// InjectFault makes every later call of the named step fail with a device
// error until ClearFaults is called.
func (d *Device) InjectFault(f Fault) { d.faults.arm(f) }

// ClearFaults disarms all injected faults.
func (d *Device) ClearFaults() { d.faults.clear() }

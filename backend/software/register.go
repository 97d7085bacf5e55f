package software

import (
	"github.com/gogpu/raytrace/backend"
	"github.com/gogpu/raytrace/rtcore"
)

// init registers the software device on package import.
func init() {
	backend.Register(backend.Software, func() (rtcore.Device, error) {
		d, err := New(Config{})
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

package rtcore

import "errors"

// Error taxonomy.
var (
	// ErrValidation is returned for malformed input detected before any
	// device call: bad geometry counts, wrong stage kinds, bad indices.
	ErrValidation = errors.New("rtcore: validation failed")

	// ErrInvalidState is returned when an object is used before it reached
	// the required lifecycle state, e.g. an instance that was not finalized.
	ErrInvalidState error = &validationError{msg: "rtcore: invalid state"}

	// ErrInvalidShaderStage is returned when a shader stage has the wrong
	// kind for the slot it is placed in.
	ErrInvalidShaderStage error = &validationError{msg: "rtcore: invalid shader stage"}

	// ErrDevice is returned when the driver fails a size query, an object
	// creation, an allocation or a submission.
	ErrDevice = errors.New("rtcore: device error")

	// ErrAlignmentViolation is returned when an aligned shader group stride
	// exceeds the device maximum.
	ErrAlignmentViolation = errors.New("rtcore: alignment violation")

	// ErrInvalidSPIRV is returned when shader bytecode is not a SPIR-V module.
	ErrInvalidSPIRV error = &validationError{msg: "rtcore: invalid SPIR-V"}
)

// validationError is a sentinel that also matches ErrValidation.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// Is reports whether target is ErrValidation.
func (e *validationError) Is(target error) bool { return target == ErrValidation }

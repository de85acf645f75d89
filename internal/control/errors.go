package control

import "errors"

var (
	// ErrInvalidLimits indicates an output range that cannot be honoured.
	ErrInvalidLimits = errors.New("control: invalid output limits")

	// ErrUnknownParam indicates a live-tuning name the controller does not have.
	ErrUnknownParam = errors.New("control: unknown param")
)

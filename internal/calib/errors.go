package calib

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt means a calibration file exists but could not be decoded.
	ErrCorrupt = errors.New("calib: corrupt calibration file")

	ErrInvalidConfig = errors.New("calib: invalid config")
)

type Phase string

const (
	PhaseEncoder Phase = "encoder"
	PhaseIMU     Phase = "imu"
	PhaseSave    Phase = "save"
)

// Error reports which step of a calibration run failed.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("calib: %s phase: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

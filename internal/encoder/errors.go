package encoder

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectionReversed means a wheel turned backwards while its duty
	// cycle was being measured.
	ErrDirectionReversed = errors.New("encoder: direction reversed during calibration")

	// ErrNoEdges means a wheel produced no complete half-cycle while armed.
	ErrNoEdges = errors.New("encoder: no edges during calibration")
)

// ChannelError identifies which channel failed calibration.
type ChannelError struct {
	Index int
	Err   error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %d: %v", e.Index, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

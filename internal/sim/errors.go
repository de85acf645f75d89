package sim

import "errors"

var (
	ErrInvalidConfig = errors.New("sim: invalid config")
	ErrDiverged      = errors.New("sim: plant state diverged")
)

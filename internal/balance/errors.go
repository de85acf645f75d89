package balance

import "errors"

var (
	// ErrRecoveryTimeout means the robot did not get back upright within the
	// kick window and the motors were disabled.
	ErrRecoveryTimeout = errors.New("balance: recovery timed out")

	// ErrInvalidConfig indicates physical constants or gains that cannot run.
	ErrInvalidConfig = errors.New("balance: invalid config")

	// ErrUnknownLoop indicates a live-tuning name with no matching loop.
	ErrUnknownLoop = errors.New("balance: unknown loop")
)

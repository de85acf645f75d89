// Package control provides the PID controller every loop of the robot is
// built from: the wheel-speed servos and the four balance loops.
//
// A [PID] is time aware: each compute call carries a microsecond timestamp
// and the controller derives dt from the previous call. The first call
// after [PID.Reset] is a bootstrap call that returns only the proportional
// term, so resuming a loop never kicks the integral or derivative.
//
// # Usage
//
//	pid := control.New(control.Config{
//	    Kp: 0.5, Ki: 5, OutputMin: -8.2, OutputMax: 8.2,
//	})
//	volts := pid.Compute1(measuredSpeed, nowUs)
//
// Controllers support live tuning through Params and SetParam, and can be
// cascaded by feeding one loop's output to the next with ChangeSetpoint.
package control

// Package viz is the terminal live view of a simulated robot.
//
// [Model] is a Bubble Tea program that steps a [sim.Rig] in robot time,
// draws the robot on a Braille [Canvas] and plots the tilt history. Loop
// gains can be retuned while it runs.
//
// # Key Bindings
//
//	Space     - Pause/Resume
//	R         - Stand the robot up again
//	Tab       - Select next tunable
//	Up/Down   - Scale the selected tunable by ±5%
//	P / O     - Push the body forwards / backwards
//	W/S A/D   - Drive speed / turn, X stops
//	E         - Toggle the motors
//	+ / -     - Simulation speed
//	T         - Cycle colour themes
//	?         - Help
package viz

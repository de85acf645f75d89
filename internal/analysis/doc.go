// Package analysis characterizes recorded balance traces.
//
//   - [DominantFrequency]: strongest oscillation in a signal
//   - [SettlingTime]: when a signal enters and stays inside a band
//   - [NewPhasePortrait]: tilt against tilt rate, rendered as text
//
// A robot that balances but rocks shows a sharp spectral peak near the
// outer loop's bandwidth:
//
//	f := analysis.DominantFrequency(tilts, 200)
package analysis

// Package metrics scores a balancing run from its control-tick trace.
package metrics

import "github.com/san-kum/balancer/internal/balance"

// Sample is one control tick as seen by a metric.
type Sample struct {
	Time        float64 // s
	Tilt        float64 // deg
	Left, Right float64 // wheel speed setpoints, rad/s
	Stage       balance.Stage
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Standard returns the metrics every run reports.
func Standard(stableBand float64) []Metric {
	return []Metric{
		NewControlEffort(),
		NewStability(stableBand),
		NewPeakTilt(),
		NewFalls(),
		NewRecoveries(),
	}
}

// Collect reads every metric into a map keyed by name.
func Collect(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

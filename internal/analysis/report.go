package analysis

import "github.com/san-kum/balancer/internal/sim"

// Report summarizes the tilt behaviour of one run.
type Report struct {
	Samples       int
	Rate          float64 // Hz
	RMSTilt       float64 // deg
	DominantHz    float64
	Settling      float64 // s, -1 if never settled
	ZeroCrossings int
}

// Analyze builds a report from a control-rate trace. band is the settling
// band in degrees.
func Analyze(trace []sim.Sample, band float64) Report {
	r := Report{Samples: len(trace), Settling: -1}
	if len(trace) == 0 {
		return r
	}

	times := make([]float64, len(trace))
	tilts := make([]float64, len(trace))
	for i, s := range trace {
		times[i] = s.Time
		tilts[i] = s.TrueTilt
	}

	if len(trace) > 1 {
		if span := times[len(times)-1] - times[0]; span > 0 {
			r.Rate = float64(len(trace)-1) / span
		}
	}

	r.RMSTilt = RMS(tilts)
	r.Settling = SettlingTime(times, tilts, band)
	r.ZeroCrossings = ZeroCrossings(tilts)
	if r.Rate > 0 {
		r.DominantHz = DominantFrequency(tilts, r.Rate)
	}
	return r
}

// Portrait pairs true tilt with tilt rate.
func Portrait(trace []sim.Sample) *PhasePortrait {
	xs := make([]float64, len(trace))
	ys := make([]float64, len(trace))
	for i, s := range trace {
		xs[i] = s.TrueTilt
		ys[i] = s.TiltRate
	}
	return NewPhasePortrait(xs, ys)
}

package metrics

import (
	"math"

	"github.com/san-kum/balancer/internal/balance"
)

// PeakTilt is the largest absolute tilt seen, in degrees.
type PeakTilt struct {
	peak float64
}

func NewPeakTilt() *PeakTilt { return &PeakTilt{} }

func (p *PeakTilt) Name() string { return "peak_tilt" }

func (p *PeakTilt) Observe(s Sample) {
	p.peak = math.Max(p.peak, math.Abs(s.Tilt))
}

func (p *PeakTilt) Value() float64 { return p.peak }
func (p *PeakTilt) Reset()         { p.peak = 0 }

// Falls counts transitions from balancing into recovery.
type Falls struct {
	prev  balance.Stage
	count int
}

func NewFalls() *Falls { return &Falls{} }

func (f *Falls) Name() string { return "falls" }

func (f *Falls) Observe(s Sample) {
	if f.prev == balance.StageIdle && s.Stage == balance.StageBraking {
		f.count++
	}
	f.prev = s.Stage
}

func (f *Falls) Value() float64 { return float64(f.count) }

func (f *Falls) Reset() {
	f.prev = balance.StageIdle
	f.count = 0
}

// Recoveries counts kicks that got the robot back upright.
type Recoveries struct {
	prev  balance.Stage
	count int
}

func NewRecoveries() *Recoveries { return &Recoveries{} }

func (r *Recoveries) Name() string { return "recoveries" }

func (r *Recoveries) Observe(s Sample) {
	if r.prev == balance.StageKicking && s.Stage == balance.StageIdle {
		r.count++
	}
	r.prev = s.Stage
}

func (r *Recoveries) Value() float64 { return float64(r.count) }

func (r *Recoveries) Reset() {
	r.prev = balance.StageIdle
	r.count = 0
}

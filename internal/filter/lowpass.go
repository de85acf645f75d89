// Package filter provides a first-order low-pass filter driven by
// microsecond timestamps.
package filter

import "math"

// unset marks a filter that has never produced an output.
const unset = math.MaxUint64

// LowPass discretises 1/(Tf*s + 1) with explicit Euler. Callers must keep
// dt/Tf well below 1 at their sample rate; this is not checked.
type LowPass struct {
	Tf         float64
	lastOutput float64
	lastTime   uint64
}

func New(tf float64) *LowPass {
	l := &LowPass{}
	l.Init(tf)
	return l
}

// Init sets the time constant in seconds and forgets any history.
func (l *LowPass) Init(tf float64) {
	l.Tf = tf
	l.lastTime = unset
}

func (l *LowPass) Reset() {
	l.lastTime = unset
	l.lastOutput = 0
}

// Update feeds one sample taken at nowUs. The first sample passes through
// unchanged so a derivative downstream does not see a step from zero.
func (l *LowPass) Update(input float64, nowUs uint64) float64 {
	var output float64
	if l.lastTime == unset {
		output = input
	} else {
		dt := float64(nowUs-l.lastTime) * 1e-6
		output = l.lastOutput + (input-l.lastOutput)/l.Tf*dt
	}

	l.lastTime = nowUs
	l.lastOutput = output
	return output
}

func (l *LowPass) Output() float64 { return l.lastOutput }

func (l *LowPass) Initialized() bool { return l.lastTime != unset }

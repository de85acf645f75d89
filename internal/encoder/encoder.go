// Package encoder decodes a single-interrupt quadrature encoder (edges on
// channel A only, B sampled as the direction bit) and estimates wheel speed
// from the timing of the last two edges.
//
// Because only A interrupts, one signal period yields two counts whose
// lengths depend on the duty cycle of A. Each half-period is weighted by a
// step height m (2·duty for the A-high half, 2−2·duty for the A-low half)
// so that uneven halves still give a smooth speed. The duty is measured
// once by the calibration session and persisted.
package encoder

import (
	"math"
	"sync"
)

// CountAngle is the wheel rotation per encoder count in radians: 22 counts
// per motor revolution through a 30613:1500 gearbox.
const CountAngle = 2 * math.Pi / (22.0 * 30613.0 / 1500.0)

// CriticalSection guards the multi-field snapshot shared between the edge
// handler and readers. Host builds use a mutex; firmware builds mask the
// encoder interrupt.
type CriticalSection interface {
	Lock()
	Unlock()
}

type Phase int8

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseArmed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseArmed:
		return "armed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type calibration struct {
	phase    Phase
	sum1     uint64 // A-high halves, µs
	sum2     uint64 // A-low halves, µs
	n1, n2   uint32
	lastEdge uint64
}

// Channel is the state of one wheel encoder.
type Channel struct {
	cs       CriticalSection
	reversed bool

	pos    int64
	d0, d1 int8
	t0, t1 uint64
	m      [2]float64

	cal calibration
}

// NewChannel returns a channel with step heights derived from duty. A
// reversed channel reports negated position and speed, for the wheel
// mounted on the opposite side.
func NewChannel(duty float64, reversed bool) *Channel {
	c := &Channel{cs: &sync.Mutex{}, reversed: reversed}
	c.SetDuty(duty)
	return c
}

// SetCriticalSection replaces the default mutex. Must be called before the
// first edge.
func (c *Channel) SetCriticalSection(cs CriticalSection) {
	c.cs = cs
}

func (c *Channel) SetDuty(duty float64) {
	c.cs.Lock()
	c.m[0] = 2 * duty
	c.m[1] = 2 - 2*duty
	c.cs.Unlock()
}

// Duty returns the duty cycle the step heights were derived from.
func (c *Channel) Duty() float64 {
	c.cs.Lock()
	defer c.cs.Unlock()
	return c.m[0] / 2
}

// Edge handles one transition of channel A. a is the level of A after the
// transition, b the level of B sampled at the same instant.
func (c *Channel) Edge(a, b bool, nowUs uint64) {
	c.cs.Lock()
	defer c.cs.Unlock()

	c.t1 = c.t0
	c.t0 = nowUs
	c.d1 = c.d0

	switch {
	case a && b:
		c.d0 = 2
		c.pos++
		switch c.cal.phase {
		case PhasePreparing:
			c.cal = calibration{phase: PhaseArmed, lastEdge: nowUs}
		case PhaseArmed:
			c.cal.sum2 += nowUs - c.cal.lastEdge
			c.cal.n2++
			c.cal.lastEdge = nowUs
		}
	case a && !b:
		c.d0 = -2
		c.pos--
		c.failIfCalibrating()
	case !a && !b:
		c.d0 = 1
		c.pos++
		if c.cal.phase == PhaseArmed {
			c.cal.sum1 += nowUs - c.cal.lastEdge
			c.cal.n1++
			c.cal.lastEdge = nowUs
		}
	default:
		c.d0 = -1
		c.pos--
		c.failIfCalibrating()
	}
}

func (c *Channel) failIfCalibrating() {
	if c.cal.phase == PhasePreparing || c.cal.phase == PhaseArmed {
		c.cal.phase = PhaseFailed
	}
}

// Speed returns the wheel angular velocity in rad/s at nowUs. It reports
// zero until two edges in the same direction have been seen, and zero on
// the edge that reverses direction.
func (c *Channel) Speed(nowUs uint64) float64 {
	c.cs.Lock()
	d0, d1 := c.d0, c.d1
	t0, t1 := c.t0, c.t1
	m := c.m
	c.cs.Unlock()

	if int(d0)*int(d1) <= 0 {
		return 0
	}
	if nowUs < t0 {
		nowUs = t0
	}

	// The step in progress is the other half-period from the one that
	// just completed.
	var dnow int8
	if d0 > 0 {
		dnow = d0%2 + 1
	} else {
		dnow = -((-d0)%2 + 1)
	}

	mNow := stepHeight(m, dnow)
	m0 := stepHeight(m, d0)
	sinceLast := float64(nowUs - t0)
	lastWidth := float64(t0 - t1)

	var height, width float64
	if math.Abs(mNow)*lastWidth < math.Abs(m0)*sinceLast {
		// Slower than the last step: the in-progress step bounds the speed.
		height, width = mNow, sinceLast
	} else {
		height, width = m0, lastWidth
	}
	if width <= 0 {
		return 0
	}

	speed := height / (width * 1e-6) * CountAngle
	if c.reversed {
		return -speed
	}
	return speed
}

func stepHeight(m [2]float64, d int8) float64 {
	if d > 0 {
		return m[d-1]
	}
	return -m[-d-1]
}

// Position returns the signed edge count.
func (c *Channel) Position() int64 {
	c.cs.Lock()
	pos := c.pos
	c.cs.Unlock()
	if c.reversed {
		return -pos
	}
	return pos
}

// Angle returns the wheel rotation in radians.
func (c *Channel) Angle() float64 {
	return float64(c.Position()) * CountAngle
}

// StartCalibration begins a duty measurement. Timing starts at the next
// forward rising edge of A; any reverse edge before EndCalibration fails
// the session.
func (c *Channel) StartCalibration() {
	c.cs.Lock()
	c.cal = calibration{phase: PhasePreparing}
	c.cs.Unlock()
}

func (c *Channel) Phase() Phase {
	c.cs.Lock()
	defer c.cs.Unlock()
	return c.cal.phase
}

// finish closes the session and returns the measured duty.
func (c *Channel) finish() (float64, error) {
	c.cs.Lock()
	cal := c.cal
	c.cal = calibration{}
	c.cs.Unlock()

	switch {
	case cal.phase == PhaseFailed:
		return 0, ErrDirectionReversed
	case cal.phase != PhaseArmed, cal.n1 == 0, cal.n2 == 0:
		return 0, ErrNoEdges
	}

	avg1 := float64(cal.sum1) / float64(cal.n1)
	avg2 := float64(cal.sum2) / float64(cal.n2)
	return avg1 / (avg1 + avg2), nil
}

// EndCalibration closes the sessions on all channels and returns one duty
// per channel. If any channel failed, every duty is 0.5 and the first
// failure is returned.
func EndCalibration(chs ...*Channel) ([]float64, error) {
	duties := make([]float64, len(chs))
	var firstErr error
	for i, ch := range chs {
		d, err := ch.finish()
		if err != nil && firstErr == nil {
			firstErr = &ChannelError{Index: i, Err: err}
		}
		duties[i] = d
	}
	if firstErr != nil {
		for i := range duties {
			duties[i] = 0.5
		}
		return duties, firstErr
	}
	return duties, nil
}

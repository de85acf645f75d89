package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/san-kum/balancer/internal/clock"
	"github.com/san-kum/balancer/internal/encoder"
	"github.com/san-kum/balancer/internal/plant"
)

// World is the physical side of the simulation: the plant, the power
// stage, the sensors and the time they share.
type World struct {
	robot   *plant.Robot
	x       plant.State
	clock   *clock.Manual
	bridge  *Bridge
	sensor  *sensor
	quad    [2]*quadrature
	substep time.Duration
}

func NewWorld(p plant.Params, hw Hardware, clk *clock.Manual, substep time.Duration, seed int64, left, right *encoder.Channel) *World {
	w := &World{
		robot:   plant.New(p),
		x:       plant.NewState(),
		clock:   clk,
		bridge:  NewBridge(hw.Battery),
		substep: substep,
	}
	w.sensor = &sensor{
		hw:    hw,
		robot: w.robot,
		state: func() plant.State { return w.x },
		rng:   rand.New(rand.NewSource(seed)),
	}
	w.quad[0] = newQuadrature(hw.EncoderDuty[0], left, w.rawAngle(0))
	w.quad[1] = newQuadrature(hw.EncoderDuty[1], right, w.rawAngle(1))
	return w
}

// rawAngle is the shaft angle as the encoder sees it. The right motor is
// mounted mirrored, so it turns backwards when the robot drives forwards.
func (w *World) rawAngle(i int) float64 {
	if i == 0 {
		return w.x[plant.PhiL]
	}
	return -w.x[plant.PhiR]
}

// Advance integrates the plant for d, emitting encoder edges and moving the
// clock as it goes.
func (w *World) Advance(d time.Duration) {
	for d > 0 {
		h := min(w.substep, d)
		t0 := w.clock.Micros()
		w.x = w.robot.Step(w.x, w.bridge.Volts(), h.Seconds())
		w.clock.Advance(h)
		t1 := w.clock.Micros()
		w.quad[0].move(w.rawAngle(0), t0, t1)
		w.quad[1].move(w.rawAngle(1), t0, t1)
		d -= h
	}
}

// Place stops the robot at tilt degrees. Wheel angles are kept so the
// encoders see no jump.
func (w *World) Place(tilt float64) {
	w.x[plant.DPhiL] = 0
	w.x[plant.DPhiR] = 0
	w.x[plant.Alpha] = tilt * math.Pi / 180
	w.x[plant.DAlpha] = 0
}

// Push adds rate deg/s to the tilt rate, as a tap on the body would.
func (w *World) Push(rate float64) {
	w.x[plant.DAlpha] += rate * math.Pi / 180
}

// Hold pins the body, lying on its back when flipped is set.
func (w *World) Hold(held, flipped bool) {
	w.robot.Held = held
	w.sensor.flipped = flipped
}

func (w *World) State() plant.State  { return w.x.Clone() }
func (w *World) Bridge() *Bridge     { return w.bridge }
func (w *World) Robot() *plant.Robot { return w.robot }

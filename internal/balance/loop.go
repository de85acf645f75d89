// Package balance is the cascaded controller that keeps the robot upright.
//
// Each tick runs four PIDs: a velocity loop picks a lean angle, an angle loop
// picks a tilt rate, a rate loop picks a tilt acceleration, and the inverted
// pendulum model turns that into a horizontal acceleration which is integrated
// into a wheel speed reference. A proportional turn loop on the yaw rate
// splits the reference between the wheels.
//
// When the tilt passes FallAngle the loop hands over to a recovery sequence:
// brake, kick the wheels hard towards the fall, and either get back upright
// (all loops reset) or give up and disable the motors.
package balance

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/san-kum/balancer/internal/clock"
	"github.com/san-kum/balancer/internal/control"
)

type Wheel int

const (
	Left Wheel = iota
	Right
)

func (w Wheel) String() string {
	if w == Left {
		return "left"
	}
	return "right"
}

// Motors is the wheel-speed servo. Speeds are rad/s, positive drives the
// robot towards positive tilt.
type Motors interface {
	SetSpeed(w Wheel, radPerSec float64)
	SetEnabled(enabled bool)
	MeasuredSpeed(w Wheel) float64
}

// IMU supplies the bias-corrected attitude. Angles are degrees, rates deg/s.
type IMU interface {
	TiltAngle() float64
	TiltRate() float64
	YawRate() float64
}

// Resetter is implemented by motor servos that keep their own integrators.
type Resetter interface {
	Reset()
}

type Stage int

const (
	StageIdle Stage = iota
	StageBraking
	StageKicking
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageBraking:
		return "braking"
	case StageKicking:
		return "kicking"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loops gives read access to the four controllers.
type Loops struct {
	Velocity *control.PID
	Angle    *control.PID
	Rate     *control.PID
	Turn     *control.PID
}

// Loop is the balance controller. Step must be called every Params.Period
// from a single goroutine.
type Loop struct {
	cfg    Params
	imu    IMU
	motors Motors
	clock  clock.Clock
	logger *log.Logger

	velocity *control.PID
	angle    *control.PID
	rate     *control.PID
	turn     *control.PID

	omegaRef    float64
	left, right float64
	enabled     bool

	stage      Stage
	stageStart uint32

	lastUs  uint64
	started bool
}

func New(cfg Config, imu IMU, motors Motors, clk clock.Clock) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loop{
		cfg:      cfg.Params,
		imu:      imu,
		motors:   motors,
		clock:    clk,
		logger:   log.New(io.Discard),
		velocity: control.New(cfg.Gains.Velocity),
		angle:    control.New(cfg.Gains.Angle),
		rate:     control.New(cfg.Gains.Rate),
		turn:     control.New(cfg.Gains.Turn),
	}, nil
}

func (l *Loop) SetLogger(logger *log.Logger) {
	l.logger = logger
}

// Step runs one control tick.
func (l *Loop) Step() {
	if l.stage != StageIdle {
		l.recover()
		return
	}

	now := l.clock.Micros()
	dt := l.cfg.Period
	if l.started {
		dt = float64(now-l.lastUs) * 1e-6
	}
	l.lastUs = now
	l.started = true

	alpha := deg2rad(l.imu.TiltAngle())
	dalpha := deg2rad(l.imu.TiltRate())
	gz := deg2rad(l.imu.YawRate())

	p := &l.cfg
	wheels := (l.motors.MeasuredSpeed(Left) + l.motors.MeasuredSpeed(Right)) / 2
	v := wheels + dalpha*(p.PendulumLength+p.WheelRadius)/p.WheelRadius

	alphaRef := math.Atan(l.velocity.Compute1(v, now) / p.Gravity)

	l.angle.ChangeSetpoint(alphaRef)
	dalphaRef := l.angle.Compute1(alpha, now)

	l.rate.ChangeSetpoint(dalphaRef)
	ddalphaRef := l.rate.Compute1(dalpha, now)

	ml := p.PendulumMass * p.PendulumLength
	ddxRef := (p.PendulumInertia*ddalphaRef - ml*p.Gravity*math.Sin(alpha)) / (ml * math.Cos(alpha))

	l.omegaRef = clamp(l.omegaRef+ddxRef*dt/p.WheelRadius, -p.MaxOmega, p.MaxOmega)

	turn := l.turn.Compute1(gz, now)

	if math.Abs(alpha) > deg2rad(p.FallAngle) {
		l.logger.Warn("fall detected", "tilt", rad2deg(alpha))
		l.enter(StageBraking)
		l.setSpeeds(0, 0)
		return
	}

	l.setSpeeds(-l.omegaRef+turn, -l.omegaRef-turn)
}

func (l *Loop) recover() {
	now := l.clock.Millis()
	elapsed := now - l.stageStart

	switch l.stage {
	case StageBraking:
		l.setSpeeds(0, 0)
		if elapsed <= l.cfg.BrakeMs {
			return
		}
		if r, ok := l.motors.(Resetter); ok {
			r.Reset()
		}
		kick := l.cfg.KickSpeed
		if l.imu.TiltAngle() <= 0 {
			kick = -kick
		}
		l.setSpeeds(kick, kick)
		l.enter(StageKicking)

	case StageKicking:
		tilt := l.imu.TiltAngle()
		if math.Abs(tilt) < l.cfg.UprightAngle {
			l.logger.Info("upright", "tilt", tilt, "after_ms", elapsed)
			l.Reset()
			return
		}
		if elapsed > l.cfg.KickTimeoutMs {
			l.logger.Error("recovery timed out", "tilt", tilt, "timeout_ms", l.cfg.KickTimeoutMs)
			l.SetEnabled(false)
			l.enter(StageFailed)
		}

	case StageFailed:
	}
}

func (l *Loop) enter(s Stage) {
	l.logger.Debug("stage", "from", l.stage, "to", s)
	l.stage = s
	l.stageStart = l.clock.Millis()
}

func (l *Loop) setSpeeds(left, right float64) {
	l.left, l.right = left, right
	l.motors.SetSpeed(Left, left)
	l.motors.SetSpeed(Right, right)
}

// Reset clears all four loops and the wheel reference and returns to
// balancing. It also resets the motor servo when it supports it.
func (l *Loop) Reset() {
	l.velocity.Reset()
	l.angle.Reset()
	l.rate.Reset()
	l.turn.Reset()
	if r, ok := l.motors.(Resetter); ok {
		r.Reset()
	}
	l.omegaRef = 0
	l.started = false
	l.stage = StageIdle
	l.stageStart = l.clock.Millis()
}

// Move sets the drive velocity and turn rate setpoints from command units.
func (l *Loop) Move(speed, turn float64) {
	l.velocity.ChangeSetpoint(-speed / l.cfg.SpeedScale)
	l.turn.ChangeSetpoint(-turn / l.cfg.TurnScale)
}

func (l *Loop) SetEnabled(enabled bool) {
	l.enabled = enabled
	l.motors.SetEnabled(enabled)
}

// Toggle resets the loop and flips the motor enable state. Returns the new
// state.
func (l *Loop) Toggle() bool {
	l.Reset()
	l.SetEnabled(!l.enabled)
	return l.enabled
}

// Err reports ErrRecoveryTimeout once recovery has given up.
func (l *Loop) Err() error {
	if l.stage == StageFailed {
		return ErrRecoveryTimeout
	}
	return nil
}

func (l *Loop) Stage() Stage       { return l.stage }
func (l *Loop) OmegaRef() float64  { return l.omegaRef }
func (l *Loop) Enabled() bool      { return l.enabled }
func (l *Loop) Params() Params     { return l.cfg }
func (l *Loop) Period() float64    { return l.cfg.Period }
func (l *Loop) StageStart() uint32 { return l.stageStart }

func (l *Loop) Setpoints() (left, right float64) {
	return l.left, l.right
}

func (l *Loop) Loops() Loops {
	return Loops{Velocity: l.velocity, Angle: l.angle, Rate: l.rate, Turn: l.turn}
}

func (l *Loop) loop(name string) *control.PID {
	switch name {
	case "velocity":
		return l.velocity
	case "angle":
		return l.angle
	case "rate":
		return l.rate
	case "turn":
		return l.turn
	}
	return nil
}

// Tunables lists live parameters as "<loop>.<param>".
func (l *Loop) Tunables() map[string]float64 {
	out := make(map[string]float64, 16)
	for _, name := range []string{"velocity", "angle", "rate", "turn"} {
		for k, v := range l.loop(name).Params() {
			out[name+"."+k] = v
		}
	}
	return out
}

// SetParam retunes one loop, e.g. SetParam("angle.kp", 8).
func (l *Loop) SetParam(name string, value float64) error {
	loopName, param, ok := strings.Cut(name, ".")
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, name)
	}
	pid := l.loop(loopName)
	if pid == nil {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, loopName)
	}
	return pid.SetParam(param, value)
}

func deg2rad(deg float64) float64 { return deg * math.Pi / 180 }
func rad2deg(rad float64) float64 { return rad * 180 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

package control

import (
	"fmt"
	"math"

	"github.com/san-kum/balancer/internal/filter"
)

// unset marks a controller whose next compute is a bootstrap call.
const unset = math.MaxUint64

// Config is the immutable template a PID is built or rebuilt from.
type Config struct {
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
	Setpoint      float64 `yaml:"setpoint"`
	OutputMin     float64 `yaml:"min"`
	OutputMax     float64 `yaml:"max"`
	DefaultOutput float64 `yaml:"default"`
}

func (c Config) Validate() error {
	if c.OutputMin > c.OutputMax {
		return fmt.Errorf("%w: min %g > max %g", ErrInvalidLimits, c.OutputMin, c.OutputMax)
	}
	if c.DefaultOutput < c.OutputMin || c.DefaultOutput > c.OutputMax {
		return fmt.Errorf("%w: default %g outside [%g, %g]", ErrInvalidLimits, c.DefaultOutput, c.OutputMin, c.OutputMax)
	}
	return nil
}

// PID is a time-aware controller with output clamping, integral anti-windup,
// derivative on measurement and an optional low-pass on its output.
//
// Not safe for concurrent use.
type PID struct {
	cfg Config

	Kp, Ki, Kd float64
	setpoint   float64
	enabled    bool

	lastTime   uint64
	integral   float64
	derivative float64
	lastInput  float64
	lastError  float64
	lastOutput float64

	lpf        filter.LowPass
	lpfEnabled bool
}

// New builds an enabled controller from cfg.
func New(cfg Config) *PID {
	p := &PID{}
	p.Init(cfg)
	return p
}

// Init (re)loads the template, enables the controller and clears all state.
func (p *PID) Init(cfg Config) {
	p.cfg = cfg
	p.Kp, p.Ki, p.Kd = cfg.Kp, cfg.Ki, cfg.Kd
	p.setpoint = cfg.Setpoint
	p.enabled = true
	p.lpfEnabled = false
	p.lastInput = 0
	p.lastError = 0
	p.Reset()
}

// Cmd enables or disables the controller. Accumulators are left alone; call
// Reset as well for a clean restart.
func (p *PID) Cmd(enabled bool) {
	p.enabled = enabled
}

// Reset drops integral and derivative history so the next compute is a
// bootstrap call with no I/D kick.
func (p *PID) Reset() {
	p.integral = 0
	p.derivative = 0
	p.lastTime = unset
	p.lastOutput = p.cfg.DefaultOutput
	if p.lpfEnabled {
		p.lpf.Reset()
	}
}

func (p *PID) ChangeSetpoint(sp float64) {
	p.setpoint = sp
}

// ChangeTunings replaces the live gains. The accumulated integral term is
// not rescaled, so the output can step when Ki changes.
func (p *PID) ChangeTunings(kp, ki, kd float64) {
	p.Kp, p.Ki, p.Kd = kp, ki, kd
}

// LPFConfig sets up the output low-pass with time constant tf seconds.
func (p *PID) LPFConfig(tf float64, enable bool) {
	p.lpf.Init(tf)
	p.lpfEnabled = enable
}

// Compute1 runs one step using a finite-difference derivative of input.
func (p *PID) Compute1(input float64, nowUs uint64) float64 {
	if !p.enabled {
		return p.cfg.DefaultOutput
	}

	err := p.setpoint - input
	if p.lastTime != unset {
		dt := float64(nowUs-p.lastTime) * 1e-6
		p.integral = clamp(p.integral+p.Ki*err*dt, p.cfg.OutputMin, p.cfg.OutputMax)
		if dt > 0 {
			p.derivative = -p.Kd * (input - p.lastInput) / dt
		} else {
			p.derivative = 0
		}
	}

	return p.finish(input, err, nowUs)
}

// Compute2 runs one step with the measurement's rate supplied directly, for
// when a rate sensor is a better derivative source than differencing.
func (p *PID) Compute2(input, dInput float64, nowUs uint64) float64 {
	if !p.enabled {
		return p.cfg.DefaultOutput
	}

	err := p.setpoint - input
	if p.lastTime != unset {
		dt := float64(nowUs-p.lastTime) * 1e-6
		p.integral = clamp(p.integral+p.Ki*err*dt, p.cfg.OutputMin, p.cfg.OutputMax)
		p.derivative = -p.Kd * dInput
	}

	return p.finish(input, err, nowUs)
}

func (p *PID) finish(input, err float64, nowUs uint64) float64 {
	out := p.Kp * err
	if p.lastTime != unset {
		out += p.integral + p.derivative
	}
	out = clamp(out, p.cfg.OutputMin, p.cfg.OutputMax)

	if p.lpfEnabled {
		// A first-order lag of values inside the limits stays inside them.
		out = clamp(p.lpf.Update(out, nowUs), p.cfg.OutputMin, p.cfg.OutputMax)
	}

	p.lastInput = input
	p.lastError = err
	p.lastOutput = out
	p.lastTime = nowUs
	return out
}

func (p *PID) Config() Config      { return p.cfg }
func (p *PID) Setpoint() float64   { return p.setpoint }
func (p *PID) Enabled() bool       { return p.enabled }
func (p *PID) Integral() float64   { return p.integral }
func (p *PID) Derivative() float64 { return p.derivative }
func (p *PID) Output() float64     { return p.lastOutput }
func (p *PID) LastError() float64  { return p.lastError }

func (p *PID) Tunings() (kp, ki, kd float64) {
	return p.Kp, p.Ki, p.Kd
}

// Params returns tunable parameters for live adjustment.
func (p *PID) Params() map[string]float64 {
	return map[string]float64{
		"kp":       p.Kp,
		"ki":       p.Ki,
		"kd":       p.Kd,
		"setpoint": p.setpoint,
	}
}

// SetParam adjusts one live parameter by name.
func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "kp":
		p.ChangeTunings(value, p.Ki, p.Kd)
	case "ki":
		p.ChangeTunings(p.Kp, value, p.Kd)
	case "kd":
		p.ChangeTunings(p.Kp, p.Ki, value)
	case "setpoint":
		p.ChangeSetpoint(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

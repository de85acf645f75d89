package balance

import (
	"fmt"
	"strings"

	"github.com/san-kum/balancer/internal/control"
)

// Params are the physical constants and recovery thresholds of the robot.
type Params struct {
	Period          float64 `yaml:"period"`           // s
	WheelRadius     float64 `yaml:"wheel_radius"`     // m
	PendulumLength  float64 `yaml:"pendulum_length"`  // m, axle to centre of mass
	PendulumMass    float64 `yaml:"pendulum_mass"`    // kg
	PendulumInertia float64 `yaml:"pendulum_inertia"` // kg·m², about the axle
	Gravity         float64 `yaml:"gravity"`          // m/s²
	MaxOmega        float64 `yaml:"max_omega"`        // rad/s

	FallAngle     float64 `yaml:"fall_angle"`      // deg
	UprightAngle  float64 `yaml:"upright_angle"`   // deg
	BrakeMs       uint32  `yaml:"brake_ms"`        // ms
	KickTimeoutMs uint32  `yaml:"kick_timeout_ms"` // ms
	KickSpeed     float64 `yaml:"kick_speed"`      // rad/s

	// Move maps command units onto setpoints: velocity = -speed/SpeedScale,
	// yaw rate = -turn/TurnScale.
	SpeedScale float64 `yaml:"speed_scale"`
	TurnScale  float64 `yaml:"turn_scale"`
}

// Gains configure the four cascaded loops.
type Gains struct {
	Velocity control.Config `yaml:"velocity"` // m/s² out
	Angle    control.Config `yaml:"angle"`    // rad/s out
	Rate     control.Config `yaml:"rate"`     // rad/s² out
	Turn     control.Config `yaml:"turn"`     // rad/s out
}

type Config struct {
	Params Params `yaml:"params"`
	Gains  Gains  `yaml:"gains"`
}

func DefaultParams() Params {
	return Params{
		Period:          0.005,
		WheelRadius:     0.032,
		PendulumLength:  0.062,
		PendulumMass:    0.12,
		PendulumInertia: 4.6128e-4,
		Gravity:         9.8,
		MaxOmega:        40,
		FallAngle:       80,
		UprightAngle:    40,
		BrakeMs:         500,
		KickTimeoutMs:   5000,
		KickSpeed:       999,
		SpeedScale:      3.8,
		TurnScale:       7,
	}
}

func DefaultGains() Gains {
	return Gains{
		Velocity: control.Config{Kp: 0.2, Ki: 0.002, OutputMin: -9.8, OutputMax: 9.8},
		Angle:    control.Config{Kp: 7, Ki: 7, OutputMin: -6.28, OutputMax: 6.28},
		Rate:     control.Config{Kp: 30, Ki: 30, OutputMin: -100, OutputMax: 100},
		Turn:     control.Config{Kp: 1, OutputMin: -10, OutputMax: 10},
	}
}

func DefaultConfig() Config {
	return Config{Params: DefaultParams(), Gains: DefaultGains()}
}

func (c Config) Validate() error {
	p := c.Params
	positive := map[string]float64{
		"period":           p.Period,
		"wheel_radius":     p.WheelRadius,
		"pendulum_length":  p.PendulumLength,
		"pendulum_mass":    p.PendulumMass,
		"pendulum_inertia": p.PendulumInertia,
		"gravity":          p.Gravity,
		"max_omega":        p.MaxOmega,
		"speed_scale":      p.SpeedScale,
		"turn_scale":       p.TurnScale,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidConfig, name, v)
		}
	}
	if p.UprightAngle <= 0 || p.UprightAngle >= p.FallAngle || p.FallAngle >= 90 {
		return fmt.Errorf("%w: need 0 < upright_angle < fall_angle < 90", ErrInvalidConfig)
	}

	loops := []struct {
		name string
		cfg  control.Config
	}{
		{"velocity", c.Gains.Velocity},
		{"angle", c.Gains.Angle},
		{"rate", c.Gains.Rate},
		{"turn", c.Gains.Turn},
	}
	for _, l := range loops {
		if err := l.cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, l.name, err)
		}
	}
	return nil
}

func (g *Gains) loop(name string) *control.Config {
	switch name {
	case "velocity":
		return &g.Velocity
	case "angle":
		return &g.Angle
	case "rate":
		return &g.Rate
	case "turn":
		return &g.Turn
	}
	return nil
}

// Set changes one gain template by its live-tuning name, e.g. "rate.kd".
func (g *Gains) Set(name string, value float64) error {
	loopName, param, ok := strings.Cut(name, ".")
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, name)
	}
	cfg := g.loop(loopName)
	if cfg == nil {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, loopName)
	}
	switch param {
	case "kp":
		cfg.Kp = value
	case "ki":
		cfg.Ki = value
	case "kd":
		cfg.Kd = value
	case "setpoint":
		cfg.Setpoint = value
	default:
		return fmt.Errorf("%w: %s", control.ErrUnknownParam, param)
	}
	return nil
}

package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/calib"
	"github.com/san-kum/balancer/internal/command"
	"github.com/san-kum/balancer/internal/control"
	"github.com/san-kum/balancer/internal/motor"
	"github.com/san-kum/balancer/internal/plant"
)

type Config struct {
	Duration time.Duration `yaml:"duration"`
	// Substep is the plant integration step; encoder edges are timed
	// within it.
	Substep     time.Duration `yaml:"substep"`
	Seed        int64         `yaml:"seed"`
	InitialTilt float64       `yaml:"initial_tilt"` // deg
	Calibrate   bool          `yaml:"calibrate"`
	StableBand  float64       `yaml:"stable_band"` // deg
	Events      []Event       `yaml:"events"`

	Hardware Hardware       `yaml:"hardware"`
	Plant    plant.Params   `yaml:"plant"`
	Balance  balance.Config `yaml:"balance"`
	Servo    control.Config `yaml:"servo"`
	Calib    calib.Config   `yaml:"calib"`
}

func DefaultConfig() Config {
	return Config{
		Duration:    10 * time.Second,
		Substep:     250 * time.Microsecond,
		Seed:        1,
		InitialTilt: 5,
		StableBand:  5,
		Hardware:    DefaultHardware(),
		Plant:       plant.DefaultParams(),
		Balance:     balance.DefaultConfig(),
		Servo:       motor.DefaultGains(),
		Calib:       calib.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidConfig, c.Duration)
	}
	if c.Substep <= 0 || c.Substep > time.Millisecond {
		return fmt.Errorf("%w: substep must be in (0, 1ms], got %v", ErrInvalidConfig, c.Substep)
	}
	if c.Hardware.Battery <= 0 {
		return fmt.Errorf("%w: battery must be positive", ErrInvalidConfig)
	}
	for i, d := range c.Hardware.EncoderDuty {
		if d <= 0 || d >= 1 {
			return fmt.Errorf("%w: encoder_duty[%d] %g outside (0, 1)", ErrInvalidConfig, i, d)
		}
	}
	if c.Plant.WheelRadius <= 0 || c.Plant.Track <= 0 || c.Plant.WheelInertia <= 0 ||
		c.Plant.PendulumInertia <= 0 || c.Plant.Ra <= 0 {
		return fmt.Errorf("%w: plant parameters must be positive", ErrInvalidConfig)
	}
	if err := c.Balance.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Servo.Validate(); err != nil {
		return fmt.Errorf("%w: servo: %w", ErrInvalidConfig, err)
	}
	if c.Calibrate {
		if err := c.Calib.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	for i, e := range c.Events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: event %d: %w", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

// Event is a scripted disturbance or command, timed from the start of
// balancing.
type Event struct {
	At      time.Duration `yaml:"at"`
	Push    float64       `yaml:"push,omitempty"`    // deg/s added to the tilt rate
	Command string        `yaml:"command,omitempty"` // a command line, e.g. "move 0 40"
	Toggle  bool          `yaml:"toggle,omitempty"`
}

func (e Event) Validate() error {
	if e.At < 0 {
		return fmt.Errorf("negative time %v", e.At)
	}
	if e.Command != "" {
		if _, err := command.Parse(e.Command); err != nil {
			return err
		}
	}
	return nil
}

// Sample is the robot as seen on one control tick.
type Sample struct {
	Time     float64       `json:"t"`
	Tilt     float64       `json:"tilt"`      // estimated, deg
	TrueTilt float64       `json:"true_tilt"` // deg
	TiltRate float64       `json:"tilt_rate"` // deg/s
	OmegaRef float64       `json:"omega_ref"` // rad/s
	Left     float64       `json:"left"`      // setpoint, rad/s
	Right    float64       `json:"right"`     // setpoint, rad/s
	SpeedL   float64       `json:"speed_l"`   // measured, rad/s
	SpeedR   float64       `json:"speed_r"`   // measured, rad/s
	X        float64       `json:"x"`         // m
	Yaw      float64       `json:"yaw"`       // deg
	Stage    balance.Stage `json:"stage"`
}

type Observer interface {
	OnSample(s Sample)
}

type ObserverFunc func(s Sample)

func (f ObserverFunc) OnSample(s Sample) { f(s) }

type Result struct {
	Config      Config             `json:"config"`
	Calibration calib.Record       `json:"calibration"`
	Trace       []Sample           `json:"-"`
	Metrics     map[string]float64 `json:"metrics"`
	Stage       balance.Stage      `json:"stage"`
	Elapsed     time.Duration      `json:"elapsed"`
}

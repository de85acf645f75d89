// Package motor closes the wheel-speed loop: encoder speed in, PWM duty out.
package motor

import (
	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/control"
	"github.com/san-kum/balancer/internal/encoder"
)

// PWM drives the H-bridge. Duty is percent in [-100, 100], positive in the
// same direction as positive wheel speed.
type PWM interface {
	Enable(on bool)
	SetDuty(w balance.Wheel, percent float64)
}

type Battery interface {
	Voltage() float64
}

// DefaultGains is a PI on wheel speed (rad/s) producing armature volts.
func DefaultGains() control.Config {
	return control.Config{Kp: 0.5, Ki: 5, OutputMin: -8.2, OutputMax: 8.2}
}

// Servo runs one speed PID per wheel. It satisfies balance.Motors.
type Servo struct {
	pwm      PWM
	battery  Battery
	encoders [2]*encoder.Channel
	pids     [2]*control.PID
	enabled  bool
	nowUs    uint64
}

func NewServo(gains control.Config, pwm PWM, battery Battery, left, right *encoder.Channel) *Servo {
	s := &Servo{
		pwm:      pwm,
		battery:  battery,
		encoders: [2]*encoder.Channel{left, right},
		pids:     [2]*control.PID{control.New(gains), control.New(gains)},
	}
	s.SetEnabled(false)
	return s
}

// Proc runs one 1 ms servo step. Duty is passed through unclamped; the PWM
// driver saturates it.
func (s *Servo) Proc(nowUs uint64) {
	s.nowUs = nowUs
	bat := s.battery.Voltage()
	for _, w := range []balance.Wheel{balance.Left, balance.Right} {
		volts := s.pids[w].Compute1(s.encoders[w].Speed(nowUs), nowUs)
		duty := 0.0
		if bat > 0 {
			duty = volts / bat * 100
		}
		s.pwm.SetDuty(w, duty)
	}
}

func (s *Servo) SetSpeed(w balance.Wheel, radPerSec float64) {
	s.pids[w].ChangeSetpoint(radPerSec)
}

// MeasuredSpeed returns the wheel speed at the time of the last Proc.
func (s *Servo) MeasuredSpeed(w balance.Wheel) float64 {
	return s.encoders[w].Speed(s.nowUs)
}

// SetEnabled gates the bridge and both speed loops together.
func (s *Servo) SetEnabled(enabled bool) {
	s.pwm.Enable(enabled)
	s.pids[balance.Left].Cmd(enabled)
	s.pids[balance.Right].Cmd(enabled)
	s.enabled = enabled
}

func (s *Servo) Enabled() bool { return s.enabled }

func (s *Servo) Reset() {
	s.pids[balance.Left].Reset()
	s.pids[balance.Right].Reset()
}

func (s *Servo) PID(w balance.Wheel) *control.PID {
	return s.pids[w]
}

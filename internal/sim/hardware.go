package sim

import (
	"math"
	"math/rand"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/encoder"
	"github.com/san-kum/balancer/internal/imu"
	"github.com/san-kum/balancer/internal/plant"
)

// Hardware describes the simulated sensors and power stage.
type Hardware struct {
	Battery     float64    `yaml:"battery"`      // V
	EncoderDuty [2]float64 `yaml:"encoder_duty"` // A-high fraction per wheel
	AccelNoise  float64    `yaml:"accel_noise"`  // g, 1σ
	GyroNoise   float64    `yaml:"gyro_noise"`   // deg/s, 1σ
	GyroBias    [3]float64 `yaml:"gyro_bias"`    // deg/s
	MountError  float64    `yaml:"mount_error"`  // deg of pitch
}

func DefaultHardware() Hardware {
	return Hardware{
		Battery:     7.4,
		EncoderDuty: [2]float64{0.45, 0.55},
		AccelNoise:  0.01,
		GyroNoise:   0.1,
		GyroBias:    [3]float64{0.8, -0.5, 0.3},
		MountError:  1.5,
	}
}

// Bridge is the H-bridge and battery. It satisfies motor.PWM and
// motor.Battery.
type Bridge struct {
	battery float64
	enabled bool
	duty    [2]float64
}

func NewBridge(battery float64) *Bridge {
	return &Bridge{battery: battery}
}

func (b *Bridge) Enable(on bool) { b.enabled = on }

func (b *Bridge) SetDuty(w balance.Wheel, percent float64) {
	b.duty[w] = math.Max(-100, math.Min(100, percent))
}

func (b *Bridge) Voltage() float64 { return b.battery }

func (b *Bridge) Enabled() bool { return b.enabled }

func (b *Bridge) Duty(w balance.Wheel) float64 { return b.duty[w] }

// Volts returns the armature voltages. A disabled bridge holds both
// terminals low, which brakes the motors.
func (b *Bridge) Volts() [2]float64 {
	if !b.enabled {
		return [2]float64{}
	}
	return [2]float64{
		b.duty[balance.Left] / 100 * b.battery,
		b.duty[balance.Right] / 100 * b.battery,
	}
}

// sensor is the accelerometer/gyro. It reads the plant directly, adds
// bias and noise and quantizes to register counts.
type sensor struct {
	hw    Hardware
	robot *plant.Robot
	state func() plant.State
	rng   *rand.Rand

	// flipped models the robot lying on its back on the calibration
	// fixture, sensor z pointing down.
	flipped bool
}

func (s *sensor) Read() (imu.Raw, error) {
	x := s.state()
	theta := x[plant.Alpha] + s.hw.MountError*math.Pi/180

	ay, az := math.Sin(theta), math.Cos(theta)
	if s.flipped {
		az = -az
	}
	gx := x[plant.DAlpha] * 180 / math.Pi
	gz := s.robot.YawRate(x) * 180 / math.Pi

	return imu.Raw{
		Ax:   counts(s.noise(s.hw.AccelNoise), imu.AccelScale),
		Ay:   counts(ay+s.noise(s.hw.AccelNoise), imu.AccelScale),
		Az:   counts(az+s.noise(s.hw.AccelNoise), imu.AccelScale),
		Temp: counts(25-imu.TempOffset, imu.TempScale),
		Gx:   counts(gx+s.hw.GyroBias[0]+s.noise(s.hw.GyroNoise), imu.GyroScale),
		Gy:   counts(s.hw.GyroBias[1]+s.noise(s.hw.GyroNoise), imu.GyroScale),
		Gz:   counts(gz+s.hw.GyroBias[2]+s.noise(s.hw.GyroNoise), imu.GyroScale),
	}, nil
}

func (s *sensor) noise(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return s.rng.NormFloat64() * sigma
}

// counts converts a physical value to a saturated register reading.
func counts(v, scale float64) int16 {
	c := math.Round(v / scale)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, c)))
}

// quadrature turns a wheel angle into channel A edges. In count units A
// rises at every even position 2k and falls at 2k+2·duty.
type quadrature struct {
	duty float64
	u    float64
	ch   *encoder.Channel
}

func newQuadrature(duty float64, ch *encoder.Channel, angle float64) *quadrature {
	return &quadrature{duty: duty, u: angle / encoder.CountAngle, ch: ch}
}

// move reports every edge between the last angle and angle, timed by
// linear interpolation across [t0, t1].
func (q *quadrature) move(angle float64, t0, t1 uint64) {
	u0, u1 := q.u, angle/encoder.CountAngle
	q.u = u1
	if u1 == u0 {
		return
	}

	at := func(p float64) uint64 {
		return t0 + uint64(math.Round((p-u0)/(u1-u0)*float64(t1-t0)))
	}
	fall := 2 * q.duty

	if u1 > u0 {
		for k := math.Floor(u0 / 2); 2*k <= u1; k++ {
			if p := 2 * k; u0 < p && p <= u1 {
				q.ch.Edge(true, true, at(p))
			}
			if p := 2*k + fall; u0 < p && p <= u1 {
				q.ch.Edge(false, false, at(p))
			}
		}
		return
	}
	for k := math.Floor(u0 / 2); 2*k+2 > u1; k-- {
		if p := 2*k + fall; u1 < p && p <= u0 {
			q.ch.Edge(true, false, at(p))
		}
		if p := 2 * k; u1 < p && p <= u0 {
			q.ch.Edge(false, true, at(p))
		}
	}
}

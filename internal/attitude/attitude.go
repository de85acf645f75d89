// Package attitude fuses gyro integration with accelerometer tilt into
// yaw, roll and pitch using a complementary filter.
//
// All angles are degrees in (-180, 180]. The estimator assumes it is called
// once per nominal sample period; dt is never measured, because the blend
// coefficient is only meaningful at the period it was chosen for.
package attitude

import "math"

const (
	// DefaultAlpha gives a ~100 ms fusion time constant at 5 ms.
	DefaultAlpha = 0.95238

	// DefaultPeriod is the nominal sample period in seconds.
	DefaultPeriod = 0.005
)

// Sample is one IMU reading: accelerometer in g, gyro in deg/s with the
// calibrated bias already removed.
type Sample struct {
	Ax, Ay, Az float64
	Gx, Gy, Gz float64
}

// Pose is a snapshot of the estimate.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

type Estimator struct {
	alpha float64
	dt    float64

	yaw, roll, pitch float64
	initialized      bool
}

func New(alpha, dt float64) *Estimator {
	return &Estimator{alpha: alpha, dt: dt}
}

func NewDefault() *Estimator {
	return New(DefaultAlpha, DefaultPeriod)
}

// AccelTilt returns the tilt angles implied by gravity alone.
func AccelTilt(ax, ay, az float64) (pitch, roll float64) {
	pitch = math.Atan2(ay, az) * 180 / math.Pi
	roll = -math.Atan2(ax, az) * 180 / math.Pi
	return pitch, roll
}

// Update fuses one sample. The first sample seeds roll and pitch from the
// accelerometer and yaw from zero.
func (e *Estimator) Update(s Sample) {
	pitchAccel, rollAccel := AccelTilt(s.Ax, s.Ay, s.Az)

	if !e.initialized {
		e.initialized = true
		e.yaw = 0
		e.roll = rollAccel
		e.pitch = pitchAccel
	} else {
		// Yaw has no absolute reference and drifts freely.
		e.yaw += s.Gz * e.dt
		e.roll = e.blend(e.roll, s.Gy, rollAccel)
		e.pitch = e.blend(e.pitch, s.Gx, pitchAccel)
	}

	e.yaw = Wrap180(e.yaw)
	e.roll = Wrap180(e.roll)
	e.pitch = Wrap180(e.pitch)
}

// blend moves running onto the same side of the ±180 seam as accel before
// mixing, so 179 and -179 average towards 180 rather than 0.
func (e *Estimator) blend(running, rate, accel float64) float64 {
	if running-accel > 180 {
		running -= 360
	}
	if accel-running > 180 {
		running += 360
	}
	return e.alpha*(running+rate*e.dt) + (1-e.alpha)*accel
}

func (e *Estimator) Reset() {
	e.yaw, e.roll, e.pitch = 0, 0, 0
	e.initialized = false
}

func (e *Estimator) Yaw() float64      { return e.yaw }
func (e *Estimator) Roll() float64     { return e.roll }
func (e *Estimator) Pitch() float64    { return e.pitch }
func (e *Estimator) Initialized() bool { return e.initialized }

func (e *Estimator) Pose() Pose {
	return Pose{Yaw: e.yaw, Roll: e.roll, Pitch: e.pitch}
}

// Wrap180 maps an angle in degrees into (-180, 180].
func Wrap180(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

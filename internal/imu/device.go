// Package imu adapts a 6-axis accelerometer/gyro to the attitude estimator
// and exposes bias-corrected tilt to the balance loop.
package imu

import (
	"fmt"

	"github.com/san-kum/balancer/internal/attitude"
)

// Scale factors for ±2 g and ±2000 deg/s full range.
const (
	AccelScale = 1.0 / 16384 // g per LSB
	GyroScale  = 1.0 / 16.4  // deg/s per LSB
	TempScale  = 1.0 / 340   // °C per LSB
	TempOffset = 36.53
)

// Raw is one burst read of the sensor registers.
type Raw struct {
	Ax, Ay, Az int16
	Temp       int16
	Gx, Gy, Gz int16
}

// Reader performs one register read.
type Reader interface {
	Read() (Raw, error)
}

// Reading is a converted sample with gyro bias removed.
type Reading struct {
	Ax, Ay, Az float64 // g
	Gx, Gy, Gz float64 // deg/s
	Temp       float64 // °C
}

// Bias holds the calibrated offsets. Gyro biases are subtracted before
// fusion; Pitch is added to the fused pitch on read.
type Bias struct {
	Gx, Gy, Gz float64
	Pitch      float64
}

// Convert scales raw counts and removes gyro bias.
func Convert(r Raw, b Bias) Reading {
	return Reading{
		Ax:   float64(r.Ax) * AccelScale,
		Ay:   float64(r.Ay) * AccelScale,
		Az:   float64(r.Az) * AccelScale,
		Gx:   float64(r.Gx)*GyroScale - b.Gx,
		Gy:   float64(r.Gy)*GyroScale - b.Gy,
		Gz:   float64(r.Gz)*GyroScale - b.Gz,
		Temp: float64(r.Temp)*TempScale + TempOffset,
	}
}

type Device struct {
	reader Reader
	est    *attitude.Estimator
	bias   Bias
	last   Reading
}

func NewDevice(r Reader, bias Bias) *Device {
	return &Device{reader: r, est: attitude.NewDefault(), bias: bias}
}

// Proc reads one sample and fuses it. On a read error the previous
// estimate is kept.
func (d *Device) Proc() error {
	raw, err := d.reader.Read()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
	}
	d.last = Convert(raw, d.bias)
	d.est.Update(attitude.Sample{
		Ax: d.last.Ax, Ay: d.last.Ay, Az: d.last.Az,
		Gx: d.last.Gx, Gy: d.last.Gy, Gz: d.last.Gz,
	})
	return nil
}

func (d *Device) SetBias(b Bias) { d.bias = b }
func (d *Device) Bias() Bias     { return d.bias }

// TiltAngle is the fused pitch plus the static pitch bias, in degrees.
func (d *Device) TiltAngle() float64 {
	return d.est.Pitch() + d.bias.Pitch
}

func (d *Device) TiltRate() float64 { return d.last.Gx }
func (d *Device) YawRate() float64  { return d.last.Gz }

func (d *Device) Reading() Reading { return d.last }

func (d *Device) Pose() attitude.Pose {
	p := d.est.Pose()
	p.Pitch += d.bias.Pitch
	return p
}

// Reset drops the fused attitude; the next sample seeds it again.
func (d *Device) Reset() {
	d.est.Reset()
}

package calib

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/san-kum/balancer/internal/attitude"
	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/encoder"
	"github.com/san-kum/balancer/internal/imu"
	"github.com/san-kum/balancer/internal/motor"
)

// Waiter blocks for d of robot time. On hardware that is a sleep; the
// simulator advances the physics instead.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

type WaitFunc func(ctx context.Context, d time.Duration) error

func (f WaitFunc) Wait(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// Sleep waits in wall-clock time.
var Sleep = WaitFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

type Config struct {
	Settle       time.Duration `yaml:"settle"`
	Measure      time.Duration `yaml:"measure"`
	Samples      int           `yaml:"samples"`
	SamplePeriod time.Duration `yaml:"sample_period"`
	// DriveDuty is the PWM percent per wheel during the encoder phase. The
	// signs must turn both encoders in their raw forward direction.
	DriveDuty [2]float64 `yaml:"drive_duty"`
	// PitchReference is the expected pitch in the IMU calibration pose.
	PitchReference float64 `yaml:"pitch_reference"`
}

func DefaultConfig() Config {
	return Config{
		Settle:         time.Second,
		Measure:        10 * time.Second,
		Samples:        2000,
		SamplePeriod:   5 * time.Millisecond,
		DriveDuty:      [2]float64{50, -50},
		PitchReference: 180,
	}
}

func (c Config) Validate() error {
	if c.Samples <= 0 || c.SamplePeriod <= 0 {
		return fmt.Errorf("%w: need positive samples and sample_period", ErrInvalidConfig)
	}
	if c.Measure <= 0 {
		return fmt.Errorf("%w: measure must be positive", ErrInvalidConfig)
	}
	return nil
}

// Calibrator measures encoder duty cycles and IMU biases and saves them.
type Calibrator struct {
	cfg    Config
	pwm    motor.PWM
	left   *encoder.Channel
	right  *encoder.Channel
	device *imu.Device
	store  Store
	waiter Waiter
	logger *log.Logger
}

func New(cfg Config, pwm motor.PWM, left, right *encoder.Channel, device *imu.Device, store Store, waiter Waiter) *Calibrator {
	return &Calibrator{
		cfg:    cfg,
		pwm:    pwm,
		left:   left,
		right:  right,
		device: device,
		store:  store,
		waiter: waiter,
		logger: log.New(io.Discard),
	}
}

func (c *Calibrator) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// Run performs the encoder phase, then the IMU phase, then saves. The
// first failing phase aborts the run: nothing is saved, the channels and
// device keep their previous calibration and the loaded record is returned.
// Measured values are applied only once the save succeeds.
func (c *Calibrator) Run(ctx context.Context) (Record, error) {
	if err := c.cfg.Validate(); err != nil {
		return Default(), err
	}

	rec, err := c.store.Load()
	if err != nil {
		c.logger.Warn("stored calibration unreadable, starting from defaults", "err", err)
		rec = Default()
	}

	loaded := rec
	if err := c.calibrateEncoders(ctx, &rec); err != nil {
		return loaded, &Error{Phase: PhaseEncoder, Err: err}
	}
	if err := c.calibrateIMU(ctx, &rec); err != nil {
		return loaded, &Error{Phase: PhaseIMU, Err: err}
	}
	if err := c.store.Save(rec); err != nil {
		return loaded, &Error{Phase: PhaseSave, Err: err}
	}
	rec.Key = Key

	c.left.SetDuty(rec.EncoderDutyL)
	c.right.SetDuty(rec.EncoderDutyR)
	c.device.SetBias(rec.IMUBias())

	c.logger.Info("calibration saved",
		"duty_l", rec.EncoderDutyL, "duty_r", rec.EncoderDutyR,
		"pitch_bias", rec.PitchBias)
	return rec, nil
}

func (c *Calibrator) calibrateEncoders(ctx context.Context, rec *Record) error {
	c.pwm.Enable(true)
	c.pwm.SetDuty(balance.Left, c.cfg.DriveDuty[0])
	c.pwm.SetDuty(balance.Right, c.cfg.DriveDuty[1])
	defer func() {
		c.pwm.SetDuty(balance.Left, 0)
		c.pwm.SetDuty(balance.Right, 0)
		c.pwm.Enable(false)
	}()

	if err := c.waiter.Wait(ctx, c.cfg.Settle); err != nil {
		return err
	}
	c.left.StartCalibration()
	c.right.StartCalibration()
	c.logger.Debug("measuring encoder duty", "for", c.cfg.Measure)

	waitErr := c.waiter.Wait(ctx, c.cfg.Measure)
	duties, err := encoder.EndCalibration(c.left, c.right)
	if waitErr != nil {
		return waitErr
	}
	if err != nil {
		return err
	}

	rec.EncoderDutyL, rec.EncoderDutyR = duties[0], duties[1]
	return nil
}

// calibrateIMU samples with the bias cleared and restores the previous bias
// before returning.
func (c *Calibrator) calibrateIMU(ctx context.Context, rec *Record) error {
	prev := c.device.Bias()
	defer c.device.SetBias(prev)
	c.device.SetBias(imu.Bias{})

	// Keep fusing through the settle time so the estimate has converged on
	// the calibration pose before sampling.
	for t := time.Duration(0); t < c.cfg.Settle; t += c.cfg.SamplePeriod {
		if err := c.waiter.Wait(ctx, c.cfg.SamplePeriod); err != nil {
			return err
		}
		if err := c.device.Proc(); err != nil {
			return err
		}
	}

	var gx, gy, gz, pitch float64
	for i := 0; i < c.cfg.Samples; i++ {
		if err := c.waiter.Wait(ctx, c.cfg.SamplePeriod); err != nil {
			return err
		}
		if err := c.device.Proc(); err != nil {
			return err
		}
		r := c.device.Reading()
		gx += r.Gx
		gy += r.Gy
		gz += r.Gz
		pitch += attitude.Wrap180(c.device.TiltAngle() - c.cfg.PitchReference)
	}

	n := float64(c.cfg.Samples)
	rec.GyroBiasX, rec.GyroBiasY, rec.GyroBiasZ = gx/n, gy/n, gz/n
	rec.PitchBias = pitch / n
	return nil
}

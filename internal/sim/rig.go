package sim

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/calib"
	"github.com/san-kum/balancer/internal/clock"
	"github.com/san-kum/balancer/internal/command"
	"github.com/san-kum/balancer/internal/encoder"
	"github.com/san-kum/balancer/internal/imu"
	"github.com/san-kum/balancer/internal/motor"
	"github.com/san-kum/balancer/internal/plant"
	"github.com/san-kum/balancer/internal/sched"
)

// Task periods of the control firmware.
const (
	IMUPeriod     = 5 * time.Millisecond
	MotorPeriod   = time.Millisecond
	ControlPeriod = 5 * time.Millisecond
	CommandPeriod = 10 * time.Millisecond
	StatusPeriod  = 100 * time.Millisecond
)

// Rig is the firmware running against a World: the same encoder, IMU,
// servo and balance code as on the robot, polled by the scheduler on a
// manual clock.
type Rig struct {
	cfg    Config
	clock  *clock.Manual
	world  *World
	left   *encoder.Channel
	right  *encoder.Channel
	device *imu.Device
	servo  *motor.Servo
	loop   *balance.Loop
	sched  *sched.Scheduler
	inbox  *command.Mailbox
	store  calib.Store
	rec    calib.Record
	logger *log.Logger

	start     uint64
	onControl func(Sample)
}

// NewRig builds the robot with the calibration currently in store.
func NewRig(cfg Config, store calib.Store) (*Rig, error) {
	rec, err := store.Load()
	if err != nil {
		return nil, err
	}

	r := &Rig{
		cfg:    cfg,
		clock:  clock.NewManual(0),
		left:   encoder.NewChannel(rec.EncoderDutyL, false),
		right:  encoder.NewChannel(rec.EncoderDutyR, true),
		inbox:  command.NewMailbox(),
		store:  store,
		rec:    rec,
		logger: log.New(io.Discard),
	}
	r.world = NewWorld(cfg.Plant, cfg.Hardware, r.clock, cfg.Substep, cfg.Seed, r.left, r.right)
	r.device = imu.NewDevice(r.world.sensor, rec.IMUBias())
	r.servo = motor.NewServo(cfg.Servo, r.world.bridge, r.world.bridge, r.left, r.right)

	r.loop, err = balance.New(cfg.Balance, r.device, r.servo, r.clock)
	if err != nil {
		return nil, err
	}

	r.sched = sched.New(r.clock)
	r.sched.Every("imu", IMUPeriod, func(uint64) error {
		return r.device.Proc()
	})
	r.sched.Every("motor", MotorPeriod, func(now uint64) error {
		r.servo.Proc(now)
		return nil
	})
	r.sched.Every("control", ControlPeriod, func(uint64) error {
		r.loop.Step()
		if r.onControl != nil {
			r.onControl(r.Sample())
		}
		return nil
	})
	r.sched.Every("command", CommandPeriod, func(uint64) error {
		if c, ok := r.inbox.Take(); ok {
			r.loop.Move(float64(c.Speed), float64(c.Turn))
			r.logger.Debug("command", "cmd", c)
		}
		return nil
	})
	r.sched.Every("status", StatusPeriod, func(uint64) error {
		r.logger.Debug("status",
			"tilt", r.device.TiltAngle(), "stage", r.loop.Stage(),
			"omega_ref", r.loop.OmegaRef())
		return nil
	})
	return r, nil
}

func (r *Rig) SetLogger(logger *log.Logger) {
	r.logger = logger
	r.loop.SetLogger(logger)
	r.sched.SetLogger(logger)
}

// OnControl registers fn to receive a sample after every control tick.
func (r *Rig) OnControl(fn func(Sample)) {
	r.onControl = fn
}

// Calibrate runs the calibration sequence with the robot on its back on
// the fixture, then leaves the new values in the encoders, the IMU and the
// store.
func (r *Rig) Calibrate(ctx context.Context) (calib.Record, error) {
	r.world.Place(0)
	r.world.Hold(true, true)
	defer r.world.Hold(false, false)

	c := calib.New(r.cfg.Calib, r.world.bridge, r.left, r.right, r.device, r.store, calib.WaitFunc(r.wait))
	c.SetLogger(r.logger)
	rec, err := c.Run(ctx)
	r.device.Reset()
	if err != nil {
		return rec, err
	}
	r.rec = rec
	return rec, nil
}

func (r *Rig) wait(ctx context.Context, d time.Duration) error {
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := min(d, time.Millisecond)
		r.world.Advance(h)
		d -= h
	}
	return nil
}

// Start stands the robot at tilt degrees and enables the motors.
func (r *Rig) Start(tilt float64) {
	r.world.Place(tilt)
	r.device.Reset()
	r.loop.Reset()
	r.loop.SetEnabled(true)
	r.start = r.clock.Micros()
}

// Step runs d of robot time in 1 ms scheduler ticks.
func (r *Rig) Step(d time.Duration) {
	for ; d > 0; d -= time.Millisecond {
		r.world.Advance(time.Millisecond)
		r.sched.Tick()
	}
}

// Apply performs a scripted event now.
func (r *Rig) Apply(e Event) error {
	if e.Push != 0 {
		r.world.Push(e.Push)
		r.logger.Info("push", "rate", e.Push)
	}
	if e.Command != "" {
		c, err := command.Parse(e.Command)
		if err != nil {
			return err
		}
		r.inbox.Post(c)
	}
	if e.Toggle {
		on := r.loop.Toggle()
		r.logger.Info("toggle", "enabled", on)
	}
	return nil
}

// Elapsed is the robot time since Start.
func (r *Rig) Elapsed() time.Duration {
	return time.Duration(r.clock.Micros()-r.start) * time.Microsecond
}

func (r *Rig) Sample() Sample {
	x := r.world.x
	left, right := r.loop.Setpoints()
	return Sample{
		Time:     r.Elapsed().Seconds(),
		Tilt:     r.device.TiltAngle(),
		TrueTilt: x.TiltDeg(),
		TiltRate: r.device.TiltRate(),
		OmegaRef: r.loop.OmegaRef(),
		Left:     left,
		Right:    right,
		SpeedL:   r.servo.MeasuredSpeed(balance.Left),
		SpeedR:   r.servo.MeasuredSpeed(balance.Right),
		X:        x.X(r.cfg.Plant.WheelRadius),
		Yaw:      x[plant.Yaw] * 180 / math.Pi,
		Stage:    r.loop.Stage(),
	}
}

func (r *Rig) Loop() *balance.Loop           { return r.loop }
func (r *Rig) World() *World                 { return r.world }
func (r *Rig) Device() *imu.Device           { return r.device }
func (r *Rig) Servo() *motor.Servo           { return r.servo }
func (r *Rig) Mailbox() *command.Mailbox     { return r.inbox }
func (r *Rig) Scheduler() *sched.Scheduler   { return r.sched }
func (r *Rig) Calibration() calib.Record     { return r.rec }
func (r *Rig) Encoders() [2]*encoder.Channel { return [2]*encoder.Channel{r.left, r.right} }

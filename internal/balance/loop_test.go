package balance_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/clock"
	"github.com/san-kum/balancer/internal/control"
)

type fakeIMU struct {
	tilt, rate, yaw float64
}

func (f *fakeIMU) TiltAngle() float64 { return f.tilt }
func (f *fakeIMU) TiltRate() float64  { return f.rate }
func (f *fakeIMU) YawRate() float64   { return f.yaw }

type fakeMotors struct {
	setpoint [2]float64
	measured [2]float64
	enabled  bool
	resets   int
}

func (m *fakeMotors) SetSpeed(w balance.Wheel, v float64)   { m.setpoint[w] = v }
func (m *fakeMotors) SetEnabled(enabled bool)               { m.enabled = enabled }
func (m *fakeMotors) MeasuredSpeed(w balance.Wheel) float64 { return m.measured[w] }
func (m *fakeMotors) Reset()                                { m.resets++ }

var _ = Describe("Loop", func() {
	var (
		imu    *fakeIMU
		motors *fakeMotors
		clk    *clock.Manual
		loop   *balance.Loop
	)

	tick := func(n int) {
		for i := 0; i < n; i++ {
			clk.Advance(5 * time.Millisecond)
			loop.Step()
		}
	}

	BeforeEach(func() {
		imu = &fakeIMU{}
		motors = &fakeMotors{}
		clk = clock.NewManual(1_000_000)

		var err error
		loop, err = balance.New(balance.DefaultConfig(), imu, motors, clk)
		Expect(err).NotTo(HaveOccurred())
		loop.SetEnabled(true)
	})

	Describe("balancing", func() {
		It("holds still when upright and at rest", func() {
			tick(10)
			left, right := loop.Setpoints()
			Expect(left).To(BeZero())
			Expect(right).To(BeZero())
			Expect(loop.Stage()).To(Equal(balance.StageIdle))
		})

		It("drives both wheels towards the lean", func() {
			imu.tilt = 5
			loop.Step()

			left, right := loop.Setpoints()
			Expect(left).To(BeNumerically(">", 0))
			Expect(right).To(Equal(left))
			Expect(motors.setpoint[balance.Left]).To(Equal(left))
		})

		It("uses the nominal period on the first tick", func() {
			imu.tilt = 5
			loop.Step()

			p := balance.DefaultParams()
			alpha := 5 * math.Pi / 180
			dalphaRef := 7 * (0 - alpha)
			ddalphaRef := 30 * dalphaRef
			ml := p.PendulumMass * p.PendulumLength
			ddx := (p.PendulumInertia*ddalphaRef - ml*p.Gravity*math.Sin(alpha)) / (ml * math.Cos(alpha))
			want := ddx * p.Period / p.WheelRadius

			Expect(loop.OmegaRef()).To(BeNumerically("~", want, 1e-9))
		})

		It("clamps the wheel reference", func() {
			imu.tilt = 60
			tick(400)
			Expect(math.Abs(loop.OmegaRef())).To(BeNumerically("<=", 40))
		})

		It("splits the turn command between the wheels", func() {
			loop.Move(0, 7)
			loop.Step()

			left, right := loop.Setpoints()
			Expect(left).To(BeNumerically("~", -1, 1e-9))
			Expect(right).To(BeNumerically("~", 1, 1e-9))
		})

		It("maps move commands onto setpoints", func() {
			loop.Move(38, 14)
			loops := loop.Loops()
			Expect(loops.Velocity.Setpoint()).To(BeNumerically("~", -10, 1e-9))
			Expect(loops.Turn.Setpoint()).To(BeNumerically("~", -2, 1e-9))
		})
	})

	Describe("recovery", func() {
		It("brakes within one tick of a fall", func() {
			tick(5)
			imu.tilt = 85
			motors.setpoint = [2]float64{3, 3}

			tick(1)
			Expect(loop.Stage()).To(Equal(balance.StageBraking))
			Expect(motors.setpoint).To(Equal([2]float64{0, 0}))
		})

		It("treats a backwards fall the same way", func() {
			imu.tilt = -81
			tick(1)
			Expect(loop.Stage()).To(Equal(balance.StageBraking))
		})

		It("kicks towards the fall after braking", func() {
			imu.tilt = -85
			tick(1)
			tick(100)
			Expect(loop.Stage()).To(Equal(balance.StageBraking))

			tick(1)
			Expect(loop.Stage()).To(Equal(balance.StageKicking))
			Expect(motors.setpoint).To(Equal([2]float64{-999, -999}))
			Expect(motors.resets).To(Equal(1))
		})

		It("returns to idle with zeroed integrators once upright", func() {
			imu.tilt = 3
			tick(50)
			Expect(loop.Loops().Angle.Integral()).NotTo(BeZero())

			imu.tilt = 85
			tick(1)
			tick(101)
			Expect(loop.Stage()).To(Equal(balance.StageKicking))

			imu.tilt = 30
			tick(1)

			Expect(loop.Stage()).To(Equal(balance.StageIdle))
			Expect(loop.Err()).NotTo(HaveOccurred())
			Expect(loop.OmegaRef()).To(BeZero())
			loops := loop.Loops()
			for _, pid := range []*control.PID{loops.Velocity, loops.Angle, loops.Rate, loops.Turn} {
				Expect(pid.Integral()).To(BeZero())
				Expect(pid.Derivative()).To(BeZero())
			}
			Expect(motors.resets).To(Equal(2))
		})

		It("gives up and disables the motors after the kick window", func() {
			imu.tilt = 85
			tick(1)
			tick(101)
			Expect(loop.Stage()).To(Equal(balance.StageKicking))

			tick(1000)
			Expect(loop.Stage()).To(Equal(balance.StageKicking))

			tick(1)
			Expect(loop.Stage()).To(Equal(balance.StageFailed))
			Expect(loop.Err()).To(MatchError(balance.ErrRecoveryTimeout))
			Expect(motors.enabled).To(BeFalse())

			imu.tilt = 0
			tick(10)
			Expect(loop.Stage()).To(Equal(balance.StageFailed))

			loop.Reset()
			Expect(loop.Stage()).To(Equal(balance.StageIdle))
			Expect(loop.Err()).NotTo(HaveOccurred())
		})
	})

	Describe("toggle", func() {
		It("resets and flips the motor state", func() {
			Expect(loop.Toggle()).To(BeFalse())
			Expect(motors.enabled).To(BeFalse())
			Expect(loop.Toggle()).To(BeTrue())
			Expect(motors.enabled).To(BeTrue())
		})
	})

	Describe("live tuning", func() {
		It("retunes a named loop", func() {
			Expect(loop.SetParam("angle.kp", 8)).To(Succeed())
			kp, _, _ := loop.Loops().Angle.Tunings()
			Expect(kp).To(Equal(8.0))
			Expect(loop.Tunables()).To(HaveKeyWithValue("angle.kp", 8.0))
			Expect(loop.Tunables()).To(HaveLen(16))
		})

		It("rejects unknown names", func() {
			Expect(loop.SetParam("pitch.kp", 1)).To(MatchError(balance.ErrUnknownLoop))
			Expect(loop.SetParam("kp", 1)).To(MatchError(balance.ErrUnknownLoop))
			Expect(loop.SetParam("angle.gain", 1)).To(MatchError(control.ErrUnknownParam))
		})
	})
})

var _ = Describe("Config", func() {
	It("accepts the defaults", func() {
		Expect(balance.DefaultConfig().Validate()).To(Succeed())
	})

	DescribeTable("rejects",
		func(mutate func(*balance.Config)) {
			cfg := balance.DefaultConfig()
			mutate(&cfg)
			Expect(cfg.Validate()).To(MatchError(balance.ErrInvalidConfig))

			_, err := balance.New(cfg, &fakeIMU{}, &fakeMotors{}, clock.NewManual(0))
			Expect(err).To(MatchError(balance.ErrInvalidConfig))
		},
		Entry("zero period", func(c *balance.Config) { c.Params.Period = 0 }),
		Entry("negative wheel radius", func(c *balance.Config) { c.Params.WheelRadius = -1 }),
		Entry("upright above fall angle", func(c *balance.Config) { c.Params.UprightAngle = 85 }),
		Entry("inverted limits", func(c *balance.Config) { c.Gains.Rate.OutputMin = 200 }),
	)

	It("sets gains by tuning name", func() {
		g := balance.DefaultGains()
		Expect(g.Set("rate.kd", 0.5)).To(Succeed())
		Expect(g.Set("turn.setpoint", 2)).To(Succeed())
		Expect(g.Rate.Kd).To(Equal(0.5))
		Expect(g.Turn.Setpoint).To(Equal(2.0))

		Expect(g.Set("rate", 1)).To(MatchError(balance.ErrUnknownLoop))
		Expect(g.Set("yaw.kp", 1)).To(MatchError(balance.ErrUnknownLoop))
		Expect(g.Set("rate.kx", 1)).To(MatchError(control.ErrUnknownParam))
	})
})

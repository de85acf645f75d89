// Package plant models the robot as two DC-motor driven wheels under an
// inverted pendulum.
//
// The wheels are treated as an acceleration source for the pendulum: the
// pendulum's reaction on the motors is folded into the wheel inertia.
//
//	Jw·φ'' = Kt·(V − Ke·φ')/Ra − B·φ'
//	ẍ      = r·(φL'' + φR'')/2
//	J·α''  = m·g·l·sin α − m·l·cos α·ẍ
//	ψ'     = r·(φL' − φR')/track
package plant

import "math"

type Params struct {
	Kt           float64 `yaml:"kt"`            // N·m/A
	Ke           float64 `yaml:"ke"`            // V·s/rad
	Ra           float64 `yaml:"ra"`            // Ω
	WheelInertia float64 `yaml:"wheel_inertia"` // kg·m², per wheel incl. load
	Friction     float64 `yaml:"friction"`      // N·m·s/rad

	WheelRadius float64 `yaml:"wheel_radius"` // m
	Track       float64 `yaml:"track"`        // m, wheel to wheel

	PendulumMass    float64 `yaml:"pendulum_mass"`    // kg
	PendulumLength  float64 `yaml:"pendulum_length"`  // m
	PendulumInertia float64 `yaml:"pendulum_inertia"` // kg·m², about the axle
	Gravity         float64 `yaml:"gravity"`          // m/s²

	// GroundAngle is the tilt at which the body rests on the floor, deg.
	GroundAngle float64 `yaml:"ground_angle"`
}

func DefaultParams() Params {
	return Params{
		Kt:              0.176,
		Ke:              0.176,
		Ra:              3.0,
		WheelInertia:    3.891e-4,
		Friction:        2.279e-4,
		WheelRadius:     0.032,
		Track:           0.095,
		PendulumMass:    0.12,
		PendulumLength:  0.062,
		PendulumInertia: 4.6128e-4,
		Gravity:         9.8,
		GroundAngle:     85,
	}
}

type Robot struct {
	P Params

	// Held pins the body at its current tilt, as when the robot is held in
	// a hand or lies on a calibration fixture. The wheels still turn.
	Held bool

	integ rk4
}

func New(p Params) *Robot {
	return &Robot{P: p}
}

func (r *Robot) wheelAccel(speed, volts float64) float64 {
	p := &r.P
	torque := p.Kt*(volts-p.Ke*speed)/p.Ra - p.Friction*speed
	return torque / p.WheelInertia
}

// Derive returns dx/dt for the given armature voltages.
func (r *Robot) Derive(x State, volts [2]float64) State {
	p := &r.P
	ddl := r.wheelAccel(x[DPhiL], volts[0])
	ddr := r.wheelAccel(x[DPhiR], volts[1])
	ddx := p.WheelRadius * (ddl + ddr) / 2

	dalpha := x[DAlpha]
	ml := p.PendulumMass * p.PendulumLength
	ddalpha := (ml*p.Gravity*math.Sin(x[Alpha]) - ml*math.Cos(x[Alpha])*ddx) / p.PendulumInertia

	if r.Held {
		dalpha, ddalpha = 0, 0
	} else if ground := p.GroundAngle * math.Pi / 180; math.Abs(x[Alpha]) >= ground {
		// The floor pushes back but never pulls.
		if x[Alpha]*dalpha > 0 {
			dalpha = 0
		}
		if x[Alpha]*ddalpha > 0 {
			ddalpha = 0
		}
	}

	d := make(State, len(x))
	d[PhiL] = x[DPhiL]
	d[DPhiL] = ddl
	d[PhiR] = x[DPhiR]
	d[DPhiR] = ddr
	d[Alpha] = dalpha
	d[DAlpha] = ddalpha
	d[Yaw] = p.WheelRadius * (x[DPhiL] - x[DPhiR]) / p.Track
	return d
}

// Step integrates dt seconds with the voltages held constant.
func (r *Robot) Step(x State, volts [2]float64, dt float64) State {
	next := r.integ.step(func(s State) State { return r.Derive(s, volts) }, x, dt)

	if r.Held {
		next[DAlpha] = 0
		return next
	}
	ground := r.P.GroundAngle * math.Pi / 180
	if math.Abs(next[Alpha]) >= ground {
		next[Alpha] = math.Copysign(ground, next[Alpha])
		if next[Alpha]*next[DAlpha] > 0 {
			next[DAlpha] = 0
		}
	}
	return next
}

// YawRate returns the heading rate in rad/s.
func (r *Robot) YawRate(x State) float64 {
	return r.P.WheelRadius * (x[DPhiL] - x[DPhiR]) / r.P.Track
}

// OnGround reports whether the body is resting on the floor.
func (r *Robot) OnGround(x State) bool {
	return math.Abs(x[Alpha]) >= r.P.GroundAngle*math.Pi/180-1e-9
}

// SteadySpeed is the no-load wheel speed reached at a constant voltage.
func (r *Robot) SteadySpeed(volts float64) float64 {
	p := &r.P
	return p.Kt * volts / (p.Kt*p.Ke + p.Friction*p.Ra)
}

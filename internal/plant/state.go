package plant

import "math"

// Indices into State.
const (
	PhiL   = iota // left wheel angle, rad
	DPhiL         // left wheel speed, rad/s
	PhiR          // right wheel angle, rad
	DPhiR         // right wheel speed, rad/s
	Alpha         // body tilt from vertical, rad, positive towards +x
	DAlpha        // tilt rate, rad/s
	Yaw           // heading, rad, clockwise from above
	Dim
)

type State []float64

func NewState() State {
	return make(State, Dim)
}

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// X is the distance travelled by the axle midpoint.
func (s State) X(wheelRadius float64) float64 {
	return wheelRadius * (s[PhiL] + s[PhiR]) / 2
}

func (s State) TiltDeg() float64 {
	return s[Alpha] * 180 / math.Pi
}

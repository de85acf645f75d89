package viz

import "math"

// Scale is dots per metre when drawing the robot.
const Scale = 300.0

// Robot dimensions as drawn, metres.
const (
	drawWheelRadius = 0.032
	drawBodyLength  = 0.124
)

// DrawRobot draws the ground, a wheel at distance x with a spoke at wheel
// angle phi, and the body leaning tilt radians from vertical. x wraps
// around the canvas width.
func DrawRobot(c *Canvas, x, phi, tilt float64) {
	w, h := c.Dots()
	ground := h - 2
	c.DrawLine(0, ground, w-1, ground)

	r := int(math.Round(drawWheelRadius * Scale))
	cx := (int(math.Round(x*Scale))+w/2)%w + w
	cx %= w
	cy := ground - r - 1

	c.DrawCircle(cx, cy, r)
	c.DrawLine(cx, cy,
		cx+int(math.Round(float64(r)*math.Sin(phi))),
		cy-int(math.Round(float64(r)*math.Cos(phi))))

	l := drawBodyLength * Scale
	c.DrawLine(cx, cy,
		cx+int(math.Round(l*math.Sin(tilt))),
		cy-int(math.Round(l*math.Cos(tilt))))
}

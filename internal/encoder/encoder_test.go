package encoder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driveForward feeds cycles forward periods of channel A starting with a
// rising edge at start. Returns the time of the next rising edge.
func driveForward(c *Channel, start, periodUs uint64, duty float64, cycles int) uint64 {
	high := uint64(float64(periodUs) * duty)
	t := start
	for i := 0; i < cycles; i++ {
		c.Edge(true, true, t)
		c.Edge(false, false, t+high)
		t += periodUs
	}
	return t
}

func TestEdgeDecoding(t *testing.T) {
	tests := []struct {
		name string
		a, b bool
		pos  int64
	}{
		{"rising forward", true, true, 1},
		{"rising reverse", true, false, -1},
		{"falling forward", false, false, 1},
		{"falling reverse", false, true, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChannel(0.5, false)
			c.Edge(tt.a, tt.b, 100)
			assert.Equal(t, tt.pos, c.Position())

			r := NewChannel(0.5, true)
			r.Edge(tt.a, tt.b, 100)
			assert.Equal(t, -tt.pos, r.Position())
		})
	}
}

func TestPositionCountsEveryEdge(t *testing.T) {
	c := NewChannel(0.5, false)
	driveForward(c, 0, 1000, 0.5, 25)
	assert.Equal(t, int64(50), c.Position())
	assert.InDelta(t, 50*CountAngle, c.Angle(), 1e-12)
}

func TestSpeedNeedsTwoEdges(t *testing.T) {
	c := NewChannel(0.5, false)
	assert.Equal(t, 0.0, c.Speed(0))

	c.Edge(true, true, 1000)
	assert.Equal(t, 0.0, c.Speed(1100), "one edge gives no speed")
}

func TestSpeedSteady(t *testing.T) {
	c := NewChannel(0.5, false)
	next := driveForward(c, 0, 1000, 0.5, 10)
	lastEdge := next - 500

	// 2 counts per ms.
	want := 2000 * CountAngle
	assert.InDelta(t, want, c.Speed(lastEdge+100), 1e-9)

	r := NewChannel(0.5, true)
	driveForward(r, 0, 1000, 0.5, 10)
	assert.InDelta(t, -want, r.Speed(lastEdge+100), 1e-9)
}

func TestSpeedDecaysWhenEdgesStop(t *testing.T) {
	c := NewChannel(0.5, false)
	next := driveForward(c, 0, 1000, 0.5, 10)
	lastEdge := next - 500

	// 5 ms without an edge bounds the speed to one step over 5 ms.
	assert.InDelta(t, 200*CountAngle, c.Speed(lastEdge+5000), 1e-9)
	assert.Less(t, c.Speed(lastEdge+50000), c.Speed(lastEdge+5000))
}

func TestSpeedUnevenDuty(t *testing.T) {
	duty := 0.3
	c := NewChannel(duty, false)
	driveForward(c, 0, 1000, duty, 9)

	// After a falling edge the A-high half (300 µs, height 0.6) has just
	// completed.
	assert.InDelta(t, 2000*CountAngle, c.Speed(8300+10), 1e-6)

	// After a rising edge it is the A-low half (700 µs, height 1.4).
	c.Edge(true, true, 9000)
	assert.InDelta(t, 2000*CountAngle, c.Speed(9000+10), 1e-6)
}

func TestSpeedZeroOnReversal(t *testing.T) {
	c := NewChannel(0.5, false)
	driveForward(c, 0, 1000, 0.5, 5)
	c.Edge(false, true, 5000)
	assert.Equal(t, 0.0, c.Speed(5100))
}

func TestCalibrationMeasuresDuty(t *testing.T) {
	tests := []float64{0.5, 0.42, 0.61}
	for _, duty := range tests {
		c := NewChannel(0.5, false)
		driveForward(c, 0, 1000, 0.5, 3)

		c.StartCalibration()
		assert.Equal(t, PhasePreparing, c.Phase())

		// Start mid-cycle: the first falling edge must not count.
		c.Edge(false, false, 3200)
		driveForward(c, 4000, 2000, duty, 200)
		assert.Equal(t, PhaseArmed, c.Phase())

		duties, err := EndCalibration(c)
		require.NoError(t, err)
		assert.InDelta(t, duty, duties[0], 1e-3)
		assert.Equal(t, PhaseIdle, c.Phase())
	}
}

func TestCalibrationReversalFailsAllWheels(t *testing.T) {
	left := NewChannel(0.5, false)
	right := NewChannel(0.5, true)
	left.StartCalibration()
	right.StartCalibration()

	driveForward(left, 0, 1000, 0.45, 50)
	next := driveForward(right, 0, 1000, 0.55, 20)
	right.Edge(true, false, next)
	driveForward(right, next+1000, 1000, 0.55, 20)
	assert.Equal(t, PhaseFailed, right.Phase(), "failure is sticky")

	duties, err := EndCalibration(left, right)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirectionReversed))

	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, 1, chErr.Index)
	assert.Equal(t, []float64{0.5, 0.5}, duties)
}

func TestCalibrationWithoutEdges(t *testing.T) {
	c := NewChannel(0.5, false)
	c.StartCalibration()

	duties, err := EndCalibration(c)
	assert.ErrorIs(t, err, ErrNoEdges)
	assert.Equal(t, []float64{0.5}, duties)

	// Armed but no complete half-cycle.
	c.StartCalibration()
	c.Edge(true, true, 10)
	_, err = EndCalibration(c)
	assert.ErrorIs(t, err, ErrNoEdges)
}

func TestSetDuty(t *testing.T) {
	c := NewChannel(0.5, false)
	c.SetDuty(0.4)
	assert.InDelta(t, 0.4, c.Duty(), 1e-12)
	assert.InDelta(t, 0.8, c.m[0], 1e-12)
	assert.InDelta(t, 1.2, c.m[1], 1e-12)
}

type countingSection struct {
	locks int
}

func (s *countingSection) Lock()   { s.locks++ }
func (s *countingSection) Unlock() {}

func TestCriticalSectionIsUsed(t *testing.T) {
	c := NewChannel(0.5, false)
	cs := &countingSection{}
	c.SetCriticalSection(cs)

	c.Edge(true, true, 0)
	c.Speed(10)
	assert.Equal(t, 2, cs.locks)
}

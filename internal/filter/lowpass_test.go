package filter

import (
	"math"
	"testing"
)

func TestLowPassFirstSamplePassesThrough(t *testing.T) {
	l := New(0.1)
	if l.Initialized() {
		t.Fatal("new filter should be uninitialized")
	}
	if got := l.Update(3.5, 1000); got != 3.5 {
		t.Errorf("expected first output 3.5, got %f", got)
	}
	if !l.Initialized() {
		t.Error("filter should be initialized after first update")
	}
}

func TestLowPassStep(t *testing.T) {
	l := New(0.1)
	l.Update(0, 0)

	// 10 ms step towards 1.0 with Tf = 100 ms moves a tenth of the way.
	got := l.Update(1, 10_000)
	if math.Abs(got-0.1) > 1e-12 {
		t.Errorf("expected 0.1, got %f", got)
	}
}

func TestLowPassConverges(t *testing.T) {
	tests := []struct {
		name  string
		tf    float64
		input float64
		dtUs  uint64
	}{
		{"slow", 1.0, 5.0, 5000},
		{"fast", 0.01, -2.0, 1000},
		{"motor servo", 0.005, 12.0, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.tf)
			l.Update(0, 0)

			prevErr := math.Abs(tt.input)
			now := uint64(0)
			for i := 0; i < 5000; i++ {
				now += tt.dtUs
				out := l.Update(tt.input, now)
				e := math.Abs(tt.input - out)
				if e > 1e-9 && e >= prevErr {
					t.Fatalf("step %d: error did not decrease (%g -> %g)", i, prevErr, e)
				}
				prevErr = e
			}
			if prevErr > 1e-3*math.Abs(tt.input) {
				t.Errorf("did not converge: residual %g", prevErr)
			}
		})
	}
}

func TestLowPassReset(t *testing.T) {
	l := New(0.5)
	l.Update(1, 0)
	l.Update(2, 1000)
	l.Reset()

	if got := l.Update(7, 2000); got != 7 {
		t.Errorf("expected bootstrap after reset, got %f", got)
	}
}

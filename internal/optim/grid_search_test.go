package optim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/san-kum/balancer/internal/control"
	"github.com/san-kum/balancer/internal/sim"
)

func shortConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Duration = 300 * time.Millisecond
	return cfg
}

func TestTrials(t *testing.T) {
	g := NewGridSearch([]string{"angle.kp", "rate.kd"}, [][]float64{{1, 2, 3}, {0, 1}})
	if got := g.Trials(); got != 6 {
		t.Errorf("Trials = %d, want 6", got)
	}
	if got := NewGridSearch(nil, nil).Trials(); got != 0 {
		t.Errorf("empty Trials = %d, want 0", got)
	}
}

func TestSearchRejectsUnknownParam(t *testing.T) {
	g := NewGridSearch([]string{"angle.gain"}, [][]float64{{1}})
	_, _, err := g.Search(context.Background(), shortConfig(), "peak_tilt")
	if !errors.Is(err, control.ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
}

func TestSearchRejectsMismatchedRanges(t *testing.T) {
	g := NewGridSearch([]string{"angle.kp", "rate.kp"}, [][]float64{{1}})
	if _, _, err := g.Search(context.Background(), shortConfig(), "peak_tilt"); err == nil {
		t.Error("expected error")
	}
}

func TestSearchFindsReproducibleBest(t *testing.T) {
	base := shortConfig()
	kp := base.Balance.Gains.Velocity.Kp
	values := []float64{kp * 0.5, kp, kp * 1.5}

	for _, maximize := range []bool{false, true} {
		g := NewGridSearch([]string{"velocity.kp"}, [][]float64{values}).Maximize(maximize)
		best, val, err := g.Search(context.Background(), base, "control_effort")
		if err != nil {
			t.Fatal(err)
		}

		got, ok := best["velocity.kp"]
		if !ok {
			t.Fatalf("best params missing velocity.kp: %v", best)
		}

		cfg := base
		cfg.Balance.Gains.Velocity.Kp = got
		res, err := sim.Run(context.Background(), cfg)
		if err != nil {
			t.Fatal(err)
		}
		if res.Metrics["control_effort"] != val {
			t.Errorf("maximize=%v: rerun scored %v, search reported %v", maximize, res.Metrics["control_effort"], val)
		}
	}
}

func TestSearchUnknownMetric(t *testing.T) {
	g := NewGridSearch([]string{"angle.kp"}, [][]float64{{shortConfig().Balance.Gains.Angle.Kp}})
	if _, _, err := g.Search(context.Background(), shortConfig(), "nope"); err == nil {
		t.Error("expected unknown metric error")
	}
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGridSearch([]string{"angle.kp"}, [][]float64{{1, 2}})
	if _, _, err := g.Search(ctx, shortConfig(), "peak_tilt"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

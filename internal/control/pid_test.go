package control

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func velocityConfig() Config {
	return Config{Kp: 0.2, Ki: 0.002, OutputMin: -9.8, OutputMax: 9.8}
}

func TestPIDBootstrapIsProportionalOnly(t *testing.T) {
	p := New(Config{Kp: 2, Ki: 100, Kd: 50, Setpoint: 1, OutputMin: -10, OutputMax: 10})

	if got := p.Compute1(0.5, 1000); got != 1.0 {
		t.Errorf("expected Kp*err = 1.0, got %f", got)
	}
	if p.Integral() != 0 || p.Derivative() != 0 {
		t.Errorf("bootstrap call accumulated I=%f D=%f", p.Integral(), p.Derivative())
	}
}

func TestPIDResetThenCompute(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		input    float64
		expected float64
	}{
		{"inside limits", Config{Kp: 3, Ki: 1, Kd: 1, Setpoint: 2, OutputMin: -10, OutputMax: 10}, 1, 3},
		{"clamped high", Config{Kp: 30, Ki: 1, Setpoint: 2, OutputMin: -10, OutputMax: 10}, 1, 10},
		{"clamped low", Config{Kp: 30, Ki: 1, Setpoint: -2, OutputMin: -5, OutputMax: 10}, 1, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			now := uint64(0)
			for i := 0; i < 100; i++ {
				now += 5000
				p.Compute1(float64(i%7)-3, now)
			}

			p.Reset()
			now += 5000
			if got := p.Compute1(tt.input, now); got != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestPIDIntegralAndDerivative(t *testing.T) {
	p := New(Config{Kp: 1, Ki: 10, Kd: 0.5, OutputMin: -100, OutputMax: 100})

	p.Compute1(1, 0)
	got := p.Compute1(2, 10_000)

	// err = -2, dt = 0.01: I = 10*-2*0.01 = -0.2, D = -0.5*(2-1)/0.01 = -50
	expected := -2 - 0.2 - 50
	if math.Abs(got-expected) > 1e-9 {
		t.Errorf("expected %f, got %f", expected, got)
	}
}

func TestPIDRepeatedTimestampDropsDerivative(t *testing.T) {
	p := New(Config{Kp: 1, Kd: 0.5, OutputMin: -100, OutputMax: 100})

	p.Compute1(1, 0)
	p.Compute1(2, 10_000)
	got := p.Compute1(2, 10_000)

	if p.Derivative() != 0 {
		t.Errorf("expected derivative 0 at dt = 0, got %f", p.Derivative())
	}
	if got != -2 {
		t.Errorf("expected Kp*err = -2, got %f", got)
	}
}

func TestPIDCompute2UsesSuppliedRate(t *testing.T) {
	p := New(Config{Kp: 1, Kd: 2, OutputMin: -100, OutputMax: 100})

	p.Compute2(0, 0, 0)
	got := p.Compute2(0, 3, 5000)
	if math.Abs(got-(-6)) > 1e-12 {
		t.Errorf("expected -Kd*dInput = -6, got %f", got)
	}
}

func TestPIDOutputStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfgs := []Config{
		velocityConfig(),
		{Kp: 7, Ki: 7, OutputMin: -6.28, OutputMax: 6.28},
		{Kp: 30, Ki: 30, Kd: 0.3, OutputMin: -100, OutputMax: 100},
		{Kp: 50, Ki: 500, Kd: 5, OutputMin: 0, OutputMax: 1, DefaultOutput: 0.5},
	}

	for i, cfg := range cfgs {
		p := New(cfg)
		if i%2 == 1 {
			p.LPFConfig(0.01, true)
		}
		now := uint64(0)
		for step := 0; step < 5000; step++ {
			now += uint64(rng.Intn(10_000))
			if step%50 == 0 {
				p.ChangeSetpoint(rng.Float64()*2000 - 1000)
			}

			var out float64
			if step%3 == 0 {
				out = p.Compute2(rng.NormFloat64()*100, rng.NormFloat64()*1000, now)
			} else {
				out = p.Compute1(rng.NormFloat64()*100, now)
			}

			if out < cfg.OutputMin || out > cfg.OutputMax {
				t.Fatalf("cfg %d step %d: output %f outside [%f, %f]", i, step, out, cfg.OutputMin, cfg.OutputMax)
			}
			if p.Integral() < cfg.OutputMin || p.Integral() > cfg.OutputMax {
				t.Fatalf("cfg %d step %d: integral %f wound up", i, step, p.Integral())
			}
		}
	}
}

func TestPIDVelocityScenario(t *testing.T) {
	p := New(velocityConfig())

	prev := math.Inf(1)
	now := uint64(0)
	for i := 0; i < 200; i++ {
		out := p.Compute1(5.0, now)
		if out > 0 {
			t.Fatalf("tick %d: expected non-positive output, got %f", i, out)
		}
		if out > prev {
			t.Fatalf("tick %d: output increased %f -> %f", i, prev, out)
		}
		prev = out
		now += 5000
	}
}

func TestPIDDisabled(t *testing.T) {
	p := New(Config{Kp: 1, Ki: 1, OutputMin: -10, OutputMax: 10, DefaultOutput: 2})
	p.Compute1(0, 0)
	p.Compute1(1, 1000)
	integral := p.Integral()

	p.Cmd(false)
	if got := p.Compute1(100, 2000); got != 2 {
		t.Errorf("disabled compute1 should return default, got %f", got)
	}
	if got := p.Compute2(100, 1, 3000); got != 2 {
		t.Errorf("disabled compute2 should return default, got %f", got)
	}
	if p.Integral() != integral {
		t.Error("disabled controller mutated its integral")
	}

	p.Cmd(true)
	if !p.Enabled() {
		t.Error("expected controller enabled")
	}
}

func TestPIDChangeTuningsKeepsIntegral(t *testing.T) {
	p := New(Config{Kp: 1, Ki: 1, OutputMin: -10, OutputMax: 10})
	p.Compute1(0, 0)
	p.Compute1(-1, 1_000_000)
	before := p.Integral()

	p.ChangeTunings(1, 5, 0)
	if p.Integral() != before {
		t.Errorf("integral rescaled on retune: %f -> %f", before, p.Integral())
	}
}

func TestPIDResetDefaultOutput(t *testing.T) {
	p := New(Config{Kp: 1, OutputMin: -1, OutputMax: 1, DefaultOutput: 0.25})
	p.Compute1(-5, 0)
	p.Reset()
	if p.Output() != 0.25 {
		t.Errorf("expected last output reset to default, got %f", p.Output())
	}
}

func TestPIDSetParam(t *testing.T) {
	p := New(Config{Kp: 1, Ki: 2, Kd: 3, OutputMin: -1, OutputMax: 1})

	if err := p.SetParam("ki", 9); err != nil {
		t.Fatalf("set ki: %v", err)
	}
	if err := p.SetParam("setpoint", 0.5); err != nil {
		t.Fatalf("set setpoint: %v", err)
	}
	params := p.Params()
	if params["ki"] != 9 || params["kp"] != 1 || params["setpoint"] != 0.5 {
		t.Errorf("unexpected params %v", params)
	}

	if err := p.SetParam("gain", 1); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := velocityConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	bad := []Config{
		{OutputMin: 1, OutputMax: -1},
		{OutputMin: -1, OutputMax: 1, DefaultOutput: 2},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidLimits) {
			t.Errorf("expected ErrInvalidLimits for %+v, got %v", cfg, err)
		}
	}
}

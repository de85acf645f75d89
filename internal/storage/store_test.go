package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/sim"
)

func testResult() *sim.Result {
	cfg := sim.DefaultConfig()
	cfg.Seed = 7
	return &sim.Result{
		Config: cfg,
		Trace: []sim.Sample{
			{Time: 0.001, Tilt: 5, TrueTilt: 5.1, OmegaRef: -0.5, Left: 0.5, Right: 0.5},
			{Time: 0.006, Tilt: 85, TrueTilt: 85, Stage: balance.StageBraking},
		},
		Metrics: map[string]float64{"stability": 0.5},
		Stage:   balance.StageBraking,
		Elapsed: 10 * time.Millisecond,
	}
}

func TestSaveLoad(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	id, err := s.Save("push", testResult())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	meta, err := s.Load(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Seed != 7 || meta.Samples != 2 || meta.Stage != "braking" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Metrics["stability"] != 0.5 {
		t.Errorf("expected stability 0.5, got %f", meta.Metrics["stability"])
	}

	trace, err := s.LoadTrace(id)
	if err != nil {
		t.Fatalf("load trace: %v", err)
	}
	if len(trace) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(trace))
	}
	if trace[0].TrueTilt != 5.1 || trace[0].OmegaRef != -0.5 {
		t.Errorf("sample 0 mismatch: %+v", trace[0])
	}
	if trace[1].Stage != balance.StageBraking {
		t.Errorf("expected braking, got %v", trace[1].Stage)
	}
}

func TestSaveUniqueIDs(t *testing.T) {
	s := New(t.TempDir())
	a, err := s.Save("run", testResult())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := s.Save("run", testResult())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if a == b {
		t.Errorf("expected distinct ids, both %s", a)
	}

	runs, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestListMissingDir(t *testing.T) {
	runs, err := New(t.TempDir() + "/nope").List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestLoadNotFound(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LoadTrace("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteTraceHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrace(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != strings.Join(traceHeader, ",") {
		t.Errorf("unexpected header %q", got)
	}
}

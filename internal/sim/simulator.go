// Package sim runs the balance firmware against a physical model of the
// robot. Sensors, encoders and the H-bridge are simulated at the level the
// firmware sees them, so a run exercises the same code paths as the robot.
package sim

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/san-kum/balancer/internal/calib"
	"github.com/san-kum/balancer/internal/metrics"
)

type Simulator struct {
	cfg       Config
	store     calib.Store
	logger    *log.Logger
	observers []Observer
}

func New(cfg Config) *Simulator {
	return &Simulator{
		cfg:       cfg,
		store:     &calib.MemStore{},
		logger:    log.New(io.Discard),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) SetLogger(logger *log.Logger) { s.logger = logger }
func (s *Simulator) AddObserver(o Observer)       { s.observers = append(s.observers, o) }

// SetStore replaces the in-memory calibration store, e.g. with a file.
func (s *Simulator) SetStore(store calib.Store) { s.store = store }

// Run calibrates when configured, stands the robot at the initial tilt and
// balances for the configured duration, replaying events on the way.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	rig, err := NewRig(s.cfg, s.store)
	if err != nil {
		return nil, err
	}
	rig.SetLogger(s.logger)

	result := &Result{
		Config:  s.cfg,
		Metrics: make(map[string]float64),
	}

	if s.cfg.Calibrate {
		if _, err := rig.Calibrate(ctx); err != nil {
			result.Calibration = rig.Calibration()
			return result, err
		}
	}
	result.Calibration = rig.Calibration()

	steps := int(s.cfg.Duration / time.Millisecond)
	result.Trace = make([]Sample, 0, steps/int(ControlPeriod/time.Millisecond)+1)

	ms := metrics.Standard(s.cfg.StableBand)
	rig.OnControl(func(smp Sample) {
		result.Trace = append(result.Trace, smp)
		obs := metrics.Sample{
			Time:  smp.Time,
			Tilt:  smp.TrueTilt,
			Left:  smp.Left,
			Right: smp.Right,
			Stage: smp.Stage,
		}
		for _, m := range ms {
			m.Observe(obs)
		}
		for _, o := range s.observers {
			o.OnSample(smp)
		}
	})

	events := make([]Event, len(s.cfg.Events))
	copy(events, s.cfg.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })

	rig.Start(s.cfg.InitialTilt)
	s.logger.Info("balancing", "tilt", s.cfg.InitialTilt, "duration", s.cfg.Duration, "seed", s.cfg.Seed)

	next := 0
	for i := 0; i < steps; i++ {
		if i%100 == 0 {
			select {
			case <-ctx.Done():
				s.finish(result, rig, ms)
				return result, ctx.Err()
			default:
			}
		}

		for next < len(events) && events[next].At <= rig.Elapsed() {
			if err := rig.Apply(events[next]); err != nil {
				return result, err
			}
			next++
		}

		rig.Step(time.Millisecond)

		if !rig.World().x.IsValid() {
			s.finish(result, rig, ms)
			return result, fmt.Errorf("%w at t=%.3fs", ErrDiverged, rig.Elapsed().Seconds())
		}
	}

	s.finish(result, rig, ms)
	return result, nil
}

func (s *Simulator) finish(result *Result, rig *Rig, ms []metrics.Metric) {
	for k, v := range metrics.Collect(ms) {
		result.Metrics[k] = v
	}
	result.Stage = rig.Loop().Stage()
	result.Elapsed = rig.Elapsed()
	for _, st := range rig.Scheduler().Stats() {
		s.logger.Debug("task", "name", st.Name, "runs", st.Runs, "errors", st.Errors)
	}
}

// Calibrate runs only the calibration sequence and saves the result.
func (s *Simulator) Calibrate(ctx context.Context) (calib.Record, error) {
	cfg := s.cfg
	cfg.Calibrate = true
	if err := cfg.Validate(); err != nil {
		return calib.Default(), err
	}
	rig, err := NewRig(cfg, s.store)
	if err != nil {
		return calib.Default(), err
	}
	rig.SetLogger(s.logger)
	return rig.Calibrate(ctx)
}

// Run is New(cfg).Run(ctx).
func Run(ctx context.Context, cfg Config) (*Result, error) {
	return New(cfg).Run(ctx)
}

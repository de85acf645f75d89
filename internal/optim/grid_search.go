// Package optim tunes balance gains by exhaustive search over simulated
// runs.
package optim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"

	"github.com/charmbracelet/log"

	"github.com/san-kum/balancer/internal/sim"
)

var ErrNoTrials = errors.New("no trial completed")

// GridSearch evaluates every combination of gain values. Names use the
// live-tuning form, e.g. "angle.kp".
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	maximize   bool
	logger     *log.Logger
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, logger: log.New(io.Discard)}
}

// Maximize makes larger metric values better. The default minimizes.
func (g *GridSearch) Maximize(on bool) *GridSearch {
	g.maximize = on
	return g
}

func (g *GridSearch) SetLogger(l *log.Logger) {
	g.logger = l
}

// Trials is the number of simulated runs a search performs.
func (g *GridSearch) Trials() int {
	if len(g.paramNames) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs base once per grid point and returns the best gains with the
// metric they scored. Runs that fail validation or diverge are skipped.
func (g *GridSearch) Search(ctx context.Context, base sim.Config, metric string) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("%d params, %d ranges", len(g.paramNames), len(g.ranges))
	}
	probe := base.Balance.Gains
	for _, name := range g.paramNames {
		if err := probe.Set(name, 0); err != nil {
			return nil, 0, err
		}
	}

	s := &search{
		g:      g,
		base:   base,
		metric: metric,
		best:   math.Inf(1),
	}
	if g.maximize {
		s.best = math.Inf(-1)
	}
	if err := s.walk(ctx, 0, make(map[string]float64)); err != nil {
		return nil, 0, err
	}
	if s.bestParams == nil {
		return nil, 0, ErrNoTrials
	}
	return s.bestParams, s.best, nil
}

type search struct {
	g          *GridSearch
	base       sim.Config
	metric     string
	best       float64
	bestParams map[string]float64
}

func (s *search) walk(ctx context.Context, depth int, current map[string]float64) error {
	if depth == len(s.g.paramNames) {
		return s.trial(ctx, current)
	}

	name := s.g.paramNames[depth]
	for _, val := range s.g.ranges[depth] {
		current[name] = val
		if err := s.walk(ctx, depth+1, current); err != nil {
			return err
		}
	}
	delete(current, name)
	return nil
}

func (s *search) trial(ctx context.Context, params map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := s.base
	for name, val := range params {
		if err := cfg.Balance.Gains.Set(name, val); err != nil {
			return err
		}
	}

	result, err := sim.Run(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.g.logger.Debug("trial skipped", "params", params, "err", err)
		return nil
	}

	val, ok := result.Metrics[s.metric]
	if !ok {
		return fmt.Errorf("unknown metric %q", s.metric)
	}
	s.g.logger.Debug("trial", "params", params, s.metric, val)

	if s.better(val) {
		s.best = val
		s.bestParams = maps.Clone(params)
	}
	return nil
}

func (s *search) better(val float64) bool {
	if s.g.maximize {
		return val > s.best
	}
	return val < s.best
}

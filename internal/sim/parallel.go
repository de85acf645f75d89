package sim

import (
	"context"
	"sync"

	"github.com/san-kum/balancer/internal/calib"
)

// Ensemble repeats a run over consecutive seeds, which changes only the
// sensor noise.
type Ensemble struct {
	base      Config
	numRuns   int
	seedStart int64
	rec       calib.Record
}

func NewEnsemble(cfg Config, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{base: cfg, numRuns: numRuns, seedStart: seedStart}
}

// SetCalibration starts every member from rec instead of the defaults.
func (e *Ensemble) SetCalibration(rec calib.Record) {
	e.rec = rec
}

// Run executes every member concurrently. Each member gets its own
// calibration store, so calibrated runs do not share results.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfg := e.base
			cfg.Seed = e.seedStart + int64(idx)

			store := &calib.MemStore{}
			if e.rec.Valid() {
				if err := store.Save(e.rec); err != nil {
					errs[idx] = err
					return
				}
			}

			s := New(cfg)
			s.SetStore(store)
			results[idx], errs[idx] = s.Run(ctx)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// MeanMetrics averages each metric across results.
func MeanMetrics(results []*Result) map[string]float64 {
	out := make(map[string]float64)
	if len(results) == 0 {
		return out
	}
	for _, r := range results {
		for k, v := range r.Metrics {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(results))
	}
	return out
}

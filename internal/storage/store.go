// Package storage keeps simulation runs on disk, one directory per run
// holding metadata.json and trace.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/calib"
	"github.com/san-kum/balancer/internal/sim"
)

var ErrNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Duration    float64            `json:"duration"`
	InitialTilt float64            `json:"initial_tilt"`
	Calibrated  bool               `json:"calibrated"`
	Events      int                `json:"events"`
	Stage       string             `json:"stage"`
	Samples     int                `json:"samples"`
	Calibration calib.Record       `json:"calibration"`
	Metrics     map[string]float64 `json:"metrics"`
}

var traceHeader = []string{
	"time", "tilt", "true_tilt", "tilt_rate", "omega_ref",
	"left", "right", "speed_l", "speed_r", "x", "yaw", "stage",
}

// Save writes result under a new run directory and returns its ID.
func (s *Store) Save(name string, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", name, now.Unix())
	runDir := filepath.Join(s.baseDir, runID)
	for i := 1; exists(runDir); i++ {
		runID = fmt.Sprintf("%s_%d_%d", name, now.Unix(), i)
		runDir = filepath.Join(s.baseDir, runID)
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Name:        name,
		Timestamp:   now,
		Seed:        result.Config.Seed,
		Duration:    result.Elapsed.Seconds(),
		InitialTilt: result.Config.InitialTilt,
		Calibrated:  result.Config.Calibrate,
		Events:      len(result.Config.Events),
		Stage:       result.Stage.String(),
		Samples:     len(result.Trace),
		Calibration: result.Calibration,
		Metrics:     result.Metrics,
	}
	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, "trace.csv"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := WriteTrace(f, result.Trace); err != nil {
		return "", err
	}
	return runID, f.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// WriteTrace writes samples as CSV with a header row.
func WriteTrace(w io.Writer, trace []sim.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(traceHeader); err != nil {
		return err
	}
	for _, smp := range trace {
		row := []string{
			ff(smp.Time), ff(smp.Tilt), ff(smp.TrueTilt), ff(smp.TiltRate), ff(smp.OmegaRef),
			ff(smp.Left), ff(smp.Right), ff(smp.SpeedL), ff(smp.SpeedR), ff(smp.X), ff(smp.Yaw),
			strconv.Itoa(int(smp.Stage)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTrace reads a run's trace back. Rows that do not parse are skipped.
func (s *Store) LoadTrace(runID string) ([]sim.Sample, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "trace.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	trace := make([]sim.Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(traceHeader) {
			continue
		}
		var v [11]float64
		ok := true
		for i := range v {
			if v[i], err = strconv.ParseFloat(rec[i], 64); err != nil {
				ok = false
				break
			}
		}
		stage, err := strconv.Atoi(rec[11])
		if !ok || err != nil {
			continue
		}
		trace = append(trace, sim.Sample{
			Time: v[0], Tilt: v[1], TrueTilt: v[2], TiltRate: v[3], OmegaRef: v[4],
			Left: v[5], Right: v[6], SpeedL: v[7], SpeedR: v[8], X: v[9], Yaw: v[10],
			Stage: balance.Stage(stage),
		})
	}
	return trace, nil
}

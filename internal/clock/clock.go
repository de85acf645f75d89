// Package clock provides the two time bases the control core runs on: a
// microsecond timestamp for filters and controllers, and a millisecond tick
// counter for coarse timeouts.
package clock

import (
	"sync/atomic"
	"time"
)

type Clock interface {
	Micros() uint64
	Millis() uint32
}

// Wall is a monotonic clock measured from its creation.
type Wall struct {
	start time.Time
}

func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

func (w *Wall) Micros() uint64 {
	return uint64(time.Since(w.start) / time.Microsecond)
}

func (w *Wall) Millis() uint32 {
	return uint32(time.Since(w.start) / time.Millisecond)
}

// Manual only moves when told to. Safe to read from an edge handler while
// the owning goroutine advances it.
type Manual struct {
	us atomic.Uint64
}

func NewManual(startUs uint64) *Manual {
	m := &Manual{}
	m.us.Store(startUs)
	return m
}

func (m *Manual) Micros() uint64 { return m.us.Load() }
func (m *Manual) Millis() uint32 { return uint32(m.us.Load() / 1000) }

func (m *Manual) Advance(d time.Duration) {
	m.us.Add(uint64(d / time.Microsecond))
}

func (m *Manual) Set(us uint64) { m.us.Store(us) }

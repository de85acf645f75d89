// Package sched runs periodic tasks from a single polling loop.
//
// Tasks are kept in a table in registration order and each Tick runs every
// task whose period has elapsed, in that order. A task that falls behind
// runs once and is rescheduled from the current time; missed periods are
// not replayed.
package sched

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/san-kum/balancer/internal/clock"
)

// Task runs one period's work. A returned error is logged and counted;
// the task stays scheduled.
type Task func(nowUs uint64) error

type entry struct {
	name   string
	period uint64
	last   uint64
	ran    bool
	task   Task
	runs   uint64
	errs   uint64
}

// Stat summarises one table entry.
type Stat struct {
	Name   string
	Period time.Duration
	Runs   uint64
	Errors uint64
}

type Scheduler struct {
	clock   clock.Clock
	entries []*entry
	logger  *log.Logger
}

func New(clk clock.Clock) *Scheduler {
	return &Scheduler{clock: clk, logger: log.New(io.Discard)}
}

func (s *Scheduler) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Every appends a task to the table. The first run happens on the next Tick.
func (s *Scheduler) Every(name string, period time.Duration, task Task) {
	s.entries = append(s.entries, &entry{
		name:   name,
		period: uint64(period / time.Microsecond),
		task:   task,
	})
}

// Tick runs every due task once and returns how many ran.
func (s *Scheduler) Tick() int {
	n := 0
	for _, e := range s.entries {
		now := s.clock.Micros()
		if e.ran && now-e.last < e.period {
			continue
		}
		e.last = now
		e.ran = true
		e.runs++
		n++
		if err := e.task(now); err != nil {
			e.errs++
			s.logger.Error("task failed", "task", e.name, "err", err)
		}
	}
	return n
}

// NextDue returns the time until the earliest task is due.
func (s *Scheduler) NextDue() time.Duration {
	if len(s.entries) == 0 {
		return 0
	}
	now := s.clock.Micros()
	var next uint64 = 1<<64 - 1
	for _, e := range s.entries {
		if !e.ran {
			return 0
		}
		elapsed := now - e.last
		if elapsed >= e.period {
			return 0
		}
		if wait := e.period - elapsed; wait < next {
			next = wait
		}
	}
	return time.Duration(next) * time.Microsecond
}

// Run ticks until ctx is done, sleeping between due times.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		s.Tick()
		timer.Reset(s.NextDue())
	}
}

func (s *Scheduler) Stats() []Stat {
	out := make([]Stat, len(s.entries))
	for i, e := range s.entries {
		out[i] = Stat{
			Name:   e.name,
			Period: time.Duration(e.period) * time.Microsecond,
			Runs:   e.runs,
			Errors: e.errs,
		}
	}
	return out
}

// Package sched runs periodic work at four phase-aligned offsets within
// each wall-clock minute: seconds 0, 15, 30, 45. Ticks are computed from
// real time rather than sleep-after-work, so drift never accumulates.
package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/mud"
)

// Phases are the valid second-within-minute offsets.
var Phases = []int{0, 15, 30, 45}

// Func is an event callback. It receives the firing phase and must
// return quickly; long work goes to its own goroutine.
type Func func(ctx context.Context, phase int) error

type entry struct {
	name    string
	phases  map[int]bool
	fn      Func
	enabled bool

	runCount   int64
	errorCount int64
	lastRun    time.Time
}

// Info is a read-only snapshot of one registered event.
type Info struct {
	Name       string
	Phases     []int
	Enabled    bool
	RunCount   int64
	ErrorCount int64
	LastRun    time.Time
}

// Scheduler owns the tick loop and the event table.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string // registration order, for stable listings
	bus     *event.Bus
	log     *zap.Logger
	now     func() time.Time
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		log:     log,
		now:     time.Now,
	}
}

// AnnounceOn makes the scheduler publish a SchedulerTick on bus each
// time a phase fires, before any callbacks run.
func (s *Scheduler) AnnounceOn(bus *event.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus = bus
}

// Register adds a named event firing at the given phases. Registering an
// existing name replaces its callback and phases but keeps counters.
func (s *Scheduler) Register(name string, phases []int, fn Func) error {
	set := make(map[int]bool, len(phases))
	for _, p := range phases {
		if !validPhase(p) {
			return mud.E(mud.Input, "bad_phase", "phase %d is not one of 0/15/30/45", p)
		}
		set[p] = true
	}
	if len(set) == 0 {
		return mud.E(mud.Input, "bad_phase", "event %s needs at least one phase", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.phases = set
		e.fn = fn
		return nil
	}
	s.entries[name] = &entry{name: name, phases: set, fn: fn, enabled: true}
	s.order = append(s.order, name)
	return nil
}

// SetEnabled flips an event on or off.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return mud.E(mud.NotFound, "no_such_event", "no scheduled event named %q", name)
	}
	e.enabled = enabled
	return nil
}

// Describe returns the snapshot for one event.
func (s *Scheduler) Describe(name string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return Info{}, mud.E(mud.NotFound, "no_such_event", "no scheduled event named %q", name)
	}
	return e.info(), nil
}

// List returns snapshots in registration order.
func (s *Scheduler) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].info())
	}
	return out
}

func (e *entry) info() Info {
	phases := make([]int, 0, len(e.phases))
	for p := range e.phases {
		phases = append(phases, p)
	}
	sort.Ints(phases)
	return Info{
		Name:       e.name,
		Phases:     phases,
		Enabled:    e.enabled,
		RunCount:   e.runCount,
		ErrorCount: e.errorCount,
		LastRun:    e.lastRun,
	}
}

// Run blocks until ctx is canceled, firing each phase boundary once.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		now := s.now()
		next := NextPhase(now)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next.Sub(now))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.Fire(ctx, next.Second())
		}
	}
}

// Fire runs every enabled event registered for phase. Exposed for the
// loop and for tests; callbacks run sequentially in registration order.
func (s *Scheduler) Fire(ctx context.Context, phase int) {
	s.mu.Lock()
	bus := s.bus
	due := make([]*entry, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		if e.enabled && e.phases[phase] {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	if bus != nil {
		event.Emit(bus, event.SchedulerTick{Phase: phase, At: s.now()})
	}

	for _, e := range due {
		err := s.runOne(ctx, e, phase)
		s.mu.Lock()
		e.runCount++
		e.lastRun = s.now()
		if err != nil {
			e.errorCount++
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Error("scheduled event failed",
				zap.String("event", e.name),
				zap.Int("phase", phase),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, e *entry, phase int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mud.E(mud.Internal, "event_panic", "event %s panicked: %v", e.name, r)
		}
	}()
	return e.fn(ctx, phase)
}

// NextPhase returns the first phase boundary strictly after now.
func NextPhase(now time.Time) time.Time {
	base := now.Truncate(time.Minute)
	for _, p := range Phases {
		t := base.Add(time.Duration(p) * time.Second)
		if t.After(now) {
			return t
		}
	}
	return base.Add(time.Minute)
}

func validPhase(p int) bool {
	for _, q := range Phases {
		if p == q {
			return true
		}
	}
	return false
}

package fleet

import (
	"sync"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
)

// Snapshot is a consistent view of every axis taken at one instant.
type Snapshot struct {
	Tick       uint64           `json:"tick"`
	Ready      bool             `json:"ready"`
	FirstFault *axis.ID         `json:"first_fault,omitempty"`
	Faults     []axis.ID        `json:"faults"`
	Axes       []monitor.Status `json:"axes"`
}

// Axis returns the status of id from the snapshot.
func (s Snapshot) Axis(id axis.ID) (monitor.Status, bool) {
	for _, status := range s.Axes {
		if status.Axis == id {
			return status, true
		}
	}
	return monitor.Status{}, false
}

// TickResult is the outcome of one polling pass. Transitions holds every
// change since the previous pass in the order it happened, commands included.
// Snapshot is taken under the same lock, after the pass.
type TickResult struct {
	Transitions []monitor.Transition
	Dropped     int
	Snapshot    Snapshot
}

// BulkResult summarizes an EnableAll or DisableAll call.
type BulkResult struct {
	Accepted    []axis.ID            `json:"accepted"`
	Skipped     []axis.ID            `json:"skipped"`
	Faulted     []axis.ID            `json:"faulted"`
	Transitions []monitor.Transition `json:"transitions"`
}

// Fleet owns the monitors for all five axes and is the single holder of
// motor state. Ticks and commands are mutually exclusive; readers always see
// a complete tick or command.
type Fleet struct {
	mu       sync.RWMutex
	monitors [axis.Count]*monitor.Monitor
	tick     uint64
	pending  []monitor.Transition
	dropped  int
}

// maxPending bounds command transitions held between ticks.
const maxPending = 256

// New creates a fleet with every axis disabled.
func New(cfg monitor.Config) *Fleet {
	f := &Fleet{}
	for _, id := range axis.All() {
		f.monitors[id] = monitor.New(id, cfg)
	}
	return f
}

// Tick runs one polling pass over all axes in enumeration order. Axes without
// a reading are fed an invalid reading. Command transitions recorded since
// the previous pass are drained into the result ahead of the pass's own.
func (f *Fleet) Tick(readings map[axis.ID]hlfb.Reading) TickResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tick++
	result := TickResult{
		Transitions: f.pending,
		Dropped:     f.dropped,
	}
	f.pending = nil
	f.dropped = 0
	for _, m := range f.monitors {
		if change := m.Observe(readings[m.Axis()]); change != nil {
			result.Transitions = append(result.Transitions, *change)
		}
	}
	result.Snapshot = f.snapshotLocked()
	return result
}

// Enable issues an enable command to one axis.
func (f *Fleet) Enable(id axis.ID) (monitor.CommandResult, error) {
	if err := axis.Check(id); err != nil {
		return monitor.CommandResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome := f.monitors[id].Enable()
	f.record(outcome.Transition)
	return outcome, nil
}

// Disable issues a disable command to one axis.
func (f *Fleet) Disable(id axis.ID) (monitor.CommandResult, error) {
	if err := axis.Check(id); err != nil {
		return monitor.CommandResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome := f.monitors[id].Disable()
	f.record(outcome.Transition)
	return outcome, nil
}

// EnableAll enables every axis in order. An axis that cannot be enabled does
// not stop the remaining axes.
func (f *Fleet) EnableAll() BulkResult {
	return f.applyAll((*monitor.Monitor).Enable)
}

// DisableAll disables every axis in order.
func (f *Fleet) DisableAll() BulkResult {
	return f.applyAll((*monitor.Monitor).Disable)
}

func (f *Fleet) applyAll(command func(*monitor.Monitor) monitor.CommandResult) BulkResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := BulkResult{
		Accepted: make([]axis.ID, 0, axis.Count),
		Skipped:  make([]axis.ID, 0),
	}
	for _, m := range f.monitors {
		outcome := command(m)
		if outcome.Accepted {
			result.Accepted = append(result.Accepted, m.Axis())
		} else {
			result.Skipped = append(result.Skipped, m.Axis())
		}
		if outcome.Transition != nil {
			result.Transitions = append(result.Transitions, *outcome.Transition)
			f.record(outcome.Transition)
		}
	}
	result.Faulted = f.faultsLocked()
	return result
}

// StatusOf returns a copy of one axis's status.
func (f *Fleet) StatusOf(id axis.ID) (monitor.Status, error) {
	if err := axis.Check(id); err != nil {
		return monitor.Status{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.monitors[id].Status(), nil
}

// Ready reports whether every axis is enabled.
func (f *Fleet) Ready() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.readyLocked()
}

// FirstFault returns the lowest-order faulted axis.
func (f *Fleet) FirstFault() (axis.ID, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	faults := f.faultsLocked()
	if len(faults) == 0 {
		return 0, false
	}
	return faults[0], true
}

// Faults returns every faulted axis in order.
func (f *Fleet) Faults() []axis.ID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.faultsLocked()
}

// Snapshot copies the state of all axes under one lock.
func (f *Fleet) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

func (f *Fleet) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Tick:   f.tick,
		Ready:  f.readyLocked(),
		Faults: f.faultsLocked(),
		Axes:   make([]monitor.Status, 0, axis.Count),
	}
	if len(snapshot.Faults) > 0 {
		first := snapshot.Faults[0]
		snapshot.FirstFault = &first
	}
	for _, m := range f.monitors {
		snapshot.Axes = append(snapshot.Axes, m.Status())
	}
	return snapshot
}

// Reset returns every monitor to its initial state. Monitors are reset in
// place, never recreated, and the tick count carries on.
func (f *Fleet) Reset() []monitor.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	changes := make([]monitor.Transition, 0)
	for _, m := range f.monitors {
		if change := m.Reset(); change != nil {
			changes = append(changes, *change)
			f.record(change)
		}
	}
	return changes
}

// record queues a command transition for the next tick, dropping the oldest
// once the queue is full.
func (f *Fleet) record(change *monitor.Transition) {
	if change == nil {
		return
	}
	if len(f.pending) == maxPending {
		f.pending = f.pending[1:]
		f.dropped++
	}
	f.pending = append(f.pending, *change)
}

func (f *Fleet) readyLocked() bool {
	for _, m := range f.monitors {
		if m.State() != monitor.StateEnabled {
			return false
		}
	}
	return true
}

func (f *Fleet) faultsLocked() []axis.ID {
	faults := make([]axis.ID, 0)
	for _, m := range f.monitors {
		if m.State() == monitor.StateFaulted {
			faults = append(faults, m.Axis())
		}
	}
	return faults
}

package monitor

import (
	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/debounce"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
)

// Config holds the tunables shared by every monitor.
type Config struct {
	Decoder        hlfb.Decoder
	DebounceWindow int
	GraceTicks     int
}

// DefaultConfig returns a digital decoder with the default window and grace.
func DefaultConfig() Config {
	return Config{
		Decoder:        hlfb.DigitalDecoder(),
		DebounceWindow: debounce.DefaultWindow,
		GraceTicks:     DefaultGraceTicks,
	}
}

// Monitor tracks one axis. It is not safe for concurrent use; the fleet
// serializes access.
type Monitor struct {
	id       axis.ID
	decoder  hlfb.Decoder
	filter   *debounce.Filter
	grace    int
	state    State
	motor    MotorStatus
	reason   FaultReason
	enabling int
	tick     uint64
	since    uint64
}

// New creates a monitor in StateDisabled.
func New(id axis.ID, cfg Config) *Monitor {
	grace := cfg.GraceTicks
	if grace < 1 {
		grace = DefaultGraceTicks
	}
	m := &Monitor{
		id:      id,
		state:   StateDisabled,
		decoder: cfg.Decoder,
		filter:  debounce.New(cfg.DebounceWindow),
		grace:   grace,
	}
	m.Reset()
	return m
}

// Axis returns the monitored axis.
func (m *Monitor) Axis() axis.ID {
	return m.id
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return m.state
}

// Enable starts the enable cycle. Only a disabled axis accepts it; a faulted
// axis has to be disabled first.
func (m *Monitor) Enable() CommandResult {
	if m.state != StateDisabled {
		return CommandResult{Axis: m.id, Accepted: false, State: m.state}
	}
	m.motor.Enabled = true
	m.enabling = 0
	change := m.moveTo(StateEnabling, CauseEnable, FaultNone)
	return CommandResult{Axis: m.id, Accepted: true, State: m.state, Transition: &change}
}

// Disable drops the axis to StateDisabled from any state and acknowledges
// any fault.
func (m *Monitor) Disable() CommandResult {
	if m.state == StateDisabled {
		return CommandResult{Axis: m.id, Accepted: false, State: m.state}
	}
	m.motor.Enabled = false
	m.enabling = 0
	change := m.moveTo(StateDisabled, CauseDisable, FaultNone)
	return CommandResult{Axis: m.id, Accepted: true, State: m.state, Transition: &change}
}

// Observe runs one tick of decode, debounce and state evaluation.
func (m *Monitor) Observe(r hlfb.Reading) *Transition {
	m.tick++

	sample := m.decoder.Decode(r)
	stable, _ := m.filter.Push(sample)

	m.motor.Raw = r.Raw
	m.motor.RawValid = r.Valid
	m.motor.Sample = sample
	m.motor.Feedback = stable

	switch m.state {
	case StateEnabling:
		if stable == hlfb.Asserted {
			change := m.moveTo(StateEnabled, CauseFeedback, FaultNone)
			return &change
		}
		m.enabling++
		if m.enabling >= m.grace {
			change := m.moveTo(StateFaulted, CauseGrace, FaultGraceExpired)
			return &change
		}
	case StateEnabled:
		if stable == hlfb.Deasserted {
			change := m.moveTo(StateFaulted, CauseFeedback, FaultFeedbackLost)
			return &change
		}
	}
	return nil
}

// Status returns a copy of the monitor's observable state.
func (m *Monitor) Status() Status {
	return Status{
		Axis:          m.id,
		State:         m.state,
		Motor:         m.motor,
		FaultReason:   m.reason,
		EnablingTicks: m.enabling,
		GraceTicks:    m.grace,
		SinceTick:     m.since,
	}
}

// Reset returns the monitor to its initial state in place. The tick counter
// keeps running. It reports the drop to StateDisabled, or nil when the axis
// was already disabled.
func (m *Monitor) Reset() *Transition {
	var change *Transition
	if m.state != StateDisabled {
		dropped := m.moveTo(StateDisabled, CauseReset, FaultNone)
		change = &dropped
	}
	m.filter.Reset()
	m.state = StateDisabled
	m.motor = MotorStatus{Sample: hlfb.Unknown, Feedback: hlfb.Unknown}
	m.reason = FaultNone
	m.enabling = 0
	m.since = m.tick
	return change
}

func (m *Monitor) moveTo(next State, cause Cause, reason FaultReason) Transition {
	change := Transition{
		Axis:   m.id,
		From:   m.state,
		To:     next,
		Cause:  cause,
		Reason: reason,
		Tick:   m.tick,
	}
	m.state = next
	m.reason = reason
	m.since = m.tick
	return change
}

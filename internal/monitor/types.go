package monitor

import (
	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
)

// State is the lifecycle state of one axis.
type State string

const (
	StateDisabled State = "DISABLED"
	StateEnabling State = "ENABLING"
	StateEnabled  State = "ENABLED"
	StateFaulted  State = "FAULTED"
)

// States lists every lifecycle state in declaration order.
func States() []State {
	return []State{StateDisabled, StateEnabling, StateEnabled, StateFaulted}
}

// FaultReason explains why an axis entered StateFaulted.
type FaultReason string

const (
	FaultNone         FaultReason = ""
	FaultGraceExpired FaultReason = "grace_expired"
	FaultFeedbackLost FaultReason = "feedback_lost"
)

// Cause identifies what drove a transition.
type Cause string

const (
	CauseEnable   Cause = "enable"
	CauseDisable  Cause = "disable"
	CauseFeedback Cause = "feedback"
	CauseGrace    Cause = "grace"
	CauseReset    Cause = "reset"
)

// DefaultGraceTicks is how long an enabling axis may wait for feedback.
const DefaultGraceTicks = 50

// MotorStatus mirrors the per-axis enable flag and feedback line.
type MotorStatus struct {
	Enabled  bool        `json:"enabled"`
	Raw      int         `json:"raw"`
	RawValid bool        `json:"raw_valid"`
	Sample   hlfb.Signal `json:"sample"`
	Feedback hlfb.Signal `json:"feedback"`
}

// Status is a read-only copy of a monitor.
type Status struct {
	Axis          axis.ID     `json:"axis"`
	State         State       `json:"state"`
	Motor         MotorStatus `json:"motor"`
	FaultReason   FaultReason `json:"fault_reason,omitempty"`
	EnablingTicks int         `json:"enabling_ticks"`
	GraceTicks    int         `json:"grace_ticks"`
	SinceTick     uint64      `json:"since_tick"`
}

// Transition records a single state change.
type Transition struct {
	Axis   axis.ID     `json:"axis"`
	From   State       `json:"from"`
	To     State       `json:"to"`
	Cause  Cause       `json:"cause"`
	Reason FaultReason `json:"reason,omitempty"`
	Tick   uint64      `json:"tick"`
}

// CommandResult reports the outcome of an enable or disable command.
type CommandResult struct {
	Axis       axis.ID     `json:"axis"`
	Accepted   bool        `json:"accepted"`
	State      State       `json:"state"`
	Transition *Transition `json:"transition,omitempty"`
}

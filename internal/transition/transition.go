package transition

import (
	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/fleet"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
)

// Severity grades a transition for logging and alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AxisTransition captures one state change of an axis, with the axis's motor
// status at the end of the tick that reported it.
type AxisTransition struct {
	Axis          axis.ID             `json:"axis"`
	PreviousState monitor.State       `json:"previous_state"`
	CurrentState  monitor.State       `json:"current_state"`
	Cause         monitor.Cause       `json:"cause"`
	Severity      Severity            `json:"severity"`
	FaultReason   monitor.FaultReason `json:"fault_reason,omitempty"`
	Enabled       bool                `json:"enabled"`
	Feedback      hlfb.Signal         `json:"feedback"`
	Raw           int                 `json:"raw"`
	Tick          uint64              `json:"tick"`
}

// Report is the outcome of one fleet tick.
type Report struct {
	Transitions   []AxisTransition `json:"transitions"`
	ReadyChanged  bool             `json:"ready_changed"`
	PreviousReady bool             `json:"previous_ready"`
	Ready         bool             `json:"ready"`
}

// Build turns the transitions reported by a fleet tick into a report.
// Transitions keep the order the fleet recorded them in; previousReady is
// the readiness reported by the tick before.
func Build(previousReady bool, result fleet.TickResult) Report {
	report := Report{
		Transitions:   make([]AxisTransition, 0, len(result.Transitions)),
		PreviousReady: previousReady,
		Ready:         result.Snapshot.Ready,
		ReadyChanged:  previousReady != result.Snapshot.Ready,
	}

	for _, change := range result.Transitions {
		status, _ := result.Snapshot.Axis(change.Axis)
		report.Transitions = append(report.Transitions, AxisTransition{
			Axis:          change.Axis,
			PreviousState: change.From,
			CurrentState:  change.To,
			Cause:         change.Cause,
			Severity:      severityOf(change.From, change.To),
			FaultReason:   change.Reason,
			Enabled:       status.Motor.Enabled,
			Feedback:      status.Motor.Feedback,
			Raw:           status.Motor.Raw,
			Tick:          change.Tick,
		})
	}

	return report
}

// Notable keeps transitions into or out of Faulted.
func Notable(transitions []AxisTransition) []AxisTransition {
	out := make([]AxisTransition, 0, len(transitions))
	for _, change := range transitions {
		if change.CurrentState == monitor.StateFaulted || change.PreviousState == monitor.StateFaulted {
			out = append(out, change)
		}
	}
	return out
}

func severityOf(previous, current monitor.State) Severity {
	switch {
	case current == monitor.StateFaulted:
		return SeverityCritical
	case previous == monitor.StateEnabled && current == monitor.StateDisabled:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

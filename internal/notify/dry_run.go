package notify

import (
	"context"

	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs transitions without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, machine string, transitions []transition.AxisTransition) error {
	for _, change := range transitions {
		n.logger.Info().
			Str("machine", machineLabel(machine)).
			Str("axis", change.Axis.String()).
			Str("previous_state", string(change.PreviousState)).
			Str("current_state", string(change.CurrentState)).
			Str("fault_reason", string(change.FaultReason)).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}

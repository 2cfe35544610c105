package notify

import (
	"context"

	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// NoopNotifier drops notifications. It stands in for a channel that is not
// configured so callers never need a nil check.
type NoopNotifier struct {
	logger zerolog.Logger
	reason string
}

// NewNoop logs reason once at construction.
func NewNoop(logger zerolog.Logger, reason string) *NoopNotifier {
	if reason != "" {
		logger.Info().Msg(reason)
	}
	return &NoopNotifier{logger: logger, reason: reason}
}

// Notify implements Notifier.
func (n *NoopNotifier) Notify(_ context.Context, machine string, transitions []transition.AxisTransition) error {
	if len(transitions) > 0 {
		n.logger.Debug().
			Str("machine", machineLabel(machine)).
			Int("transitions", len(transitions)).
			Str("reason", n.reason).
			Msg("notification dropped")
	}
	return nil
}

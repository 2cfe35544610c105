package notify

import (
	"context"

	"github.com/nholik/hlfb-sentinel/internal/transition"
)

// Notifier delivers axis transition alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, machine string, transitions []transition.AxisTransition) error
}

func machineLabel(machine string) string {
	if machine == "" {
		return "default"
	}
	return machine
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// Publisher is the subset of *nats.Conn used for delivery.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSEvent is the message published for each transition.
type NATSEvent struct {
	ID          string                    `json:"id"`
	Machine     string                    `json:"machine"`
	Transition  transition.AxisTransition `json:"transition"`
	PublishedAt time.Time                 `json:"published_at"`
}

// NATSNotifier publishes one event per transition to a subject.
type NATSNotifier struct {
	logger  zerolog.Logger
	pub     Publisher
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to a NATS server.
func NewNATSNotifier(logger zerolog.Logger, url, subject string) (*NATSNotifier, error) {
	opts := []nats.Option{
		nats.Name("hlfb-sentinel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	n := NewNATSNotifierWithPublisher(logger, nc, subject)
	n.conn = nc
	return n, nil
}

// NewNATSNotifierWithPublisher builds a notifier over an existing publisher.
func NewNATSNotifierWithPublisher(logger zerolog.Logger, pub Publisher, subject string) *NATSNotifier {
	return &NATSNotifier{logger: logger, pub: pub, subject: subject}
}

// Notify implements Notifier. The subject is suffixed with the machine name.
func (n *NATSNotifier) Notify(ctx context.Context, machine string, transitions []transition.AxisTransition) error {
	machineName := machineLabel(machine)
	subject := n.subject + "." + machineName
	for _, change := range transitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(NATSEvent{
			ID:          uuid.NewString(),
			Machine:     machineName,
			Transition:  change,
			PublishedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal nats event: %w", err)
		}
		if err := n.pub.Publish(subject, payload); err != nil {
			return fmt.Errorf("publish nats event: %w", err)
		}
	}

	n.logger.Debug().
		Str("subject", subject).
		Int("transitions", len(transitions)).
		Msg("nats events published")
	return nil
}

// Close drains the connection when the notifier owns one.
func (n *NATSNotifier) Close() {
	if n.conn == nil {
		return
	}
	_ = n.conn.Drain()
}

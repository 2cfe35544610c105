package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTTNotifier publishes each transition to <topic>/<machine>/<axis>.
type MQTTNotifier struct {
	logger zerolog.Logger
	client mqtt.Client
	topic  string
}

// NewMQTTNotifier connects to broker. The client reconnects on its own after
// the first successful connection.
func NewMQTTNotifier(logger zerolog.Logger, broker, topic, machine string) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("hlfb-sentinel-%s-%s", machineLabel(machine), uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", broker).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", broker, err)
	}
	return NewMQTTNotifierWithClient(logger, client, topic), nil
}

// NewMQTTNotifierWithClient builds a notifier over an existing client.
func NewMQTTNotifierWithClient(logger zerolog.Logger, client mqtt.Client, topic string) *MQTTNotifier {
	return &MQTTNotifier{logger: logger, client: client, topic: topic}
}

// Notify implements Notifier.
func (n *MQTTNotifier) Notify(ctx context.Context, machine string, transitions []transition.AxisTransition) error {
	machineName := machineLabel(machine)
	for _, change := range transitions {
		payload, err := json.Marshal(change)
		if err != nil {
			return fmt.Errorf("marshal mqtt payload: %w", err)
		}
		topic := fmt.Sprintf("%s/%s/%s", n.topic, machineName, change.Axis)
		token := n.client.Publish(topic, mqttQoS, false, payload)
		if err := waitToken(ctx, token); err != nil {
			return fmt.Errorf("publish mqtt %s: %w", topic, err)
		}
	}

	n.logger.Debug().
		Str("topic", n.topic).
		Int("transitions", len(transitions)).
		Msg("mqtt messages published")
	return nil
}

// Close disconnects, allowing in-flight publishes a short time to finish.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(mqttPublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", mqttPublishTimeout)
	}
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, completed bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if completed {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type mqttMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeMQTTClient overrides the calls the notifier makes; anything else panics.
type fakeMQTTClient struct {
	mqtt.Client
	published    []mqttMessage
	token        func() mqtt.Token
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, mqttMessage{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if c.token != nil {
		return c.token()
	}
	return newFakeToken(nil, true)
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTNotifierPublishesPerAxisTopic(t *testing.T) {
	client := &fakeMQTTClient{}
	notifier := NewMQTTNotifierWithClient(zerolog.Nop(), client, "plant/hlfb")

	require.NoError(t, notifier.Notify(context.Background(), "mill-1", makeTransitions(2)))
	require.Len(t, client.published, 2)

	assert.Equal(t, "plant/hlfb/mill-1/X", client.published[0].topic)
	assert.Equal(t, "plant/hlfb/mill-1/XP", client.published[1].topic)
	assert.Equal(t, byte(mqttQoS), client.published[0].qos)
	assert.False(t, client.published[0].retained)

	var decoded transition.AxisTransition
	require.NoError(t, json.Unmarshal(client.published[1].payload, &decoded))
	assert.Equal(t, makeTransitions(2)[1], decoded)

	notifier.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTNotifierPublishError(t *testing.T) {
	client := &fakeMQTTClient{token: func() mqtt.Token {
		return newFakeToken(errors.New("not connected"), true)
	}}
	notifier := NewMQTTNotifierWithClient(zerolog.Nop(), client, "plant/hlfb")

	err := notifier.Notify(context.Background(), "mill-1", makeTransitions(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
	assert.Len(t, client.published, 1, "publishing stops at the first failure")
}

func TestMQTTNotifierHonorsContext(t *testing.T) {
	client := &fakeMQTTClient{token: func() mqtt.Token {
		return newFakeToken(nil, false)
	}}
	notifier := NewMQTTNotifierWithClient(zerolog.Nop(), client, "plant/hlfb")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := notifier.Notify(ctx, "mill-1", makeTransitions(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	messages []published
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{subject: subject, data: data})
	return nil
}

func TestNATSNotifierPublishesOneEventPerTransition(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewNATSNotifierWithPublisher(zerolog.Nop(), pub, "hlfb.transitions")

	require.NoError(t, notifier.Notify(context.Background(), "mill-1", makeTransitions(2)))
	require.Len(t, pub.messages, 2)

	ids := map[string]bool{}
	for i, msg := range pub.messages {
		assert.Equal(t, "hlfb.transitions.mill-1", msg.subject)

		var event NATSEvent
		require.NoError(t, json.Unmarshal(msg.data, &event))
		_, err := uuid.Parse(event.ID)
		assert.NoError(t, err)
		ids[event.ID] = true
		assert.Equal(t, "mill-1", event.Machine)
		assert.Equal(t, axis.All()[i], event.Transition.Axis)
		assert.Equal(t, monitor.StateFaulted, event.Transition.CurrentState)
		assert.False(t, event.PublishedAt.IsZero())
	}
	assert.Len(t, ids, 2)
}

func TestNATSNotifierPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	notifier := NewNATSNotifierWithPublisher(zerolog.Nop(), pub, "hlfb.transitions")

	err := notifier.Notify(context.Background(), "", makeTransitions(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish nats event")
}

func TestNATSNotifierStopsOnCanceledContext(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewNATSNotifierWithPublisher(zerolog.Nop(), pub, "hlfb.transitions")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := notifier.Notify(ctx, "mill-1", makeTransitions(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.messages)
	notifier.Close()
}

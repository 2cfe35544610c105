package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

func TestBuildSlackMessagesSingle(t *testing.T) {
	messages := buildSlackMessages("mill-1", makeTransitions(2))
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	msg := messages[0]
	if !strings.Contains(msg.Text, "Machine mill-1") {
		t.Fatalf("expected summary to include machine name, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "2 axis transition") {
		t.Fatalf("expected summary to include transition count, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "2 fault(s)") {
		t.Fatalf("expected summary to include fault count, got %q", msg.Text)
	}
	if msg.Blocks == nil {
		t.Fatalf("expected blocks to be set")
	}
	if len(msg.Blocks.BlockSet) != slackReservedBlocks+2 {
		t.Fatalf("expected %d blocks, got %d", slackReservedBlocks+2, len(msg.Blocks.BlockSet))
	}
}

func TestBuildSlackMessagesRecoveryOmitsFaultCount(t *testing.T) {
	recovered := []transition.AxisTransition{{
		Axis:          axis.Z,
		PreviousState: monitor.StateFaulted,
		CurrentState:  monitor.StateDisabled,
		Severity:      transition.SeverityInfo,
	}}

	messages := buildSlackMessages("mill-1", recovered)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if strings.Contains(messages[0].Text, "fault(s)") {
		t.Fatalf("expected no fault count for a recovery, got %q", messages[0].Text)
	}
}

func TestBuildTransitionBlockIncludesReason(t *testing.T) {
	block := buildTransitionBlock(makeTransitions(1)[0])
	section, ok := block.(*slack.SectionBlock)
	if !ok {
		t.Fatalf("expected section block, got %T", block)
	}
	if !strings.Contains(section.Text.Text, "Axis X") {
		t.Fatalf("expected axis in title, got %q", section.Text.Text)
	}
	if !strings.Contains(section.Text.Text, "`ENABLED` → `FAULTED`") {
		t.Fatalf("expected state change in title, got %q", section.Text.Text)
	}
	if len(section.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(section.Fields))
	}
	if !strings.Contains(section.Fields[0].Text, "feedback dropped") {
		t.Fatalf("expected fault reason field, got %q", section.Fields[0].Text)
	}
}

func TestBuildSlackMessagesChunking(t *testing.T) {
	total := slackMaxTransitions*2 + 3
	transitions := makeTransitions(total)

	messages := buildSlackMessages("mill-2", transitions)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}

	for i, msg := range messages {
		if msg.Blocks == nil {
			t.Fatalf("message %d missing blocks", i)
		}
		if len(msg.Blocks.BlockSet) > slackMaxBlocks {
			t.Fatalf("message %d exceeds block limit: %d", i, len(msg.Blocks.BlockSet))
		}
		if !strings.Contains(msg.Text, fmt.Sprintf("part %d/3", i+1)) {
			t.Fatalf("message %d missing part marker: %q", i, msg.Text)
		}
		if !strings.Contains(msg.Text, fmt.Sprintf("%d axis transition", total)) {
			t.Fatalf("message %d missing total count: %q", i, msg.Text)
		}
	}
}

func TestSlackNotifierEmptyWebhookIsNoop(t *testing.T) {
	notifier := NewSlackNotifier(zerolog.Nop(), "")
	if _, ok := notifier.(*NoopNotifier); !ok {
		t.Fatalf("expected NoopNotifier, got %T", notifier)
	}
}

func TestSlackNotifierPostsJSON(t *testing.T) {
	t.Parallel()

	var received slack.WebhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.New(io.Discard), server.URL,
		WithSlackTiming(time.Millisecond, 1, time.Millisecond, 2*time.Millisecond, 20*time.Millisecond),
	)
	if err := notifier.Notify(context.Background(), "", makeTransitions(1)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if !strings.Contains(received.Text, "Machine default") {
		t.Fatalf("expected default machine label, got %q", received.Text)
	}
}

func TestSlackNotifierRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.New(io.Discard), server.URL,
		WithSlackTiming(time.Millisecond, 1, 5*time.Millisecond, 10*time.Millisecond, 50*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, "mill-1", makeTransitions(1)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSlackNotifierRetryAfterError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.New(io.Discard), server.URL)
	slackNotifier, ok := notifier.(*SlackNotifier)
	if !ok {
		t.Fatalf("expected SlackNotifier, got %T", notifier)
	}

	err := slackNotifier.postOnce(context.Background(), []byte(`{}`))
	var retryAfterErr *retryAfterError
	if !errors.As(err, &retryAfterErr) {
		t.Fatalf("expected retry-after error, got %v", err)
	}
	if retryAfterErr.Duration != 2*time.Second {
		t.Fatalf("expected 2s retry-after, got %s", retryAfterErr.Duration)
	}
}

func TestSlackNotifierRateLimitPerMachine(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.New(io.Discard), server.URL,
		WithSlackTiming(500*time.Millisecond, 1, time.Millisecond, 2*time.Millisecond, 20*time.Millisecond),
	)

	if err := notifier.Notify(context.Background(), "mill-1", makeTransitions(1)); err != nil {
		t.Fatalf("expected first notify to succeed, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, "mill-1", makeTransitions(1)); err == nil {
		t.Fatalf("expected rate limit error, got nil")
	}
	if err := notifier.Notify(context.Background(), "mill-2", makeTransitions(1)); err != nil {
		t.Fatalf("expected other machine to have its own budget, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestSlackNotifierClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid_blocks"))
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.New(io.Discard), server.URL,
		WithSlackTiming(time.Millisecond, 1, time.Millisecond, 2*time.Millisecond, 20*time.Millisecond),
	)

	err := notifier.Notify(context.Background(), "mill-1", makeTransitions(1))
	if err == nil {
		t.Fatalf("expected error for 400 response, got nil")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "invalid_blocks") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 call, got %d", got)
	}
}

func TestSlackNotifierContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.New(io.Discard), server.URL,
		WithSlackTiming(time.Millisecond, 1, 100*time.Millisecond, 200*time.Millisecond, time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := notifier.Notify(ctx, "mill-1", makeTransitions(1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled error, got %v", err)
	}
}

func makeTransitions(count int) []transition.AxisTransition {
	transitions := make([]transition.AxisTransition, count)
	for i := 0; i < count; i++ {
		transitions[i] = transition.AxisTransition{
			Axis:          axis.All()[i%axis.Count],
			PreviousState: monitor.StateEnabled,
			CurrentState:  monitor.StateFaulted,
			Severity:      transition.SeverityCritical,
			FaultReason:   monitor.FaultFeedbackLost,
			Enabled:       true,
			Feedback:      hlfb.Deasserted,
			Tick:          uint64(i + 1),
		}
	}
	return transitions
}

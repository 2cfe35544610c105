package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

func TestWebhookNotifierTemplateRendering(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, `{"machine":"{{ .Machine }}","count":{{ len .Transitions }}}`)
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}

	if err := notifier.Notify(context.Background(), "lathe", makeTransitions(1)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	if !strings.Contains(body, `"machine":"lathe"`) {
		t.Fatalf("expected machine in payload, got %s", body)
	}
	if !strings.Contains(body, `"count":1`) {
		t.Fatalf("expected count in payload, got %s", body)
	}
}

func TestWebhookNotifierDefaultTemplate(t *testing.T) {
	var payload struct {
		Machine  string `json:"machine"`
		Severity string `json:"severity"`
		Faults   []struct {
			Axis   string `json:"axis"`
			Reason string `json:"reason"`
			Detail string `json:"detail"`
			Tick   uint64 `json:"tick"`
		} `json:"faults"`
		Cleared     []string `json:"cleared"`
		Transitions []struct {
			Axis         string `json:"axis"`
			CurrentState string `json:"current_state"`
			FaultReason  string `json:"fault_reason"`
		} `json:"transitions"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Errorf("payload is not JSON: %v (%s)", err, data)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	if err := notifier.Notify(context.Background(), "lathe", makeTransitions(2)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	if payload.Machine != "lathe" {
		t.Fatalf("expected machine lathe, got %q", payload.Machine)
	}
	if len(payload.Transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(payload.Transitions))
	}
	if payload.Transitions[1].Axis != "XP" || payload.Transitions[1].CurrentState != "FAULTED" {
		t.Fatalf("unexpected transition payload: %+v", payload.Transitions[1])
	}
	if payload.Transitions[0].FaultReason != "feedback_lost" {
		t.Fatalf("expected fault reason, got %q", payload.Transitions[0].FaultReason)
	}
	if payload.Severity != "critical" {
		t.Fatalf("expected critical severity, got %q", payload.Severity)
	}
	if len(payload.Faults) != 2 || payload.Faults[1].Axis != "XP" || payload.Faults[1].Tick != 2 {
		t.Fatalf("unexpected faults: %+v", payload.Faults)
	}
	if payload.Faults[0].Detail != "feedback dropped while enabled" {
		t.Fatalf("expected fault detail, got %q", payload.Faults[0].Detail)
	}
	if payload.Cleared == nil || len(payload.Cleared) != 0 {
		t.Fatalf("expected empty cleared list, got %v", payload.Cleared)
	}
}

func TestWebhookPayloadSplitsFaultsAndClears(t *testing.T) {
	transitions := []transition.AxisTransition{
		{Axis: axis.Y, PreviousState: monitor.StateFaulted, CurrentState: monitor.StateDisabled, Severity: transition.SeverityInfo},
		{Axis: axis.Z, PreviousState: monitor.StateEnabling, CurrentState: monitor.StateFaulted, Severity: transition.SeverityCritical, FaultReason: monitor.FaultGraceExpired, Tick: 50},
		{Axis: axis.A, PreviousState: monitor.StateFaulted, CurrentState: monitor.StateDisabled, Severity: transition.SeverityInfo},
	}

	payload := newWebhookPayload("mill", transitions)

	if payload.Severity != transition.SeverityCritical {
		t.Fatalf("expected worst severity critical, got %s", payload.Severity)
	}
	if len(payload.Faults) != 1 || payload.Faults[0].Axis != axis.Z || payload.Faults[0].Reason != monitor.FaultGraceExpired {
		t.Fatalf("unexpected faults: %+v", payload.Faults)
	}
	if len(payload.Cleared) != 2 || payload.Cleared[0] != axis.Y || payload.Cleared[1] != axis.A {
		t.Fatalf("unexpected cleared axes: %v", payload.Cleared)
	}

	clearedOnly := newWebhookPayload("mill", transitions[:1])
	if clearedOnly.Severity != transition.SeverityInfo || len(clearedOnly.Faults) != 0 {
		t.Fatalf("expected an info batch without faults, got %+v", clearedOnly)
	}
}

func TestWebhookNotifierTemplateFuncs(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tmpl := `{{ .Severity }} cleared={{ axes .Cleared }}{{ range .Faults }} {{ .Axis }}: {{ faultDetail .Reason }}{{ end }}`
	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, tmpl)
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}

	transitions := []transition.AxisTransition{
		{Axis: axis.X, PreviousState: monitor.StateFaulted, CurrentState: monitor.StateDisabled, Severity: transition.SeverityInfo},
		{Axis: axis.XP, PreviousState: monitor.StateFaulted, CurrentState: monitor.StateDisabled, Severity: transition.SeverityInfo},
		{Axis: axis.Y, PreviousState: monitor.StateEnabling, CurrentState: monitor.StateFaulted, Severity: transition.SeverityCritical, FaultReason: monitor.FaultGraceExpired},
	}
	if err := notifier.Notify(context.Background(), "lathe", transitions); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	want := "critical cleared=X,XP Y: feedback never asserted within the enable grace period"
	if body != want {
		t.Fatalf("expected %q, got %q", want, body)
	}
}

func TestWebhookNotifierRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	notifier.poster.timing.backoffInitial = time.Millisecond
	notifier.poster.timing.backoffMax = 2 * time.Millisecond
	notifier.poster.timing.backoffMaxElapsed = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, "lathe", makeTransitions(1)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookNotifierEmptyURL(t *testing.T) {
	notifier, err := NewWebhookNotifier(zerolog.Nop(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier != nil {
		t.Fatalf("expected nil notifier for empty URL")
	}
}

func TestWebhookNotifierInvalidTemplate(t *testing.T) {
	_, err := NewWebhookNotifier(zerolog.Nop(), "http://example.com", "{{")
	if err == nil {
		t.Fatalf("expected template error")
	}
}

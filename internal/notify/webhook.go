package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"machine":"{{ .Machine }}","severity":"{{ .Severity }}","faults":{{ toJson .Faults }},"cleared":{{ toJson .Cleared }},"transitions":{{ toJson .Transitions }}}`

// AxisFault is one axis that entered Faulted in a notification batch.
type AxisFault struct {
	Axis   axis.ID             `json:"axis"`
	Reason monitor.FaultReason `json:"reason"`
	Detail string              `json:"detail"`
	Tick   uint64              `json:"tick"`
}

// WebhookPayload is the template context for webhook notifications.
//
// Faults and Cleared are derived from Transitions: an axis is listed in
// Faults when it entered Faulted and in Cleared when it left it. Severity is
// the worst severity in the batch.
type WebhookPayload struct {
	Machine     string
	Severity    transition.Severity
	Faults      []AxisFault
	Cleared     []axis.ID
	Transitions []transition.AxisTransition
	GeneratedAt time.Time
}

func newWebhookPayload(machine string, transitions []transition.AxisTransition) WebhookPayload {
	payload := WebhookPayload{
		Machine:     machine,
		Severity:    transition.SeverityInfo,
		Faults:      make([]AxisFault, 0),
		Cleared:     make([]axis.ID, 0),
		Transitions: transitions,
		GeneratedAt: time.Now().UTC(),
	}
	for _, change := range transitions {
		if severityRank(change.Severity) > severityRank(payload.Severity) {
			payload.Severity = change.Severity
		}
		switch {
		case change.CurrentState == monitor.StateFaulted:
			payload.Faults = append(payload.Faults, AxisFault{
				Axis:   change.Axis,
				Reason: change.FaultReason,
				Detail: faultReasonText(change.FaultReason),
				Tick:   change.Tick,
			})
		case change.PreviousState == monitor.StateFaulted:
			payload.Cleared = append(payload.Cleared, change.Axis)
		}
	}
	return payload
}

func severityRank(severity transition.Severity) int {
	switch severity {
	case transition.SeverityCritical:
		return 2
	case transition.SeverityWarning:
		return 1
	default:
		return 0
	}
}

// WebhookNotifier renders fault batches through a text template and posts
// them to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier returns nil when webhookURL is empty. An empty template
// selects the default JSON body.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(webhookFuncs()).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

func webhookFuncs() template.FuncMap {
	return template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
		"axes": func(ids []axis.ID) string {
			names := make([]string, 0, len(ids))
			for _, id := range ids {
				names = append(names, id.String())
			}
			return strings.Join(names, ",")
		},
		"faultDetail": faultReasonText,
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, machine string, transitions []transition.AxisTransition) error {
	if len(transitions) == 0 || n == nil {
		return nil
	}

	machineName := machineLabel(machine)
	if err := n.poster.waitForRateLimit(ctx, machineName); err != nil {
		return err
	}

	payload := newWebhookPayload(machineName, transitions)

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("machine", machineName).
		Str("severity", string(payload.Severity)).
		Int("faults", len(payload.Faults)).
		Int("cleared", len(payload.Cleared)).
		Msg("webhook notification sent")

	return nil
}

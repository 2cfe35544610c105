package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// header block + context block in each message
	slackReservedBlocks = 2
	slackMaxTransitions = slackMaxBlocks - slackReservedBlocks
)

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; slack notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, machine string, transitions []transition.AxisTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	machineName := machineLabel(machine)
	if err := n.poster.waitForRateLimit(ctx, machineName); err != nil {
		return err
	}

	messages := buildSlackMessages(machineName, transitions)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.poster.postWithRetry(ctx, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Str("machine", machineName).
		Int("transitions", len(transitions)).
		Int("messages", len(messages)).
		Msg("slack notification sent")

	return nil
}

func (n *SlackNotifier) postOnce(ctx context.Context, payload []byte) error {
	return n.poster.postOnce(ctx, payload)
}

func buildSlackMessages(machine string, transitions []transition.AxisTransition) []slack.WebhookMessage {
	if len(transitions) == 0 {
		return nil
	}

	total := len(transitions)
	chunkTotal := (total + slackMaxTransitions - 1) / slackMaxTransitions
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxTransitions {
		end := i + slackMaxTransitions
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxTransitions) + 1
		messages = append(messages, buildSlackMessage(machine, transitions[i:end], total, partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(machine string, transitions []transition.AxisTransition, total int, partIndex int, partTotal int) slack.WebhookMessage {
	summary := fmt.Sprintf("Machine %s: %d axis transition(s)", machine, total)
	if faults := countFaults(transitions); faults > 0 {
		summary = fmt.Sprintf("%s, %d fault(s)", summary, faults)
	}
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Machine: *%s*", machine), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	context := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, context}
	for _, change := range transitions {
		blocks = append(blocks, buildTransitionBlock(change))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildTransitionBlock(change transition.AxisTransition) slack.Block {
	title := fmt.Sprintf("%s *Axis %s*: `%s` → `%s`", severityIcon(change.Severity), change.Axis, stateLabel(change.PreviousState), stateLabel(change.CurrentState))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := make([]*slack.TextBlockObject, 0, 3)
	if change.FaultReason != monitor.FaultNone {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Reason:*\n"+faultReasonText(change.FaultReason), false, false))
	}
	fields = append(fields,
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Feedback:*\n%s (raw %d)", change.Feedback, change.Raw), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Enabled:*\n%t (tick %d)", change.Enabled, change.Tick), false, false),
	)

	return slack.NewSectionBlock(text, fields, nil)
}

func countFaults(transitions []transition.AxisTransition) int {
	count := 0
	for _, change := range transitions {
		if change.CurrentState == monitor.StateFaulted {
			count++
		}
	}
	return count
}

func faultReasonText(reason monitor.FaultReason) string {
	switch reason {
	case monitor.FaultGraceExpired:
		return "feedback never asserted within the enable grace period"
	case monitor.FaultFeedbackLost:
		return "feedback dropped while enabled"
	default:
		return string(reason)
	}
}

func severityIcon(severity transition.Severity) string {
	switch severity {
	case transition.SeverityCritical:
		return ":red_circle:"
	case transition.SeverityWarning:
		return ":large_orange_circle:"
	default:
		return ":large_green_circle:"
	}
}

func stateLabel(state monitor.State) string {
	if state == "" {
		return "UNKNOWN"
	}
	return string(state)
}

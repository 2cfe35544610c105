package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/fleet"
	"github.com/nholik/hlfb-sentinel/internal/healthcheck"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
	"github.com/nholik/hlfb-sentinel/internal/metrics"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/nholik/hlfb-sentinel/internal/notify"
	"github.com/nholik/hlfb-sentinel/internal/source"
	"github.com/nholik/hlfb-sentinel/internal/state"
	"github.com/nholik/hlfb-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

const alertQueueSize = 64

// Ticker is the minimal interface needed for driving the runner loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type alert struct {
	machine     string
	transitions []transition.AxisTransition
}

// Runner drives the polling loop: one fleet tick per poll interval.
type Runner struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error
	source        source.Source
	fleet         *fleet.Fleet
	machine       string
	metrics       *metrics.Metrics
	tracker       *healthcheck.Tracker
	notifier      notify.Notifier
	stateStore    state.Store
	lastReady     bool
	alerts        chan alert
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-cycle execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(r *Runner) {
		r.runOnce = runOnce
	}
}

// WithSource sets where HLFB readings come from.
func WithSource(src source.Source) Option {
	return func(r *Runner) {
		r.source = src
	}
}

// WithFleet sets the fleet ticked by the default RunOnce.
func WithFleet(f *fleet.Fleet) Option {
	return func(r *Runner) {
		r.fleet = f
	}
}

// WithMachineName labels logs, metrics and alerts.
func WithMachineName(name string) Option {
	return func(r *Runner) {
		r.machine = name
	}
}

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracker records cycle completion for health probes.
func WithTracker(t *healthcheck.Tracker) Option {
	return func(r *Runner) {
		r.tracker = t
	}
}

// WithNotifier enables alert delivery for fault transitions.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithStateStore enables state persistence for transitions.
func WithStateStore(store state.Store) Option {
	return func(r *Runner) {
		r.stateStore = store
	}
}

// New constructs a Runner with the given logger and poll interval.
func New(logger zerolog.Logger, pollInterval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		logger:       logger,
		pollInterval: pollInterval,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		machine: "default",
		alerts:  make(chan alert, alertQueueSize),
	}
	r.runOnce = r.defaultRunOnce

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts the main loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	r.logPreviousRun(ctx)

	var wg sync.WaitGroup
	if r.notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.deliver(ctx)
		}()
	}
	defer wg.Wait()

	// Run immediately on startup
	r.cycle(ctx)

	ticker := r.tickerFactory(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			r.cycle(ctx)
		}
	}
}

// RunOnce executes a single cycle of the runner.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.runOnce(ctx)
}

func (r *Runner) cycle(ctx context.Context) {
	err := r.RunOnce(ctx)
	if err == nil {
		return
	}
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) {
		r.logger.Warn().Err(err).Msg("run cycle degraded")
		return
	}
	r.logger.Error().Err(err).Msg("run cycle failed")
}

func (r *Runner) defaultRunOnce(ctx context.Context) error {
	if r.fleet == nil {
		return errors.New("runner has no fleet configured")
	}
	start := time.Now()

	var readings map[axis.ID]hlfb.Reading
	var sampleErr error
	if r.source != nil {
		readings, sampleErr = r.source.Sample(ctx)
		if sampleErr != nil {
			r.metrics.IncSampleErrors()
		}
	}

	// Missing readings decode to Unknown, so the fleet still ticks.
	result := r.fleet.Tick(readings)
	snapshot := result.Snapshot
	if result.Dropped > 0 {
		r.logger.Warn().
			Str("machine", r.machine).
			Int("dropped", result.Dropped).
			Msg("command transitions dropped before tick")
	}

	report := transition.Build(r.lastReady, result)
	r.lastReady = snapshot.Ready

	for _, change := range report.Transitions {
		r.logTransition(change)
	}
	if report.ReadyChanged {
		r.logger.Info().
			Str("machine", r.machine).
			Bool("ready", report.Ready).
			Uint64("tick", snapshot.Tick).
			Msg("fleet readiness changed")
	}
	r.recordMetrics(snapshot, report)

	var persistErr error
	if len(report.Transitions) > 0 {
		persistErr = r.persist(ctx, snapshot)
	}
	r.dispatch(transition.Notable(report.Transitions))

	duration := time.Since(start)
	r.metrics.ObserveCycleDuration(duration)
	r.tracker.RecordCycle(duration, snapshot.Tick, snapshot.Ready)
	if sampleErr == nil {
		r.metrics.SetLastSuccessfulCycleTimestamp(time.Now())
	}

	return errors.Join(
		wrapRuntime("sample hlfb", snapshot.Tick, sampleErr),
		wrapRuntime("persist state", snapshot.Tick, persistErr),
	)
}

func (r *Runner) logTransition(change transition.AxisTransition) {
	var event *zerolog.Event
	switch change.Severity {
	case transition.SeverityCritical:
		event = r.logger.Error()
	case transition.SeverityWarning:
		event = r.logger.Warn()
	default:
		event = r.logger.Info()
	}

	event = event.
		Str("machine", r.machine).
		Str("axis", change.Axis.String()).
		Str("previous_state", string(change.PreviousState)).
		Str("current_state", string(change.CurrentState)).
		Str("cause", string(change.Cause)).
		Str("feedback", string(change.Feedback)).
		Int("raw", change.Raw).
		Uint64("tick", change.Tick)
	if change.FaultReason != monitor.FaultNone {
		event = event.Str("fault_reason", string(change.FaultReason))
	}
	event.Msg("axis transition detected")
}

func (r *Runner) recordMetrics(snapshot fleet.Snapshot, report transition.Report) {
	if r.metrics == nil {
		return
	}
	states := make([]string, 0, len(monitor.States()))
	for _, s := range monitor.States() {
		states = append(states, string(s))
	}
	for _, status := range snapshot.Axes {
		r.metrics.SetAxisState(r.machine, status.Axis.String(), string(status.State), states)
	}
	for _, change := range report.Transitions {
		r.metrics.IncTransitions(r.machine, change.Axis.String(), string(change.CurrentState))
	}
	r.metrics.SetFleetReady(r.machine, snapshot.Ready)
}

func (r *Runner) persist(ctx context.Context, snapshot fleet.Snapshot) error {
	if r.stateStore == nil {
		return nil
	}
	return r.stateStore.Save(ctx, state.State{
		Machine: r.machine,
		Fleet:   &snapshot,
		SavedAt: time.Now().UTC(),
	})
}

// dispatch queues transitions for delivery without blocking the tick.
func (r *Runner) dispatch(transitions []transition.AxisTransition) {
	if r.notifier == nil || len(transitions) == 0 {
		return
	}
	select {
	case r.alerts <- alert{machine: r.machine, transitions: transitions}:
		for _, change := range transitions {
			r.metrics.IncAlertsTotal(r.machine, string(change.Severity))
		}
	default:
		r.logger.Warn().
			Str("machine", r.machine).
			Int("transitions", len(transitions)).
			Msg("alert queue full, dropping notification")
	}
}

func (r *Runner) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-r.alerts:
			if err := r.notifier.Notify(ctx, a.machine, a.transitions); err != nil && ctx.Err() == nil {
				r.logger.Error().
					Err(err).
					Str("machine", a.machine).
					Int("transitions", len(a.transitions)).
					Msg("notification delivery failed")
			}
		}
	}
}

func (r *Runner) logPreviousRun(ctx context.Context) {
	if r.stateStore == nil {
		return
	}
	previous, err := r.stateStore.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load previous state")
		return
	}
	if previous.Fleet == nil {
		return
	}
	r.logger.Info().
		Str("machine", previous.Machine).
		Time("saved_at", previous.SavedAt).
		Bool("ready", previous.Fleet.Ready).
		Msg("previous run state loaded")
	for _, id := range previous.Fleet.Faults {
		status, ok := previous.Fleet.Axis(id)
		if !ok {
			r.logger.Warn().
				Str("axis", id.String()).
				Msg("faulted axis missing from previous state, skipping")
			continue
		}
		r.logger.Warn().
			Str("axis", id.String()).
			Str("fault_reason", string(status.FaultReason)).
			Msg("axis was faulted at the end of the previous run")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nholik/hlfb-sentinel/internal/api"
	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/config"
	"github.com/nholik/hlfb-sentinel/internal/fleet"
	"github.com/nholik/hlfb-sentinel/internal/healthcheck"
	"github.com/nholik/hlfb-sentinel/internal/logging"
	"github.com/nholik/hlfb-sentinel/internal/metrics"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/nholik/hlfb-sentinel/internal/notify"
	"github.com/nholik/hlfb-sentinel/internal/runner"
	"github.com/nholik/hlfb-sentinel/internal/server"
	"github.com/nholik/hlfb-sentinel/internal/source"
	"github.com/nholik/hlfb-sentinel/internal/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var enableOnStart bool

	root := &cobra.Command{
		Use:          "hlfb-sentinel",
		Short:        "Monitor HLFB feedback for the X, XP, Y, Z and A axes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), enableOnStart)
		},
	}
	root.Flags().BoolVar(&enableOnStart, "enable-all", false, "enable every axis once the monitor starts")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the polling loop and HTTP servers",
		RunE:  root.RunE,
	}
	runCmd.Flags().BoolVar(&enableOnStart, "enable-all", false, "enable every axis once the monitor starts")

	root.AddCommand(runCmd, newValidateCommand())
	return root
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and the axis map without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			axisMap, err := config.LoadAxisMap(cfg.AxisMapPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "machine %s: poll %s, debounce %d, grace %d ticks\n", cfg.MachineName, cfg.PollInterval, cfg.DebounceWindow, cfg.GraceTicks)
			d := axisMap.Decoder
			fmt.Fprintf(out, "decoder: range %d..%d, deasserted <= %d, asserted >= %d\n", d.Min, d.Max, d.DeassertAt, d.AssertAt)
			for _, id := range axis.All() {
				ch, ok := axisMap.Channels[id]
				if !ok {
					fmt.Fprintf(out, "  %-2s unmapped\n", id)
					continue
				}
				fmt.Fprintf(out, "  %-2s %s @ %d\n", id, ch.Kind, ch.Address)
			}
			return nil
		},
	}
}

func run(parent context.Context, enableOnStart bool) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New()
		bootLogger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	logger := logging.NewWithLevel(cfg.LogLevel).With().Str("machine", cfg.MachineName).Logger()
	logger.Info().Msg("hlfb-sentinel starting")

	axisMap, err := config.LoadAxisMap(cfg.AxisMapPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.AxisMapPath).Msg("invalid axis map")
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := fleet.New(monitor.Config{
		Decoder:        axisMap.Decoder,
		DebounceWindow: cfg.DebounceWindow,
		GraceTicks:     cfg.GraceTicks,
	})

	src, closeSource, err := buildSource(cfg, axisMap, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open hlfb source")
		return err
	}
	defer closeSource()

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to configure notifications")
		return err
	}
	defer closeNotifier()

	metricsCollector := metrics.New()
	tracker := healthcheck.NewTracker()

	server.Start(ctx, logger, cfg.PollInterval, tracker, metricsCollector, api.NewHandler(logger, f), server.Ports{
		Health:  cfg.HealthPort,
		Metrics: cfg.MetricsPort,
		API:     cfg.APIPort,
	})

	opts := []runner.Option{
		runner.WithFleet(f),
		runner.WithSource(src),
		runner.WithMachineName(cfg.MachineName),
		runner.WithMetrics(metricsCollector),
		runner.WithTracker(tracker),
		runner.WithNotifier(notifier),
	}
	store, closeStore, err := buildStateStore(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.StatePath).Msg("failed to open state store")
		return err
	}
	defer closeStore()
	if store != nil {
		opts = append(opts, runner.WithStateStore(store))
	}

	if enableOnStart {
		result := f.EnableAll()
		logger.Info().Int("accepted", len(result.Accepted)).Msg("enabled all axes on start")
	}

	return runner.New(logger, cfg.PollInterval, opts...).Run(ctx)
}

func buildSource(cfg config.Config, axisMap config.AxisMap, logger zerolog.Logger) (source.Source, func(), error) {
	if cfg.ModbusEndpoint == "" {
		logger.Warn().
			Int("raw", axisMap.Decoder.AssertAt).
			Msg("no modbus endpoint configured; simulating asserted feedback on every axis")
		return source.NewStatic(axisMap.Decoder.AssertAt), func() {}, nil
	}

	mb, err := source.NewModbus(source.ModbusConfig{
		Endpoint: cfg.ModbusEndpoint,
		UnitID:   cfg.ModbusUnitID,
		Timeout:  cfg.ModbusTimeout,
	}, axisMap.Channels, logger)
	if err != nil {
		return nil, nil, err
	}
	return mb, func() {
		if err := mb.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close modbus connection")
		}
	}, nil
}

func buildNotifier(cfg config.Config, logger zerolog.Logger) (notify.Notifier, func(), error) {
	notifiers := []notify.Notifier{notify.NewSlackNotifier(logger, cfg.SlackWebhookURL)}
	closers := []func(){}

	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, nil, err
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	if cfg.NATSURL != "" {
		nc, err := notify.NewNATSNotifier(logger, cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, nc)
		closers = append(closers, nc.Close)
	}

	if cfg.MQTTBroker != "" {
		mq, err := notify.NewMQTTNotifier(logger, cfg.MQTTBroker, cfg.MQTTTopic, cfg.MachineName)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		notifiers = append(notifiers, mq)
		closers = append(closers, mq.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		logger.Info().Msg("dry-run enabled; notifications will be logged only")
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier, closeAll, nil
}

func buildStateStore(cfg config.Config, logger zerolog.Logger) (state.Store, func(), error) {
	if cfg.StatePath == "" {
		return nil, func() {}, nil
	}
	if cfg.StateBackend != config.StateBackendBadger {
		return state.NewFileStore(cfg.StatePath, logger), func() {}, nil
	}
	store, err := state.NewBadgerStore(cfg.StatePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close state store")
		}
	}, nil
}

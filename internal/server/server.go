package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/api"
	"github.com/nholik/hlfb-sentinel/internal/healthcheck"
	"github.com/nholik/hlfb-sentinel/internal/metrics"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Ports selects the listener for each surface. Zero disables a surface;
// surfaces sharing a port share one server.
type Ports struct {
	Health  int
	Metrics int
	API     int
}

type listener struct {
	mux    *http.ServeMux
	labels []string
}

// Start launches the health, metrics and API HTTP servers as configured.
func Start(ctx context.Context, logger zerolog.Logger, pollInterval time.Duration, tracker *healthcheck.Tracker, metricsCollector *metrics.Metrics, apiHandler *api.Handler, ports Ports) {
	listeners := buildListeners(pollInterval, tracker, metricsCollector, apiHandler, ports)

	portList := make([]int, 0, len(listeners))
	for port := range listeners {
		portList = append(portList, port)
	}
	sort.Ints(portList)

	for _, port := range portList {
		l := listeners[port]
		startServer(ctx, logger, l.mux, port, strings.Join(l.labels, "/"))
	}
}

func buildListeners(pollInterval time.Duration, tracker *healthcheck.Tracker, metricsCollector *metrics.Metrics, apiHandler *api.Handler, ports Ports) map[int]*listener {
	listeners := make(map[int]*listener)
	get := func(port int, label string) *http.ServeMux {
		l, ok := listeners[port]
		if !ok {
			l = &listener{mux: http.NewServeMux()}
			listeners[port] = l
		}
		l.labels = append(l.labels, label)
		return l.mux
	}

	if ports.Health > 0 {
		registerHealthRoutes(get(ports.Health, "health"), tracker, pollInterval)
	}
	if ports.Metrics > 0 && metricsCollector != nil {
		registerMetricsRoute(get(ports.Metrics, "metrics"), metricsCollector)
	}
	if ports.API > 0 && apiHandler != nil {
		apiHandler.Register(get(ports.API, "api"))
	}
	return listeners
}

func registerHealthRoutes(mux *http.ServeMux, tracker *healthcheck.Tracker, pollInterval time.Duration) {
	mux.HandleFunc("/healthz", healthcheck.HealthHandler(tracker, pollInterval))
	mux.HandleFunc("/readyz", healthcheck.ReadyHandler(tracker))
}

func registerMetricsRoute(mux *http.ServeMux, metricsCollector *metrics.Metrics) {
	mux.Handle("/metrics", metricsCollector.Handler())
}

func startServer(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int, label string) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", label).Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}

// Package api exposes the fleet over JSON HTTP for the machine controller.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/fleet"
	"github.com/nholik/hlfb-sentinel/internal/monitor"
	"github.com/rs/zerolog"
)

// ReadyResponse answers GET /v1/fleet/ready.
type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	FirstFault *axis.ID  `json:"first_fault,omitempty"`
	Faults     []axis.ID `json:"faults"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves fleet commands and queries.
type Handler struct {
	logger zerolog.Logger
	fleet  *fleet.Fleet
}

// NewHandler returns a handler over f.
func NewHandler(logger zerolog.Logger, f *fleet.Fleet) *Handler {
	return &Handler{logger: logger, fleet: f}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/fleet", h.snapshot)
	mux.HandleFunc("GET /v1/fleet/ready", h.ready)
	mux.HandleFunc("POST /v1/fleet/enable", h.enableAll)
	mux.HandleFunc("POST /v1/fleet/disable", h.disableAll)
	mux.HandleFunc("POST /v1/fleet/reset", h.reset)
	mux.HandleFunc("GET /v1/axes/{axis}", h.status)
	mux.HandleFunc("POST /v1/axes/{axis}/enable", h.command(h.fleet.Enable, "enable"))
	mux.HandleFunc("POST /v1/axes/{axis}/disable", h.command(h.fleet.Disable, "disable"))
}

func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.Snapshot())
}

func (h *Handler) ready(w http.ResponseWriter, _ *http.Request) {
	snap := h.fleet.Snapshot()
	status := http.StatusServiceUnavailable
	if snap.Ready {
		status = http.StatusOK
	}
	writeJSON(w, status, ReadyResponse{Ready: snap.Ready, FirstFault: snap.FirstFault, Faults: snap.Faults})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseAxis(w, r)
	if !ok {
		return
	}
	status, err := h.fleet.StatusOf(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) command(apply func(axis.ID) (monitor.CommandResult, error), name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseAxis(w, r)
		if !ok {
			return
		}
		result, err := apply(id)
		if err != nil {
			writeError(w, err)
			return
		}
		h.logger.Info().
			Str("command", name).
			Str("axis", id.String()).
			Bool("accepted", result.Accepted).
			Str("state", string(result.State)).
			Msg("axis command applied")
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) enableAll(w http.ResponseWriter, _ *http.Request) {
	result := h.fleet.EnableAll()
	h.logBulk("enable_all", result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) disableAll(w http.ResponseWriter, _ *http.Request) {
	result := h.fleet.DisableAll()
	h.logBulk("disable_all", result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reset(w http.ResponseWriter, _ *http.Request) {
	changes := h.fleet.Reset()
	h.logger.Warn().Int("transitions", len(changes)).Msg("fleet reset to disabled")
	writeJSON(w, http.StatusOK, h.fleet.Snapshot())
}

func (h *Handler) logBulk(name string, result fleet.BulkResult) {
	h.logger.Info().
		Str("command", name).
		Int("accepted", len(result.Accepted)).
		Int("skipped", len(result.Skipped)).
		Int("faulted", len(result.Faulted)).
		Msg("fleet command applied")
}

func (h *Handler) parseAxis(w http.ResponseWriter, r *http.Request) (axis.ID, bool) {
	id, err := axis.Parse(r.PathValue("axis"))
	if err != nil {
		writeError(w, err)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, axis.ErrUnknownAxis) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

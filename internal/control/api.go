// Package control serves the daemon's small HTTP surface: health, sync
// status, last outcome, run history, and a manual trigger. It is a thin
// presentation shell with no reconciliation logic of its own.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/himalco/dairyerp/attsync/internal/journal"
	"github.com/himalco/dairyerp/attsync/internal/runner"
	"github.com/himalco/dairyerp/attsync/internal/types"
)

// SyncController is the slice of the runner the control API needs.
type SyncController interface {
	Status() runner.Status
	LastOutcome() *types.SyncOutcome
	LastRuns(n int) ([]journal.Entry, error)
	Trigger() error
}

// API provides the HTTP control interface for a running daemon.
type API struct {
	controller SyncController
	logger     zerolog.Logger
}

// NewAPI creates a control API over the given controller.
func NewAPI(controller SyncController, logger zerolog.Logger) *API {
	return &API{
		controller: controller,
		logger:     logger.With().Str("component", "control").Logger(),
	}
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/outcome", api.outcomeHandler).Methods("GET")
	router.HandleFunc("/runs", api.runsHandler).Methods("GET")
	router.HandleFunc("/sync", api.syncHandler).Methods("POST")
}

// healthHandler returns service health
func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns the runner's current state
func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.controller.Status())
}

// outcomeHandler returns the last run's outcome, 404 before the first run
func (api *API) outcomeHandler(w http.ResponseWriter, r *http.Request) {
	outcome := api.controller.LastOutcome()
	if outcome == nil {
		http.Error(w, "no run has completed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// runsHandler returns recent journaled runs
func (api *API) runsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := api.controller.LastRuns(limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("failed to read run history")
		http.Error(w, "failed to read run history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// syncHandler triggers an immediate run
func (api *API) syncHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.controller.Trigger(); err != nil {
		if errors.Is(err, runner.ErrRunInFlight) {
			http.Error(w, "sync already running", http.StatusConflict)
			return
		}
		if errors.Is(err, runner.ErrStopping) {
			http.Error(w, "daemon is shutting down", http.StatusServiceUnavailable)
			return
		}
		api.logger.Error().Err(err).Msg("failed to trigger sync")
		http.Error(w, "failed to trigger sync", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "sync triggered"})
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (api *API) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: cors.Default().Handler(router),
	}

	go func() {
		<-ctx.Done()
		api.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	api.logger.Info().Str("addr", addr).Msg("control API started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

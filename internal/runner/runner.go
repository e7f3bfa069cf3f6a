// Package runner owns process-level execution of sync runs: a one-shot
// mode and a supervised daemon loop. A run's internal failure never
// terminates the daemon; errors are caught and logged at the loop
// boundary only.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/himalco/dairyerp/attsync/internal/central"
	"github.com/himalco/dairyerp/attsync/internal/config"
	"github.com/himalco/dairyerp/attsync/internal/journal"
	"github.com/himalco/dairyerp/attsync/internal/orchestrator"
	"github.com/himalco/dairyerp/attsync/internal/types"
)

// ErrRunInFlight is returned when a sync is triggered while one is
// already running.
var ErrRunInFlight = errors.New("a sync run is already in flight")

// ErrStopping is returned when a sync is triggered while the daemon is
// shutting down.
var ErrStopping = errors.New("daemon is shutting down")

// ConfigLoader supplies a fresh config snapshot. The daemon calls it at
// every cycle boundary, so live edits to the config file are observed at
// the next cycle without a restart.
type ConfigLoader func() (*config.Config, error)

// Status is a snapshot of the runner for the control API.
type Status struct {
	Daemon   bool           `json:"daemon"`
	Running  bool           `json:"running"`
	RunState types.RunState `json:"run_state"`
	Cycles   int            `json:"cycles"`
	NextRun  *time.Time     `json:"next_run,omitempty"`
}

// Runner executes sync runs from config snapshots.
type Runner struct {
	load   ConfigLoader
	logger zerolog.Logger

	mu          sync.Mutex
	inFlight    bool
	daemon      bool
	stopping    bool
	daemonCtx   context.Context // set while the daemon loop runs
	current     *orchestrator.Orchestrator
	lastOutcome *types.SyncOutcome
	cycles      int
	nextRun     time.Time

	// Triggered runs are joined by the daemon before it returns, so a
	// shutdown never abandons an in-flight session.
	triggered sync.WaitGroup

	// Central client survives cycles so the bearer token is reused; it is
	// rebuilt only when the relevant config fields change.
	client    *central.Client
	clientKey clientKey
}

type clientKey struct {
	apiURL   string
	username string
	password string
}

// New creates a runner over the given config loader.
func New(load ConfigLoader, logger zerolog.Logger) *Runner {
	return &Runner{
		load:   load,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// RunOnce executes a single sync run. It returns an error only for the
// fatal classes (config, load); per-source and per-record failures are in
// the outcome.
func (r *Runner) RunOnce(ctx context.Context) (*types.SyncOutcome, error) {
	return r.runCycle(ctx)
}

// Daemon runs sync cycles forever, sleeping the configured interval
// between them. The interval is re-read from the live config at each
// cycle boundary. Returns when ctx is cancelled; an in-flight run finishes
// its current step first.
func (r *Runner) Daemon(ctx context.Context) error {
	r.mu.Lock()
	r.daemon = true
	r.daemonCtx = ctx
	r.mu.Unlock()

	r.logger.Info().Msg("daemon started")
	for {
		r.safeCycle(ctx)

		interval := r.interval()
		r.mu.Lock()
		r.nextRun = time.Now().Add(interval)
		r.mu.Unlock()

		r.logger.Info().Dur("interval", interval).Msg("sleeping until next cycle")
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.stopping = true
			r.mu.Unlock()
			// Join any triggered run so its connector sessions and
			// uploads finish their current step before the process exits.
			r.triggered.Wait()
			r.logger.Info().Msg("daemon stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// Trigger starts an immediate run in the background (used by the control
// API). The run inherits the daemon's context and is joined on shutdown.
// Fails if one is already in flight or the daemon is stopping.
func (r *Runner) Trigger() error {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return ErrStopping
	}
	if r.inFlight {
		r.mu.Unlock()
		return ErrRunInFlight
	}
	ctx := r.daemonCtx
	if ctx == nil {
		ctx = context.Background()
	}
	r.triggered.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.triggered.Done()
		r.safeCycle(ctx)
	}()
	return nil
}

// Status reports the runner's current state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Daemon:   r.daemon,
		Running:  r.inFlight,
		RunState: types.RunIdle,
		Cycles:   r.cycles,
	}
	if r.current != nil {
		st.RunState = r.current.State()
	} else if r.lastOutcome != nil {
		st.RunState = r.lastOutcome.State
	}
	if r.daemon && !r.nextRun.IsZero() {
		next := r.nextRun
		st.NextRun = &next
	}
	return st
}

// LastOutcome returns the most recent run outcome, or nil before any run.
func (r *Runner) LastOutcome() *types.SyncOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutcome
}

// LastRuns reads the most recent journaled runs, newest first. Returns an
// empty slice when no journal is configured.
func (r *Runner) LastRuns(n int) ([]journal.Entry, error) {
	cfg, err := r.load()
	if err != nil || cfg.JournalPath == "" {
		return nil, err
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	return j.LastRuns(n)
}

// safeCycle is the supervised loop boundary: a panicking run is logged
// and the daemon carries on.
func (r *Runner) safeCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("sync run panicked, continuing")
		}
	}()

	if _, err := r.runCycle(ctx); err != nil && !errors.Is(err, ErrRunInFlight) {
		r.logger.Error().Err(err).Msg("sync run aborted")
	}
}

// runCycle loads a fresh config snapshot and executes one run.
func (r *Runner) runCycle(ctx context.Context) (*types.SyncOutcome, error) {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return nil, ErrRunInFlight
	}
	r.inFlight = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.current = nil
		r.mu.Unlock()
	}()

	cfg, err := r.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	orch := orchestrator.New(cfg, r.centralClient(cfg), r.logger)
	r.mu.Lock()
	r.current = orch
	r.mu.Unlock()

	outcome := orch.Run(ctx)

	r.mu.Lock()
	r.lastOutcome = outcome
	r.cycles++
	r.mu.Unlock()

	r.journalOutcome(cfg, outcome)
	return outcome, nil
}

// centralClient returns the shared client, rebuilding it when the API
// address or credentials changed between cycles.
func (r *Runner) centralClient(cfg *config.Config) *central.Client {
	key := clientKey{apiURL: cfg.APIURL, username: cfg.Username, password: cfg.Password}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil || r.clientKey != key {
		r.client = central.New(cfg.APIURL, cfg.Username, cfg.Password, r.logger)
		r.clientKey = key
	}
	return r.client
}

// journalOutcome records the run in the journal when one is configured.
// Never fatal.
func (r *Runner) journalOutcome(cfg *config.Config, outcome *types.SyncOutcome) {
	if cfg.JournalPath == "" {
		return
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		r.logger.Warn().Err(err).Msg("journal open failed")
		return
	}
	defer j.Close()
	if err := j.Record(outcome); err != nil {
		r.logger.Warn().Err(err).Msg("journal write failed")
	}
}

// interval re-reads the sync interval from the live config, falling back
// to the default when the config cannot be loaded.
func (r *Runner) interval() time.Duration {
	cfg, err := r.load()
	if err != nil {
		r.logger.Warn().Err(err).Msg("config reload failed, keeping default interval")
		return time.Duration(config.DefaultSyncInterval) * time.Second
	}
	return cfg.Interval()
}

// Package orchestrator drives one sync run: authenticate, collect from
// every configured source, reconcile, upload. Per-source and per-record
// failures are isolated into SyncOutcome counters; only a failed
// authentication ends a run in the failed state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/himalco/dairyerp/attsync/internal/central"
	"github.com/himalco/dairyerp/attsync/internal/config"
	"github.com/himalco/dairyerp/attsync/internal/device"
	"github.com/himalco/dairyerp/attsync/internal/normalize"
	"github.com/himalco/dairyerp/attsync/internal/reconcile"
	"github.com/himalco/dairyerp/attsync/internal/types"
)

const (
	maxCollectWorkers = 4
	maxUploadWorkers  = 4
)

// Orchestrator executes sync runs against one immutable config snapshot.
type Orchestrator struct {
	cfg    *config.Config
	client *central.Client
	logger zerolog.Logger

	mu    sync.Mutex
	state types.RunState
}

// New creates an orchestrator for the given config snapshot and central
// API client.
func New(cfg *config.Config, client *central.Client, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "orchestrator").Logger(),
		state:  types.RunIdle,
	}
}

// State returns where the current (or last) run is in its lifecycle.
func (o *Orchestrator) State() types.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s types.RunState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// collectResult carries one source's harvest back to the coordinator.
type collectResult struct {
	source        string
	events        []types.RawPunchEvent
	parseFailures int
	err           error
}

// Run executes one full sync run. It always returns an outcome; the
// outcome's State is RunFailed only when authentication could not be
// established.
func (o *Orchestrator) Run(ctx context.Context) *types.SyncOutcome {
	outcome := &types.SyncOutcome{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := o.logger.With().Str("run_id", outcome.RunID).Logger()

	o.setState(types.RunAuthenticating)
	if err := o.client.Authenticate(ctx); err != nil {
		logger.Error().Err(err).Msg("authentication failed, aborting run")
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.State = types.RunFailed
		outcome.FinishedAt = time.Now()
		o.setState(types.RunFailed)
		return outcome
	}

	o.setState(types.RunConnecting)
	events := o.collect(ctx, logger, outcome)

	o.setState(types.RunReconciling)
	records := reconcile.Reconcile(events)
	logger.Info().Int("events", len(events)).Int("records", len(records)).Msg("reconciled punch events")

	o.setState(types.RunUploading)
	o.upload(ctx, logger, records, outcome)

	outcome.State = types.RunCompleted
	outcome.FinishedAt = time.Now()
	o.setState(types.RunCompleted)

	logger.Info().
		Int("attempted", outcome.Attempted).
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("failed", outcome.Failed).
		Int("sources_failed", outcome.SourcesFailed).
		Msg("sync run completed")
	return outcome
}

// collect pools events from every configured terminal and export file
// using a bounded worker pool, joined before reconciliation begins.
func (o *Orchestrator) collect(ctx context.Context, logger zerolog.Logger, outcome *types.SyncOutcome) []types.RawPunchEvent {
	type task func(context.Context) collectResult

	var tasks []task
	for _, dev := range o.cfg.Devices {
		dev := dev
		tasks = append(tasks, func(ctx context.Context) collectResult {
			return o.collectDevice(ctx, dev)
		})
	}
	for _, path := range o.cfg.SourcePaths {
		path := path
		tasks = append(tasks, func(ctx context.Context) collectResult {
			return o.collectFile(path)
		})
	}

	outcome.SourcesTotal = len(tasks)
	if len(tasks) == 0 {
		return nil
	}
	o.setState(types.RunCollecting)

	workers := maxCollectWorkers
	if len(tasks) < workers {
		workers = len(tasks)
	}

	taskCh := make(chan task)
	resultCh := make(chan collectResult, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				resultCh <- t(ctx)
			}
		}()
	}

	for _, t := range tasks {
		taskCh <- t
	}
	close(taskCh)
	wg.Wait()
	close(resultCh)

	var events []types.RawPunchEvent
	for res := range resultCh {
		if res.err != nil {
			// One bad terminal never stops the run.
			logger.Warn().Err(res.err).Str("source", res.source).Msg("source failed, continuing")
			outcome.SourcesFailed++
			outcome.Errors = append(outcome.Errors, res.err.Error())
			continue
		}
		outcome.ParseFailures += res.parseFailures
		events = append(events, res.events...)
	}
	return events
}

// collectDevice drains one terminal session. Disconnect runs on every
// exit path so no terminal-side session leaks.
func (o *Orchestrator) collectDevice(ctx context.Context, dev config.DeviceConfig) collectResult {
	conn := device.NewConnector(dev.Name, dev.Address, dev.Port, dev.DialTimeout(), o.logger)
	defer conn.Disconnect()

	if !conn.Connect(ctx) {
		return collectResult{
			source: dev.Name,
			err:    fmt.Errorf("terminal %s (%s:%d): connect failed", dev.Name, dev.Address, dev.Port),
		}
	}

	identities := conn.ListIdentities()
	punches := conn.FetchEvents()

	events, parseFailures := normalize.DeviceEvents(punches, identities, dev.Name)
	o.logger.Debug().
		Str("terminal", dev.Name).
		Int("identities", len(identities)).
		Int("punches", len(punches)).
		Int("dropped", parseFailures).
		Msg("collected terminal events")
	return collectResult{source: dev.Name, events: events, parseFailures: parseFailures}
}

// collectFile reads one legacy export.
func (o *Orchestrator) collectFile(path string) collectResult {
	src := device.NewFileSource(path, o.logger)
	rows, parseFailures, err := src.Read()
	if err != nil {
		return collectResult{source: path, err: err}
	}
	return collectResult{
		source:        path,
		events:        normalize.FileRows(rows, path),
		parseFailures: parseFailures,
	}
}

// upload posts every record with bounded concurrency. Counters are
// aggregated under a mutex; a single record's failure never aborts the
// batch. Cancellation is observed between records, not mid-request.
func (o *Orchestrator) upload(ctx context.Context, logger zerolog.Logger, records []types.DailyAttendanceRecord, outcome *types.SyncOutcome) {
	if len(records) == 0 {
		return
	}

	workers := maxUploadWorkers
	if len(records) < workers {
		workers = len(records)
	}

	recordCh := make(chan types.DailyAttendanceRecord)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range recordCh {
				result, err := o.client.UploadAttendance(ctx, rec)

				mu.Lock()
				outcome.Attempted++
				switch {
				case err != nil:
					outcome.Failed++
					outcome.Errors = append(outcome.Errors, err.Error())
				case result == central.UploadExists:
					outcome.Updated++
				default:
					outcome.Created++
				}
				mu.Unlock()

				if err != nil {
					logger.Warn().Err(err).Str("employee_id", rec.EmployeeID).Str("date", rec.Date).Msg("upload failed, continuing")
				}
			}
		}()
	}

	for i, rec := range records {
		select {
		case <-ctx.Done():
			logger.Warn().Int("remaining", len(records)-i).Msg("upload interrupted by shutdown")
			close(recordCh)
			wg.Wait()
			return
		case recordCh <- rec:
		}
	}
	close(recordCh)
	wg.Wait()
}

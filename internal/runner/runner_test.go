package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/himalco/dairyerp/attsync/internal/config"
	"github.com/himalco/dairyerp/attsync/internal/types"
)

// stubCentral serves a minimal central API with no terminals configured.
func stubCentral(t *testing.T) *httptest.Server {
	return slowCentral(t, 0)
}

// slowCentral is stubCentral with an artificial login delay, for tests
// that need a run to still be in flight when something else happens.
func slowCentral(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "token-1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loaderFor(cfg *config.Config) ConfigLoader {
	return func() (*config.Config, error) { return cfg, nil }
}

func TestRunOnce(t *testing.T) {
	srv := stubCentral(t)
	cfg := &config.Config{
		APIURL:       srv.URL,
		Username:     "agent",
		Password:     "secret",
		SyncInterval: 1,
	}

	r := New(loaderFor(cfg), zerolog.Nop())
	outcome, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if outcome.State != types.RunCompleted {
		t.Errorf("expected completed run, got %s", outcome.State)
	}
	if got := r.LastOutcome(); got != outcome {
		t.Error("expected last outcome to be stored")
	}
	if st := r.Status(); st.Cycles != 1 || st.Running {
		t.Errorf("unexpected status after run: %+v", st)
	}
}

func TestRunOnceConfigError(t *testing.T) {
	cfg := &config.Config{APIURL: "http://localhost:0", SyncInterval: 1}

	r := New(loaderFor(cfg), zerolog.Nop())
	_, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected config error without credentials")
	}
	if !errors.Is(err, types.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestRunOnceLoaderError(t *testing.T) {
	r := New(func() (*config.Config, error) {
		return nil, errors.New("unreadable config")
	}, zerolog.Nop())

	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected loader error to propagate")
	}
}

func TestRunOnceWritesJournal(t *testing.T) {
	srv := stubCentral(t)
	cfg := &config.Config{
		APIURL:       srv.URL,
		Username:     "agent",
		Password:     "secret",
		SyncInterval: 1,
		JournalPath:  filepath.Join(t.TempDir(), "journal.db"),
	}

	r := New(loaderFor(cfg), zerolog.Nop())
	outcome, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}

	entries, err := r.LastRuns(10)
	if err != nil {
		t.Fatalf("LastRuns() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 journaled run, got %d", len(entries))
	}
	if entries[0].RunID != outcome.RunID {
		t.Errorf("journaled run id %s, want %s", entries[0].RunID, outcome.RunID)
	}
}

func TestDaemonStopsOnCancel(t *testing.T) {
	srv := stubCentral(t)
	cfg := &config.Config{
		APIURL:       srv.URL,
		Username:     "agent",
		Password:     "secret",
		SyncInterval: 1,
	}

	r := New(loaderFor(cfg), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Daemon(ctx) }()

	// Give the first cycle time to complete, then stop.
	deadline := time.After(5 * time.Second)
	for r.LastOutcome() == nil {
		select {
		case <-deadline:
			t.Fatal("daemon never completed a cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Daemon() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	st := r.Status()
	if !st.Daemon || st.Cycles < 1 {
		t.Errorf("unexpected daemon status: %+v", st)
	}
}

func TestDaemonSurvivesBrokenConfig(t *testing.T) {
	// A loader failure inside the loop must not terminate the daemon.
	r := New(func() (*config.Config, error) {
		return nil, errors.New("config file vanished")
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := r.Daemon(ctx); err != nil {
		t.Errorf("Daemon() returned error: %v", err)
	}
}

func TestDaemonWaitsForTriggeredRun(t *testing.T) {
	// A triggered run's login hangs long enough for the shutdown to race
	// it; the daemon must join the run instead of abandoning it.
	srv := slowCentral(t, 300*time.Millisecond)
	cfg := &config.Config{
		APIURL:       srv.URL,
		Username:     "agent",
		Password:     "secret",
		SyncInterval: 3600,
	}

	r := New(loaderFor(cfg), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Daemon(ctx) }()

	deadline := time.After(10 * time.Second)
	for r.LastOutcome() == nil {
		select {
		case <-deadline:
			t.Fatal("daemon never completed its first cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := r.Trigger(); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	for !r.Status().Running {
		select {
		case <-deadline:
			t.Fatal("triggered run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Daemon() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	// The daemon only returns once the triggered run has finished its
	// current step and released its sessions.
	if r.Status().Running {
		t.Error("daemon returned while a triggered run was still in flight")
	}
	if err := r.Trigger(); !errors.Is(err, ErrStopping) {
		t.Errorf("expected ErrStopping after shutdown, got %v", err)
	}
}

func TestDaemonRecoversPanickedRun(t *testing.T) {
	srv := stubCentral(t)
	cfg := &config.Config{
		APIURL:       srv.URL,
		Username:     "agent",
		Password:     "secret",
		SyncInterval: 1,
	}

	// The first cycle's config load panics; later loads succeed, so the
	// supervised loop must carry on to a completing cycle.
	var mu sync.Mutex
	calls := 0
	load := func() (*config.Config, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("config store corrupted")
		}
		return cfg, nil
	}

	r := New(load, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Daemon(ctx) }()

	deadline := time.After(10 * time.Second)
	for r.LastOutcome() == nil {
		select {
		case <-deadline:
			t.Fatal("daemon did not complete a cycle after the panicked run")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Daemon() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
	if r.Status().Running {
		t.Error("runner still marked in flight after recovered panic")
	}
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	r := New(loaderFor(&config.Config{}), zerolog.Nop())
	r.mu.Lock()
	r.inFlight = true
	r.mu.Unlock()

	if err := r.Trigger(); !errors.Is(err, ErrRunInFlight) {
		t.Errorf("expected ErrRunInFlight, got %v", err)
	}
}

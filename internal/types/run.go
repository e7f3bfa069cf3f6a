package types

import "errors"

// RunState tracks where an orchestrator run currently is.
type RunState string

const (
	RunIdle           RunState = "idle"
	RunAuthenticating RunState = "authenticating"
	RunConnecting     RunState = "connecting"
	RunCollecting     RunState = "collecting"
	RunReconciling    RunState = "reconciling"
	RunUploading      RunState = "uploading"
	RunCompleted      RunState = "completed"
	RunFailed         RunState = "failed"
)

// Sentinel errors for the two failure classes that abort a run. Everything
// else (connector, parse, upload failures) is absorbed into SyncOutcome
// counters and never escalates.
var (
	// ErrConfig marks a configuration problem, e.g. missing credentials.
	ErrConfig = errors.New("config error")

	// ErrAuth marks a rejected login against the central API.
	ErrAuth = errors.New("auth error")
)

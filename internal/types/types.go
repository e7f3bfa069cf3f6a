package types

import "time"

// Direction is the terminal-supplied hint for a punch: arrival, departure,
// or unknown when the terminal did not tag the scan.
type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionUnknown Direction = "unknown"
)

// SourceTag identifies how a punch entered the system.
type SourceTag string

const (
	SourceNetwork SourceTag = "network"
	SourceFile    SourceTag = "file"
)

// ParseDirection maps a terminal-native direction string to a Direction.
// Anything other than "in"/"out" is treated as unknown.
func ParseDirection(s string) Direction {
	switch s {
	case "in":
		return DirectionIn
	case "out":
		return DirectionOut
	default:
		return DirectionUnknown
	}
}

// RawPunchEvent is one physical scan, normalized from connector output or
// a legacy export row. Immutable once produced; discarded after
// reconciliation.
type RawPunchEvent struct {
	EmployeeID     string
	EmployeeName   string
	Timestamp      time.Time // terminal-local clock, may be skewed
	Direction      Direction
	Source         SourceTag
	SourceTerminal string
}

// DailyAttendanceRecord is the reconciled check-in/check-out pair for one
// employee on one calendar day. CheckIn/CheckOut are "15:04:05"
// times-of-day; empty string means unset. This is also the upload payload
// for the central API.
type DailyAttendanceRecord struct {
	EmployeeID     string `json:"employee_id"`
	EmployeeName   string `json:"employee_name"`
	Date           string `json:"date"` // 2006-01-02, terminal-local
	CheckIn        string `json:"check_in,omitempty"`
	CheckOut       string `json:"check_out,omitempty"`
	Source         string `json:"source"`
	SourceTerminal string `json:"source_terminal"`
}

// SyncOutcome aggregates the result of one orchestrator run.
type SyncOutcome struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	State         RunState  `json:"state"`
	Attempted     int       `json:"attempted"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Failed        int       `json:"failed"`
	ParseFailures int       `json:"parse_failures"`
	SourcesTotal  int       `json:"sources_total"`
	SourcesFailed int       `json:"sources_failed"`
	Errors        []string  `json:"errors,omitempty"`
}

// Success reports whether the run counts as successful for exit-code
// purposes: authentication worked and at least one configured source was
// reachable. Partial per-record failures still count as success.
func (o *SyncOutcome) Success() bool {
	if o.State == RunFailed {
		return false
	}
	if o.SourcesTotal > 0 && o.SourcesFailed == o.SourcesTotal {
		return false
	}
	return true
}

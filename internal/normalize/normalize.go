// Package normalize converts terminal-native punches and legacy export
// rows into the uniform RawPunchEvent shape at the boundary, so that
// nothing terminal-native ever reaches the reconciliation engine.
package normalize

import (
	"time"

	"github.com/himalco/dairyerp/attsync/internal/device"
	"github.com/himalco/dairyerp/attsync/internal/types"
)

// DeviceEvents normalizes a terminal's raw punches against its enrolled
// identity snapshot. The canonical employee id for network sources is the
// terminal's raw identity key. Punches with unparsable timestamps are
// dropped; the count of drops is returned alongside the events.
func DeviceEvents(punches []device.Punch, identities []device.Identity, terminal string) ([]types.RawPunchEvent, int) {
	names := make(map[string]string, len(identities))
	for _, id := range identities {
		names[id.UID] = id.Name
	}

	events := make([]types.RawPunchEvent, 0, len(punches))
	parseFailures := 0
	for _, p := range punches {
		ts, err := time.Parse(device.TimestampLayout, p.Timestamp)
		if err != nil {
			parseFailures++
			continue
		}
		events = append(events, types.RawPunchEvent{
			EmployeeID:     p.UID,
			EmployeeName:   displayName(names[p.UID], p.UID),
			Timestamp:      ts,
			Direction:      types.ParseDirection(p.Direction),
			Source:         types.SourceNetwork,
			SourceTerminal: terminal,
		})
	}
	return events, parseFailures
}

// FileRows normalizes legacy export rows. The canonical employee id for
// file sources is the badge code, falling back to the raw user id when no
// badge is recorded. File and network sources deliberately key attendance
// by different identity spaces and are never cross-deduplicated.
func FileRows(rows []device.Row, sourcePath string) []types.RawPunchEvent {
	events := make([]types.RawPunchEvent, 0, len(rows))
	for _, r := range rows {
		id := r.Badge
		if id == "" {
			id = r.UserID
		}
		events = append(events, types.RawPunchEvent{
			EmployeeID:     id,
			EmployeeName:   displayName(r.Name, r.UserID),
			Timestamp:      r.Timestamp,
			Direction:      types.ParseDirection(r.Direction),
			Source:         types.SourceFile,
			SourceTerminal: sourcePath,
		})
	}
	return events
}

// displayName falls back to a synthesized name when the identity snapshot
// has no entry for the key.
func displayName(name, key string) string {
	if name != "" {
		return name
	}
	return "User_" + key
}

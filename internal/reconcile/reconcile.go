// Package reconcile collapses raw punch events into one daily
// check-in/check-out record per employee and calendar day. It is a pure,
// deterministic function of its input: no I/O, no clock, no hidden state.
package reconcile

import (
	"sort"

	"github.com/himalco/dairyerp/attsync/internal/types"
)

const (
	dateLayout = "2006-01-02"
	todLayout  = "15:04:05"
)

type groupKey struct {
	employeeID string
	date       string
}

// entry keeps only what reconciliation needs from an event: the time of
// day and the direction hint. Zero-padded "15:04:05" strings sort
// correctly as plain strings.
type entry struct {
	tod       string
	direction types.Direction
}

type group struct {
	key     groupKey
	name    string
	source  types.SourceTag
	origin  string // source_terminal of the group's first event
	entries []entry
}

// Reconcile derives one DailyAttendanceRecord per (employee, day) from the
// pooled event set. Records are returned sorted by employee id, then date.
func Reconcile(events []types.RawPunchEvent) []types.DailyAttendanceRecord {
	groups := make(map[groupKey]*group)
	var order []groupKey

	for _, ev := range events {
		key := groupKey{employeeID: ev.EmployeeID, date: ev.Timestamp.Format(dateLayout)}
		g, ok := groups[key]
		if !ok {
			// Provenance comes from the group's first event in input order.
			g = &group{
				key:    key,
				name:   ev.EmployeeName,
				source: ev.Source,
				origin: ev.SourceTerminal,
			}
			groups[key] = g
			order = append(order, key)
		}
		g.entries = append(g.entries, entry{
			tod:       ev.Timestamp.Format(todLayout),
			direction: ev.Direction,
		})
	}

	records := make([]types.DailyAttendanceRecord, 0, len(order))
	for _, key := range order {
		records = append(records, groups[key].resolve())
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].EmployeeID != records[j].EmployeeID {
			return records[i].EmployeeID < records[j].EmployeeID
		}
		return records[i].Date < records[j].Date
	})
	return records
}

// resolve applies the tie-break policy to one group's entries.
func (g *group) resolve() types.DailyAttendanceRecord {
	entries := make([]entry, len(g.entries))
	copy(entries, g.entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].tod < entries[j].tod
	})

	rec := types.DailyAttendanceRecord{
		EmployeeID:     g.key.employeeID,
		EmployeeName:   g.name,
		Date:           g.key.date,
		Source:         string(g.source),
		SourceTerminal: g.origin,
	}

	hinted := false
	for _, e := range entries {
		if e.direction != types.DirectionUnknown {
			hinted = true
			break
		}
	}

	if hinted {
		// Earliest "in" and latest "out"; the two scans are independent.
		// A group with only "out" hints deliberately leaves check_in
		// unset rather than backfilling it from position.
		for _, e := range entries {
			if e.direction == types.DirectionIn {
				rec.CheckIn = e.tod
				break
			}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].direction == types.DirectionOut {
				rec.CheckOut = entries[i].tod
				break
			}
		}
		return rec
	}

	// No usable hints: fall back to position. A single-entry group yields
	// only a check-in.
	rec.CheckIn = entries[0].tod
	if len(entries) > 1 {
		rec.CheckOut = entries[len(entries)-1].tod
	}
	return rec
}

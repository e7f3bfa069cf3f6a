package reconcile

import (
	"reflect"
	"testing"
	"time"

	"github.com/himalco/dairyerp/attsync/internal/types"
)

func event(emp, day, tod string, dir types.Direction) types.RawPunchEvent {
	ts, err := time.Parse("2006-01-02 15:04:05", day+" "+tod)
	if err != nil {
		panic(err)
	}
	return types.RawPunchEvent{
		EmployeeID:     emp,
		EmployeeName:   "Emp " + emp,
		Timestamp:      ts,
		Direction:      dir,
		Source:         types.SourceNetwork,
		SourceTerminal: "gate-1",
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name   string
		events []types.RawPunchEvent
		want   []types.DailyAttendanceRecord
	}{
		{
			name: "hinted in and out with unknown in between",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "08:01:00", types.DirectionIn),
				event("7", "2024-05-01", "17:05:00", types.DirectionOut),
				event("7", "2024-05-01", "12:00:00", types.DirectionUnknown),
			},
			want: []types.DailyAttendanceRecord{{
				EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
				CheckIn: "08:01:00", CheckOut: "17:05:00",
				Source: "network", SourceTerminal: "gate-1",
			}},
		},
		{
			name: "earliest in and latest out regardless of input order",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "17:05:00", types.DirectionOut),
				event("7", "2024-05-01", "09:30:00", types.DirectionIn),
				event("7", "2024-05-01", "08:01:00", types.DirectionIn),
				event("7", "2024-05-01", "12:15:00", types.DirectionOut),
			},
			want: []types.DailyAttendanceRecord{{
				EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
				CheckIn: "08:01:00", CheckOut: "17:05:00",
				Source: "network", SourceTerminal: "gate-1",
			}},
		},
		{
			name: "no hints falls back to position",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "12:00:00", types.DirectionUnknown),
				event("7", "2024-05-01", "08:01:00", types.DirectionUnknown),
				event("7", "2024-05-01", "17:05:00", types.DirectionUnknown),
			},
			want: []types.DailyAttendanceRecord{{
				EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
				CheckIn: "08:01:00", CheckOut: "17:05:00",
				Source: "network", SourceTerminal: "gate-1",
			}},
		},
		{
			name: "single unknown entry yields check-in only",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "09:00:00", types.DirectionUnknown),
			},
			want: []types.DailyAttendanceRecord{{
				EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
				CheckIn: "09:00:00",
				Source:  "network", SourceTerminal: "gate-1",
			}},
		},
		{
			name: "only in hints leaves check-out unset",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "08:01:00", types.DirectionIn),
				event("7", "2024-05-01", "08:05:00", types.DirectionIn),
			},
			want: []types.DailyAttendanceRecord{{
				EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
				CheckIn: "08:01:00",
				Source:  "network", SourceTerminal: "gate-1",
			}},
		},
		{
			// Check-in is deliberately not backfilled from position here,
			// even though the earliest entry is available.
			name: "only out hints leaves check-in unset",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "16:00:00", types.DirectionOut),
				event("7", "2024-05-01", "17:05:00", types.DirectionOut),
			},
			want: []types.DailyAttendanceRecord{{
				EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
				CheckOut: "17:05:00",
				Source:   "network", SourceTerminal: "gate-1",
			}},
		},
		{
			name: "groups split by employee and day",
			events: []types.RawPunchEvent{
				event("7", "2024-05-01", "08:00:00", types.DirectionIn),
				event("7", "2024-05-02", "08:10:00", types.DirectionIn),
				event("9", "2024-05-01", "07:55:00", types.DirectionIn),
			},
			want: []types.DailyAttendanceRecord{
				{
					EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-01",
					CheckIn: "08:00:00",
					Source:  "network", SourceTerminal: "gate-1",
				},
				{
					EmployeeID: "7", EmployeeName: "Emp 7", Date: "2024-05-02",
					CheckIn: "08:10:00",
					Source:  "network", SourceTerminal: "gate-1",
				},
				{
					EmployeeID: "9", EmployeeName: "Emp 9", Date: "2024-05-01",
					CheckIn: "07:55:00",
					Source:  "network", SourceTerminal: "gate-1",
				},
			},
		},
		{
			name:   "no events, no records",
			events: nil,
			want:   []types.DailyAttendanceRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.events)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Reconcile() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReconcileProvenanceFromFirstEvent(t *testing.T) {
	first := event("7", "2024-05-01", "12:00:00", types.DirectionUnknown)
	first.SourceTerminal = "gate-2"
	second := event("7", "2024-05-01", "08:00:00", types.DirectionUnknown)

	got := Reconcile([]types.RawPunchEvent{first, second})
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].SourceTerminal != "gate-2" {
		t.Errorf("expected provenance from first event gate-2, got %s", got[0].SourceTerminal)
	}
	if got[0].CheckIn != "08:00:00" {
		t.Errorf("expected check-in 08:00:00, got %s", got[0].CheckIn)
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	events := []types.RawPunchEvent{
		event("7", "2024-05-01", "17:05:00", types.DirectionOut),
		event("9", "2024-05-01", "08:01:00", types.DirectionIn),
		event("7", "2024-05-01", "08:30:00", types.DirectionUnknown),
		event("9", "2024-05-02", "12:00:00", types.DirectionUnknown),
	}

	first := Reconcile(events)
	for i := 0; i < 10; i++ {
		if got := Reconcile(events); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced different records: %+v vs %+v", i, got, first)
		}
	}
}

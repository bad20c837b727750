package schedule

import (
	"reflect"
	"testing"
)

func TestProjector_Project(t *testing.T) {
	proj := NewProjector(NewTestCalendar())
	key := FilterKey{Kind: KeyRoom, ID: "room-101"}

	math := bookedSession("s1", "room-101", "teacher-a", "group-x", NewClock(8, 30), NewClock(10, 0)) // Mon 2025-09-08
	wednesday := bookedSession("s2", "room-101", "teacher-b", "group-y", NewClock(10, 10), NewClock(11, 40))
	wednesday.Date = Date(2025, 9, 10)
	adHoc := bookedSession("s3", "room-101", "teacher-c", "group-z", NewClock(13, 0), NewClock(13, 45))
	canceled := bookedSession("s4", "room-101", "teacher-d", "group-w", NewClock(14, 0), NewClock(15, 30))
	canceled.Status = StatusCanceled
	otherRoom := bookedSession("s5", "room-102", "teacher-e", "group-v", NewClock(8, 30), NewClock(10, 0))
	otherWeek := bookedSession("s6", "room-101", "teacher-f", "group-u", NewClock(8, 30), NewClock(10, 0))
	otherWeek.Date = Date(2025, 9, 15)

	sessions := []Session{math, wednesday, adHoc, canceled, otherRoom, otherWeek}

	grid := proj.Project(key, Date(2025, 9, 10) /* Wednesday; normalized to Monday */, sessions)

	if want := Date(2025, 9, 8); !grid.WeekStart.Equal(want) {
		t.Errorf("WeekStart = %v, want %v", grid.WeekStart, want)
	}
	if len(grid.Days) != 6 || len(grid.Slots) != 5 {
		t.Fatalf("grid dims = %dx%d days/slots, want 6x5", len(grid.Days), len(grid.Slots))
	}

	var filled int
	for ordinal, row := range grid.Cells {
		for day, cell := range row {
			if cell == nil {
				continue
			}
			filled++
			switch cell.ID {
			case math.ID:
				if ordinal != 0 || day != 0 {
					t.Errorf("math pinned to cell (%d,%d), want (0,0)", ordinal, day)
				}
			case wednesday.ID:
				if ordinal != 1 || day != 2 {
					t.Errorf("wednesday session pinned to cell (%d,%d), want (1,2)", ordinal, day)
				}
			default:
				t.Errorf("unexpected session %s in grid cell (%d,%d)", cell.ID, ordinal, day)
			}
		}
	}
	if filled != 2 {
		t.Errorf("grid holds %d sessions, want 2", filled)
	}

	// ad-hoc times fall back to the unslotted list, not silently dropped
	if len(grid.Unslotted) != 1 || grid.Unslotted[0].ID != adHoc.ID {
		t.Errorf("Unslotted = %+v, want only %s", grid.Unslotted, adHoc.ID)
	}
}

func TestProjector_ProjectIdempotent(t *testing.T) {
	proj := NewProjector(NewTestCalendar())
	key := FilterKey{Kind: KeyTeacher, ID: "teacher-a"}
	sessions := []Session{
		bookedSession("s1", "room-101", "teacher-a", "group-x", NewClock(8, 30), NewClock(10, 0)),
		bookedSession("s2", "room-102", "teacher-a", "group-y", NewClock(12, 10), NewClock(13, 40)),
	}

	first := proj.Project(key, Date(2025, 9, 8), sessions)
	second := proj.Project(key, Date(2025, 9, 8), sessions)
	if !reflect.DeepEqual(first, second) {
		t.Error("Project() is not idempotent for unchanged input")
	}
}

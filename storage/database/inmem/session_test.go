package inmemdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
)

func testRepo(t *testing.T) schedule.Repository {
	db, err := Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return NewScheduleRepository(db)
}

func storedSession(id, ruleID string, date time.Time, room, teacher, group string) schedule.Session {
	sess := schedule.Session{
		ID:      id,
		Date:    date,
		Start:   schedule.NewClock(8, 30),
		End:     schedule.NewClock(10, 0),
		Subject: "math",
		Teacher: teacher,
		Room:    room,
		Group:   group,
		Status:  schedule.StatusPlanned,
		Version: 1,
	}
	if ruleID != "" {
		sess.RuleID = null.StringFrom(ruleID)
	}
	return sess
}

func mustCreate(t *testing.T, repo schedule.Repository, sess schedule.Session) {
	if _, err := repo.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession(%s) failed: %v", sess.ID, err)
	}
}

func sessionIDs(sessions []schedule.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	return ids
}

func TestScheduleRepository_Rules(t *testing.T) {
	repo := testRepo(t)

	if _, err := repo.GetRuleByID("nope"); err != schedule.ErrRuleNotFound {
		t.Errorf("GetRuleByID() error = %v, want ErrRuleNotFound", err)
	}

	rule := schedule.Rule{
		ID:            "rule-1",
		Subject:       "math",
		Teacher:       "teacher-a",
		Room:          "room-101",
		Group:         "group-x",
		Day:           "MONDAY",
		Recurrence:    schedule.Weekly,
		SemesterStart: schedule.Date(2025, 9, 1),
		SemesterEnd:   schedule.Date(2025, 12, 19),
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := repo.CreateRule(rule); err != nil {
		t.Fatalf("CreateRule() failed: %v", err)
	}

	got, err := repo.GetRuleByID(rule.ID)
	if err != nil {
		t.Fatalf("GetRuleByID() failed: %v", err)
	}
	if got.ID != rule.ID || got.Day != rule.Day {
		t.Errorf("GetRuleByID() = %+v, want %+v", got, rule)
	}

	rules, err := repo.QueryAllRules()
	if err != nil {
		t.Fatalf("QueryAllRules() failed: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("QueryAllRules() returned %d rules, want 1", len(rules))
	}
}

func TestScheduleRepository_SessionsOnDate(t *testing.T) {
	repo := testRepo(t)
	monday := schedule.Date(2025, 9, 8)

	mustCreate(t, repo, storedSession("s1", "", monday, "room-101", "teacher-a", "group-x"))
	mustCreate(t, repo, storedSession("s2", "", monday, "room-102", "teacher-b", "group-y"))
	mustCreate(t, repo, storedSession("s3", "", monday, "room-103", "teacher-a", "group-z"))
	mustCreate(t, repo, storedSession("s4", "", schedule.Date(2025, 9, 9), "room-101", "teacher-a", "group-x"))

	canceled := storedSession("s5", "", monday, "room-101", "teacher-c", "group-w")
	canceled.Status = schedule.StatusCanceled
	mustCreate(t, repo, canceled)

	// candidates sharing the room or the teacher on that date, canceled excluded
	sessions, err := repo.SessionsOnDate(monday, "room-101", "teacher-a", "group-q")
	if err != nil {
		t.Fatalf("SessionsOnDate() failed: %v", err)
	}
	assert.ElementsMatch(t, []string{"s1", "s3"}, sessionIDs(sessions))
}

func TestScheduleRepository_IndexMaintenance(t *testing.T) {
	repo := testRepo(t)
	monday := schedule.Date(2025, 9, 8)

	mustCreate(t, repo, storedSession("s1", "rule-1", monday, "room-101", "teacher-a", "group-x"))

	// moving the session re-homes every index entry
	moved := storedSession("s1", "rule-1", schedule.Date(2025, 9, 9), "room-102", "teacher-b", "group-y")
	if _, err := repo.UpdateSession(moved); err != nil {
		t.Fatalf("UpdateSession() failed: %v", err)
	}

	sessions, err := repo.SessionsOnDate(monday, "room-101", "teacher-a", "group-x")
	if err != nil {
		t.Fatalf("SessionsOnDate() failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("stale index entries remain at the old position: %v", sessionIDs(sessions))
	}
	sessions, err = repo.SessionsOnDate(schedule.Date(2025, 9, 9), "room-102", "", "")
	if err != nil {
		t.Fatalf("SessionsOnDate() failed: %v", err)
	}
	assert.ElementsMatch(t, []string{"s1"}, sessionIDs(sessions))

	// detaching drops the session from the rule index
	detached := moved
	detached.RuleID = null.String{}
	if _, err = repo.UpdateSession(detached); err != nil {
		t.Fatalf("UpdateSession() failed: %v", err)
	}
	sessions, err = repo.SessionsByRule("rule-1")
	if err != nil {
		t.Fatalf("SessionsByRule() failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("detached session still indexed by rule: %v", sessionIDs(sessions))
	}

	// deleting clears all indices
	if err = repo.DeleteSessionByID("s1"); err != nil {
		t.Fatalf("DeleteSessionByID() failed: %v", err)
	}
	sessions, _ = repo.SessionsOnDate(schedule.Date(2025, 9, 9), "room-102", "teacher-b", "group-y")
	if len(sessions) != 0 {
		t.Errorf("deleted session still indexed: %v", sessionIDs(sessions))
	}

	if err = repo.DeleteSessionByID("s1"); err != schedule.ErrNotFound {
		t.Errorf("DeleteSessionByID() twice error = %v, want ErrNotFound", err)
	}
	if _, err = repo.UpdateSession(moved); err != schedule.ErrNotFound {
		t.Errorf("UpdateSession() on deleted session error = %v, want ErrNotFound", err)
	}
}

func TestScheduleRepository_FilterSessions(t *testing.T) {
	repo := testRepo(t)
	monday, tuesday := schedule.Date(2025, 9, 8), schedule.Date(2025, 9, 9)

	mustCreate(t, repo, storedSession("s1", "rule-1", monday, "room-101", "teacher-a", "group-x"))
	mustCreate(t, repo, storedSession("s2", "rule-1", tuesday, "room-101", "teacher-a", "group-x"))
	mustCreate(t, repo, storedSession("s3", "", tuesday, "room-102", "teacher-b", "group-y"))

	canceled := storedSession("s4", "", monday, "room-102", "teacher-b", "group-y")
	canceled.Status = schedule.StatusCanceled
	mustCreate(t, repo, canceled)

	tests := []struct {
		name    string
		filter  schedule.QueryFilter
		wantIDs []string
	}{
		{name: "no filter skips canceled", filter: schedule.QueryFilter{}, wantIDs: []string{"s1", "s2", "s3"}},
		{name: "by rule", filter: schedule.QueryFilter{RuleID: "rule-1"}, wantIDs: []string{"s1", "s2"}},
		{name: "by room", filter: schedule.QueryFilter{Room: "room-102"}, wantIDs: []string{"s3"}},
		{name: "by teacher and date", filter: schedule.QueryFilter{Teacher: "teacher-a", DateFrom: tuesday}, wantIDs: []string{"s2"}},
		{name: "date range", filter: schedule.QueryFilter{DateFrom: monday, DateTo: monday}, wantIDs: []string{"s1"}},
		{
			name:    "audit view includes canceled",
			filter:  schedule.QueryFilter{Room: "room-102", IncludeCanceled: true},
			wantIDs: []string{"s3", "s4"},
		},
		{
			name:    "by status",
			filter:  schedule.QueryFilter{Statuses: []schedule.Status{schedule.StatusCanceled}},
			wantIDs: []string{"s4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := repo.FilterSessions(tt.filter)
			if err != nil {
				t.Fatalf("FilterSessions() failed: %v", err)
			}
			assert.ElementsMatch(t, tt.wantIDs, sessionIDs(sessions))
		})
	}
}

func TestScheduleRepository_FilterSessionsOrdering(t *testing.T) {
	repo := testRepo(t)
	monday := schedule.Date(2025, 9, 8)

	early := storedSession("s1", "", monday, "room-101", "teacher-a", "group-x")
	late := storedSession("s2", "", monday, "room-102", "teacher-b", "group-y")
	late.Start, late.End = schedule.NewClock(10, 10), schedule.NewClock(11, 40)
	mustCreate(t, repo, early)
	mustCreate(t, repo, late)

	sessions, err := repo.FilterSessions(schedule.QueryFilter{
		Ordering: core.DBOrdering{Field: "start_min", Ascending: false},
	})
	if err != nil {
		t.Fatalf("FilterSessions() failed: %v", err)
	}
	if got := sessionIDs(sessions); len(got) != 2 || got[0] != "s2" || got[1] != "s1" {
		t.Errorf("FilterSessions() order = %v, want [s2 s1]", got)
	}

	// unknown fields keep the default (date, start) order, like the SQL backend
	sessions, err = repo.FilterSessions(schedule.QueryFilter{
		Ordering: core.DBOrdering{Field: "pg_sleep", Ascending: true},
	})
	if err != nil {
		t.Fatalf("FilterSessions() failed: %v", err)
	}
	if got := sessionIDs(sessions); len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("FilterSessions() order = %v, want [s1 s2]", got)
	}
}

func TestScheduleRepository_SessionsForKey(t *testing.T) {
	repo := testRepo(t)
	monday := schedule.Date(2025, 9, 8)

	mustCreate(t, repo, storedSession("s1", "", monday, "room-101", "teacher-a", "group-x"))
	mustCreate(t, repo, storedSession("s2", "", monday.AddDate(0, 0, 2), "room-101", "teacher-b", "group-y"))
	mustCreate(t, repo, storedSession("s3", "", monday.AddDate(0, 0, 7), "room-101", "teacher-a", "group-x")) // next week
	mustCreate(t, repo, storedSession("s4", "", monday, "room-102", "teacher-a", "group-x"))

	// canceled sessions stay in; the grid projector filters them
	canceled := storedSession("s5", "", monday, "room-101", "teacher-c", "group-z")
	canceled.Status = schedule.StatusCanceled
	mustCreate(t, repo, canceled)

	week := monday.AddDate(0, 0, 6)

	sessions, err := repo.SessionsForKey(schedule.FilterKey{Kind: schedule.KeyRoom, ID: "room-101"}, monday, week)
	if err != nil {
		t.Fatalf("SessionsForKey() failed: %v", err)
	}
	assert.ElementsMatch(t, []string{"s1", "s2", "s5"}, sessionIDs(sessions))

	sessions, err = repo.SessionsForKey(schedule.FilterKey{Kind: schedule.KeyTeacher, ID: "teacher-a"}, monday, week)
	if err != nil {
		t.Fatalf("SessionsForKey() failed: %v", err)
	}
	assert.ElementsMatch(t, []string{"s1", "s4"}, sessionIDs(sessions))
}

func TestScheduleRepository_SessionsInRange(t *testing.T) {
	repo := testRepo(t)

	mustCreate(t, repo, storedSession("s1", "", schedule.Date(2025, 9, 8), "room-101", "teacher-a", "group-x"))
	mustCreate(t, repo, storedSession("s2", "", schedule.Date(2025, 9, 15), "room-101", "teacher-a", "group-x"))
	mustCreate(t, repo, storedSession("s3", "", schedule.Date(2025, 10, 1), "room-101", "teacher-a", "group-x"))

	sessions, err := repo.SessionsInRange(schedule.Date(2025, 9, 1), schedule.Date(2025, 9, 30))
	if err != nil {
		t.Fatalf("SessionsInRange() failed: %v", err)
	}
	assert.ElementsMatch(t, []string{"s1", "s2"}, sessionIDs(sessions))
}

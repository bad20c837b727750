package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

// Recurrence patterns
const (
	Weekly   Recurrence = "WEEKLY"
	Biweekly Recurrence = "BIWEEKLY"
)

// Session statuses
const (
	StatusPlanned  Status = "PLANNED"
	StatusModified Status = "MODIFIED"
	StatusCanceled Status = "CANCELED" // terminal
)

// Conflict axes
const (
	ConflictRoom    ConflictKind = "ROOM_DOUBLE_BOOK"
	ConflictTeacher ConflictKind = "TEACHER_DOUBLE_BOOK"
	ConflictGroup   ConflictKind = "GROUP_DOUBLE_BOOK"
)

// Bulk commit policies
const (
	Atomic     Policy = "ATOMIC"      // any conflict voids the whole batch
	BestEffort Policy = "BEST_EFFORT" // valid sessions commit, conflicting ones are reported
)

// Grid filter axes
const (
	KeyRoom    KeyKind = "room"
	KeyTeacher KeyKind = "teacher"
	KeyGroup   KeyKind = "group"
)

type (
	Recurrence   string
	Status       string
	ConflictKind string
	Policy       string
	KeyKind      string
)

// ClockTime is a time of day in minutes since midnight. Sessions use
// half-open [Start, End) intervals so back-to-back bookings never overlap.
type ClockTime int

func NewClock(hour, min int) ClockTime {
	return ClockTime(hour*60 + min)
}

// ParseClock parses a "HH:MM" time of day.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return NewClock(hour, min), nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("invalid time of day %s", data)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeSlot is one of the fixed canonical start/end pairs used for grid alignment.
type TimeSlot struct {
	Ordinal int       `json:"ordinal"`
	Start   ClockTime `json:"start"`
	End     ClockTime `json:"end"`
}

// Date returns t's civil date at UTC midnight; all Session dates are stored this way.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its UTC civil date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return Date(y, m, d)
}

// WeekStart normalizes date to the Monday of the ISO week containing it.
func WeekStart(date time.Time) time.Time {
	date = DateOf(date)
	offset := (int(date.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return date.AddDate(0, 0, -offset)
}

// ParseWeekday parses a weekday name, e.g. "MONDAY" or "Monday".
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToUpper(core.CleanString(s)) {
	case "MONDAY":
		return time.Monday, nil
	case "TUESDAY":
		return time.Tuesday, nil
	case "WEDNESDAY":
		return time.Wednesday, nil
	case "THURSDAY":
		return time.Thursday, nil
	case "FRIDAY":
		return time.Friday, nil
	case "SATURDAY":
		return time.Saturday, nil
	case "SUNDAY":
		return time.Sunday, nil
	}
	return 0, fmt.Errorf("invalid day of week %q", s)
}

// Rule is a weekly/biweekly pattern that generates Sessions over a semester window.
// Subject/Teacher/Room/Group are opaque IDs owned by the directory service.
type Rule struct {
	ID            string     `json:"id" db:"id"`
	Subject       string     `json:"subject" db:"subject_id"`
	Teacher       string     `json:"teacher" db:"teacher_id"`
	Room          string     `json:"room" db:"room_id"`
	Group         string     `json:"group" db:"group_id"`
	Day           string     `json:"day" db:"day"` // weekday name, e.g. "MONDAY"
	Slot          TimeSlot   `json:"slot" db:"-"`
	Recurrence    Recurrence `json:"recurrence" db:"recurrence"`
	SemesterStart time.Time  `json:"semester_start" db:"semester_start"` // UTC date
	SemesterEnd   time.Time  `json:"semester_end" db:"semester_end"`     // UTC date
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`         // UTC
}

func (r Rule) Weekday() (time.Weekday, error) { return ParseWeekday(r.Day) }

// Session is a single concrete dated class occurrence.
type Session struct {
	ID         string      `json:"id" db:"id"`
	Date       time.Time   `json:"date" db:"date"` // UTC date
	Start      ClockTime   `json:"start" db:"start_min"`
	End        ClockTime   `json:"end" db:"end_min"`
	Subject    string      `json:"subject" db:"subject_id"`
	Teacher    string      `json:"teacher" db:"teacher_id"`
	Room       string      `json:"room" db:"room_id"`
	Group      string      `json:"group" db:"group_id"`
	Status     Status      `json:"status" db:"status"`
	RuleID     null.String `json:"rule_id,omitempty" db:"rule_id"` // NULL once detached
	Version    int         `json:"version" db:"version"`
	CanceledAt null.Time   `json:"canceled_at,omitempty" db:"canceled_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (s Session) Canceled() bool { return s.Status == StatusCanceled }
func (s Session) Detached() bool { return !s.RuleID.Valid }

// Overlaps reports whether s and other overlap in time on the same date.
// Half-open intervals: end1 == start2 is not an overlap.
func (s Session) Overlaps(other Session) bool {
	return s.Date.Equal(other.Date) && s.Start < other.End && other.Start < s.End
}

// FilterKey selects one room, teacher or group axis for grid projection.
type FilterKey struct {
	Kind KeyKind `json:"kind"`
	ID   string  `json:"id"`
}

func (k FilterKey) Matches(s Session) bool {
	switch k.Kind {
	case KeyRoom:
		return s.Room == k.ID
	case KeyTeacher:
		return s.Teacher == k.ID
	case KeyGroup:
		return s.Group == k.ID
	}
	return false
}

// Conflict is an overlap with already-booked sessions on one axis.
type Conflict struct {
	Kind ConflictKind `json:"kind"`
	With []string     `json:"with"` // colliding session IDs
}

// ConflictReport ties a rejected candidate to everything it collided with.
type ConflictReport struct {
	Candidate Session    `json:"candidate"`
	Conflicts []Conflict `json:"conflicts"`
}

// BulkResult enumerates exactly which sessions of a rule expansion committed
// and which were rejected, so a human can resolve the remainder manually.
type BulkResult struct {
	Created   []string         `json:"created"`
	Conflicts []ConflictReport `json:"conflicts"`
}

// QueryFilter applies AND on available fields; zero values are skipped.
// The audit/history view sets IncludeCanceled.
type QueryFilter struct {
	RuleID          string          `query:"rule"`
	Room            string          `query:"room"`
	Teacher         string          `query:"teacher"`
	Group           string          `query:"group"`
	Statuses        []Status        `query:"status"`
	DateFrom        time.Time       `query:"date_from"`
	DateTo          time.Time       `query:"date_to"`
	IncludeCanceled bool            `query:"include_canceled"`
	Ordering        core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.RuleID == "" && qf.Room == "" && qf.Teacher == "" && qf.Group == "" &&
		qf.Statuses == nil && qf.DateFrom.IsZero() && qf.DateTo.IsZero() && !qf.IncludeCanceled
}

func (qf *QueryFilter) Clean() {
	qf.RuleID = core.CleanString(qf.RuleID)
	qf.Room = core.CleanString(qf.Room)
	qf.Teacher = core.CleanString(qf.Teacher)
	qf.Group = core.CleanString(qf.Group)
}

// sessionOrderFields maps the client-facing ordering fields to their columns.
var sessionOrderFields = map[string]string{
	"date":       "date",
	"start":      "start_min",
	"end":        "end_min",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// SessionOrdering resolves a client-supplied ordering field against the
// sortable whitelist; repositories only ever ORDER BY whitelisted columns.
func SessionOrdering(field string, ascending bool) (core.DBOrdering, bool) {
	col, ok := sessionOrderFields[field]
	if !ok {
		return core.DBOrdering{}, false
	}
	return core.DBOrdering{Field: col, Ascending: ascending}, true
}

// NewRule contains information needed to create a recurring schedule.
type NewRule struct {
	Subject       string     `json:"subject" validate:"required"`
	Teacher       string     `json:"teacher" validate:"required"`
	Room          string     `json:"room" validate:"required"`
	Group         string     `json:"group" validate:"required"`
	Day           string     `json:"day" validate:"required,teachingday"`
	Slot          int        `json:"slot" validate:"min=0"` // canonical slot ordinal
	Recurrence    Recurrence `json:"recurrence" validate:"required,recurrence"`
	SemesterStart time.Time  `json:"semester_start" validate:"required"`
	SemesterEnd   time.Time  `json:"semester_end" validate:"required"`
}

func (nr *NewRule) Validate() error {
	nr.Subject = core.CleanString(nr.Subject)
	nr.Teacher = core.CleanString(nr.Teacher)
	nr.Room = core.CleanString(nr.Room)
	nr.Group = core.CleanString(nr.Group)
	nr.Day = strings.ToUpper(core.CleanString(nr.Day))
	nr.SemesterStart = DateOf(nr.SemesterStart)
	nr.SemesterEnd = DateOf(nr.SemesterEnd)
	return core.Validate.Struct(nr)
}

// NewSession contains information needed to book a single session.
// Start/End need not match a canonical slot; such sessions stay off the grid
// and are served through the unslotted list instead.
type NewSession struct {
	Subject string    `json:"subject" validate:"required"`
	Teacher string    `json:"teacher" validate:"required"`
	Room    string    `json:"room" validate:"required"`
	Group   string    `json:"group" validate:"required"`
	Date    time.Time `json:"date" validate:"required"`
	Start   ClockTime `json:"start" validate:"required"`
	End     ClockTime `json:"end" validate:"required"`
}

func (ns *NewSession) Validate(cal *Calendar) error {
	ns.Subject = core.CleanString(ns.Subject)
	ns.Teacher = core.CleanString(ns.Teacher)
	ns.Room = core.CleanString(ns.Room)
	ns.Group = core.CleanString(ns.Group)
	ns.Date = DateOf(ns.Date)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	if !cal.IsTeachingDay(ns.Date) {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: notTeachingDayText})
	}
	return nil
}

// SessionPatch defines what may be modified on an existing Session.
// Nil fields are left untouched. Version backs the optimistic concurrency
// check; 0 skips it.
type SessionPatch struct {
	Subject *string    `json:"subject"`
	Teacher *string    `json:"teacher"`
	Room    *string    `json:"room"`
	Group   *string    `json:"group"`
	Date    *time.Time `json:"date"`
	Start   *ClockTime `json:"start"`
	End     *ClockTime `json:"end"`
	Version int        `json:"version"`
}

func (p *SessionPatch) Validate() error {
	clean := func(s *string) {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	clean(p.Subject)
	clean(p.Teacher)
	clean(p.Room)
	clean(p.Group)
	if p.Date != nil {
		*p.Date = DateOf(*p.Date)
	}
	return core.Validate.Struct(p)
}

// core reports whether the patch touches conflict-relevant fields; such an
// edit detaches the session from its rule and re-validates it.
func (p SessionPatch) core() bool {
	return p.Teacher != nil || p.Room != nil || p.Group != nil ||
		p.Date != nil || p.Start != nil || p.End != nil
}

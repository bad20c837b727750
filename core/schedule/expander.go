package schedule

import (
	"github.com/volatiletech/null/v8"
)

// Expander materializes a Rule into concrete Sessions.
// A rule is expanded once, at creation time; generated sessions are stored,
// not recomputed on reads.
type Expander struct {
	cal *Calendar
}

func NewExpander(cal *Calendar) *Expander {
	return &Expander{cal: cal}
}

// Expand generates one PLANNED Session per recurrence step, starting from the
// first occurrence of rule.Day on/after rule.SemesterStart and stopping after
// rule.SemesterEnd (inclusive). An empty result is not an error.
func (x *Expander) Expand(rule Rule) ([]Session, error) {
	if rule.SemesterEnd.Before(rule.SemesterStart) {
		return nil, ErrInvalidRange
	}
	day, err := rule.Weekday()
	if err != nil {
		return nil, err
	}

	step := 7
	if rule.Recurrence == Biweekly {
		step = 14
	}

	var sessions []Session
	end := DateOf(rule.SemesterEnd)
	for date := x.cal.NextOccurrence(rule.SemesterStart, day); !date.After(end); date = date.AddDate(0, 0, step) {
		sessions = append(sessions, Session{
			Date:    date,
			Start:   rule.Slot.Start,
			End:     rule.Slot.End,
			Subject: rule.Subject,
			Teacher: rule.Teacher,
			Room:    rule.Room,
			Group:   rule.Group,
			Status:  StatusPlanned,
			RuleID:  null.StringFrom(rule.ID),
		})
	}
	return sessions, nil
}

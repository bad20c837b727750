package schedule

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
)

var (
	teachingDayTag  = "teachingday"
	teachingDayText = "must be a teaching day (Monday to Saturday)"

	recurrenceTag  = "recurrence"
	recurrenceText = "must be one of WEEKLY, BIWEEKLY"

	dateRangeTag  = "daterange"
	dateRangeText = "semester end cannot be before semester start"

	timeOrderTag  = "timeorder"
	timeOrderText = "end must be after start"

	notTeachingDayText = "not a teaching day"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(teachingDayTag, teachingDayValidation)
	core.RegisterCustomTranslation(teachingDayTag, teachingDayText)

	_ = core.Validate.RegisterValidation(recurrenceTag, recurrenceValidation)
	core.RegisterCustomTranslation(recurrenceTag, recurrenceText)

	core.Validate.RegisterStructValidation(ruleStructValidation, NewRule{})
	core.Validate.RegisterStructValidation(sessionStructValidation, NewSession{})
	core.Validate.RegisterStructValidation(patchStructValidation, SessionPatch{})
	core.RegisterCustomTranslation(dateRangeTag, dateRangeText)
	core.RegisterCustomTranslation(timeOrderTag, timeOrderText)
}

// Custom Validators

// teachingDayValidation checks that the value names a weekday other than
// Sunday; Sunday is never a teaching day.
func teachingDayValidation(fl validator.FieldLevel) bool {
	day, err := ParseWeekday(fl.Field().String())
	if err != nil {
		return false
	}
	return day != time.Sunday
}

func recurrenceValidation(fl validator.FieldLevel) bool {
	switch Recurrence(fl.Field().String()) {
	case Weekly, Biweekly:
		return true
	}
	return false
}

// ruleStructValidation checks the semester window of a NewRule.
func ruleStructValidation(sl validator.StructLevel) {
	if nr, ok := sl.Current().Interface().(NewRule); ok {
		if !nr.SemesterStart.IsZero() && !nr.SemesterEnd.IsZero() && nr.SemesterEnd.Before(nr.SemesterStart) {
			sl.ReportError(nr.SemesterEnd, "semester_end", "SemesterEnd", dateRangeTag, "")
		}
	}
}

// sessionStructValidation checks the half-open time interval of a NewSession.
func sessionStructValidation(sl validator.StructLevel) {
	if ns, ok := sl.Current().Interface().(NewSession); ok {
		if ns.End <= ns.Start {
			sl.ReportError(ns.End, "end", "End", timeOrderTag, "")
		}
	}
}

// patchStructValidation checks the time interval when a patch sets both ends.
func patchStructValidation(sl validator.StructLevel) {
	if p, ok := sl.Current().Interface().(SessionPatch); ok {
		if p.Start != nil && p.End != nil && *p.End <= *p.Start {
			sl.ReportError(p.End, "end", "End", timeOrderTag, "")
		}
	}
}

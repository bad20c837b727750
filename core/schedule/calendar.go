package schedule

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// Calendar holds the canonical ordered time slot table and the set of
// teaching days for a semester. Configuration is loaded once at startup;
// a Calendar is immutable afterwards.
type Calendar struct {
	slots        []TimeSlot
	teachingDays map[time.Weekday]bool
}

// NewCalendar builds a Calendar from configuration.
// Slot entries are "HH:MM-HH:MM", kept in the given order; ordinals are
// assigned from 0. Sunday is rejected as a teaching day.
func NewCalendar(conf core.SchedulingConfig) (*Calendar, error) {
	if len(conf.Slots) == 0 {
		return nil, errors.New("calendar: no time slots configured")
	}

	cal := &Calendar{
		slots:        make([]TimeSlot, 0, len(conf.Slots)),
		teachingDays: make(map[time.Weekday]bool, len(conf.TeachingDays)),
	}

	var prevEnd ClockTime
	for i, entry := range conf.Slots {
		parts := strings.SplitN(entry, "-", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("calendar: invalid slot %q", entry)
		}
		start, err := ParseClock(parts[0])
		if err != nil {
			return nil, errors.Wrapf(err, "calendar: slot %q", entry)
		}
		end, err := ParseClock(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "calendar: slot %q", entry)
		}
		if end <= start {
			return nil, errors.Errorf("calendar: slot %q ends before it starts", entry)
		}
		if start < prevEnd {
			return nil, errors.Errorf("calendar: slot %q overlaps the previous slot", entry)
		}
		cal.slots = append(cal.slots, TimeSlot{Ordinal: i, Start: start, End: end})
		prevEnd = end
	}

	for _, name := range conf.TeachingDays {
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, errors.Wrap(err, "calendar")
		}
		if day == time.Sunday {
			return nil, errors.New("calendar: Sunday is never a teaching day")
		}
		cal.teachingDays[day] = true
	}
	if len(cal.teachingDays) == 0 {
		return nil, errors.New("calendar: no teaching days configured")
	}
	return cal, nil
}

// Slots returns the canonical slot table in order.
func (cal *Calendar) Slots() []TimeSlot {
	slots := make([]TimeSlot, len(cal.slots))
	copy(slots, cal.slots)
	return slots
}

// SlotByOrdinal resolves a canonical slot by its position in the table.
func (cal *Calendar) SlotByOrdinal(ordinal int) (TimeSlot, error) {
	if ordinal < 0 || ordinal >= len(cal.slots) {
		return TimeSlot{}, ErrInvalidTimeSlot
	}
	return cal.slots[ordinal], nil
}

// SlotFor finds the canonical slot exactly matching [start, end), if any.
func (cal *Calendar) SlotFor(start, end ClockTime) (TimeSlot, bool) {
	for _, slot := range cal.slots {
		if slot.Start == start && slot.End == end {
			return slot, true
		}
	}
	return TimeSlot{}, false
}

// TeachingDays returns the configured teaching days in Monday-first order.
func (cal *Calendar) TeachingDays() []time.Weekday {
	days := make([]time.Weekday, 0, len(cal.teachingDays))
	for i := 0; i < 7; i++ {
		day := time.Weekday((int(time.Monday) + i) % 7)
		if cal.teachingDays[day] {
			days = append(days, day)
		}
	}
	return days
}

func (cal *Calendar) IsTeachingDay(date time.Time) bool {
	return cal.teachingDays[date.Weekday()]
}

// NextOccurrence returns the first date on/after `from` falling on `day`.
func (cal *Calendar) NextOccurrence(from time.Time, day time.Weekday) time.Time {
	from = DateOf(from)
	offset := (int(day) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, offset)
}

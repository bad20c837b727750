package schedule

import "time"

// Grid is a TimeSlot×DayOfWeek matrix of Sessions for one filter key and week.
// Cells is slot-major: Cells[slot][day], day 0 = Monday. Sessions whose times
// match no canonical slot land in Unslotted so list-view fallback stays possible.
type Grid struct {
	Key       FilterKey    `json:"key"`
	WeekStart time.Time    `json:"week_start"`
	Days      []time.Time  `json:"days"`
	Slots     []TimeSlot   `json:"slots"`
	Cells     [][]*Session `json:"cells"`
	Unslotted []Session    `json:"unslotted,omitempty"`
}

// Projector projects stored sessions onto the fixed slot×day grid.
type Projector struct {
	cal *Calendar
}

func NewProjector(cal *Calendar) *Projector {
	return &Projector{cal: cal}
}

// Project builds the week grid for `key` from `sessions`. weekStart is
// normalized to the Monday of the ISO week containing it; sessions outside
// [weekStart, weekStart+6] or not matching the key are skipped, CANCELED ones
// are excluded. Each cell holds at most one session.
func (p *Projector) Project(key FilterKey, weekStart time.Time, sessions []Session) Grid {
	weekStart = WeekStart(weekStart)
	weekEnd := weekStart.AddDate(0, 0, 6)

	days := p.cal.TeachingDays()
	slots := p.cal.Slots()

	grid := Grid{
		Key:       key,
		WeekStart: weekStart,
		Days:      make([]time.Time, len(days)),
		Slots:     slots,
		Cells:     make([][]*Session, len(slots)),
	}
	dayIdx := make(map[time.Weekday]int, len(days))
	for i, day := range days {
		grid.Days[i] = weekStart.AddDate(0, 0, (int(day)-int(time.Monday)+7)%7)
		dayIdx[day] = i
	}
	for i := range grid.Cells {
		grid.Cells[i] = make([]*Session, len(days))
	}

	for _, sess := range sessions {
		if sess.Canceled() || !key.Matches(sess) {
			continue
		}
		if sess.Date.Before(weekStart) || sess.Date.After(weekEnd) {
			continue
		}
		day, ok := dayIdx[sess.Date.Weekday()]
		if !ok {
			continue // non-teaching day; nothing to pin it to
		}
		slot, ok := p.cal.SlotFor(sess.Start, sess.End)
		if !ok {
			// ad-hoc booking off the canonical slot table
			grid.Unslotted = append(grid.Unslotted, sess)
			continue
		}
		if grid.Cells[slot.Ordinal][day] == nil {
			s := sess
			grid.Cells[slot.Ordinal][day] = &s
		}
	}
	return grid
}

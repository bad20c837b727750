package schedule

import (
	"time"

	"github.com/trezcool/ratiba/core"
)

// TestSchedulingConfig is the canonical slot table used across tests.
func TestSchedulingConfig() core.SchedulingConfig {
	return core.SchedulingConfig{
		Slots: []string{
			"08:30-10:00", "10:10-11:40", "12:10-13:40", "14:00-15:30", "16:10-17:40",
		},
		TeachingDays:   []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		BulkTimeBudget: 5 * time.Second,
	}
}

// NewTestCalendar builds the canonical test calendar; panics on bad config.
func NewTestCalendar() *Calendar {
	cal, err := NewCalendar(TestSchedulingConfig())
	if err != nil {
		panic(err)
	}
	return cal
}

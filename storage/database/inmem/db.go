package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/ratiba/core/schedule"
)

type (
	DB struct {
		sessions *sessionTable
		rules    *ruleTable
	}

	// dateKey indexes one (date, room|teacher|group) pair.
	dateKey struct {
		date time.Time
		id   string
	}

	idSet map[string]bool

	sessionTable struct {
		sync.RWMutex
		table map[string]*schedule.Session

		// secondary indices; conflict checks and grid queries use these
		// instead of scanning the whole table.
		byDateRoom    map[dateKey]idSet
		byDateTeacher map[dateKey]idSet
		byDateGroup   map[dateKey]idSet
		byRule        map[string]idSet
	}

	ruleTable struct {
		sync.RWMutex
		table map[string]*schedule.Rule
	}
)

func Open() (*DB, error) {
	db := &DB{
		sessions: &sessionTable{
			table:         make(map[string]*schedule.Session),
			byDateRoom:    make(map[dateKey]idSet),
			byDateTeacher: make(map[dateKey]idSet),
			byDateGroup:   make(map[dateKey]idSet),
			byRule:        make(map[string]idSet),
		},
		rules: &ruleTable{table: make(map[string]*schedule.Rule)},
	}
	return db, nil
}

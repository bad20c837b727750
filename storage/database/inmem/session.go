package inmemdb

import (
	"sort"
	"time"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
)

type scheduleRepository struct {
	sessions *sessionTable
	rules    *ruleTable
}

func NewScheduleRepository(db *DB) schedule.Repository {
	return &scheduleRepository{sessions: db.sessions, rules: db.rules}
}

// Rules

func (r *scheduleRepository) CreateRule(rule schedule.Rule) (schedule.Rule, error) {
	r.rules.Lock()
	defer r.rules.Unlock()

	r.rules.table[rule.ID] = &rule
	return rule, nil
}

func (r *scheduleRepository) GetRuleByID(id string) (schedule.Rule, error) {
	r.rules.RLock()
	defer r.rules.RUnlock()

	if rule, ok := r.rules.table[id]; ok {
		return *rule, nil
	}
	return schedule.Rule{}, schedule.ErrRuleNotFound
}

func (r *scheduleRepository) QueryAllRules() ([]schedule.Rule, error) {
	r.rules.RLock()
	defer r.rules.RUnlock()

	rules := make([]schedule.Rule, 0, len(r.rules.table))
	for _, rule := range r.rules.table {
		rules = append(rules, *rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules, nil
}

// Sessions

func (r *scheduleRepository) CreateSession(sess schedule.Session) (schedule.Session, error) {
	r.sessions.Lock()
	defer r.sessions.Unlock()

	r.sessions.table[sess.ID] = &sess
	r.index(sess)
	return sess, nil
}

func (r *scheduleRepository) GetSessionByID(id string) (schedule.Session, error) {
	r.sessions.RLock()
	defer r.sessions.RUnlock()

	if sess, ok := r.sessions.table[id]; ok {
		return *sess, nil
	}
	return schedule.Session{}, schedule.ErrNotFound
}

func (r *scheduleRepository) FilterSessions(filter schedule.QueryFilter) ([]schedule.Session, error) {
	r.sessions.RLock()
	defer r.sessions.RUnlock()

	var res []schedule.Session
	for _, sess := range r.sessions.table {
		if matchesFilter(*sess, filter) {
			res = append(res, *sess)
		}
	}
	sortSessions(res)
	if filter.Ordering.Field != "" {
		orderSessions(res, filter.Ordering)
	}
	return res, nil
}

func (r *scheduleRepository) SessionsOnDate(date time.Time, room, teacher, group string) ([]schedule.Session, error) {
	r.sessions.RLock()
	defer r.sessions.RUnlock()

	ids := make(idSet)
	for id := range r.sessions.byDateRoom[dateKey{date, room}] {
		ids[id] = true
	}
	for id := range r.sessions.byDateTeacher[dateKey{date, teacher}] {
		ids[id] = true
	}
	for id := range r.sessions.byDateGroup[dateKey{date, group}] {
		ids[id] = true
	}

	res := make([]schedule.Session, 0, len(ids))
	for id := range ids {
		if sess, ok := r.sessions.table[id]; ok && !sess.Canceled() {
			res = append(res, *sess)
		}
	}
	sortSessions(res)
	return res, nil
}

func (r *scheduleRepository) SessionsByRule(ruleID string) ([]schedule.Session, error) {
	r.sessions.RLock()
	defer r.sessions.RUnlock()

	var res []schedule.Session
	for id := range r.sessions.byRule[ruleID] {
		if sess, ok := r.sessions.table[id]; ok {
			res = append(res, *sess)
		}
	}
	sortSessions(res)
	return res, nil
}

func (r *scheduleRepository) SessionsForKey(key schedule.FilterKey, from, to time.Time) ([]schedule.Session, error) {
	r.sessions.RLock()
	defer r.sessions.RUnlock()

	var idx map[dateKey]idSet
	switch key.Kind {
	case schedule.KeyRoom:
		idx = r.sessions.byDateRoom
	case schedule.KeyTeacher:
		idx = r.sessions.byDateTeacher
	default:
		idx = r.sessions.byDateGroup
	}

	var res []schedule.Session
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		for id := range idx[dateKey{date, key.ID}] {
			if sess, ok := r.sessions.table[id]; ok {
				res = append(res, *sess)
			}
		}
	}
	sortSessions(res)
	return res, nil
}

func (r *scheduleRepository) SessionsInRange(from, to time.Time) ([]schedule.Session, error) {
	r.sessions.RLock()
	defer r.sessions.RUnlock()

	var res []schedule.Session
	for _, sess := range r.sessions.table {
		if sess.Date.Before(from) || sess.Date.After(to) {
			continue
		}
		res = append(res, *sess)
	}
	sortSessions(res)
	return res, nil
}

func (r *scheduleRepository) UpdateSession(sess schedule.Session) (schedule.Session, error) {
	r.sessions.Lock()
	defer r.sessions.Unlock()

	old, ok := r.sessions.table[sess.ID]
	if !ok {
		return schedule.Session{}, schedule.ErrNotFound
	}
	r.unindex(*old)
	r.sessions.table[sess.ID] = &sess
	r.index(sess)
	return sess, nil
}

func (r *scheduleRepository) DeleteSessionByID(id string) error {
	r.sessions.Lock()
	defer r.sessions.Unlock()

	sess, ok := r.sessions.table[id]
	if !ok {
		return schedule.ErrNotFound
	}
	r.unindex(*sess)
	delete(r.sessions.table, id)
	return nil
}

// index maintenance; callers hold the write lock.

func (r *scheduleRepository) index(sess schedule.Session) {
	addTo(r.sessions.byDateRoom, dateKey{sess.Date, sess.Room}, sess.ID)
	addTo(r.sessions.byDateTeacher, dateKey{sess.Date, sess.Teacher}, sess.ID)
	addTo(r.sessions.byDateGroup, dateKey{sess.Date, sess.Group}, sess.ID)
	if sess.RuleID.Valid {
		if r.sessions.byRule[sess.RuleID.String] == nil {
			r.sessions.byRule[sess.RuleID.String] = make(idSet)
		}
		r.sessions.byRule[sess.RuleID.String][sess.ID] = true
	}
}

func (r *scheduleRepository) unindex(sess schedule.Session) {
	delete(r.sessions.byDateRoom[dateKey{sess.Date, sess.Room}], sess.ID)
	delete(r.sessions.byDateTeacher[dateKey{sess.Date, sess.Teacher}], sess.ID)
	delete(r.sessions.byDateGroup[dateKey{sess.Date, sess.Group}], sess.ID)
	if sess.RuleID.Valid {
		delete(r.sessions.byRule[sess.RuleID.String], sess.ID)
	}
}

func addTo(idx map[dateKey]idSet, key dateKey, id string) {
	if idx[key] == nil {
		idx[key] = make(idSet)
	}
	idx[key][id] = true
}

func matchesFilter(sess schedule.Session, f schedule.QueryFilter) bool {
	if sess.Canceled() && !f.IncludeCanceled && f.Statuses == nil {
		return false
	}
	if f.RuleID != "" && (!sess.RuleID.Valid || sess.RuleID.String != f.RuleID) {
		return false
	}
	if f.Room != "" && sess.Room != f.Room {
		return false
	}
	if f.Teacher != "" && sess.Teacher != f.Teacher {
		return false
	}
	if f.Group != "" && sess.Group != f.Group {
		return false
	}
	if f.Statuses != nil {
		var found bool
		for _, status := range f.Statuses {
			if sess.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.DateFrom.IsZero() && sess.Date.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && sess.Date.After(f.DateTo) {
		return false
	}
	return true
}

func sortSessions(sessions []schedule.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		if sessions[i].Start != sessions[j].Start {
			return sessions[i].Start < sessions[j].Start
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// orderSessions applies a whitelisted ordering on top of the default sort;
// unknown fields leave the default order in place, matching the SQL backend.
func orderSessions(sessions []schedule.Session, ord core.DBOrdering) {
	less := func(a, b schedule.Session) bool {
		switch ord.Field {
		case "date":
			return a.Date.Before(b.Date)
		case "start_min":
			return a.Start < b.Start
		case "end_min":
			return a.End < b.End
		case "status":
			return a.Status < b.Status
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return false
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if ord.Ascending {
			return less(sessions[i], sessions[j])
		}
		return less(sessions[j], sessions[i])
	})
}

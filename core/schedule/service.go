package schedule

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

// for tests
var nowFunc = time.Now

type (
	// Repository is the persistence contract of the booking store.
	// Implementations maintain secondary indices by (date, room),
	// (date, teacher) and (date, group) so conflict checks and grid queries
	// never scan all sessions.
	Repository interface {
		CreateRule(rule Rule) (Rule, error)
		GetRuleByID(id string) (Rule, error)
		QueryAllRules() ([]Rule, error)

		CreateSession(sess Session) (Session, error)
		GetSessionByID(id string) (Session, error)
		// FilterSessions applies AND on available QueryFilter fields.
		FilterSessions(filter QueryFilter) ([]Session, error)
		// SessionsOnDate returns the non-CANCELED sessions on `date` sharing
		// any of room/teacher/group with the given IDs (conflict candidates).
		SessionsOnDate(date time.Time, room, teacher, group string) ([]Session, error)
		SessionsByRule(ruleID string) ([]Session, error)
		// SessionsForKey returns the sessions matching `key` with dates in
		// [from, to], including CANCELED ones (the projector filters them).
		SessionsForKey(key FilterKey, from, to time.Time) ([]Session, error)
		SessionsInRange(from, to time.Time) ([]Session, error)
		UpdateSession(sess Session) (Session, error)
		DeleteSessionByID(id string) error
	}

	// Service is the authoritative booking store. Every mutation runs its
	// conflict check and commit under one write lock so two concurrent
	// requests can never both pass the check and double-book (check-then-act).
	// Reads take the read lock and observe a consistent snapshot.
	Service struct {
		repo       Repository
		cal        *Calendar
		expander   *Expander
		projector  *Projector
		logger     core.Logger
		bulkBudget time.Duration

		mutex sync.RWMutex
	}
)

func NewService(repo Repository, cal *Calendar, logger core.Logger, conf core.SchedulingConfig) *Service {
	budget := conf.BulkTimeBudget
	if budget <= 0 {
		budget = 5 * time.Second
	}
	return &Service{
		repo:       repo,
		cal:        cal,
		expander:   NewExpander(cal),
		projector:  NewProjector(cal),
		logger:     logger,
		bulkBudget: budget,
	}
}

// Calendar exposes the semester calendar backing this store.
func (svc *Service) Calendar() *Calendar { return svc.cal }

// CreateRecurringSchedule expands a new rule into sessions and commits them
// per `policy`. Rule expansion and input validation run before the lock; only
// the check-then-commit loop is serialized. The loop is bounded by the
// configured bulk time budget: on expiry ATOMIC commits nothing and
// BEST_EFFORT returns the already-committed subset, both with ErrBulkTimeout.
func (svc *Service) CreateRecurringSchedule(nr NewRule, policy Policy) (Rule, BulkResult, error) {
	var res BulkResult

	slot, err := svc.cal.SlotByOrdinal(nr.Slot)
	if err != nil {
		return Rule{}, res, err
	}

	now := nowFunc().UTC()
	rule := Rule{
		ID:            uuid.New().String(),
		Subject:       nr.Subject,
		Teacher:       nr.Teacher,
		Room:          nr.Room,
		Group:         nr.Group,
		Day:           nr.Day,
		Slot:          slot,
		Recurrence:    nr.Recurrence,
		SemesterStart: nr.SemesterStart,
		SemesterEnd:   nr.SemesterEnd,
		CreatedAt:     now,
	}

	candidates, err := svc.expander.Expand(rule)
	if err != nil {
		return Rule{}, res, err
	}

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	deadline := nowFunc().Add(svc.bulkBudget)

	switch policy {
	case BestEffort:
		if rule, err = svc.repo.CreateRule(rule); err != nil {
			return Rule{}, res, errors.Wrap(err, "creating rule")
		}
		for _, cand := range candidates {
			if nowFunc().After(deadline) {
				svc.logger.Warn("bulk schedule creation timed out; returning committed subset",
					map[string]interface{}{"rule": rule.ID, "created": len(res.Created)})
				return rule, res, ErrBulkTimeout
			}
			conflicts, err := svc.checkCandidate(cand)
			if err != nil {
				return rule, res, err
			}
			if conflicts != nil {
				res.Conflicts = append(res.Conflicts, ConflictReport{Candidate: cand, Conflicts: conflicts})
				continue
			}
			created, err := svc.commitSession(cand, now)
			if err != nil {
				return rule, res, err
			}
			res.Created = append(res.Created, created.ID)
		}
		return rule, res, nil

	default: // Atomic: any conflict voids the whole batch
		for _, cand := range candidates {
			if nowFunc().After(deadline) {
				svc.logger.Warn("bulk schedule creation timed out; batch aborted",
					map[string]interface{}{"candidates": len(candidates)})
				return Rule{}, BulkResult{}, ErrBulkTimeout
			}
			conflicts, err := svc.checkCandidate(cand)
			if err != nil {
				return Rule{}, BulkResult{}, err
			}
			if conflicts != nil {
				res.Conflicts = append(res.Conflicts, ConflictReport{Candidate: cand, Conflicts: conflicts})
			}
		}
		if res.Conflicts != nil {
			return Rule{}, BulkResult{Conflicts: res.Conflicts}, nil
		}
		if rule, err = svc.repo.CreateRule(rule); err != nil {
			return Rule{}, BulkResult{}, errors.Wrap(err, "creating rule")
		}
		for _, cand := range candidates {
			created, err := svc.commitSession(cand, now)
			if err != nil {
				return rule, res, err
			}
			res.Created = append(res.Created, created.ID)
		}
		return rule, res, nil
	}
}

// CreateSingleSession books one session; all-or-nothing.
func (svc *Service) CreateSingleSession(ns NewSession) (Session, error) {
	cand := Session{
		Date:    ns.Date,
		Start:   ns.Start,
		End:     ns.End,
		Subject: ns.Subject,
		Teacher: ns.Teacher,
		Room:    ns.Room,
		Group:   ns.Group,
		Status:  StatusPlanned,
	}

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	conflicts, err := svc.checkCandidate(cand)
	if err != nil {
		return Session{}, err
	}
	if conflicts != nil {
		return Session{}, NewConflictError(ConflictReport{Candidate: cand, Conflicts: conflicts})
	}
	return svc.commitSession(cand, nowFunc().UTC())
}

func (svc *Service) GetSession(id string) (Session, error) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	return svc.repo.GetSessionByID(id)
}

func (svc *Service) QuerySessions(filter QueryFilter) ([]Session, error) {
	filter.Clean()
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	return svc.repo.FilterSessions(filter)
}

func (svc *Service) GetRule(id string) (Rule, error) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	return svc.repo.GetRuleByID(id)
}

func (svc *Service) QueryRules() ([]Rule, error) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	return svc.repo.QueryAllRules()
}

// UpdateSession applies the patch after re-validating the patched session
// against the store excluding itself. Touching any conflict-relevant field
// detaches the session from its rule and marks it MODIFIED.
func (svc *Service) UpdateSession(id string, patch SessionPatch) (Session, error) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	sess, err := svc.repo.GetSessionByID(id)
	if err != nil {
		return Session{}, err
	}
	if sess.Canceled() {
		return Session{}, ErrSessionCanceled
	}
	if patch.Version > 0 && patch.Version != sess.Version {
		return Session{}, ErrConcurrentModification
	}

	updated := sess
	if patch.Subject != nil {
		updated.Subject = *patch.Subject
	}
	if patch.Teacher != nil {
		updated.Teacher = *patch.Teacher
	}
	if patch.Room != nil {
		updated.Room = *patch.Room
	}
	if patch.Group != nil {
		updated.Group = *patch.Group
	}
	if patch.Date != nil {
		updated.Date = *patch.Date
	}
	if patch.Start != nil {
		updated.Start = *patch.Start
	}
	if patch.End != nil {
		updated.End = *patch.End
	}

	if updated.End <= updated.Start {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "end", Error: timeOrderText})
	}
	if !svc.cal.IsTeachingDay(updated.Date) {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: notTeachingDayText})
	}

	if patch.core() {
		conflicts, err := svc.checkCandidate(updated)
		if err != nil {
			return Session{}, err
		}
		if conflicts != nil {
			return Session{}, NewConflictError(ConflictReport{Candidate: updated, Conflicts: conflicts})
		}
		// editing core fields makes the session independently mutable
		updated.RuleID = null.String{}
		updated.Status = StatusModified
	}

	updated.Version++
	updated.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateSession(updated)
}

// DeleteSession hard-removes a session from all active indices.
func (svc *Service) DeleteSession(id string) error {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	return svc.repo.DeleteSessionByID(id)
}

// CancelSession soft-cancels a session; CANCELED is terminal. The session
// stays visible to audit/history views but stops counting for conflicts and
// drops out of default grid output. Canceling twice is a no-op.
func (svc *Service) CancelSession(id string) (Session, error) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	return svc.cancelSession(id)
}

func (svc *Service) cancelSession(id string) (Session, error) {
	sess, err := svc.repo.GetSessionByID(id)
	if err != nil {
		return Session{}, err
	}
	if sess.Canceled() {
		return sess, nil
	}
	now := nowFunc().UTC()
	sess.Status = StatusCanceled
	sess.CanceledAt = null.TimeFrom(now)
	sess.UpdatedAt = now
	sess.Version++
	return svc.repo.UpdateSession(sess)
}

// CancelRuleSessions cancels a rule's non-detached sessions dated on/after
// `from` (today when zero). Cascading is always this explicit call, never an
// implicit side effect. Returns the canceled session IDs.
func (svc *Service) CancelRuleSessions(ruleID string, from time.Time) ([]string, error) {
	if from.IsZero() {
		from = nowFunc()
	}
	from = DateOf(from)

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if _, err := svc.repo.GetRuleByID(ruleID); err != nil {
		return nil, err
	}
	sessions, err := svc.repo.SessionsByRule(ruleID)
	if err != nil {
		return nil, err
	}

	var canceled []string
	for _, sess := range sessions {
		if sess.Canceled() || sess.Detached() || sess.Date.Before(from) {
			continue
		}
		if _, err := svc.cancelSession(sess.ID); err != nil {
			return canceled, err
		}
		canceled = append(canceled, sess.ID)
	}
	return canceled, nil
}

// WeekGrid projects the stored sessions of the ISO week containing `weekStart`
// onto the canonical slot×day grid for one room/teacher/group.
func (svc *Service) WeekGrid(key FilterKey, weekStart time.Time) (Grid, error) {
	from := WeekStart(weekStart)
	to := from.AddDate(0, 0, 6)

	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	sessions, err := svc.repo.SessionsForKey(key, from, to)
	if err != nil {
		return Grid{}, errors.Wrap(err, "querying week sessions")
	}
	return svc.projector.Project(key, from, sessions), nil
}

// Conflicts audits the committed sessions in [from, to] for overlaps. A
// healthy store returns nothing here; every pair is reported once.
func (svc *Service) Conflicts(from, to time.Time) ([]ConflictReport, error) {
	from, to = DateOf(from), DateOf(to)

	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	sessions, err := svc.repo.SessionsInRange(from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions in range")
	}

	byDate := make(map[time.Time][]Session)
	for _, sess := range sessions {
		if sess.Canceled() {
			continue
		}
		byDate[sess.Date] = append(byDate[sess.Date], sess)
	}

	var reports []ConflictReport
	for _, booked := range byDate {
		for i := 1; i < len(booked); i++ {
			if conflicts := CheckConflicts(booked[i], booked[:i]); conflicts != nil {
				reports = append(reports, ConflictReport{Candidate: booked[i], Conflicts: conflicts})
			}
		}
	}
	return reports, nil
}

// checkCandidate runs the conflict detector against the currently committed
// sessions sharing the candidate's date and axes. Callers hold the lock.
func (svc *Service) checkCandidate(cand Session) ([]Conflict, error) {
	existing, err := svc.repo.SessionsOnDate(cand.Date, cand.Room, cand.Teacher, cand.Group)
	if err != nil {
		return nil, errors.Wrap(err, "querying booked sessions")
	}
	return CheckConflicts(cand, existing), nil
}

// commitSession stamps and stores a validated candidate. Callers hold the lock.
func (svc *Service) commitSession(cand Session, now time.Time) (Session, error) {
	cand.ID = uuid.New().String()
	cand.Version = 1
	cand.CreatedAt = now
	cand.UpdatedAt = now
	created, err := svc.repo.CreateSession(cand)
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	return created, nil
}

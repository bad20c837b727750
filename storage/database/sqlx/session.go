package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
)

const (
	sessionCols = `id, date, start_min, end_min, subject_id, teacher_id, room_id, group_id,
		status, rule_id, version, canceled_at, created_at, updated_at`
	ruleCols = `id, subject_id, teacher_id, room_id, group_id, day, slot_ordinal, recurrence,
		semester_start, semester_end, created_at`
)

// columns FilterSessions may ORDER BY; anything else falls back to date.
var sortableSessionCols = map[string]bool{
	"date":       true,
	"start_min":  true,
	"end_min":    true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
}

type scheduleRepository struct {
	db  *sqlx.DB
	cal *schedule.Calendar
}

// NewScheduleRepository returns a postgres-backed schedule.Repository.
// The calendar resolves stored slot ordinals back into canonical slots.
func NewScheduleRepository(db *sqlx.DB, cal *schedule.Calendar) schedule.Repository {
	return &scheduleRepository{db: db, cal: cal}
}

// dbRule mirrors the rules table; the canonical slot is persisted by ordinal.
type dbRule struct {
	ID            string              `db:"id"`
	Subject       string              `db:"subject_id"`
	Teacher       string              `db:"teacher_id"`
	Room          string              `db:"room_id"`
	Group         string              `db:"group_id"`
	Day           string              `db:"day"`
	SlotOrdinal   int                 `db:"slot_ordinal"`
	Recurrence    schedule.Recurrence `db:"recurrence"`
	SemesterStart time.Time           `db:"semester_start"`
	SemesterEnd   time.Time           `db:"semester_end"`
	CreatedAt     time.Time           `db:"created_at"`
}

func (r *scheduleRepository) toRule(row dbRule) (schedule.Rule, error) {
	slot, err := r.cal.SlotByOrdinal(row.SlotOrdinal)
	if err != nil {
		// stored ordinal outside the configured slot table: the calendar and
		// the store are out of sync and nothing this process serves can be
		// trusted anymore
		return schedule.Rule{}, core.NewShutdownError(
			fmt.Sprintf("rule %s references slot %d outside the configured slot table", row.ID, row.SlotOrdinal))
	}
	return schedule.Rule{
		ID:            row.ID,
		Subject:       row.Subject,
		Teacher:       row.Teacher,
		Room:          row.Room,
		Group:         row.Group,
		Day:           row.Day,
		Slot:          slot,
		Recurrence:    row.Recurrence,
		SemesterStart: schedule.DateOf(row.SemesterStart),
		SemesterEnd:   schedule.DateOf(row.SemesterEnd),
		CreatedAt:     row.CreatedAt,
	}, nil
}

// Rules

func (r *scheduleRepository) CreateRule(rule schedule.Rule) (schedule.Rule, error) {
	row := dbRule{
		ID:            rule.ID,
		Subject:       rule.Subject,
		Teacher:       rule.Teacher,
		Room:          rule.Room,
		Group:         rule.Group,
		Day:           rule.Day,
		SlotOrdinal:   rule.Slot.Ordinal,
		Recurrence:    rule.Recurrence,
		SemesterStart: rule.SemesterStart,
		SemesterEnd:   rule.SemesterEnd,
		CreatedAt:     rule.CreatedAt,
	}
	_, err := r.db.NamedExec(`
		INSERT INTO rules (`+ruleCols+`)
		VALUES (:id, :subject_id, :teacher_id, :room_id, :group_id, :day, :slot_ordinal,
			:recurrence, :semester_start, :semester_end, :created_at)`, row)
	if err != nil {
		return schedule.Rule{}, errors.Wrap(err, "inserting rule")
	}
	return rule, nil
}

func (r *scheduleRepository) GetRuleByID(id string) (schedule.Rule, error) {
	var row dbRule
	if err := r.db.Get(&row, `SELECT `+ruleCols+` FROM rules WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return schedule.Rule{}, schedule.ErrRuleNotFound
		}
		return schedule.Rule{}, errors.Wrap(err, "getting rule")
	}
	return r.toRule(row)
}

func (r *scheduleRepository) QueryAllRules() ([]schedule.Rule, error) {
	var rows []dbRule
	if err := r.db.Select(&rows, `SELECT `+ruleCols+` FROM rules ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying rules")
	}
	rules := make([]schedule.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := r.toRule(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Sessions

func (r *scheduleRepository) CreateSession(sess schedule.Session) (schedule.Session, error) {
	_, err := r.db.NamedExec(`
		INSERT INTO sessions (`+sessionCols+`)
		VALUES (:id, :date, :start_min, :end_min, :subject_id, :teacher_id, :room_id, :group_id,
			:status, :rule_id, :version, :canceled_at, :created_at, :updated_at)`, sess)
	if err != nil {
		return schedule.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (r *scheduleRepository) GetSessionByID(id string) (schedule.Session, error) {
	var sess schedule.Session
	if err := r.db.Get(&sess, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return schedule.Session{}, schedule.ErrNotFound
		}
		return schedule.Session{}, errors.Wrap(err, "getting session")
	}
	return normalize(sess), nil
}

func (r *scheduleRepository) FilterSessions(filter schedule.QueryFilter) ([]schedule.Session, error) {
	where := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)
	arg := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.RuleID != "" {
		arg("rule_id = $%d", filter.RuleID)
	}
	if filter.Room != "" {
		arg("room_id = $%d", filter.Room)
	}
	if filter.Teacher != "" {
		arg("teacher_id = $%d", filter.Teacher)
	}
	if filter.Group != "" {
		arg("group_id = $%d", filter.Group)
	}
	if !filter.DateFrom.IsZero() {
		arg("date >= $%d", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		arg("date <= $%d", filter.DateTo)
	}
	if filter.Statuses != nil {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	} else if !filter.IncludeCanceled {
		arg("status <> $%d", schedule.StatusCanceled)
	}

	q := `SELECT ` + sessionCols + ` FROM sessions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	// only whitelisted columns ever reach ORDER BY
	ord := filter.Ordering
	if !sortableSessionCols[ord.Field] {
		ord = core.DBOrdering{Field: "date", Ascending: true}
	}
	q += " ORDER BY " + ord.String() + ", start_min ASC"

	var sessions []schedule.Session
	if err := r.db.Select(&sessions, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering sessions")
	}
	return normalizeAll(sessions), nil
}

func (r *scheduleRepository) SessionsOnDate(date time.Time, room, teacher, group string) ([]schedule.Session, error) {
	var sessions []schedule.Session
	err := r.db.Select(&sessions, `
		SELECT `+sessionCols+` FROM sessions
		WHERE date = $1 AND (room_id = $2 OR teacher_id = $3 OR group_id = $4) AND status <> $5
		ORDER BY start_min`, date, room, teacher, group, schedule.StatusCanceled)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions on date")
	}
	return normalizeAll(sessions), nil
}

func (r *scheduleRepository) SessionsByRule(ruleID string) ([]schedule.Session, error) {
	var sessions []schedule.Session
	err := r.db.Select(&sessions, `
		SELECT `+sessionCols+` FROM sessions WHERE rule_id = $1 ORDER BY date`, ruleID)
	if err != nil {
		return nil, errors.Wrap(err, "querying rule sessions")
	}
	return normalizeAll(sessions), nil
}

func (r *scheduleRepository) SessionsForKey(key schedule.FilterKey, from, to time.Time) ([]schedule.Session, error) {
	var col string
	switch key.Kind {
	case schedule.KeyRoom:
		col = "room_id"
	case schedule.KeyTeacher:
		col = "teacher_id"
	default:
		col = "group_id"
	}

	var sessions []schedule.Session
	err := r.db.Select(&sessions, `
		SELECT `+sessionCols+` FROM sessions
		WHERE `+col+` = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, start_min`, key.ID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions for key")
	}
	return normalizeAll(sessions), nil
}

func (r *scheduleRepository) SessionsInRange(from, to time.Time) ([]schedule.Session, error) {
	var sessions []schedule.Session
	err := r.db.Select(&sessions, `
		SELECT `+sessionCols+` FROM sessions WHERE date BETWEEN $1 AND $2
		ORDER BY date, start_min`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions in range")
	}
	return normalizeAll(sessions), nil
}

func (r *scheduleRepository) UpdateSession(sess schedule.Session) (schedule.Session, error) {
	res, err := r.db.NamedExec(`
		UPDATE sessions SET
			date = :date, start_min = :start_min, end_min = :end_min,
			subject_id = :subject_id, teacher_id = :teacher_id, room_id = :room_id,
			group_id = :group_id, status = :status, rule_id = :rule_id,
			version = :version, canceled_at = :canceled_at, updated_at = :updated_at
		WHERE id = :id`, sess)
	if err != nil {
		return schedule.Session{}, errors.Wrap(err, "updating session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.Session{}, schedule.ErrNotFound
	}
	return sess, nil
}

func (r *scheduleRepository) DeleteSessionByID(id string) error {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

// normalize pins DB date/timestamp values back to the UTC representations the
// domain expects (pq may attach a location to `date` columns).
func normalize(sess schedule.Session) schedule.Session {
	sess.Date = schedule.DateOf(sess.Date)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	return sess
}

func normalizeAll(sessions []schedule.Session) []schedule.Session {
	for i, sess := range sessions {
		sessions[i] = normalize(sess)
	}
	return sessions
}

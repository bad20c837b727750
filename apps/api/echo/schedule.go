package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
)

var errInvalidPolicy = "invalid policy; expected one of atomic, best_effort"

type scheduleApi struct {
	svc *schedule.Service
}

func registerScheduleAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *schedule.Service) {
	api := scheduleApi{svc: svc}

	sg := g.Group("/schedule", jwt)

	// recurring rules
	rg := sg.Group("/rules")
	rg.POST("", api.createRule, schedulerMiddleware())
	rg.GET("", api.queryRules)
	rg.GET("/:id", api.retrieveRule)
	rg.POST("/:id/cancel", api.cancelRuleSessions, schedulerMiddleware())

	// sessions
	seg := sg.Group("/sessions")
	seg.POST("", api.createSession, schedulerMiddleware())
	seg.GET("", api.querySessions)
	seg.GET("/:id", api.retrieveSession)
	seg.PUT("/:id", api.updateSession, schedulerMiddleware())
	seg.DELETE("/:id", api.destroySession, schedulerMiddleware())
	seg.POST("/:id/cancel", api.cancelSession, schedulerMiddleware())

	// read views
	sg.GET("/grid", api.weekGrid)
	sg.GET("/conflicts", api.queryConflicts)
}

// BulkScheduleResponse enumerates exactly which sessions committed and which
// were rejected with their conflicts.
type BulkScheduleResponse struct {
	Rule      *schedule.Rule            `json:"rule,omitempty"`
	Created   []string                  `json:"created"`
	Conflicts []schedule.ConflictReport `json:"conflicts"`
	Error     string                    `json:"error,omitempty"`
}

// Handlers

func (api *scheduleApi) createRule(ctx echo.Context) error {
	var data schedule.NewRule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRule")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	policy, err := bindPolicy(ctx)
	if err != nil {
		return err
	}

	rule, res, err := api.svc.CreateRecurringSchedule(data, policy)
	resp := BulkScheduleResponse{Created: res.Created, Conflicts: res.Conflicts}
	if rule.ID != "" {
		resp.Rule = &rule
	}
	if err != nil {
		// a timed-out BEST_EFFORT batch keeps its committed subset; the
		// caller must still learn exactly which sessions went through
		if errors.Cause(err) == schedule.ErrBulkTimeout && policy == schedule.BestEffort {
			resp.Error = err.Error()
			return ctx.JSON(http.StatusGatewayTimeout, resp)
		}
		return err
	}
	if policy == schedule.Atomic && res.Conflicts != nil {
		return ctx.JSON(http.StatusConflict, resp)
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *scheduleApi) queryRules(ctx echo.Context) error {
	rules, err := api.svc.QueryRules()
	if err != nil {
		return errors.Wrap(err, "querying rules")
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *scheduleApi) retrieveRule(ctx echo.Context) error {
	rule, err := api.svc.GetRule(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *scheduleApi) cancelRuleSessions(ctx echo.Context) error {
	from, err := bindDateParam(ctx, "from")
	if err != nil {
		return err
	}
	canceled, err := api.svc.CancelRuleSessions(ctx.Param("id"), from)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"canceled": canceled})
}

func (api *scheduleApi) createSession(ctx echo.Context) error {
	var data schedule.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.svc.Calendar()); err != nil {
		return err
	}

	sess, err := api.svc.CreateSingleSession(data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *scheduleApi) querySessions(ctx echo.Context) error {
	filter, err := bindSessionFilter(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.svc.QuerySessions(filter)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *scheduleApi) retrieveSession(ctx echo.Context) error {
	sess, err := api.svc.GetSession(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *scheduleApi) updateSession(ctx echo.Context) error {
	var patch schedule.SessionPatch
	if err := ctx.Bind(&patch); err != nil {
		return errors.Wrap(err, "binding to SessionPatch")
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	sess, err := api.svc.UpdateSession(ctx.Param("id"), patch)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *scheduleApi) destroySession(ctx echo.Context) error {
	if err := api.svc.DeleteSession(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scheduleApi) cancelSession(ctx echo.Context) error {
	sess, err := api.svc.CancelSession(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *scheduleApi) weekGrid(ctx echo.Context) error {
	key, err := bindFilterKey(ctx)
	if err != nil {
		return err
	}
	week, err := bindDateParam(ctx, "week")
	if err != nil {
		return err
	}
	if week.IsZero() {
		return core.NewValidationError(nil, core.FieldError{Field: "week", Error: "this field is required"})
	}

	grid, err := api.svc.WeekGrid(key, week)
	if err != nil {
		return errors.Wrap(err, "projecting week grid")
	}
	return ctx.JSON(http.StatusOK, grid)
}

func (api *scheduleApi) queryConflicts(ctx echo.Context) error {
	from, err := bindDateParam(ctx, "from")
	if err != nil {
		return err
	}
	to, err := bindDateParam(ctx, "to")
	if err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return core.NewValidationError(nil,
			core.FieldError{Field: "from", Error: "this field is required"},
			core.FieldError{Field: "to", Error: "this field is required"},
		)
	}

	reports, err := api.svc.Conflicts(from, to)
	if err != nil {
		return errors.Wrap(err, "auditing conflicts")
	}
	return ctx.JSON(http.StatusOK, reports)
}

// Bindings

func bindPolicy(ctx echo.Context) (schedule.Policy, error) {
	switch strings.ToUpper(core.CleanString(ctx.QueryParam("policy"))) {
	case "", string(schedule.Atomic):
		return schedule.Atomic, nil
	case string(schedule.BestEffort):
		return schedule.BestEffort, nil
	}
	return "", core.NewValidationError(nil, core.FieldError{Field: "policy", Error: errInvalidPolicy})
}

func bindSessionFilter(ctx echo.Context) (schedule.QueryFilter, error) {
	filter := schedule.QueryFilter{
		RuleID:          ctx.QueryParam("rule"),
		Room:            ctx.QueryParam("room"),
		Teacher:         ctx.QueryParam("teacher"),
		Group:           ctx.QueryParam("group"),
		IncludeCanceled: ctx.QueryParam("include_canceled") == "true",
	}
	for _, val := range ctx.QueryParams()["status"] {
		filter.Statuses = append(filter.Statuses, schedule.Status(strings.ToUpper(core.CleanString(val))))
	}

	var err error
	if filter.DateFrom, err = bindDateParam(ctx, "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = bindDateParam(ctx, "date_to"); err != nil {
		return filter, err
	}

	var ord Ordering
	ord.Bind(ctx)
	if len(ord.Orderings) > 0 {
		raw := ord.Orderings[0]
		resolved, ok := schedule.SessionOrdering(raw.Field, raw.Ascending)
		if !ok {
			return filter, core.NewValidationError(nil, core.FieldError{Field: orderingParam, Error: "unknown ordering field"})
		}
		filter.Ordering = resolved
	}
	return filter, nil
}

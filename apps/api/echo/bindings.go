package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
)

var (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

// Ordering binds the "?ordering=field[,-field2]" query param.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindDateParam parses an optional "YYYY-MM-DD" query param.
func bindDateParam(ctx echo.Context, name string) (time.Time, error) {
	val := core.CleanString(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	date, err := time.ParseInLocation(dateLayout, val, time.UTC)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "invalid date; expected YYYY-MM-DD"})
	}
	return date, nil
}

// bindFilterKey binds exactly one of ?room=|?teacher=|?group=.
func bindFilterKey(ctx echo.Context) (schedule.FilterKey, error) {
	keys := make([]schedule.FilterKey, 0, 1)
	for _, kind := range []schedule.KeyKind{schedule.KeyRoom, schedule.KeyTeacher, schedule.KeyGroup} {
		if id := core.CleanString(ctx.QueryParam(string(kind))); id != "" {
			keys = append(keys, schedule.FilterKey{Kind: kind, ID: id})
		}
	}
	if len(keys) != 1 {
		return schedule.FilterKey{}, core.NewValidationError(nil, core.FieldError{
			Field: "filter", Error: "exactly one of room, teacher or group is required",
		})
	}
	return keys[0], nil
}

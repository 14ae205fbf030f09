package query

import (
	"strings"
	"time"

	"github.com/iyulab/siem-analyst/internal/model"
)

// Fallback windows. Note the asymmetry: a query with no time phrase at all
// gets the trailing day, while a time phrase we do not recognize ("last hour",
// "23:00", an ISO date) gets only the trailing hour. Both are kept as observed
// in production rather than unified.
const (
	defaultWindow      = 24 * time.Hour
	unrecognizedWindow = time.Hour
)

// ResolveTimeRange maps the first time_range entity onto an absolute window
// ending at now.
func ResolveTimeRange(entities []model.Entity, now time.Time) model.TimeRange {
	e, ok := model.FirstEntity(entities, model.EntityTimeRange)
	if !ok {
		return model.TimeRange{Start: now.Add(-defaultWindow), End: now}
	}

	phrase := strings.Join(strings.Fields(strings.ToLower(e.Value)), " ")
	switch {
	case strings.Contains(phrase, "yesterday"), strings.Contains(phrase, "last 24 hour"):
		return model.TimeRange{Start: now.AddDate(0, 0, -1), End: now}
	case strings.Contains(phrase, "last week"), strings.Contains(phrase, "past week"):
		return model.TimeRange{Start: now.AddDate(0, 0, -7), End: now}
	case strings.Contains(phrase, "last month"), strings.Contains(phrase, "past month"):
		return model.TimeRange{Start: now.AddDate(0, 0, -30), End: now}
	case strings.Contains(phrase, "today"):
		y, m, d := now.Date()
		return model.TimeRange{Start: time.Date(y, m, d, 0, 0, 0, 0, now.Location()), End: now}
	default:
		return model.TimeRange{Start: now.Add(-unrecognizedWindow), End: now}
	}
}

// Package query compiles an intent and its entities into a search request.
package query

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
)

// Page sizes.
const (
	DefaultSize  = 100
	FallbackSize = 10
)

// Compiler builds StructuredQuery values. It is stateless and safe for
// concurrent use.
type Compiler struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewCompiler returns a Compiler using the wall clock.
func NewCompiler(logger *zap.Logger) *Compiler {
	return &Compiler{
		logger: observability.OrNop(logger).Named("query"),
		now:    time.Now,
	}
}

// WithClock returns a copy of c that reads the time from now.
func (c *Compiler) WithClock(now func() time.Time) *Compiler {
	cp := *c
	cp.now = now
	return &cp
}

// Compile builds the search request for one turn. Filter turns inherit the
// previous turn's entities from cc so they narrow the earlier search. Compile
// never fails: an internal fault yields a match-all query.
func (c *Compiler) Compile(intent model.Intent, entities []model.Entity, cc *model.ConversationContext) (q model.StructuredQuery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("compilation failed, using catch-all query", zap.Error(fmt.Errorf("%v", r)))
			q = Fallback(time.Now())
		}
	}()

	now := c.now()

	if intent == model.IntentFilterResults && cc != nil {
		entities = model.MergeEntities(entities, cc.LastEntities)
	}

	tr := ResolveTimeRange(entities, now)

	must := []any{}
	for _, e := range entities {
		if clause, ok := entityClause(e); ok {
			must = append(must, clause)
		}
	}

	body := map[string]any{}
	size := DefaultSize

	switch intent {
	case model.IntentSearchLogs:
		must = append(must, securityClause())
	case model.IntentGetStatistics:
		body["aggs"] = statisticsAggregations()
		body["size"] = 0
		size = 0
	}

	body["query"] = map[string]any{
		"bool": map[string]any{
			"must":   must,
			"filter": []any{rangeClause(tr)},
		},
	}
	body["sort"] = []any{
		map[string]any{"@timestamp": map[string]any{"order": "desc"}},
	}

	q = model.StructuredQuery{
		QueryType:    model.QueryTypeElasticsearchDSL,
		Body:         body,
		IndexPattern: SelectIndex(intent, entities),
		TimeRange:    tr,
		Size:         size,
		KQL:          RenderKQL(intent, entities),
	}
	c.logger.Debug("compiled",
		zap.String("intent", string(intent)),
		zap.String("index", q.IndexPattern),
		zap.Int("filters", len(must)),
		zap.Duration("window", tr.Duration()))
	return q
}

// Fallback is the catch-all query used when compilation faults.
func Fallback(now time.Time) model.StructuredQuery {
	tr := model.TimeRange{Start: now.Add(-defaultWindow), End: now}
	return model.StructuredQuery{
		QueryType:    model.QueryTypeElasticsearchDSL,
		Body:         map[string]any{"query": map[string]any{"match_all": map[string]any{}}},
		IndexPattern: IndexDefault,
		TimeRange:    tr,
		Size:         FallbackSize,
		KQL:          "*",
	}
}

func rangeClause(tr model.TimeRange) map[string]any {
	return map[string]any{
		"range": map[string]any{
			"@timestamp": map[string]any{
				"gte": tr.Start.Format(time.RFC3339),
				"lte": tr.End.Format(time.RFC3339),
			},
		},
	}
}

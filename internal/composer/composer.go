// Package composer renders search results and findings into the narrative,
// data and chart descriptors returned to the analyst.
package composer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
)

// Display caps.
const (
	maxDisplayEvents  = 20
	maxDetailedEvents = 5
	maxGenericEvents  = 10
	maxGenericShown   = 3
)

// Response is the composed reply for one turn.
type Response struct {
	Text             string  `json:"response"`
	Data             *Data   `json:"data,omitempty"`
	Visualization    *Chart  `json:"visualization,omitempty"`
	AdditionalCharts []Chart `json:"additional_charts,omitempty"`
}

// Data carries the structured payload behind the narrative.
type Data struct {
	TotalHits    int                   `json:"total_hits"`
	Events       []model.SecurityEvent `json:"events"`
	Summary      *EventSummary         `json:"summary,omitempty"`
	Aggregations map[string]any        `json:"aggregations,omitempty"`
	Statistics   *Statistics           `json:"statistics,omitempty"`
	Analysis     *detection.Analysis   `json:"analysis,omitempty"`
}

// Statistics is the breakdown returned for statistics questions.
type Statistics struct {
	EventTypes           []Bucket        `json:"event_types"`
	TopSourceIPs         []Bucket        `json:"top_source_ips"`
	SeverityDistribution []SeverityCount `json:"severity_distribution"`
}

// Composer formats results per intent. It is stateless apart from its clock.
type Composer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New returns a Composer using the wall clock.
func New(logger *zap.Logger) *Composer {
	return &Composer{logger: observability.OrNop(logger).Named("composer"), now: time.Now}
}

// Compose renders result for intent. analysis may be nil for intents that
// skip threat detection. A fault while formatting yields a plain-text error
// narrative instead of propagating.
func (c *Composer) Compose(result *model.SearchResult, intent model.Intent, query string, analysis *detection.Analysis) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("formatting failed", zap.String("intent", string(intent)), zap.Any("panic", r))
			resp = Response{Text: fmt.Sprintf("I encountered an error while processing the results: %v", r)}
		}
	}()

	if result == nil {
		result = &model.SearchResult{}
	}

	switch intent {
	case model.IntentSearchLogs:
		resp = c.formatSearch(result, query, analysis)
	case model.IntentGenerateReport:
		resp = c.formatReport(result, query, analysis)
	case model.IntentGetStatistics:
		resp = c.formatStatistics(result, query)
	default:
		resp = c.formatGeneric(result, query, analysis)
	}
	return resp
}

package composer

import (
	"github.com/iyulab/siem-analyst/internal/model"
)

// MaxSuggestions caps the follow-up prompts returned per turn.
const MaxSuggestions = 5

// Result-size thresholds for narrowing and broadening prompts.
const narrowAbove = 100

// Broadening prompts offered when nothing matched.
const (
	SuggestExpandTimeRange = "Try expanding the time range for this search"
	SuggestPastWeek        = "Search for similar events in the past week"
)

var intentSuggestions = map[model.Intent][]string{
	model.IntentSearchLogs: {
		"Show me only high severity events from these results",
		"Generate a report for these findings",
		"What are the top source IPs in these events?",
	},
	model.IntentGetStatistics: {
		"Show me the detailed events behind these statistics",
		"Create a timeline view of these events",
		"Filter these by specific time range",
	},
}

// Suggest derives follow-up prompts. Result-size prompts come first so the
// broadening advice for an empty result is never truncated away, followed by
// intent prompts and entity pivots on the first IP and first username.
func Suggest(intent model.Intent, entities []model.Entity, totalHits int) []string {
	var out []string
	switch {
	case totalHits == 0:
		out = append(out, SuggestExpandTimeRange, SuggestPastWeek)
	case totalHits > narrowAbove:
		out = append(out, "Filter these results to show only the most critical events")
	}

	out = append(out, intentSuggestions[intent]...)

	if ip, ok := model.FirstEntity(entities, model.EntityIPAddress); ok {
		out = append(out,
			"Show all events from IP "+ip.Value,
			"What other IPs communicated with "+ip.Value+"?")
	}
	if user, ok := model.FirstEntity(entities, model.EntityUsername); ok {
		out = append(out,
			"Show login history for user "+user.Value,
			"What systems did "+user.Value+" access?")
	}

	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

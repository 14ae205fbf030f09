package nlp

import (
	"regexp"

	"github.com/iyulab/siem-analyst/internal/model"
)

// Fixed intent confidences.
const (
	MatchedIntentConfidence = 0.8
	DefaultIntentConfidence = 0.6
)

// IntentRule maps an intent to the cues that select it.
type IntentRule struct {
	Intent model.Intent
	Cues   []*regexp.Regexp
}

// Matches reports whether any cue matches the lowercased text.
func (r IntentRule) Matches(lower string) bool {
	for _, cue := range r.Cues {
		if cue.MatchString(lower) {
			return true
		}
	}
	return false
}

func cues(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// intentRules is evaluated top to bottom and the first matching rule wins.
// Order is the tie-break: "show report" style phrasing that also matches an
// earlier search cue resolves to search. Crude, but stable and testable.
var intentRules = []IntentRule{
	{model.IntentSearchLogs, cues(
		`show.*logs?`, `find.*events?`, `search.*for`, `what.*happened`,
		`suspicious.*activity`, `failed.*login`, `malware.*detection`,
	)},
	{model.IntentGenerateReport, cues(
		`generate.*report`, `create.*summary`, `show.*report`,
		`summarize.*`, `give.*me.*overview`,
	)},
	{model.IntentGetStatistics, cues(
		`how.*many`, `count.*`, `statistics.*`, `stats.*`,
		`total.*number`, `frequency.*`,
	)},
	{model.IntentFilterResults, cues(
		`filter.*`, `only.*show`, `exclude.*`, `remove.*`,
		`just.*the.*ones`, `limit.*to`,
	)},
	{model.IntentClarification, cues(
		`what do you mean`, `\bclarify\b`, `explain (that|this|it)\b`,
	)},
}

// IntentRules returns a copy of the ordered intent table.
func IntentRules() []IntentRule {
	out := make([]IntentRule, len(intentRules))
	copy(out, intentRules)
	return out
}

// ClassifyIntent returns the first matching intent, or search at the default
// confidence when nothing matches.
func ClassifyIntent(lower string) (model.Intent, float64) {
	for _, rule := range intentRules {
		if rule.Matches(lower) {
			return rule.Intent, MatchedIntentConfidence
		}
	}
	return model.IntentSearchLogs, DefaultIntentConfidence
}

package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iyulab/siem-analyst/internal/model"
)

func TestSuggest_ZeroHitsKeepsBroadening(t *testing.T) {
	entities := []model.Entity{
		{Type: model.EntityIPAddress, Value: "10.0.0.5"},
		{Type: model.EntityUsername, Value: "alice"},
	}
	got := Suggest(model.IntentSearchLogs, entities, 0)
	assert.Len(t, got, MaxSuggestions)
	assert.Contains(t, got, SuggestExpandTimeRange)
	assert.Equal(t, SuggestExpandTimeRange, got[0])
}

func TestSuggest_ManyHitsNarrows(t *testing.T) {
	got := Suggest(model.IntentGetStatistics, nil, 101)
	assert.Equal(t, []string{
		"Filter these results to show only the most critical events",
		"Show me the detailed events behind these statistics",
		"Create a timeline view of these events",
		"Filter these by specific time range",
	}, got)
}

func TestSuggest_EntityPivots(t *testing.T) {
	got := Suggest(model.IntentFilterResults, []model.Entity{
		{Type: model.EntityUsername, Value: "bob"},
		{Type: model.EntityIPAddress, Value: "192.168.1.4"},
		{Type: model.EntityIPAddress, Value: "192.168.1.5"},
	}, 50)
	assert.Equal(t, []string{
		"Show all events from IP 192.168.1.4",
		"What other IPs communicated with 192.168.1.4?",
		"Show login history for user bob",
		"What systems did bob access?",
	}, got)
}

func TestSuggest_NeverExceedsCap(t *testing.T) {
	for _, hits := range []int{0, 1, 100, 101, 5000} {
		got := Suggest(model.IntentSearchLogs, []model.Entity{
			{Type: model.EntityIPAddress, Value: "1.1.1.1"},
			{Type: model.EntityUsername, Value: "x"},
		}, hits)
		assert.LessOrEqual(t, len(got), MaxSuggestions)
	}
}

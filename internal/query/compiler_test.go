package query

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyulab/siem-analyst/internal/model"
)

var fixedNow = time.Date(2024, 5, 14, 15, 30, 0, 0, time.UTC)

func newTestCompiler() *Compiler {
	c := NewCompiler(nil)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCompile_NoEntitiesDefaultsToTrailingDay(t *testing.T) {
	before := time.Now()
	q := NewCompiler(nil).Compile(model.IntentSearchLogs, nil, nil)
	after := time.Now()

	assert.WithinDuration(t, after, q.TimeRange.End, time.Second)
	assert.True(t, !q.TimeRange.End.Before(before))
	assert.InDelta(t, (24 * time.Hour).Seconds(), q.TimeRange.Duration().Seconds(), 1)
}

func TestCompile_FailedLoginScenario(t *testing.T) {
	entities := []model.Entity{
		{Type: model.EntityIPAddress, Value: "10.0.0.5", Confidence: 0.9},
		{Type: model.EntityTimeRange, Value: "last week", Confidence: 0.8},
	}
	q := newTestCompiler().Compile(model.IntentSearchLogs, entities, nil)

	assert.Equal(t, model.QueryTypeElasticsearchDSL, q.QueryType)
	assert.Equal(t, IndexSecurityEvents, q.IndexPattern)
	assert.Equal(t, DefaultSize, q.Size)
	assert.Equal(t, 7*24*time.Hour, q.TimeRange.Duration())

	want := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"bool": map[string]any{"should": []any{
						map[string]any{"match": map[string]any{"source.ip": "10.0.0.5"}},
						map[string]any{"match": map[string]any{"destination.ip": "10.0.0.5"}},
						map[string]any{"match": map[string]any{"client.ip": "10.0.0.5"}},
						map[string]any{"match": map[string]any{"server.ip": "10.0.0.5"}},
					}}},
					map[string]any{"bool": map[string]any{"should": []any{
						map[string]any{"match": map[string]any{"event.category": "authentication"}},
						map[string]any{"match": map[string]any{"event.category": "network"}},
						map[string]any{"match": map[string]any{"event.category": "malware"}},
						map[string]any{"match": map[string]any{"event.category": "intrusion_detection"}},
						map[string]any{"range": map[string]any{"event.risk_score": map[string]any{"gte": 21}}},
					}}},
				},
				"filter": []any{
					map[string]any{"range": map[string]any{"@timestamp": map[string]any{
						"gte": "2024-05-07T15:30:00Z",
						"lte": "2024-05-14T15:30:00Z",
					}}},
				},
			},
		},
		"sort": []any{map[string]any{"@timestamp": map[string]any{"order": "desc"}}},
	}
	if diff := cmp.Diff(want, q.Body); diff != "" {
		t.Errorf("query body mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "(source.ip:10.0.0.5 OR destination.ip:10.0.0.5) AND (event.category:authentication OR event.category:network OR event.category:malware)", q.KQL)
}

func TestCompile_StatisticsIsAggregationOnly(t *testing.T) {
	q := newTestCompiler().Compile(model.IntentGetStatistics, nil, nil)

	assert.Equal(t, 0, q.Size)
	assert.Equal(t, 0, q.Body["size"])
	aggs, ok := q.Body["aggs"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, aggs)
	for _, name := range []string{"event_types", "top_source_ips", "events_over_time", "severity_distribution"} {
		assert.Contains(t, aggs, name)
	}
	assert.Equal(t, IndexDefault, q.IndexPattern)
}

func TestCompile_UsernameAndHostAliases(t *testing.T) {
	entities := []model.Entity{
		{Type: model.EntityUsername, Value: "alice"},
		{Type: model.EntityHostname, Value: "dc01"},
	}
	q := newTestCompiler().Compile(model.IntentGenerateReport, entities, nil)

	must := q.Body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	userShould := must[0].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	assert.Len(t, userShould, 3)
	assert.Equal(t, map[string]any{"match": map[string]any{"winlog.event_data.TargetUserName": "alice"}}, userShould[2])
	hostShould := must[1].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	assert.Len(t, hostShould, 3)
	assert.Equal(t, IndexSecurityEvents, q.IndexPattern)
}

func TestCompile_FilterInheritsPreviousEntities(t *testing.T) {
	cc := &model.ConversationContext{
		LastEntities: []model.Entity{
			{Type: model.EntityIPAddress, Value: "10.0.0.5"},
			{Type: model.EntityTimeRange, Value: "last week"},
		},
	}
	q := newTestCompiler().Compile(model.IntentFilterResults, []model.Entity{{Type: model.EntityTimeRange, Value: "today"}}, cc)

	// The new turn's time phrase wins over the inherited one.
	assert.Equal(t, 15*time.Hour+30*time.Minute, q.TimeRange.Duration())
	must := q.Body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	assert.Len(t, must, 1)
	assert.Contains(t, q.KQL, "10.0.0.5")
}

func TestCompile_FaultFallsBackToCatchAll(t *testing.T) {
	c := NewCompiler(nil)
	c.now = func() time.Time { panic("clock unavailable") }

	q := c.Compile(model.IntentSearchLogs, nil, nil)
	assert.Equal(t, FallbackSize, q.Size)
	assert.Equal(t, IndexDefault, q.IndexPattern)
	assert.Equal(t, map[string]any{"query": map[string]any{"match_all": map[string]any{}}}, q.Body)
	assert.False(t, q.TimeRange.Start.IsZero())
}

func TestSelectIndex(t *testing.T) {
	tests := []struct {
		name     string
		intent   model.Intent
		entities []model.Entity
		want     string
	}{
		{"wazuh hint", model.IntentGetStatistics, []model.Entity{{Value: "ossec-agent"}}, IndexWazuhAlerts},
		{"firewall hint", model.IntentSearchLogs, []model.Entity{{Value: "Firewall01"}}, IndexNetworkLogs},
		{"web hint", model.IntentSearchLogs, []model.Entity{{Value: "nginx-edge"}}, IndexWebLogs},
		{"search default", model.IntentSearchLogs, nil, IndexSecurityEvents},
		{"report default", model.IntentGenerateReport, nil, IndexSecurityEvents},
		{"filter default", model.IntentFilterResults, nil, IndexDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectIndex(tt.intent, tt.entities))
		})
	}
}

func TestRenderKQL(t *testing.T) {
	assert.Equal(t, "*", RenderKQL(model.IntentGetStatistics, nil))
	assert.Equal(t, `user.name:"john doe" AND host.name:dc01`, RenderKQL(model.IntentFilterResults, []model.Entity{
		{Type: model.EntityUsername, Value: "john doe"},
		{Type: model.EntityHostname, Value: "dc01"},
		{Type: model.EntityPort, Value: "22"},
	}))
}

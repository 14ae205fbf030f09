package query

import (
	"strings"

	"github.com/iyulab/siem-analyst/internal/model"
)

// fieldAliases lists the backend fields an entity may live in. Each entity
// becomes an OR-group over its aliases to tolerate schema differences between
// beats, wazuh and custom pipelines.
var fieldAliases = map[model.EntityType][]string{
	model.EntityIPAddress: {"source.ip", "destination.ip", "client.ip", "server.ip"},
	model.EntityUsername:  {"user.name", "user.id", "winlog.event_data.TargetUserName"},
	model.EntityHostname:  {"host.name", "host.hostname", "agent.hostname"},
	model.EntityPort:      {"source.port", "destination.port"},
	model.EntityFilePath:  {"file.path", "file.target_path"},
	model.EntityProcess:   {"process.name", "process.executable"},
	model.EntityRuleID:    {"rule.id", "rule.uuid"},
}

// FieldAliases returns the alias list for an entity type.
func FieldAliases(typ model.EntityType) []string {
	return append([]string(nil), fieldAliases[typ]...)
}

// securityCategories is the broad selection added to search queries.
var securityCategories = []string{"authentication", "network", "malware", "intrusion_detection"}

// minRiskScore admits events outside the categories above that carry a risk score.
const minRiskScore = 21

func entityClause(e model.Entity) (map[string]any, bool) {
	aliases, ok := fieldAliases[e.Type]
	if !ok {
		return nil, false
	}
	should := make([]any, 0, len(aliases))
	for _, field := range aliases {
		should = append(should, match(field, e.Value))
	}
	return boolShould(should), true
}

func securityClause() map[string]any {
	should := make([]any, 0, len(securityCategories)+1)
	for _, c := range securityCategories {
		should = append(should, match("event.category", c))
	}
	should = append(should, map[string]any{
		"range": map[string]any{"event.risk_score": map[string]any{"gte": minRiskScore}},
	})
	return boolShould(should)
}

func statisticsAggregations() map[string]any {
	return map[string]any{
		"event_types":           terms("event.category.keyword", 10),
		"top_source_ips":        terms("source.ip.keyword", 10),
		"severity_distribution": terms("event.severity.keyword", 5),
		"events_over_time": map[string]any{
			"date_histogram": map[string]any{"field": "@timestamp", "calendar_interval": "1h"},
		},
	}
}

func match(field string, value any) map[string]any {
	return map[string]any{"match": map[string]any{field: value}}
}

func boolShould(should []any) map[string]any {
	return map[string]any{"bool": map[string]any{"should": should}}
}

func terms(field string, size int) map[string]any {
	return map[string]any{"terms": map[string]any{"field": field, "size": size}}
}

// Index patterns by log family.
const (
	IndexSecurityEvents = "winlogbeat-*"
	IndexNetworkLogs    = "packetbeat-*"
	IndexSystemLogs     = "metricbeat-*"
	IndexWebLogs        = "filebeat-*"
	IndexWazuhAlerts    = "wazuh-alerts-*"
	IndexDefault        = "logs-*"
)

// indexHints is checked in order against every entity value.
var indexHints = []struct {
	keywords []string
	index    string
}{
	{[]string{"wazuh", "ossec"}, IndexWazuhAlerts},
	{[]string{"network", "firewall"}, IndexNetworkLogs},
	{[]string{"web", "apache", "nginx"}, IndexWebLogs},
}

// SelectIndex picks an index pattern from entity hints, falling back to the
// intent default.
func SelectIndex(intent model.Intent, entities []model.Entity) string {
	for _, e := range entities {
		value := strings.ToLower(e.Value)
		for _, hint := range indexHints {
			for _, kw := range hint.keywords {
				if strings.Contains(value, kw) {
					return hint.index
				}
			}
		}
	}
	switch intent {
	case model.IntentSearchLogs, model.IntentGenerateReport:
		return IndexSecurityEvents
	}
	return IndexDefault
}

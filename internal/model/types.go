// Package model defines the domain types shared by the analytics pipeline.
package model

import "time"

// Intent is the classified purpose of a user query.
type Intent string

const (
	IntentSearchLogs     Intent = "search_logs"
	IntentGenerateReport Intent = "generate_report"
	IntentGetStatistics  Intent = "get_statistics"
	IntentFilterResults  Intent = "filter_results"
	IntentClarification  Intent = "clarification"
	IntentUnknown        Intent = "unknown"
)

// Analytic reports whether results for this intent are passed through threat detection.
func (i Intent) Analytic() bool {
	switch i {
	case IntentSearchLogs, IntentGenerateReport, IntentFilterResults:
		return true
	}
	return false
}

// EntityType is the domain category of an extracted entity.
type EntityType string

const (
	EntityIPAddress EntityType = "ip_address"
	EntityUsername  EntityType = "username"
	EntityHostname  EntityType = "hostname"
	EntityFilePath  EntityType = "file_path"
	EntityProcess   EntityType = "process"
	EntityTimeRange EntityType = "time_range"
	EntityRuleID    EntityType = "rule_id"
	EntityPort      EntityType = "port"
)

// Entity is a typed, positioned span of the original text.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	StartPos   int        `json:"start_pos"`
	EndPos     int        `json:"end_pos"`
}

// Severity is the event and finding severity scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Ordinal maps a severity onto 1..4, or 0 when unrecognized.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ParseSeverity normalizes backend severity labels. Unknown values map to medium.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	}
	return SeverityMedium
}

// SecurityEvent is a single event returned by the search backend.
// It is read-only once retrieved.
type SecurityEvent struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	SourceIP      string         `json:"source_ip,omitempty"`
	DestinationIP string         `json:"destination_ip,omitempty"`
	User          string         `json:"user,omitempty"`
	EventType     string         `json:"event_type"`
	Severity      Severity       `json:"severity"`
	Description   string         `json:"description"`
	RuleID        string         `json:"rule_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TimeRange is an absolute window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End minus Start.
func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Start) }

// QueryType values for StructuredQuery.
const QueryTypeElasticsearchDSL = "elasticsearch_dsl"

// StructuredQuery is the backend-agnostic compiled search request.
// TimeRange is always populated.
type StructuredQuery struct {
	QueryType    string         `json:"query_type"`
	Body         map[string]any `json:"query"`
	IndexPattern string         `json:"index_pattern"`
	TimeRange    TimeRange      `json:"time_range"`
	Size         int            `json:"size"`
	KQL          string         `json:"kql,omitempty"`
}

// SearchResult is what the search backend returns for a StructuredQuery.
// Aggregations is nil when the backend returned none.
type SearchResult struct {
	TotalHits     int             `json:"total_hits"`
	Events        []SecurityEvent `json:"events"`
	Aggregations  map[string]any  `json:"aggregations,omitempty"`
	ExecutionTime float64         `json:"execution_time"`
}

// MessageType distinguishes conversation roles.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageSystem    MessageType = "system"
	MessageError     MessageType = "error"
)

// Message is a single entry in a session's ordered log.
type Message struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConversationContext is a snapshot of one session's state.
type ConversationContext struct {
	SessionID       string         `json:"session_id"`
	LastIntent      Intent         `json:"last_intent,omitempty"`
	LastEntities    []Entity       `json:"last_entities,omitempty"`
	LastResultCount int            `json:"last_result_count"`
	Values          map[string]any `json:"context,omitempty"`
	MessageCount    int            `json:"message_count"`
}

// FirstEntity returns the first entity of the given type.
func FirstEntity(entities []Entity, typ EntityType) (Entity, bool) {
	for _, e := range entities {
		if e.Type == typ {
			return e, true
		}
	}
	return Entity{}, false
}

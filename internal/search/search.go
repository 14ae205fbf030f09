// Package search executes compiled queries against a log store.
//
// The core treats search as a black box: a StructuredQuery goes in, events
// and optional aggregations come out. Two backends are provided, an
// Elasticsearch HTTP client and an in-process fixture store used for demos
// and tests.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iyulab/siem-analyst/internal/model"
)

// Searcher runs one compiled query.
type Searcher interface {
	Search(ctx context.Context, q model.StructuredQuery) (*model.SearchResult, error)
}

// Field candidates, ECS names first, then the flat names used by fixtures.
var (
	timestampFields   = []string{"@timestamp", "timestamp"}
	sourceIPFields    = []string{"source.ip", "client.ip", "source_ip"}
	destIPFields      = []string{"destination.ip", "server.ip", "destination_ip"}
	userFields        = []string{"user.name", "user", "username"}
	eventTypeFields   = []string{"event.action", "event.category", "event_type"}
	severityFields    = []string{"event.severity", "log.level", "rule.level", "severity"}
	descriptionFields = []string{"message", "description", "rule.description"}
	ruleIDFields      = []string{"rule.id", "rule_id"}
)

// consumed top-level keys are not repeated in Metadata.
var consumed = map[string]bool{
	"@timestamp": true, "timestamp": true, "message": true, "description": true,
	"source_ip": true, "destination_ip": true, "user": true, "username": true,
	"event_type": true, "severity": true, "rule_id": true, "id": true, "_id": true, "_index": true,
}

// DecodeHit maps a raw document onto a SecurityEvent. Unknown keys are kept
// in Metadata.
func DecodeHit(id string, source map[string]any) model.SecurityEvent {
	e := model.SecurityEvent{
		ID:            id,
		SourceIP:      firstString(source, sourceIPFields),
		DestinationIP: firstString(source, destIPFields),
		User:          firstString(source, userFields),
		EventType:     firstString(source, eventTypeFields),
		Description:   firstString(source, descriptionFields),
		RuleID:        firstString(source, ruleIDFields),
		Severity:      model.SeverityMedium,
	}
	if e.ID == "" {
		e.ID = firstString(source, []string{"_id", "id"})
	}
	if ts := firstString(source, timestampFields); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
	}
	for _, f := range severityFields {
		if v, ok := Lookup(source, f); ok {
			e.Severity = severityOf(v)
			break
		}
	}
	for k, v := range source {
		if consumed[k] {
			continue
		}
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		e.Metadata[k] = v
	}
	return e
}

// severityOf accepts either a label or a numeric level. Levels 1-4 map onto
// the four labels; larger values are read on the 0-15 scale used by Wazuh.
func severityOf(v any) model.Severity {
	switch s := v.(type) {
	case string:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return severityOf(n)
		}
		return model.ParseSeverity(strings.ToLower(s))
	case float64:
		if s > 4 {
			switch {
			case s >= 12:
				return model.SeverityCritical
			case s >= 8:
				return model.SeverityHigh
			}
			return model.SeverityMedium
		}
		switch {
		case s >= 4:
			return model.SeverityCritical
		case s >= 3:
			return model.SeverityHigh
		case s >= 2:
			return model.SeverityMedium
		}
		return model.SeverityLow
	case int:
		return severityOf(float64(s))
	}
	return model.SeverityMedium
}

// Lookup resolves a dotted field name against a document, accepting both
// flattened keys ("source.ip") and nested objects.
func Lookup(doc map[string]any, field string) (any, bool) {
	if v, ok := doc[field]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(field, ".")
	if !found {
		return nil, false
	}
	child, ok := doc[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return Lookup(child, rest)
}

func firstString(doc map[string]any, fields []string) string {
	for _, f := range fields {
		v, ok := Lookup(doc, f)
		if !ok {
			continue
		}
		if s := stringOf(v); s != "" {
			return s
		}
	}
	return ""
}

// stringOf renders scalars; lists yield their first element, as ECS
// event.category is an array.
func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		if len(s) > 0 {
			return stringOf(s[0])
		}
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil, map[string]any:
		return ""
	default:
		return fmt.Sprint(s)
	}
	return ""
}

package composer

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/iyulab/siem-analyst/internal/model"
)

// Bucket is one entry of a terms or date_histogram aggregation.
type Bucket struct {
	Key         string `json:"key"`
	KeyAsString string `json:"key_as_string,omitempty"`
	DocCount    int    `json:"doc_count"`
}

// Buckets reads the named aggregation's buckets. Missing or malformed
// aggregations yield nil.
func Buckets(aggs map[string]any, name string) []Bucket {
	agg, ok := aggs[name].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := agg["buckets"].([]any)
	if !ok {
		return nil
	}
	out := make([]Bucket, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b := Bucket{Key: keyString(m["key"]), DocCount: toInt(m["doc_count"])}
		if s, ok := m["key_as_string"].(string); ok {
			b.KeyAsString = s
		}
		out = append(out, b)
	}
	return out
}

func keyString(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// SeverityCount pairs a severity with its event count.
type SeverityCount struct {
	Severity model.Severity `json:"severity"`
	Count    int            `json:"count"`
}

// severityDistribution counts events per severity, most severe first.
func severityDistribution(events []model.SecurityEvent) []SeverityCount {
	counts := map[model.Severity]int{}
	for _, e := range events {
		counts[e.Severity]++
	}
	out := make([]SeverityCount, 0, len(counts))
	for sev, n := range counts {
		out = append(out, SeverityCount{Severity: sev, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Ordinal() != out[j].Severity.Ordinal() {
			return out[i].Severity.Ordinal() > out[j].Severity.Ordinal()
		}
		return out[i].Severity < out[j].Severity
	})
	return out
}

// KeyCount is a ranked key with its count.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// EventSummary condenses a page of events.
type EventSummary struct {
	EventTypes     map[string]int `json:"event_types"`
	SeverityCounts map[string]int `json:"severity_counts"`
	TopSourceIPs   []KeyCount     `json:"top_source_ips"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Metrics        *ReportMetrics `json:"metrics,omitempty"`
}

// ReportMetrics are the derived rates shown in reports.
type ReportMetrics struct {
	EventsPerHour          float64 `json:"events_per_hour"`
	UniqueSourceIPs        int     `json:"unique_source_ips"`
	UniqueUsers            int     `json:"unique_users"`
	HighSeverityPercentage float64 `json:"high_severity_percentage"`
}

func summarizeEvents(events []model.SecurityEvent) *EventSummary {
	if len(events) == 0 {
		return nil
	}
	s := &EventSummary{
		EventTypes:     map[string]int{},
		SeverityCounts: map[string]int{},
		Start:          events[0].Timestamp,
		End:            events[0].Timestamp,
	}
	ips := map[string]int{}
	for _, e := range events {
		s.EventTypes[e.EventType]++
		s.SeverityCounts[string(e.Severity)]++
		if e.SourceIP != "" {
			ips[e.SourceIP]++
		}
		if e.Timestamp.Before(s.Start) {
			s.Start = e.Timestamp
		}
		if e.Timestamp.After(s.End) {
			s.End = e.Timestamp
		}
	}
	for ip, n := range ips {
		s.TopSourceIPs = append(s.TopSourceIPs, KeyCount{Key: ip, Count: n})
	}
	sort.Slice(s.TopSourceIPs, func(i, j int) bool {
		if s.TopSourceIPs[i].Count != s.TopSourceIPs[j].Count {
			return s.TopSourceIPs[i].Count > s.TopSourceIPs[j].Count
		}
		return s.TopSourceIPs[i].Key < s.TopSourceIPs[j].Key
	})
	if len(s.TopSourceIPs) > 10 {
		s.TopSourceIPs = s.TopSourceIPs[:10]
	}
	return s
}

func reportMetrics(events []model.SecurityEvent, s *EventSummary) *ReportMetrics {
	if len(events) == 0 {
		return nil
	}
	hours := 1.0
	if len(events) >= 2 {
		hours = max(1, s.End.Sub(s.Start).Hours())
	}
	ips := map[string]bool{}
	users := map[string]bool{}
	high := 0
	for _, e := range events {
		if e.SourceIP != "" {
			ips[e.SourceIP] = true
		}
		if e.User != "" {
			users[e.User] = true
		}
		if e.Severity == model.SeverityHigh || e.Severity == model.SeverityCritical {
			high++
		}
	}
	return &ReportMetrics{
		EventsPerHour:          float64(len(events)) / hours,
		UniqueSourceIPs:        len(ips),
		UniqueUsers:            len(users),
		HighSeverityPercentage: float64(high) / float64(len(events)) * 100,
	}
}

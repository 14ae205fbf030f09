package composer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/model"
)

// No-results messages, one per presentation mode.
const (
	noResultsSearch     = "No security events found matching your query: '%s'. You might want to try a broader search or check a different time range."
	noResultsReport     = "No security events found to report on for: '%s'. Try widening the time range or removing filters before generating the report."
	noResultsStatistics = "No events matched your query: '%s', so there are no statistics to show. Try a broader time range."
	noResultsGeneric    = "No results found for your query. Try rephrasing or expanding your search criteria."
)

// NoResultsText returns the fixed empty-result message for intent.
func NoResultsText(intent model.Intent, query string) string {
	switch intent {
	case model.IntentSearchLogs:
		return fmt.Sprintf(noResultsSearch, query)
	case model.IntentGenerateReport:
		return fmt.Sprintf(noResultsReport, query)
	case model.IntentGetStatistics:
		return fmt.Sprintf(noResultsStatistics, query)
	}
	return noResultsGeneric
}

func emptyResponse(intent model.Intent, query string) Response {
	return Response{
		Text: NoResultsText(intent, query),
		Data: &Data{Events: []model.SecurityEvent{}},
	}
}

func (c *Composer) formatSearch(result *model.SearchResult, query string, analysis *detection.Analysis) Response {
	if result.TotalHits == 0 {
		return emptyResponse(model.IntentSearchLogs, query)
	}

	events := head(result.Events, maxDisplayEvents)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d security events", result.TotalHits)
	if result.TotalHits > maxDisplayEvents {
		fmt.Fprintf(&b, " (showing first %d)", maxDisplayEvents)
	}
	b.WriteString(" matching your query.\n\n")

	lines := make([]string, 0, maxDetailedEvents)
	for _, e := range head(events, maxDetailedEvents) {
		line := fmt.Sprintf("• **%s** - %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Description)
		if e.SourceIP != "" {
			line += fmt.Sprintf(" (Source: %s)", e.SourceIP)
		}
		if e.Severity != "" {
			line += fmt.Sprintf(" [**%s**]", strings.ToUpper(string(e.Severity)))
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, "\n"))
	if len(events) > maxDetailedEvents {
		fmt.Fprintf(&b, "\n\n... and %d more events.", len(events)-maxDetailedEvents)
	}
	writeRiskLine(&b, analysis)

	return Response{
		Text: b.String(),
		Data: &Data{
			TotalHits: result.TotalHits,
			Events:    events,
			Summary:   summarizeEvents(events),
			Analysis:  analysis,
		},
		Visualization: timelineChart(events),
	}
}

func (c *Composer) formatReport(result *model.SearchResult, query string, analysis *detection.Analysis) Response {
	if result.TotalHits == 0 {
		return emptyResponse(model.IntentGenerateReport, query)
	}

	events := result.Events
	aggs := result.Aggregations
	summary := summarizeEvents(events)

	var b strings.Builder
	b.WriteString("# Security Report\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n", query)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", c.now().Format("2006-01-02 15:04:05"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Events:** %d\n", result.TotalHits)
	fmt.Fprintf(&b, "- **Time Range:** %s\n", timeRangeSummary(summary))
	fmt.Fprintf(&b, "- **Query Execution Time:** %.2fs\n\n", result.ExecutionTime)

	if types := Buckets(aggs, "event_types"); len(types) > 0 {
		writeBucketSection(&b, "Event Type Distribution", types)
	} else if summary != nil {
		writeBucketSection(&b, "Event Type Distribution", rankCounts(summary.EventTypes))
	}

	if ips := Buckets(aggs, "top_source_ips"); len(ips) > 0 {
		writeBucketSection(&b, "Top Source IPs", ips)
	} else if summary != nil && len(summary.TopSourceIPs) > 0 {
		buckets := make([]Bucket, len(summary.TopSourceIPs))
		for i, kc := range summary.TopSourceIPs {
			buckets[i] = Bucket{Key: kc.Key, DocCount: kc.Count}
		}
		writeBucketSection(&b, "Top Source IPs", buckets)
	}

	severities := severityDistribution(events)
	if len(severities) > 0 {
		b.WriteString("## Severity Analysis\n\n")
		for _, s := range severities {
			fmt.Fprintf(&b, "- **%s:** %d events\n", strings.ToUpper(string(s.Severity)), s.Count)
		}
	}

	if analysis != nil {
		writeFindingsSection(&b, analysis)
	}

	var charts []Chart
	if chart := timeSeriesChart(Buckets(aggs, "events_over_time")); chart != nil {
		charts = append(charts, *chart)
	}
	if chart := severityChart(severities); chart != nil {
		charts = append(charts, *chart)
	}

	if summary != nil {
		summary.Metrics = reportMetrics(events, summary)
	}
	resp := Response{
		Text: b.String(),
		Data: &Data{
			TotalHits:    result.TotalHits,
			Events:       events,
			Aggregations: aggs,
			Summary:      summary,
			Analysis:     analysis,
		},
	}
	if len(charts) > 0 {
		resp.Visualization = &charts[0]
		resp.AdditionalCharts = charts[1:]
	}
	return resp
}

func (c *Composer) formatStatistics(result *model.SearchResult, query string) Response {
	if result.TotalHits == 0 {
		return emptyResponse(model.IntentGetStatistics, query)
	}

	aggs := result.Aggregations
	var b strings.Builder
	b.WriteString("Here are the statistics for your query:\n\n")
	fmt.Fprintf(&b, "**Total Events:** %d\n", result.TotalHits)

	types := Buckets(aggs, "event_types")
	if len(types) > 0 {
		b.WriteString("\n**Event Types:**\n")
		for _, bk := range types {
			fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", bk.Key, bk.DocCount, percent(bk.DocCount, result.TotalHits))
		}
	}

	ips := Buckets(aggs, "top_source_ips")
	if len(ips) > 0 {
		b.WriteString("\n**Top Source IPs:**\n")
		for _, bk := range head(ips, 5) {
			fmt.Fprintf(&b, "- %s: %d events\n", bk.Key, bk.DocCount)
		}
	}

	// Statistics queries are aggregation-only, so severity comes from the
	// aggregation when present and from any returned events otherwise.
	severities, denom := severityFromBuckets(Buckets(aggs, "severity_distribution"))
	if len(severities) == 0 {
		severities, denom = severityDistribution(result.Events), len(result.Events)
	}
	if len(severities) > 0 {
		b.WriteString("\n**Severity Distribution:**\n")
		for _, s := range severities {
			fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", capitalize(string(s.Severity)), s.Count, percent(s.Count, denom))
		}
	}

	return Response{
		Text: b.String(),
		Data: &Data{
			TotalHits:    result.TotalHits,
			Events:       result.Events,
			Aggregations: aggs,
			Statistics: &Statistics{
				EventTypes:           types,
				TopSourceIPs:         ips,
				SeverityDistribution: severities,
			},
		},
		Visualization: pieChart(types, "Event Type Distribution"),
	}
}

func (c *Composer) formatGeneric(result *model.SearchResult, query string, analysis *detection.Analysis) Response {
	events := head(result.Events, maxGenericEvents)
	if result.TotalHits == 0 {
		return emptyResponse(model.IntentUnknown, query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for your query.", result.TotalHits)
	if len(events) > 0 {
		b.WriteString("\n\nRecent events:\n")
		for _, e := range head(events, maxGenericShown) {
			fmt.Fprintf(&b, "- %s: %s...\n", e.Timestamp.Format("15:04:05"), model.Truncate(e.Description, 100))
		}
	}
	writeRiskLine(&b, analysis)

	return Response{
		Text: b.String(),
		Data: &Data{TotalHits: result.TotalHits, Events: events, Analysis: analysis},
	}
}

func writeRiskLine(b *strings.Builder, a *detection.Analysis) {
	if a == nil || (len(a.Threats) == 0 && len(a.Anomalies) == 0) {
		return
	}
	fmt.Fprintf(b, "\n\n**Risk score:** %.0f/100 (%d threat patterns, %d anomalies)", a.RiskScore, len(a.Threats), len(a.Anomalies))
}

func writeFindingsSection(b *strings.Builder, a *detection.Analysis) {
	insights := detection.Summarize(*a)
	b.WriteString("\n## Security Findings\n\n")
	fmt.Fprintf(b, "- **Risk Score:** %.0f/100 (%s)\n", insights.RiskScore, insights.Assessment.Urgency)
	fmt.Fprintf(b, "- **Threat Patterns:** %d\n", insights.ThreatCount)
	fmt.Fprintf(b, "- **Anomalies:** %d\n", insights.AnomalyCount)
	for _, t := range insights.TopThreats {
		fmt.Fprintf(b, "- [%s] %s\n", strings.ToUpper(string(t.Severity)), t.Description)
	}
	if len(insights.Recommendations) > 0 {
		b.WriteString("\n### Recommendations\n\n")
		for _, r := range insights.Recommendations {
			fmt.Fprintf(b, "- %s\n", r)
		}
	}
}

func writeBucketSection(b *strings.Builder, title string, buckets []Bucket) {
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, bk := range buckets {
		fmt.Fprintf(b, "- **%s:** %d events\n", bk.Key, bk.DocCount)
	}
	b.WriteString("\n")
}

func severityFromBuckets(buckets []Bucket) ([]SeverityCount, int) {
	total := 0
	out := make([]SeverityCount, 0, len(buckets))
	for _, bk := range buckets {
		out = append(out, SeverityCount{Severity: model.Severity(bk.Key), Count: bk.DocCount})
		total += bk.DocCount
	}
	return out, total
}

func rankCounts(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, Bucket{Key: k, DocCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocCount != out[j].DocCount {
			return out[i].DocCount > out[j].DocCount
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func timeRangeSummary(s *EventSummary) string {
	if s == nil {
		return "No events"
	}
	return s.Start.Format("2006-01-02 15:04") + " to " + s.End.Format("2006-01-02 15:04")
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

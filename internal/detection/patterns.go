package detection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/sigma"
)

// Brute force thresholds.
const (
	bruteForceMinAttempts = 5
	bruteForceWindowSecs  = 300
)

// bruteForceIndicators mark an authentication failure in a description.
var bruteForceIndicators = []string{
	"failed_login", "authentication_failure",
	"failed login", "authentication failure", "login failure", "logon failure",
}

// Exfiltration thresholds. Transfer size is not parsed from metadata; the
// description length times exfilSizeFactor stands in for it.
const (
	exfilMinSize    = 100000
	exfilSizeFactor = 100
)

var (
	exfilIndicators = []string{"file_access", "network_transfer"}
	// 22:00 through 06:59 in the event's own timezone.
	exfilHours = map[int]bool{22: true, 23: true, 0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true}
)

// keywordThreats maps a Sigma rule category onto the finding it produces.
var keywordThreats = map[string]struct {
	threat     ThreatType
	severity   model.Severity
	confidence float64
	label      string
}{
	"privilege_escalation": {ThreatPrivilegeEscalation, model.SeverityHigh, 0.6, "Potential privilege escalation"},
	"suspicious_process":   {ThreatSuspiciousProcess, model.SeverityMedium, 0.5, "Suspicious process execution"},
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// detectBruteForce groups failure events by source IP, in order of first
// appearance, and flags IPs with enough failures inside the window.
func detectBruteForce(events []model.SecurityEvent) []ThreatFinding {
	var order []string
	byIP := map[string][]model.SecurityEvent{}
	for _, e := range events {
		if e.SourceIP == "" || !containsAny(strings.ToLower(e.Description), bruteForceIndicators) {
			continue
		}
		if _, seen := byIP[e.SourceIP]; !seen {
			order = append(order, e.SourceIP)
		}
		byIP[e.SourceIP] = append(byIP[e.SourceIP], e)
	}

	var threats []ThreatFinding
	for _, ip := range order {
		failures := byIP[ip]
		if len(failures) < bruteForceMinAttempts {
			continue
		}
		sort.SliceStable(failures, func(i, j int) bool {
			return failures[i].Timestamp.Before(failures[j].Timestamp)
		})
		span := failures[len(failures)-1].Timestamp.Sub(failures[0].Timestamp).Seconds()
		if span > bruteForceWindowSecs {
			continue
		}
		threats = append(threats, ThreatFinding{
			ThreatType:  ThreatBruteForce,
			Severity:    model.SeverityHigh,
			Confidence:  min(float64(len(failures))/10, 1),
			SourceIP:    ip,
			Attempts:    len(failures),
			TimeWindow:  span,
			Description: fmt.Sprintf("Detected %d failed login attempts from %s in %.0f seconds", len(failures), ip, span),
		})
	}
	return threats
}

func detectExfiltration(events []model.SecurityEvent) []ThreatFinding {
	var threats []ThreatFinding
	for _, e := range events {
		if !exfilHours[e.Timestamp.Hour()] {
			continue
		}
		if !containsAny(strings.ToLower(e.Description), exfilIndicators) {
			continue
		}
		size := len(e.Description) * exfilSizeFactor
		if size <= exfilMinSize {
			continue
		}
		threats = append(threats, ThreatFinding{
			ThreatType:    ThreatDataExfiltration,
			Severity:      model.SeverityCritical,
			Confidence:    0.7,
			EventID:       e.ID,
			Timestamp:     e.Timestamp,
			EstimatedSize: size,
			Description:   "Suspicious data transfer during unusual hours: " + model.Truncate(e.Description, 100),
		})
	}
	return threats
}

// detectKeywordThreats runs the Sigma rule set. Each event is checked against
// every rule independently, so one event can raise both categories.
func detectKeywordThreats(ctx context.Context, rules *sigma.Engine, events []model.SecurityEvent) []ThreatFinding {
	docs := make([]map[string]interface{}, len(events))
	for i, e := range events {
		docs[i] = map[string]interface{}{
			"description": strings.ToLower(e.Description),
			"event_type":  e.EventType,
			"source_ip":   e.SourceIP,
			"user":        e.User,
		}
	}

	var threats []ThreatFinding
	for _, m := range rules.MatchEvents(ctx, docs) {
		kind, ok := keywordThreats[m.Category]
		if !ok {
			continue
		}
		e := events[m.EventIndex]
		threats = append(threats, ThreatFinding{
			ThreatType:  kind.threat,
			Severity:    kind.severity,
			Confidence:  kind.confidence,
			EventID:     e.ID,
			Timestamp:   e.Timestamp,
			RuleID:      m.RuleID,
			Description: kind.label + ": " + model.Truncate(e.Description, 100),
		})
	}
	return threats
}

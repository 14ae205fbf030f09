package detection

import "github.com/iyulab/siem-analyst/internal/model"

var severityWeights = map[model.Severity]float64{
	model.SeverityLow:      10,
	model.SeverityMedium:   25,
	model.SeverityHigh:     50,
	model.SeverityCritical: 80,
}

// urgentRiskThreshold triggers the immediate-review banner.
const urgentRiskThreshold = 70

// RiskScore sums anomaly and threat contributions and clamps to [0,100].
// The sum is unbounded before clamping, so a handful of findings saturate it.
// That bias toward alarming is intended; it is not a calibrated probability.
func RiskScore(anomalies []AnomalyFinding, threats []ThreatFinding) float64 {
	var score float64
	for _, a := range anomalies {
		score += a.Confidence * 20
	}
	for _, t := range threats {
		w, ok := severityWeights[t.Severity]
		if !ok {
			w = severityWeights[model.SeverityMedium]
		}
		score += w * t.Confidence
	}
	return max(0, min(score, 100))
}

// Recommendation texts.
const (
	RecUrgentReview      = "High risk detected: consider an immediate security review"
	RecBruteForce        = "Implement account lockout policies and IP blocking"
	RecExfiltration      = "Review data access patterns and implement DLP controls"
	RecPrivilegeEsc      = "Audit user permissions and implement least privilege access"
	RecSuspiciousProcess = "Restrict scripting hosts and review process execution policies"
	RecNoConcerns        = "No immediate security concerns detected"
)

// Recommendations returns the risk banner (if any) followed by one entry per
// distinct threat type present. The no-concerns message is emitted only when
// nothing else applies.
func Recommendations(threats []ThreatFinding, risk float64) []string {
	var recs []string
	if risk > urgentRiskThreshold {
		recs = append(recs, RecUrgentReview)
	}

	present := map[ThreatType]bool{}
	for _, t := range threats {
		present[t.ThreatType] = true
	}
	for _, r := range []struct {
		threat ThreatType
		text   string
	}{
		{ThreatBruteForce, RecBruteForce},
		{ThreatDataExfiltration, RecExfiltration},
		{ThreatPrivilegeEscalation, RecPrivilegeEsc},
		{ThreatSuspiciousProcess, RecSuspiciousProcess},
	} {
		if present[r.threat] {
			recs = append(recs, r.text)
		}
	}

	if len(recs) == 0 {
		recs = append(recs, RecNoConcerns)
	}
	return recs
}

// Assessment is the traffic-light summary shown alongside results.
type Assessment struct {
	Urgency string `json:"urgency"` // immediate, investigate, monitor, none
	Banner  string `json:"banner"`  // red, yellow, green
	Reason  string `json:"reason"`
}

// Assess derives the banner from the risk score and the findings behind it.
func Assess(risk float64, threats []ThreatFinding) Assessment {
	if risk > urgentRiskThreshold {
		return Assessment{Urgency: "immediate", Banner: "red", Reason: "Risk score above review threshold"}
	}
	for _, t := range threats {
		if t.Severity == model.SeverityCritical {
			return Assessment{Urgency: "investigate", Banner: "red", Reason: t.Description}
		}
	}
	if len(threats) > 0 {
		return Assessment{Urgency: "monitor", Banner: "yellow", Reason: "Known attack patterns matched, review recommended"}
	}
	if risk > 0 {
		return Assessment{Urgency: "monitor", Banner: "yellow", Reason: "Statistical outliers present"}
	}
	return Assessment{Urgency: "none", Banner: "green", Reason: "No threat indicators found"}
}

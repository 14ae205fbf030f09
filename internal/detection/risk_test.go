package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iyulab/siem-analyst/internal/model"
)

func TestRiskScore(t *testing.T) {
	assert.Zero(t, RiskScore(nil, nil))

	anomalies := []AnomalyFinding{{Confidence: 0.5}, {Confidence: 1}}
	threats := []ThreatFinding{
		{Severity: model.SeverityLow, Confidence: 1},
		{Severity: model.SeverityCritical, Confidence: 0.5},
	}
	// 10 + 20 + 10 + 40
	assert.InDelta(t, 80, RiskScore(anomalies, threats), 1e-9)

	many := make([]ThreatFinding, 10)
	for i := range many {
		many[i] = ThreatFinding{Severity: model.SeverityHigh, Confidence: 0.6}
	}
	assert.Equal(t, 100.0, RiskScore(nil, many))

	// Unknown severity weighs as medium.
	assert.InDelta(t, 25, RiskScore(nil, []ThreatFinding{{Severity: "bogus", Confidence: 1}}), 1e-9)
}

func TestRecommendations(t *testing.T) {
	assert.Equal(t, []string{RecNoConcerns}, Recommendations(nil, 0))
	assert.Equal(t, []string{RecUrgentReview}, Recommendations(nil, 71))
	assert.Equal(t, []string{RecBruteForce, RecExfiltration}, Recommendations([]ThreatFinding{
		{ThreatType: ThreatDataExfiltration},
		{ThreatType: ThreatBruteForce},
		{ThreatType: ThreatBruteForce},
	}, 70))
}

func TestAssess(t *testing.T) {
	assert.Equal(t, "green", Assess(0, nil).Banner)
	assert.Equal(t, "yellow", Assess(5, nil).Banner)
	assert.Equal(t, "immediate", Assess(90, nil).Urgency)
	assert.Equal(t, "investigate", Assess(56, []ThreatFinding{{Severity: model.SeverityCritical, Description: "exfil"}}).Urgency)
	assert.Equal(t, "monitor", Assess(30, []ThreatFinding{{Severity: model.SeverityHigh}}).Urgency)
}

func TestSummarize(t *testing.T) {
	a := Analysis{
		RiskScore: 64,
		Threats: []ThreatFinding{
			{ThreatType: ThreatSuspiciousProcess, Severity: model.SeverityMedium, Confidence: 0.5},
			{ThreatType: ThreatDataExfiltration, Severity: model.SeverityCritical, Confidence: 0.7},
		},
		Anomalies: []AnomalyFinding{
			{EventID: "a", Confidence: 1},
			{EventID: "b", Confidence: 0.3},
			{EventID: "c", Confidence: 0.9},
		},
	}
	s := Summarize(a)
	assert.Equal(t, 2, s.ThreatCount)
	assert.Equal(t, 3, s.AnomalyCount)
	assert.Equal(t, ThreatDataExfiltration, s.TopThreats[0].ThreatType)
	assert.Len(t, s.HighConfidenceAnomalies, 2)
	assert.Equal(t, "c", s.HighConfidenceAnomalies[1].EventID)
}

package detection

import "sort"

// highConfidence is the anomaly confidence above which an anomaly is surfaced
// in the insight summary.
const highConfidence = 0.8

// Insights is a condensed view of an Analysis for reports and dashboards.
type Insights struct {
	RiskScore               float64          `json:"risk_score"`
	ThreatCount             int              `json:"threat_count"`
	AnomalyCount            int              `json:"anomaly_count"`
	TopThreats              []ThreatFinding  `json:"top_threats"`
	HighConfidenceAnomalies []AnomalyFinding `json:"high_confidence_anomalies"`
	Recommendations         []string         `json:"recommendations"`
	Assessment              Assessment       `json:"assessment"`
}

// Summarize keeps the five most severe threats and up to five anomalies above
// the high-confidence cut.
func Summarize(a Analysis) Insights {
	threats := append([]ThreatFinding(nil), a.Threats...)
	sort.SliceStable(threats, func(i, j int) bool {
		wi, wj := severityWeights[threats[i].Severity]*threats[i].Confidence, severityWeights[threats[j].Severity]*threats[j].Confidence
		return wi > wj
	})
	if len(threats) > 5 {
		threats = threats[:5]
	}

	var anomalies []AnomalyFinding
	for _, an := range a.Anomalies {
		if an.Confidence > highConfidence {
			anomalies = append(anomalies, an)
			if len(anomalies) == 5 {
				break
			}
		}
	}

	return Insights{
		RiskScore:               a.RiskScore,
		ThreatCount:             len(a.Threats),
		AnomalyCount:            len(a.Anomalies),
		TopThreats:              threats,
		HighConfidenceAnomalies: anomalies,
		Recommendations:         a.Recommendations,
		Assessment:              a.Assessment,
	}
}

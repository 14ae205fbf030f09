package detection

import (
	"time"

	"github.com/iyulab/siem-analyst/internal/model"
)

// ThreatType names a rule-based detector.
type ThreatType string

const (
	ThreatBruteForce          ThreatType = "brute_force"
	ThreatDataExfiltration    ThreatType = "data_exfiltration"
	ThreatPrivilegeEscalation ThreatType = "privilege_escalation"
	ThreatSuspiciousProcess   ThreatType = "suspicious_process"
)

// AnomalyFinding flags one event as an outlier within its batch. Scores are
// only comparable within the batch that produced them.
type AnomalyFinding struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	AnomalyScore float64        `json:"anomaly_score"`
	Confidence   float64        `json:"confidence"`
	Severity     model.Severity `json:"severity"`
	Description  string         `json:"description"`
}

// ThreatFinding is a rule-based pattern match. Findings from different
// detectors may cover the same events.
type ThreatFinding struct {
	ThreatType  ThreatType     `json:"threat_type"`
	Severity    model.Severity `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Description string         `json:"description"`

	SourceIP      string    `json:"source_ip,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	TimeWindow    float64   `json:"time_window,omitempty"` // seconds
	EventID       string    `json:"event_id,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	EstimatedSize int       `json:"estimated_data_size,omitempty"`
	RuleID        string    `json:"rule_id,omitempty"`
}

// Analysis is the outcome of one Analyze call. Err is set when analysis
// faulted; the other fields then hold the degraded empty result.
type Analysis struct {
	Anomalies       []AnomalyFinding `json:"anomalies"`
	Threats         []ThreatFinding  `json:"threats"`
	RiskScore       float64          `json:"risk_score"`
	Recommendations []string         `json:"recommendations"`
	Assessment      Assessment       `json:"assessment"`
	Err             error            `json:"-"`
}

// Error returns the fault message, or "" for a clean run.
func (a Analysis) Error() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

func emptyAnalysis() Analysis {
	return Analysis{
		Anomalies:       []AnomalyFinding{},
		Threats:         []ThreatFinding{},
		Recommendations: []string{},
		Assessment:      Assess(0, nil),
	}
}

package sigma

// Match records a Sigma rule hit against one event.
type Match struct {
	EventIndex int    `json:"event_index"`
	Category   string `json:"category"` // logsource.category of the rule
	RuleTitle  string `json:"rule_title"`
	RuleID     string `json:"rule_id,omitempty"`
	Level      string `json:"level"` // informational | low | medium | high | critical
}

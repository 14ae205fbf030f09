package query

import (
	"fmt"
	"strings"

	"github.com/iyulab/siem-analyst/internal/model"
)

// RenderKQL renders the entity filters as a Kibana query string. It covers the
// common fields only and is meant for display and copy-paste into Discover.
func RenderKQL(intent model.Intent, entities []model.Entity) string {
	var parts []string
	for _, e := range entities {
		switch e.Type {
		case model.EntityIPAddress:
			parts = append(parts, fmt.Sprintf("(source.ip:%s OR destination.ip:%s)", e.Value, e.Value))
		case model.EntityUsername:
			parts = append(parts, "user.name:"+kqlValue(e.Value))
		case model.EntityHostname:
			parts = append(parts, "host.name:"+kqlValue(e.Value))
		}
	}
	if intent == model.IntentSearchLogs {
		parts = append(parts, "(event.category:authentication OR event.category:network OR event.category:malware)")
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " AND ")
}

func kqlValue(v string) string {
	if strings.ContainsAny(v, " :()\"") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

package composer

import (
	"maps"
	"time"

	"github.com/iyulab/siem-analyst/internal/model"
)

// Chart kinds.
const (
	ChartScatter = "scatter"
	ChartLine    = "line"
	ChartBar     = "bar"
	ChartPie     = "pie"
)

const chartHeight = 400

// SeverityColors is the color mapping used by every severity-keyed chart.
var SeverityColors = map[string]string{
	string(model.SeverityLow):      "#28a745",
	string(model.SeverityMedium):   "#ffc107",
	string(model.SeverityHigh):     "#fd7e14",
	string(model.SeverityCritical): "#dc3545",
}

// Axis names the row field plotted on an axis.
type Axis struct {
	Field string `json:"field"`
	Title string `json:"title"`
}

// Chart is a declarative, renderer-agnostic visualization descriptor.
type Chart struct {
	Kind       string            `json:"kind"`
	Title      string            `json:"title"`
	X          Axis              `json:"x"`
	Y          Axis              `json:"y"`
	ColorField string            `json:"color_field,omitempty"`
	ColorMap   map[string]string `json:"color_map,omitempty"`
	Hover      []string          `json:"hover,omitempty"`
	Rows       []map[string]any  `json:"rows"`
	ShowLegend bool              `json:"show_legend"`
	Height     int               `json:"height"`
}

func timelineChart(events []model.SecurityEvent) *Chart {
	if len(events) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(events))
	for i, e := range events {
		desc := e.Description
		if short := model.Truncate(desc, 50); short != desc {
			desc = short + "..."
		}
		rows[i] = map[string]any{
			"timestamp":   e.Timestamp.Format(time.RFC3339),
			"severity":    string(e.Severity),
			"event_type":  e.EventType,
			"description": desc,
		}
	}
	return &Chart{
		Kind:       ChartScatter,
		Title:      "Security Events Timeline",
		X:          Axis{Field: "timestamp", Title: "Time"},
		Y:          Axis{Field: "event_type", Title: "Event Type"},
		ColorField: "severity",
		ColorMap:   maps.Clone(SeverityColors),
		Hover:      []string{"description"},
		Rows:       rows,
		ShowLegend: true,
		Height:     chartHeight,
	}
}

func timeSeriesChart(buckets []Bucket) *Chart {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(buckets))
	for i, b := range buckets {
		key := b.KeyAsString
		if key == "" {
			key = b.Key
		}
		rows[i] = map[string]any{"time": key, "count": b.DocCount}
	}
	return &Chart{
		Kind:   ChartLine,
		Title:  "Events Over Time",
		X:      Axis{Field: "time", Title: "Time"},
		Y:      Axis{Field: "count", Title: "Number of Events"},
		Rows:   rows,
		Height: chartHeight,
	}
}

func severityChart(counts []SeverityCount) *Chart {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(counts))
	for i, c := range counts {
		rows[i] = map[string]any{"severity": string(c.Severity), "count": c.Count}
	}
	return &Chart{
		Kind:       ChartBar,
		Title:      "Events by Severity Level",
		X:          Axis{Field: "severity", Title: "Severity"},
		Y:          Axis{Field: "count", Title: "Number of Events"},
		ColorField: "severity",
		ColorMap:   maps.Clone(SeverityColors),
		Rows:       rows,
		Height:     chartHeight,
	}
}

func pieChart(buckets []Bucket, title string) *Chart {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(buckets))
	for i, b := range buckets {
		rows[i] = map[string]any{"label": b.Key, "value": b.DocCount}
	}
	return &Chart{
		Kind:       ChartPie,
		Title:      title,
		X:          Axis{Field: "label"},
		Y:          Axis{Field: "value"},
		Rows:       rows,
		ShowLegend: true,
		Height:     chartHeight,
	}
}

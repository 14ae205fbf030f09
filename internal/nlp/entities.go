package nlp

import (
	"regexp"

	"github.com/iyulab/siem-analyst/internal/model"
)

// Per-extractor confidences. Overlapping extractors are not fused.
const (
	ipConfidence    = 0.9
	portConfidence  = 0.8
	pathConfidence  = 0.7
	timeConfidence  = 0.8
	namedConfidence = 0.8
)

var (
	ipPattern   = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
	portPattern = regexp.MustCompile(`(?i)\bport\s+(\d{1,5})\b`)
	pathPattern = regexp.MustCompile(`[/\\][^\s]*[/\\][^\s]*`)

	// Relative time phrases, emitted in this order.
	timePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(yesterday|last\s+24\s+hours?)\b`),
		regexp.MustCompile(`(?i)\b(last\s+week|past\s+week)\b`),
		regexp.MustCompile(`(?i)\b(last\s+month|past\s+month)\b`),
		regexp.MustCompile(`(?i)\b(today|last\s+hour)\b`),
	}
)

// namedTypes maps named-entity labels onto domain entity types.
var namedTypes = map[string]model.EntityType{
	LabelPerson: model.EntityUsername,
	LabelOrg:    model.EntityHostname,
	LabelGPE:    model.EntityHostname,
	LabelDate:   model.EntityTimeRange,
	LabelTime:   model.EntityTimeRange,
}

func extractNamed(r Recognizer, text string) []model.Entity {
	var out []model.Entity
	for _, span := range r.Recognize(text) {
		typ, ok := namedTypes[span.Label]
		if !ok {
			continue
		}
		out = append(out, model.Entity{
			Type:       typ,
			Value:      span.Text,
			Confidence: namedConfidence,
			StartPos:   span.Start,
			EndPos:     span.End,
		})
	}
	return out
}

func extractPatterns(text string) []model.Entity {
	var out []model.Entity

	for _, loc := range ipPattern.FindAllStringIndex(text, -1) {
		out = append(out, entity(model.EntityIPAddress, text, loc[0], loc[1], ipConfidence))
	}
	for _, loc := range portPattern.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, entity(model.EntityPort, text, loc[2], loc[3], portConfidence))
	}
	for _, loc := range pathPattern.FindAllStringIndex(text, -1) {
		out = append(out, entity(model.EntityFilePath, text, loc[0], loc[1], pathConfidence))
	}
	for _, p := range timePatterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			out = append(out, entity(model.EntityTimeRange, text, loc[0], loc[1], timeConfidence))
		}
	}
	return out
}

func entity(typ model.EntityType, text string, start, end int, confidence float64) model.Entity {
	return model.Entity{
		Type:       typ,
		Value:      text[start:end],
		Confidence: confidence,
		StartPos:   start,
		EndPos:     end,
	}
}

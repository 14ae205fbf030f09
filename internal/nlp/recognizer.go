package nlp

import (
	"regexp"
	"strings"
)

// Named-entity labels understood by the extractor.
const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
	LabelGPE    = "GPE"
	LabelDate   = "DATE"
	LabelTime   = "TIME"
)

// Span is a labelled region of the input. Start and End are byte offsets.
type Span struct {
	Label string
	Text  string
	Start int
	End   int
}

// Recognizer is a general-purpose named-entity pass. Labels outside the
// known set are ignored by the extractor.
type Recognizer interface {
	Recognize(text string) []Span
}

// LexicalRecognizer labels spans from keyword cues: "user alice" is a PERSON,
// "host web-01" an ORG, ISO dates DATE and clock times TIME.
type LexicalRecognizer struct{}

var (
	personCue = regexp.MustCompile(`(?i)\b(?:user(?:name)?|account)\s+([A-Za-z][\w.\-]{0,63})`)
	hostCue   = regexp.MustCompile(`(?i)\b(?:host(?:name)?|server|machine|workstation)\s+([A-Za-z0-9][\w.\-]{0,252})`)
	isoDate   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	clockTime = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)
)

// cueStopwords are tokens that follow a cue word without naming anything.
var cueStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"for": true, "from": true, "with": true, "in": true, "on": true, "to": true,
	"activity": true, "accounts": true, "account": true, "names": true, "name": true,
	"login": true, "logins": true, "logs": true, "events": true, "event": true,
	"is": true, "was": true, "that": true, "this": true,
}

// Recognize implements Recognizer.
func (LexicalRecognizer) Recognize(text string) []Span {
	var spans []Span
	spans = appendCued(spans, personCue, LabelPerson, text)
	spans = appendCued(spans, hostCue, LabelOrg, text)
	for _, loc := range isoDate.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{Label: LabelDate, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	for _, loc := range clockTime.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{Label: LabelTime, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return spans
}

func appendCued(spans []Span, re *regexp.Regexp, label, text string) []Span {
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		value := strings.TrimRight(text[start:end], ".-")
		if value == "" || cueStopwords[strings.ToLower(value)] {
			continue
		}
		spans = append(spans, Span{Label: label, Text: value, Start: start, End: start + len(value)})
	}
	return spans
}

package nlp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidInput is the sentinel wrapped by every input rejection.
var ErrInvalidInput = errors.New("invalid input")

// MaxQueryLength is the length above which a query is accepted with a warning.
const MaxQueryLength = 1000

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)onload\s*=`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)document\.`),
	regexp.MustCompile(`(?i)window\.`),
}

// ValidateQuery rejects empty or unsafe text before extraction. The returned
// warnings are advisory and do not block processing.
func ValidateQuery(text string) (warnings []string, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	for _, p := range unsafePatterns {
		if p.MatchString(text) {
			return nil, fmt.Errorf("%w: query contains potentially unsafe content", ErrInvalidInput)
		}
	}
	if len(text) > MaxQueryLength {
		warnings = append(warnings, fmt.Sprintf("query is very long (%d characters), consider shortening it", len(text)))
	}
	return warnings, nil
}

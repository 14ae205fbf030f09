// Package sigma evaluates Sigma detection rules against retrieved security events.
package sigma

import (
	"context"
	"embed"
	"io/fs"
	"path/filepath"
	"sort"

	sigmalib "github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
)

//go:embed rules
var embeddedRules embed.FS

// Engine evaluates Sigma rules against flat event maps.
type Engine struct {
	rules []evaluator.RuleEvaluator
}

// NewDefault creates an Engine loaded with the built-in embedded Sigma rules.
func NewDefault() (*Engine, error) {
	sub, err := fs.Sub(embeddedRules, "rules")
	if err != nil {
		return nil, err
	}
	return New(sub)
}

// New creates an Engine by loading Sigma rules from the given FS.
// All .yml/.yaml files are parsed as Sigma rules, in lexical path order.
func New(rulesFS fs.FS) (*Engine, error) {
	var paths []string
	err := fs.WalkDir(rulesFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	rules := make([]evaluator.RuleEvaluator, 0, len(paths))
	for _, path := range paths {
		data, err := fs.ReadFile(rulesFS, path)
		if err != nil {
			return nil, err
		}
		rule, err := sigmalib.ParseRule(data)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *evaluator.ForRule(rule))
	}

	return &Engine{rules: rules}, nil
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int { return len(e.rules) }

// MatchEvents evaluates every rule against every event. An event may match
// several rules; matches are ordered by event, then by rule.
func (e *Engine) MatchEvents(ctx context.Context, events []map[string]interface{}) []Match {
	var matches []Match
	for i, event := range events {
		if ctx.Err() != nil {
			return matches
		}
		for _, ev := range e.rules {
			res, err := ev.Matches(ctx, event)
			if err != nil || !res.Match {
				continue
			}
			matches = append(matches, Match{
				EventIndex: i,
				Category:   ev.Rule.Logsource.Category,
				RuleTitle:  ev.Rule.Title,
				RuleID:     ev.Rule.ID,
				Level:      ev.Rule.Level,
			})
		}
	}
	return matches
}

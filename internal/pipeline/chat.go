package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/iyulab/siem-analyst/internal/composer"
	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/session"
)

// History returns up to limit recent messages; a non-positive limit uses
// session.DefaultHistoryLimit.
func (s *Services) History(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = session.DefaultHistoryLimit
	}
	return s.Sessions.GetHistory(ctx, sessionID, limit)
}

// PatchContext merges caller-supplied values into the session context.
func (s *Services) PatchContext(ctx context.Context, sessionID string, patch map[string]any) error {
	return s.Sessions.UpdateContext(ctx, sessionID, patch)
}

// ClearSession resets the session to an empty state.
func (s *Services) ClearSession(ctx context.Context, sessionID string) error {
	return s.Sessions.CreateSession(ctx, sessionID)
}

// FollowUps re-derives suggestions from the last recorded turn.
func (s *Services) FollowUps(ctx context.Context, sessionID string) ([]string, error) {
	cc, err := s.Sessions.GetContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cc.LastIntent == "" {
		return []string{}, nil
	}
	return composer.Suggest(cc.LastIntent, cc.LastEntities, cc.LastResultCount), nil
}

// insightWindows maps the accepted windows onto time phrases the compiler
// understands. "1h" deliberately relies on the unrecognized-phrase fallback.
var insightWindows = map[string]string{
	"1h":  "last hour",
	"24h": "last 24 hours",
	"7d":  "last week",
	"30d": "last month",
}

// InsightsReport summarizes detection over a trailing window.
type InsightsReport struct {
	TimeRange   string             `json:"time_range"`
	TotalEvents int                `json:"total_events"`
	Insights    detection.Insights `json:"insights"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Insights searches the window, runs detection over the result and returns
// the condensed summary. Unknown windows fall back to 24h.
func (s *Services) Insights(ctx context.Context, window string) (InsightsReport, error) {
	phrase, ok := insightWindows[window]
	if !ok {
		window, phrase = "24h", insightWindows["24h"]
	}
	q := s.Compiler.Compile(model.IntentSearchLogs, []model.Entity{{
		Type:       model.EntityTimeRange,
		Value:      phrase,
		Confidence: 1,
	}}, nil)

	result, err := s.search(ctx, q)
	if err != nil {
		return InsightsReport{}, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	analysis := s.Detector.Analyze(ctx, result.Events)
	return InsightsReport{
		TimeRange:   window,
		TotalEvents: result.TotalHits,
		Insights:    detection.Summarize(analysis),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

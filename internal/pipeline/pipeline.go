package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/audit"
	"github.com/iyulab/siem-analyst/internal/composer"
	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/nlp"
	"github.com/iyulab/siem-analyst/internal/observability"
	"github.com/iyulab/siem-analyst/internal/session"
)

// ErrSearchFailed marks a terminal search backend failure. The session
// already holds an error message for the turn when it is returned.
var ErrSearchFailed = errors.New("search failed")

// Context keys written after every turn, besides the typed session keys.
const (
	KeyLastQuery     = "last_query"
	KeyEntitiesFound = "entities_found"
)

// Outcome labels for metrics and audit records.
const (
	OutcomeOK           = "ok"
	OutcomeInvalidInput = "invalid_input"
	OutcomeSearchFailed = "search_failed"
	OutcomeError        = "error"
)

// Request is one user turn.
type Request struct {
	SessionID string `json:"session_id"`
	Text      string `json:"query"`
}

// Payload is the reply contract consumed by every front end.
type Payload struct {
	SessionID        string              `json:"session_id"`
	Response         string              `json:"response"`
	Intent           model.Intent        `json:"intent"`
	Confidence       float64             `json:"confidence"`
	Data             *composer.Data      `json:"data,omitempty"`
	Suggestions      []string            `json:"suggestions,omitempty"`
	Visualization    *composer.Chart     `json:"visualization,omitempty"`
	AdditionalCharts []composer.Chart    `json:"additional_charts,omitempty"`
	QueryUsed        string              `json:"query_used,omitempty"`
	KQL              string              `json:"kql,omitempty"`
	ExecutionTime    float64             `json:"execution_time,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
	Analysis         *detection.Analysis `json:"-"`
}

// Handle runs one turn. Component faults degrade inside their component;
// only invalid input and search failures are returned as errors.
func (s *Services) Handle(ctx context.Context, req Request) (Payload, error) {
	if err := s.validate(); err != nil {
		return Payload{}, err
	}
	started := time.Now()

	warnings, err := nlp.ValidateQuery(req.Text)
	if err != nil {
		s.Metrics.RecordQuery(string(model.IntentUnknown), OutcomeInvalidInput)
		return Payload{SessionID: req.SessionID}, err
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	log := observability.OrNop(s.Logger).With(zap.String("session", req.SessionID))
	out := Payload{SessionID: req.SessionID, Warnings: warnings}

	if _, err := s.Sessions.AddMessage(ctx, req.SessionID, model.MessageUser, req.Text, nil); err != nil {
		return out, fmt.Errorf("record user message: %w", err)
	}
	cc, err := s.Sessions.GetContext(ctx, req.SessionID)
	if err != nil {
		log.Warn("context unavailable, continuing without it", zap.Error(err))
		cc = model.ConversationContext{SessionID: req.SessionID}
	}

	stage := time.Now()
	extracted := s.Extractor.Process(req.Text, cc.Values)
	s.Metrics.ObserveStage("extract", stage)
	out.Intent, out.Confidence = extracted.Intent, extracted.Confidence

	stage = time.Now()
	q := s.Compiler.Compile(extracted.Intent, extracted.Entities, &cc)
	s.Metrics.ObserveStage("compile", stage)
	out.KQL = q.KQL
	if body, err := json.Marshal(q.Body); err == nil {
		out.QueryUsed = string(body)
	}

	stage = time.Now()
	result, err := s.search(ctx, q)
	s.Metrics.ObserveStage("search", stage)
	if err != nil {
		log.Error("search failed", zap.String("index", q.IndexPattern), zap.Error(err))
		if _, merr := s.Sessions.AddMessage(ctx, req.SessionID, model.MessageError, "Search failed: "+err.Error(), map[string]any{
			"intent": string(extracted.Intent),
		}); merr != nil {
			log.Warn("could not record error message", zap.Error(merr))
		}
		s.Metrics.RecordQuery(string(extracted.Intent), OutcomeSearchFailed)
		return out, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	s.Metrics.ObserveSearch(result.TotalHits)

	if extracted.Intent.Analytic() && len(result.Events) > 0 {
		stage = time.Now()
		a := s.Detector.Analyze(ctx, result.Events)
		s.Metrics.ObserveStage("analyze", stage)
		s.Metrics.RecordAnalysis(threatTypes(a.Threats), len(a.Anomalies), int(a.RiskScore))
		out.Analysis = &a
	}

	stage = time.Now()
	resp := s.Composer.Compose(result, extracted.Intent, req.Text, out.Analysis)
	s.Metrics.ObserveStage("compose", stage)

	out.Response = resp.Text
	out.Data = resp.Data
	out.Visualization = resp.Visualization
	out.AdditionalCharts = resp.AdditionalCharts
	out.ExecutionTime = result.ExecutionTime

	effective := extracted.Entities
	if extracted.Intent == model.IntentFilterResults {
		effective = model.MergeEntities(extracted.Entities, cc.LastEntities)
	}
	out.Suggestions = composer.Suggest(extracted.Intent, effective, result.TotalHits)

	if _, err := s.Sessions.AddMessage(ctx, req.SessionID, model.MessageAssistant, resp.Text, map[string]any{
		"intent":               string(extracted.Intent),
		"confidence":           extracted.Confidence,
		"query_execution_time": result.ExecutionTime,
		"total_hits":           result.TotalHits,
	}); err != nil {
		log.Warn("could not record assistant message", zap.Error(err))
	}
	if err := s.Sessions.UpdateContext(ctx, req.SessionID, map[string]any{
		KeyLastQuery:               req.Text,
		session.KeyLastIntent:      extracted.Intent,
		session.KeyLastEntities:    effective,
		session.KeyLastResultCount: result.TotalHits,
		KeyEntitiesFound:           entityValues(extracted.Entities),
	}); err != nil {
		log.Warn("could not update context", zap.Error(err))
	}

	s.Metrics.RecordQuery(string(extracted.Intent), OutcomeOK)
	log.Info("turn complete",
		zap.String("intent", string(extracted.Intent)),
		zap.Int("entities", len(extracted.Entities)),
		zap.Int("total_hits", result.TotalHits),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

// search applies the configured deadline. A nil result counts as zero hits.
func (s *Services) search(ctx context.Context, q model.StructuredQuery) (*model.SearchResult, error) {
	if s.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SearchTimeout)
		defer cancel()
	}
	result, err := s.Searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &model.SearchResult{}
	}
	return result, nil
}

func threatTypes(threats []detection.ThreatFinding) []string {
	out := make([]string, len(threats))
	for i, t := range threats {
		out[i] = string(t.ThreatType)
	}
	return out
}

func entityValues(entities []model.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = string(e.Type) + ":" + e.Value
	}
	return out
}

// Outcome maps a Handle error onto an outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, nlp.ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, ErrSearchFailed):
		return OutcomeSearchFailed
	}
	return OutcomeError
}

// AuditRecord describes a handled turn for an audit sink. Writing it is the
// caller's job.
func AuditRecord(req Request, p Payload, err error) audit.Record {
	rec := audit.Record{
		Timestamp:  time.Now().UTC(),
		SessionID:  p.SessionID,
		Query:      req.Text,
		Intent:     p.Intent,
		Confidence: p.Confidence,
		Outcome:    Outcome(err),
	}
	if rec.SessionID == "" {
		rec.SessionID = req.SessionID
	}
	if p.Data != nil {
		rec.TotalHits = p.Data.TotalHits
	}
	if p.Analysis != nil {
		rec.RiskScore = int(p.Analysis.RiskScore)
	}
	return rec
}

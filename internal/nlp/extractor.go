// Package nlp turns free-text analyst questions into an intent and typed entities.
package nlp

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
)

const defaultCacheSize = 1024

// Result is the outcome of processing one utterance.
// Processed is false when extraction faulted; Err then carries the cause.
type Result struct {
	Intent        model.Intent   `json:"intent"`
	Confidence    float64        `json:"confidence"`
	Entities      []model.Entity `json:"entities"`
	OriginalQuery string         `json:"original_query"`
	Processed     bool           `json:"processed"`
	Context       map[string]any `json:"context,omitempty"`
	Err           error          `json:"-"`
}

// Extractor classifies intent and extracts entities. It holds no per-request
// state and is safe for concurrent use.
type Extractor struct {
	recognizer Recognizer
	cache      *lru.Cache[string, Result]
	logger     *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRecognizer replaces the named-entity pass.
func WithRecognizer(r Recognizer) Option {
	return func(e *Extractor) { e.recognizer = r }
}

// WithCacheSize bounds the memoized results. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(e *Extractor) {
		if n <= 0 {
			e.cache = nil
			return
		}
		e.cache, _ = lru.New[string, Result](n)
	}
}

// NewExtractor returns an Extractor using the lexical recognizer.
func NewExtractor(logger *zap.Logger, opts ...Option) *Extractor {
	cache, _ := lru.New[string, Result](defaultCacheSize)
	e := &Extractor{
		recognizer: LexicalRecognizer{},
		cache:      cache,
		logger:     observability.OrNop(logger).Named("nlp"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process classifies text and extracts entities. It never fails: an internal
// fault yields the unknown intent with zero confidence and Processed=false.
func (e *Extractor) Process(text string, context map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("extract %q: %v", text, r)
			e.logger.Warn("extraction failed", zap.Error(err))
			res = Result{
				Intent:        model.IntentUnknown,
				Entities:      []model.Entity{},
				OriginalQuery: text,
				Err:           err,
			}
		}
	}()

	if e.cache != nil {
		if cached, ok := e.cache.Get(text); ok {
			return withContext(cached, context)
		}
	}

	intent, confidence := ClassifyIntent(strings.ToLower(text))
	entities := e.ExtractEntities(text)

	res = Result{
		Intent:        intent,
		Confidence:    confidence,
		Entities:      entities,
		OriginalQuery: text,
		Processed:     true,
	}
	if e.cache != nil {
		e.cache.Add(text, res)
	}
	e.logger.Debug("extracted",
		zap.String("intent", string(intent)),
		zap.Int("entities", len(entities)))
	return withContext(res, context)
}

// ExtractEntities runs the named-entity pass followed by the pattern
// extractors. Overlapping spans from different extractors are all kept.
func (e *Extractor) ExtractEntities(text string) []model.Entity {
	entities := extractNamed(e.recognizer, text)
	entities = append(entities, extractPatterns(text)...)
	if entities == nil {
		entities = []model.Entity{}
	}
	return entities
}

// withContext returns a copy of r whose entity slice is not shared with the cache.
func withContext(r Result, context map[string]any) Result {
	r.Entities = append([]model.Entity(nil), r.Entities...)
	if r.Entities == nil {
		r.Entities = []model.Entity{}
	}
	if len(context) > 0 {
		r.Context = context
	}
	return r
}

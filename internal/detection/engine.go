// Package detection scores retrieved events for statistical outliers and
// known attack patterns, and rolls the findings into a bounded risk score.
package detection

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
	"github.com/iyulab/siem-analyst/internal/sigma"
)

// Config tunes the anomaly model.
type Config struct {
	// MinBatch is the cold-start floor: smaller batches are never scored.
	MinBatch      int
	Contamination float64
	Trees         int
	SampleSize    int
	Seed          int64
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{MinBatch: 10, Contamination: 0.1, Trees: 100, SampleSize: 256, Seed: 42}
}

// Engine analyzes event batches. Every call fits its own model, so an Engine
// carries no mutable state and is safe for concurrent use.
type Engine struct {
	cfg    Config
	rules  *sigma.Engine
	logger *zap.Logger
}

// NewEngine builds an Engine with the embedded keyword rules.
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	rules, err := sigma.NewDefault()
	if err != nil {
		return nil, fmt.Errorf("load detection rules: %w", err)
	}
	return NewEngineWithRules(cfg, rules, logger), nil
}

// NewEngineWithRules builds an Engine with a caller-supplied rule set.
func NewEngineWithRules(cfg Config, rules *sigma.Engine, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MinBatch < def.MinBatch {
		cfg.MinBatch = def.MinBatch
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = def.Contamination
	}
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	return &Engine{cfg: cfg, rules: rules, logger: observability.OrNop(logger).Named("detection")}
}

// Analyze scores the batch and evaluates every pattern detector. It never
// fails: a fault in any stage yields the empty analysis with Err set.
func (e *Engine) Analyze(ctx context.Context, events []model.SecurityEvent) Analysis {
	if len(events) == 0 {
		return emptyAnalysis()
	}

	var (
		anomalies []AnomalyFinding
		rate      []ThreatFinding // brute force and exfiltration
		keyword   []ThreatFinding
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard("anomaly scoring", func() error {
		anomalies = e.detectAnomalies(events)
		return nil
	}))
	g.Go(guard("pattern detection", func() error {
		rate = append(detectBruteForce(events), detectExfiltration(events)...)
		return nil
	}))
	g.Go(guard("rule evaluation", func() error {
		keyword = detectKeywordThreats(gctx, e.rules, events)
		return gctx.Err()
	}))

	if err := g.Wait(); err != nil {
		e.logger.Warn("analysis failed", zap.Int("events", len(events)), zap.Error(err))
		a := emptyAnalysis()
		a.Err = err
		return a
	}

	threats := append(rate, keyword...)
	if threats == nil {
		threats = []ThreatFinding{}
	}
	if anomalies == nil {
		anomalies = []AnomalyFinding{}
	}
	risk := RiskScore(anomalies, threats)

	e.logger.Debug("analyzed",
		zap.Int("events", len(events)),
		zap.Int("anomalies", len(anomalies)),
		zap.Int("threats", len(threats)),
		zap.Float64("risk", risk))

	return Analysis{
		Anomalies:       anomalies,
		Threats:         threats,
		RiskScore:       risk,
		Recommendations: Recommendations(threats, risk),
		Assessment:      Assess(risk, threats),
	}
}

// detectAnomalies standardizes the features, fits a fresh forest and returns
// the events whose decision score is negative, most anomalous first.
func (e *Engine) detectAnomalies(events []model.SecurityEvent) []AnomalyFinding {
	if len(events) < e.cfg.MinBatch {
		return nil
	}

	x := standardize(Features(events))
	rng := rand.New(rand.NewPCG(uint64(e.cfg.Seed), uint64(e.cfg.Seed)))
	forest := fitForest(x, e.cfg.Trees, e.cfg.SampleSize, rng)
	decision := decisionFunction(forest.scoreSamples(x), e.cfg.Contamination)

	var out []AnomalyFinding
	for i, d := range decision {
		if d >= 0 {
			continue
		}
		ev := events[i]
		out = append(out, AnomalyFinding{
			EventID:      ev.ID,
			EventType:    ev.EventType,
			Timestamp:    ev.Timestamp,
			AnomalyScore: d,
			Confidence:   min(math.Abs(d)*10, 1),
			Severity:     ev.Severity,
			Description:  model.Truncate(ev.Description, 100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AnomalyScore < out[j].AnomalyScore })
	return out
}

// guard converts a panic in fn into an error so one faulty stage cannot take
// the process down from inside an errgroup goroutine.
func guard(stage string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: %v", stage, r)
			}
		}()
		return fn()
	}
}

// Package pipeline wires the analysis components together and runs one
// conversational turn through them: extract, compile, search, analyze,
// compose, and record the exchange in the session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/composer"
	"github.com/iyulab/siem-analyst/internal/config"
	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/metrics"
	"github.com/iyulab/siem-analyst/internal/nlp"
	"github.com/iyulab/siem-analyst/internal/observability"
	"github.com/iyulab/siem-analyst/internal/query"
	"github.com/iyulab/siem-analyst/internal/search"
	"github.com/iyulab/siem-analyst/internal/session"
)

// Services holds the process-wide components. Build it once at startup and
// share it across requests; every component is safe for concurrent use.
type Services struct {
	Extractor *nlp.Extractor
	Compiler  *query.Compiler
	Detector  *detection.Engine
	Composer  *composer.Composer
	Sessions  session.Store
	Searcher  search.Searcher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// SearchTimeout bounds each backend call; zero means no extra deadline.
	SearchTimeout time.Duration
}

// NewServices builds every component from cfg.
func NewServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	logger = observability.OrNop(logger)

	detector, err := detection.NewEngine(detection.Config{
		MinBatch:      cfg.Detection.MinBatch,
		Contamination: cfg.Detection.Contamination,
		Trees:         cfg.Detection.Trees,
		SampleSize:    cfg.Detection.SampleSize,
		Seed:          cfg.Detection.Seed,
	}, logger)
	if err != nil {
		return nil, err
	}

	searcher, err := newSearcher(cfg.Search, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := newSessionStore(ctx, cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	return &Services{
		Extractor:     nlp.NewExtractor(logger),
		Compiler:      query.NewCompiler(logger),
		Detector:      detector,
		Composer:      composer.New(logger),
		Sessions:      sessions,
		Searcher:      searcher,
		Metrics:       metrics.New(),
		Logger:        logger.Named("pipeline"),
		SearchTimeout: time.Duration(cfg.Search.Timeout) * time.Second,
	}, nil
}

func newSearcher(cfg config.SearchConfig, logger *zap.Logger) (search.Searcher, error) {
	switch cfg.Backend {
	case "elasticsearch":
		return search.NewElasticsearch(search.ElasticsearchOptions{
			Endpoint:  cfg.Endpoint,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			RateLimit: cfg.RateLimit,
		}, logger), nil
	case "fixture", "":
		f, err := search.LoadFixture(cfg.Fixture, time.Now(), logger)
		if err != nil {
			return nil, fmt.Errorf("load fixture: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported search backend: %q", cfg.Backend)
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (session.Store, error) {
	switch cfg.Backend {
	case "redis":
		return session.NewRedisStore(ctx, session.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       time.Duration(cfg.TTL) * time.Hour,
		}, logger)
	case "memory", "":
		return session.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported session backend: %q", cfg.Backend)
}

// Close releases the session store.
func (s *Services) Close() error {
	if s.Sessions == nil {
		return nil
	}
	return s.Sessions.Close()
}

func (s *Services) validate() error {
	var missing []error
	if s.Extractor == nil {
		missing = append(missing, errors.New("extractor"))
	}
	if s.Compiler == nil {
		missing = append(missing, errors.New("compiler"))
	}
	if s.Detector == nil {
		missing = append(missing, errors.New("detector"))
	}
	if s.Composer == nil {
		missing = append(missing, errors.New("composer"))
	}
	if s.Sessions == nil {
		missing = append(missing, errors.New("session store"))
	}
	if s.Searcher == nil {
		missing = append(missing, errors.New("searcher"))
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline: missing services: %w", errors.Join(missing...))
	}
	return nil
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
)

// ElasticsearchOptions configures the HTTP client.
type ElasticsearchOptions struct {
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Elasticsearch runs queries through the _search API.
type Elasticsearch struct {
	endpoint string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewElasticsearch returns a client for the cluster at opts.Endpoint.
func NewElasticsearch(opts ElasticsearchOptions, logger *zap.Logger) *Elasticsearch {
	timeout := 30 * time.Second
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Elasticsearch{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		username: opts.Username,
		password: opts.Password,
		client:   &http.Client{Timeout: timeout, Transport: opts.Transport},
		limiter:  limiter,
		logger:   observability.OrNop(logger).Named("search"),
	}
}

type esResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []struct {
			ID     string         `json:"_id"`
			Index  string         `json:"_index"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]any `json:"aggregations"`
}

// Search implements Searcher.
func (es *Elasticsearch) Search(ctx context.Context, q model.StructuredQuery) (*model.SearchResult, error) {
	if err := es.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	body := maps.Clone(q.Body)
	if body == nil {
		body = map[string]any{}
	}
	if _, ok := body["size"]; !ok {
		body["size"] = q.Size
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	index := q.IndexPattern
	if index == "" {
		index = "_all"
	}
	endpoint := es.endpoint + "/" + url.PathEscape(index) + "/_search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if es.username != "" {
		req.SetBasicAuth(es.username, es.password)
	}

	start := time.Now()
	resp, err := es.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elasticsearch error %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed esResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result := &model.SearchResult{
		TotalHits:    totalHits(parsed.Hits.Total, len(parsed.Hits.Hits)),
		Events:       make([]model.SecurityEvent, 0, len(parsed.Hits.Hits)),
		Aggregations: parsed.Aggregations,
	}
	for _, h := range parsed.Hits.Hits {
		result.Events = append(result.Events, DecodeHit(h.ID, h.Source))
	}
	if parsed.Took > 0 {
		result.ExecutionTime = float64(parsed.Took) / 1000
	} else {
		result.ExecutionTime = time.Since(start).Seconds()
	}

	es.logger.Debug("search complete",
		zap.String("index", index),
		zap.Int("total_hits", result.TotalHits),
		zap.Int("returned", len(result.Events)),
		zap.Float64("execution_time", result.ExecutionTime))
	return result, nil
}

// totalHits accepts both the 7.x object form {"value": n} and the legacy
// bare number.
func totalHits(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return fallback
	}
	var obj struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return fallback
}

// truncateBody limits error bodies echoed back to callers.
func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen]) + "... (truncated)"
}

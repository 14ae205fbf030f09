package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iyulab/siem-analyst/internal/composer"
	"github.com/iyulab/siem-analyst/internal/config"
	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/metrics"
	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/nlp"
	"github.com/iyulab/siem-analyst/internal/query"
	"github.com/iyulab/siem-analyst/internal/search"
	"github.com/iyulab/siem-analyst/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scenarioDocs holds six failed logins from 10.0.0.5 within four minutes and
// some unrelated traffic.
func scenarioDocs(now time.Time) []map[string]any {
	start := now.Add(-2 * time.Hour)
	var docs []map[string]any
	for i := 0; i < 6; i++ {
		docs = append(docs, map[string]any{
			"_id":        fmt.Sprintf("fail-%d", i),
			"@timestamp": start.Add(time.Duration(i) * 40 * time.Second).Format(time.RFC3339),
			"source":     map[string]any{"ip": "10.0.0.5"},
			"user":       map[string]any{"name": "admin"},
			"event":      map[string]any{"category": []any{"authentication"}, "action": "logon_failed", "severity": "medium"},
			"message":    "Failed login for user admin",
		})
	}
	for i := 0; i < 4; i++ {
		docs = append(docs, map[string]any{
			"_id":        fmt.Sprintf("ok-%d", i),
			"@timestamp": start.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			"source":     map[string]any{"ip": fmt.Sprintf("10.0.1.%d", i+1)},
			"event":      map[string]any{"category": []any{"network"}, "action": "connection", "severity": "low"},
			"message":    "Outbound connection",
		})
	}
	return docs
}

func newTestServices(t *testing.T, searcher search.Searcher) *Services {
	t.Helper()
	det, err := detection.NewEngine(detection.DefaultConfig(), nil)
	require.NoError(t, err)
	return &Services{
		Extractor: nlp.NewExtractor(nil),
		Compiler:  query.NewCompiler(nil),
		Detector:  det,
		Composer:  composer.New(nil),
		Sessions:  session.NewMemoryStore(),
		Searcher:  searcher,
		Metrics:   metrics.New(),
	}
}

func TestHandle_FailedLoginScenario(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(scenarioDocs(time.Now()), nil))
	ctx := context.Background()

	p, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "show me failed logins from 10.0.0.5 in the last week"})
	require.NoError(t, err)

	assert.Equal(t, model.IntentSearchLogs, p.Intent)
	assert.Equal(t, nlp.MatchedIntentConfidence, p.Confidence)
	assert.NotEmpty(t, p.Response)
	require.NotNil(t, p.Data)
	assert.Equal(t, 6, p.Data.TotalHits)

	require.NotNil(t, p.Analysis)
	var brute []detection.ThreatFinding
	for _, th := range p.Analysis.Threats {
		if th.ThreatType == detection.ThreatBruteForce {
			brute = append(brute, th)
		}
	}
	require.Len(t, brute, 1)
	assert.Equal(t, model.SeverityHigh, brute[0].Severity)
	assert.Equal(t, "10.0.0.5", brute[0].SourceIP)
	assert.Empty(t, p.Analysis.Anomalies, "six events are below the cold-start floor")

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(p.QueryUsed), &body))
	assert.Contains(t, body, "query")
	assert.Contains(t, p.KQL, "10.0.0.5")
	assert.LessOrEqual(t, len(p.Suggestions), composer.MaxSuggestions)

	hist, err := svc.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.MessageUser, hist[0].Type)
	assert.Equal(t, model.MessageAssistant, hist[1].Type)
	assert.Equal(t, 6, hist[1].Metadata["total_hits"])

	cc, err := svc.Sessions.GetContext(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.IntentSearchLogs, cc.LastIntent)
	assert.Equal(t, 6, cc.LastResultCount)
	assert.Equal(t, "show me failed logins from 10.0.0.5 in the last week", cc.Values[KeyLastQuery])
	assert.Equal(t, []string{"ip_address:10.0.0.5", "time_range:last week"}, cc.Values[KeyEntitiesFound])
}

func TestHandle_FilterNarrowsPreviousSearch(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(scenarioDocs(time.Now()), nil))
	ctx := context.Background()

	_, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "show me failed logins from 10.0.0.5 in the last week"})
	require.NoError(t, err)

	p, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "only show the ones for admin"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentFilterResults, p.Intent)
	assert.Contains(t, p.QueryUsed, "10.0.0.5", "previous entities carry into the filter turn")

	cc, err := svc.Sessions.GetContext(ctx, "s1")
	require.NoError(t, err)
	ip, ok := model.FirstEntity(cc.LastEntities, model.EntityIPAddress)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", ip.Value)
}

func TestHandle_FilterDoesNotDuplicateCarriedEntities(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(scenarioDocs(time.Now()), nil))
	ctx := context.Background()

	_, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "show me failed logins from 10.0.0.5 in the last week"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		p, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "only show the ones from 10.0.0.5"})
		require.NoError(t, err)
		require.Equal(t, model.IntentFilterResults, p.Intent)

		cc, err := svc.Sessions.GetContext(ctx, "s1")
		require.NoError(t, err)
		ips := 0
		for _, e := range cc.LastEntities {
			if e.Type == model.EntityIPAddress && e.Value == "10.0.0.5" {
				ips++
			}
		}
		assert.Equal(t, 1, ips, "turn %d", i)
		assert.Equal(t, 1, strings.Count(p.KQL, "source.ip:10.0.0.5"), "turn %d: %s", i, p.KQL)
	}
}

func TestHandle_ZeroHits(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(nil, nil))

	p, err := svc.Handle(context.Background(), Request{SessionID: "s1", Text: "show me logs from 192.168.9.9"})
	require.NoError(t, err)
	assert.Equal(t, composer.NoResultsText(model.IntentSearchLogs, "show me logs from 192.168.9.9"), p.Response)
	assert.Contains(t, p.Suggestions, composer.SuggestExpandTimeRange)
	assert.Nil(t, p.Analysis)
}

type failingSearcher struct{ err error }

func (f failingSearcher) Search(context.Context, model.StructuredQuery) (*model.SearchResult, error) {
	return nil, f.err
}

type nilSearcher struct{}

func (nilSearcher) Search(context.Context, model.StructuredQuery) (*model.SearchResult, error) {
	return nil, nil
}

func TestHandle_SearchFailureIsTerminal(t *testing.T) {
	svc := newTestServices(t, failingSearcher{err: errors.New("connection refused")})
	ctx := context.Background()

	p, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "show me logs"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, model.IntentSearchLogs, p.Intent)
	assert.Equal(t, OutcomeSearchFailed, Outcome(err))

	hist, err := svc.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.MessageError, hist[1].Type)
	assert.True(t, strings.HasPrefix(hist[1].Content, "Search failed"))
}

func TestHandle_NilResultIsZeroHits(t *testing.T) {
	svc := newTestServices(t, nilSearcher{})
	p, err := svc.Handle(context.Background(), Request{SessionID: "s1", Text: "how many events today"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentGetStatistics, p.Intent)
	assert.Contains(t, p.Suggestions, composer.SuggestExpandTimeRange)
}

func TestHandle_InvalidInput(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(nil, nil))
	ctx := context.Background()

	_, err := svc.Handle(ctx, Request{SessionID: "s1", Text: "<script>alert(1)</script>"})
	assert.ErrorIs(t, err, nlp.ErrInvalidInput)
	assert.Equal(t, OutcomeInvalidInput, Outcome(err))

	hist, err := svc.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, hist, "rejected input never reaches the session")
}

func TestHandle_AssignsSessionID(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(nil, nil))
	p, err := svc.Handle(context.Background(), Request{Text: "show me logs"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.SessionID)
}

func TestHandle_MissingServices(t *testing.T) {
	svc := &Services{}
	_, err := svc.Handle(context.Background(), Request{SessionID: "s", Text: "show me logs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extractor")
}

func TestHandle_ConcurrentTurnsOneSession(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(scenarioDocs(time.Now()), nil))
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Handle(ctx, Request{SessionID: "shared", Text: "show me logs from 10.0.0.5"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	hist, err := svc.History(ctx, "shared", 100)
	require.NoError(t, err)
	assert.Len(t, hist, 2*n)
}

func TestFollowUpsAndClear(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(scenarioDocs(time.Now()), nil))
	ctx := context.Background()

	none, err := svc.FollowUps(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.Handle(ctx, Request{SessionID: "s1", Text: "show me logs from 10.0.0.5"})
	require.NoError(t, err)

	got, err := svc.FollowUps(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, got, "Show all events from IP 10.0.0.5")

	require.NoError(t, svc.ClearSession(ctx, "s1"))
	hist, err := svc.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestInsights(t *testing.T) {
	svc := newTestServices(t, search.NewFixture(scenarioDocs(time.Now()), nil))

	r, err := svc.Insights(context.Background(), "bogus")
	require.NoError(t, err)
	assert.Equal(t, "24h", r.TimeRange)
	assert.Equal(t, 10, r.TotalEvents)
	assert.Equal(t, 1, r.Insights.ThreatCount)
}

func TestAuditRecord(t *testing.T) {
	req := Request{SessionID: "s1", Text: "show me logs"}
	p := Payload{
		SessionID:  "s1",
		Intent:     model.IntentSearchLogs,
		Confidence: 0.8,
		Data:       &composer.Data{TotalHits: 4},
		Analysis:   &detection.Analysis{RiskScore: 42.5},
	}
	rec := AuditRecord(req, p, nil)
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, 4, rec.TotalHits)
	assert.Equal(t, 42, rec.RiskScore)
	assert.Equal(t, OutcomeOK, rec.Outcome)
}

func TestNewServices_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	svc, err := NewServices(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer svc.Close()

	p, err := svc.Handle(context.Background(), Request{SessionID: "demo", Text: "show me suspicious activity in the last 24 hours"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentSearchLogs, p.Intent)
	require.NotNil(t, p.Data)
	assert.Positive(t, p.Data.TotalHits)
}

package search

import (
	"cmp"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/model"
	"github.com/iyulab/siem-analyst/internal/observability"
)

//go:embed sample_events.json
var sampleEvents []byte

// Fixture is an in-process document store that evaluates the subset of the
// query DSL the compiler emits: bool must/filter/should, match, range,
// match_all, terms and date_histogram aggregations, and @timestamp sorting.
type Fixture struct {
	docs   []map[string]any
	logger *zap.Logger
}

// NewFixture wraps already-decoded documents.
func NewFixture(docs []map[string]any, logger *zap.Logger) *Fixture {
	return &Fixture{docs: docs, logger: observability.OrNop(logger).Named("search")}
}

// LoadFixture reads a JSON array of documents from file. An empty name loads
// the bundled sample set, shifted so its newest event lands at now.
func LoadFixture(file string, now time.Time, logger *zap.Logger) (*Fixture, error) {
	if file == "" {
		docs, err := decodeDocs(sampleEvents)
		if err != nil {
			return nil, fmt.Errorf("decode bundled sample: %w", err)
		}
		rebase(docs, now)
		return NewFixture(docs, logger), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	docs, err := decodeDocs(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	return NewFixture(docs, logger), nil
}

func decodeDocs(data []byte) ([]map[string]any, error) {
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// rebase shifts every @timestamp by the same offset so the newest one equals now.
func rebase(docs []map[string]any, now time.Time) {
	var newest time.Time
	for _, d := range docs {
		if t, ok := docTime(d, "@timestamp"); ok && t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		return
	}
	shift := now.Sub(newest)
	for _, d := range docs {
		if t, ok := docTime(d, "@timestamp"); ok {
			d["@timestamp"] = t.Add(shift).Format(time.RFC3339Nano)
		}
	}
}

// Len returns the number of stored documents.
func (f *Fixture) Len() int { return len(f.docs) }

// Search implements Searcher.
func (f *Fixture) Search(ctx context.Context, q model.StructuredQuery) (*model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	clause, _ := q.Body["query"].(map[string]any)
	var hits []map[string]any
	for _, d := range f.docs {
		if !indexMatches(q.IndexPattern, d) {
			continue
		}
		ok, err := evaluate(clause, d)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, d)
		}
	}

	slices.SortStableFunc(hits, func(a, b map[string]any) int {
		ta, _ := docTime(a, "@timestamp")
		tb, _ := docTime(b, "@timestamp")
		return tb.Compare(ta)
	})

	result := &model.SearchResult{TotalHits: len(hits)}
	if aggs, ok := q.Body["aggs"].(map[string]any); ok {
		agg, err := aggregate(aggs, hits)
		if err != nil {
			return nil, err
		}
		result.Aggregations = agg
	}

	size := q.Size
	if s, ok := q.Body["size"]; ok {
		size = toInt(s)
	}
	returned := hits[:min(size, len(hits))]
	result.Events = make([]model.SecurityEvent, 0, len(returned))
	for i, d := range returned {
		id := firstString(d, []string{"_id", "id"})
		if id == "" {
			id = "fixture-" + strconv.Itoa(i)
		}
		result.Events = append(result.Events, DecodeHit(id, d))
	}
	result.ExecutionTime = time.Since(start).Seconds()

	f.logger.Debug("fixture search",
		zap.String("index", q.IndexPattern),
		zap.Int("total_hits", result.TotalHits))
	return result, nil
}

// indexMatches treats documents without an _index as members of every index.
func indexMatches(pattern string, doc map[string]any) bool {
	idx, _ := doc["_index"].(string)
	if pattern == "" || idx == "" {
		return true
	}
	for _, p := range strings.Split(pattern, ",") {
		if ok, _ := path.Match(strings.TrimSpace(p), idx); ok {
			return true
		}
	}
	return false
}

func evaluate(clause map[string]any, doc map[string]any) (bool, error) {
	if len(clause) == 0 {
		return true, nil
	}
	for kind, raw := range clause {
		switch kind {
		case "match_all":
			return true, nil
		case "bool":
			body, _ := raw.(map[string]any)
			return evalBool(body, doc)
		case "match", "term":
			body, _ := raw.(map[string]any)
			return evalMatch(body, doc), nil
		case "range":
			body, _ := raw.(map[string]any)
			return evalRange(body, doc), nil
		default:
			return false, fmt.Errorf("fixture: unsupported query clause %q", kind)
		}
	}
	return true, nil
}

func evalBool(body map[string]any, doc map[string]any) (bool, error) {
	for _, key := range []string{"must", "filter"} {
		for _, c := range clauses(body[key]) {
			ok, err := evaluate(c, doc)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	for _, c := range clauses(body["must_not"]) {
		ok, err := evaluate(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	should := clauses(body["should"])
	if len(should) == 0 || len(clauses(body["must"]))+len(clauses(body["filter"])) > 0 {
		return true, nil
	}
	for _, c := range should {
		ok, err := evaluate(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// clauses accepts both a single clause object and a list of them.
func clauses(v any) []map[string]any {
	switch c := v.(type) {
	case map[string]any:
		return []map[string]any{c}
	case []any:
		out := make([]map[string]any, 0, len(c))
		for _, item := range c {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return c
	}
	return nil
}

// evalMatch compares case-insensitively; a document value matches when it
// equals the query value or contains it as a substring.
func evalMatch(body map[string]any, doc map[string]any) bool {
	for field, want := range body {
		if m, ok := want.(map[string]any); ok {
			want = m["query"]
		}
		got, ok := Lookup(doc, strings.TrimSuffix(field, ".keyword"))
		if !ok {
			return false
		}
		w := strings.ToLower(stringOf(want))
		if list, isList := got.([]any); isList {
			found := false
			for _, item := range list {
				if strings.Contains(strings.ToLower(stringOf(item)), w) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !strings.Contains(strings.ToLower(stringOf(got)), w) {
			return false
		}
	}
	return true
}

func evalRange(body map[string]any, doc map[string]any) bool {
	for field, raw := range body {
		bounds, _ := raw.(map[string]any)
		got, ok := Lookup(doc, field)
		if !ok {
			return false
		}
		for op, bound := range bounds {
			c, ok := compareValues(got, bound)
			if !ok {
				return false
			}
			switch op {
			case "gte":
				ok = c >= 0
			case "gt":
				ok = c > 0
			case "lte":
				ok = c <= 0
			case "lt":
				ok = c < 0
			default:
				ok = true
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

// compareValues orders two values as times when both parse as RFC 3339,
// otherwise as numbers.
func compareValues(a, b any) (int, bool) {
	as, bs := stringOf(a), stringOf(b)
	if ta, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if tb, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return ta.Compare(tb), true
		}
	}
	fa, errA := strconv.ParseFloat(as, 64)
	fb, errB := strconv.ParseFloat(bs, 64)
	if errA != nil || errB != nil {
		return 0, false
	}
	return cmp.Compare(fa, fb), true
}

func docTime(doc map[string]any, field string) (time.Time, bool) {
	v, ok := Lookup(doc, field)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, stringOf(v))
	return t, err == nil
}

func aggregate(aggs map[string]any, hits []map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(aggs))
	for name, raw := range aggs {
		body, _ := raw.(map[string]any)
		switch {
		case body["terms"] != nil:
			params, _ := body["terms"].(map[string]any)
			out[name] = termsAgg(params, hits)
		case body["date_histogram"] != nil:
			params, _ := body["date_histogram"].(map[string]any)
			agg, err := histogramAgg(params, hits)
			if err != nil {
				return nil, err
			}
			out[name] = agg
		default:
			return nil, fmt.Errorf("fixture: unsupported aggregation %q", name)
		}
	}
	return out, nil
}

func termsAgg(params map[string]any, hits []map[string]any) map[string]any {
	field, _ := params["field"].(string)
	field = strings.TrimSuffix(field, ".keyword")
	size := 10
	if s, ok := params["size"]; ok {
		size = toInt(s)
	}

	counts := map[string]int{}
	for _, d := range hits {
		v, ok := Lookup(d, field)
		if !ok {
			continue
		}
		if key := stringOf(v); key != "" {
			counts[key]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	keys = keys[:min(size, len(keys))]

	buckets := make([]any, 0, len(keys))
	for _, k := range keys {
		buckets = append(buckets, map[string]any{"key": k, "doc_count": float64(counts[k])})
	}
	return map[string]any{"buckets": buckets}
}

func histogramAgg(params map[string]any, hits []map[string]any) (map[string]any, error) {
	field, _ := params["field"].(string)
	interval, _ := params["calendar_interval"].(string)
	if interval == "" {
		interval, _ = params["fixed_interval"].(string)
	}
	step, err := parseInterval(interval)
	if err != nil {
		return nil, err
	}

	counts := map[int64]int{}
	for _, d := range hits {
		t, ok := docTime(d, field)
		if !ok {
			continue
		}
		counts[t.UTC().Truncate(step).UnixMilli()]++
	}
	keys := make([]int64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buckets := make([]any, 0, len(keys))
	for _, k := range keys {
		buckets = append(buckets, map[string]any{
			"key":           float64(k),
			"key_as_string": time.UnixMilli(k).UTC().Format(time.RFC3339),
			"doc_count":     float64(counts[k]),
		})
	}
	return map[string]any{"buckets": buckets}, nil
}

func parseInterval(s string) (time.Duration, error) {
	switch s {
	case "1m", "minute":
		return time.Minute, nil
	case "1h", "hour", "":
		return time.Hour, nil
	case "1d", "day":
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("fixture: unsupported interval %q", s)
	}
	return d, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

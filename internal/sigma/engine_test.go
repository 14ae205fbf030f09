package sigma

import (
	"context"
	"testing"
	"testing/fstest"
)

// testRule builds a minimal Sigma rule YAML for testing.
func testRule(category, title, field, value string) []byte {
	return []byte(`title: ` + title + `
id: test-` + category + `-001
status: experimental
logsource:
  product: siem-analyst
  category: ` + category + `
detection:
  selection:
    ` + field + `|contains: '` + value + `'
  condition: selection
level: high
`)
}

func TestEngine_New_LoadsRules(t *testing.T) {
	fakeFS := fstest.MapFS{
		"windows/test.yml": &fstest.MapFile{
			Data: testRule("test_check", "Test Rule", "description", "malware"),
		},
		"README.md": &fstest.MapFile{Data: []byte("not a rule")},
	}
	eng, err := New(fakeFS)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.Len() != 1 {
		t.Errorf("expected 1 rule, got %d", eng.Len())
	}
}

func TestEngine_New_InvalidYAML(t *testing.T) {
	fakeFS := fstest.MapFS{
		"bad.yml": &fstest.MapFile{Data: []byte("title: [unterminated")},
	}
	if _, err := New(fakeFS); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEngine_MatchEvents_Hit(t *testing.T) {
	fakeFS := fstest.MapFS{
		"c2.yml": &fstest.MapFile{
			Data: testRule("c2_connections", "C2 Test", "description", "malware"),
		},
	}
	eng, _ := New(fakeFS)

	events := []map[string]interface{}{
		{"description": "benign logon"},
		{"description": "malware.exe beaconing to 1.2.3.4"},
	}

	matches := eng.MatchEvents(context.Background(), events)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].RuleTitle != "C2 Test" {
		t.Errorf("RuleTitle = %q, want %q", matches[0].RuleTitle, "C2 Test")
	}
	if matches[0].Category != "c2_connections" {
		t.Errorf("Category = %q, want %q", matches[0].Category, "c2_connections")
	}
	if matches[0].EventIndex != 1 {
		t.Errorf("EventIndex = %d, want 1", matches[0].EventIndex)
	}
	if matches[0].Level != "high" {
		t.Errorf("Level = %q, want %q", matches[0].Level, "high")
	}
}

func TestEngine_MatchEvents_Miss(t *testing.T) {
	fakeFS := fstest.MapFS{
		"c2.yml": &fstest.MapFile{
			Data: testRule("c2_connections", "C2 Test", "description", "malware"),
		},
	}
	eng, _ := New(fakeFS)

	matches := eng.MatchEvents(context.Background(), []map[string]interface{}{
		{"description": "chrome.exe"},
	})
	if len(matches) != 0 {
		t.Errorf("expected 0 matches, got %d", len(matches))
	}
}

func TestEngine_Default_BothCategoriesOnOneEvent(t *testing.T) {
	eng, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	if eng.Len() != 2 {
		t.Fatalf("expected 2 built-in rules, got %d", eng.Len())
	}

	matches := eng.MatchEvents(context.Background(), []map[string]interface{}{
		{"description": "powershell invoked user_add for svc_backup"},
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Category != "privilege_escalation" {
		t.Errorf("first category = %q, want privilege_escalation", matches[0].Category)
	}
	if matches[1].Category != "suspicious_process" {
		t.Errorf("second category = %q, want suspicious_process", matches[1].Category)
	}
}

func TestEngine_Default_CancelledContext(t *testing.T) {
	eng, _ := NewDefault()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := eng.MatchEvents(ctx, []map[string]interface{}{{"description": "wmic"}}); len(got) != 0 {
		t.Errorf("expected no matches after cancel, got %d", len(got))
	}
}

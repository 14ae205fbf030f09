package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyulab/siem-analyst/internal/audit"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAsk_JSON(t *testing.T) {
	out, err := execute(t, "", "ask", "--json", "--session", "cli-1", "show", "me", "failed", "logins")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "cli-1", payload["session_id"])
	assert.Equal(t, "search_logs", payload["intent"])
	assert.NotEmpty(t, payload["response"])
}

func TestAsk_TextWithKQL(t *testing.T) {
	out, err := execute(t, "", "ask", "--kql", "show me logs from 203.0.113.45")
	require.NoError(t, err)
	assert.Contains(t, out, "KQL: ")
	assert.Contains(t, out, "203.0.113.45")
	assert.Contains(t, out, "[session ")
}

func TestAsk_InvalidInput(t *testing.T) {
	_, err := execute(t, "", "ask", "<script>alert(1)</script>")
	assert.Error(t, err)
}

func TestAsk_MissingConfig(t *testing.T) {
	_, err := execute(t, "", "ask", "--config", filepath.Join(t.TempDir(), "nope.toml"), "show me logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestChat_Session(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.html")
	input := strings.Join([]string{
		"show me failed logins",
		"",
		"<script>x</script>",
		"/history",
		"/quit",
		"never reached",
	}, "\n")

	out, err := execute(t, input, "chat", "--session", "repl-1", "--transcript", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Session repl-1")
	assert.Contains(t, out, "Cannot process that question")
	assert.Contains(t, out, "[user] show me failed logins")
	assert.NotContains(t, out, "never reached")

	html, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Conversation repl-1")
	assert.Contains(t, string(html), "show me failed logins")
}

func TestChat_ClearAndEOF(t *testing.T) {
	out, err := execute(t, "show me logs\n/clear\n/history\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Session cleared.")
	assert.NotContains(t, out, "[user] show me logs")
}

func TestChat_OpenRequiresTranscript(t *testing.T) {
	_, err := execute(t, "", "chat", "--open")
	assert.Error(t, err)
}

func TestAuditVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	ledger, err := audit.OpenLedger(path, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := ledger.Write(context.Background(), audit.Record{
			Timestamp: time.Now().UTC(),
			SessionID: "s1",
			Query:     "show me logs",
			Outcome:   "ok",
		})
		require.NoError(t, err)
	}
	require.NoError(t, ledger.Close())

	out, err := execute(t, "", "audit", "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3 records, chain intact")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "show me logs", "show me nothing", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = execute(t, "", "audit", "verify", path)
	assert.ErrorIs(t, err, audit.ErrTampered)
}

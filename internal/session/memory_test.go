package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyulab/siem-analyst/internal/model"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ContextIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpdateContext(ctx, "s", map[string]any{"k": "v"}))

	cc, err := s.GetContext(ctx, "s")
	require.NoError(t, err)
	cc.Values["k"] = "mutated"

	again, err := s.GetContext(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Values["k"])
}

func TestMemoryStore_FailedPatchLeavesContext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpdateContext(ctx, "s", map[string]any{KeyLastIntent: model.IntentGenerateReport}))

	err := s.UpdateContext(ctx, "s", map[string]any{"x": 1, KeyLastResultCount: "many"})
	require.Error(t, err)

	cc, err := s.GetContext(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, model.IntentGenerateReport, cc.LastIntent)
	assert.NotContains(t, cc.Values, "x")
}

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.GetContext(ctx, "a")
	_, _ = s.GetContext(ctx, "b")
	_, _ = s.GetContext(ctx, "a")
	assert.Equal(t, 2, s.Len())
}

package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iyulab/siem-analyst/internal/model"
)

func TestResolveTimeRange(t *testing.T) {
	tests := []struct {
		phrase string
		want   time.Duration
	}{
		{"yesterday", 24 * time.Hour},
		{"last 24 hours", 24 * time.Hour},
		{"Last  Week", 7 * 24 * time.Hour},
		{"past week", 7 * 24 * time.Hour},
		{"last month", 30 * 24 * time.Hour},
		{"today", 15*time.Hour + 30*time.Minute},
		{"last hour", time.Hour},
		{"2024-05-01", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			tr := ResolveTimeRange([]model.Entity{{Type: model.EntityTimeRange, Value: tt.phrase}}, fixedNow)
			assert.Equal(t, fixedNow, tr.End)
			assert.Equal(t, tt.want, tr.Duration())
		})
	}
}

func TestResolveTimeRange_AbsentVsUnrecognized(t *testing.T) {
	absent := ResolveTimeRange([]model.Entity{{Type: model.EntityIPAddress, Value: "10.0.0.1"}}, fixedNow)
	assert.Equal(t, 24*time.Hour, absent.Duration())

	unrecognized := ResolveTimeRange([]model.Entity{{Type: model.EntityTimeRange, Value: "a while ago"}}, fixedNow)
	assert.Equal(t, time.Hour, unrecognized.Duration())
}

func TestResolveTimeRange_FirstTimeEntityWins(t *testing.T) {
	tr := ResolveTimeRange([]model.Entity{
		{Type: model.EntityTimeRange, Value: "last month"},
		{Type: model.EntityTimeRange, Value: "yesterday"},
	}, fixedNow)
	assert.Equal(t, 30*24*time.Hour, tr.Duration())
}

package model

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdef", 3, "abc"},
		{"anything", 0, ""},
		{"", 5, ""},
		{"café au lait", 4, "café"},
		{"日本語のログ", 2, "日本"},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "Truncate(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestTruncate_MultiByteAtBoundary(t *testing.T) {
	s := strings.Repeat("a", 49) + "é" + strings.Repeat("b", 20)
	got := Truncate(s, 50)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 49)+"é", got)
}

func TestMergeEntities(t *testing.T) {
	current := []Entity{
		{Type: EntityIPAddress, Value: "10.0.0.5"},
		{Type: EntityUsername, Value: "admin"},
	}
	carried := []Entity{
		{Type: EntityIPAddress, Value: "10.0.0.5"},
		{Type: EntityUsername, Value: "ADMIN"},
		{Type: EntityHostname, Value: "10.0.0.5"},
		{Type: EntityTimeRange, Value: "last week"},
	}

	got := MergeEntities(current, carried)
	assert.Equal(t, []Entity{
		{Type: EntityIPAddress, Value: "10.0.0.5"},
		{Type: EntityUsername, Value: "admin"},
		{Type: EntityHostname, Value: "10.0.0.5"},
		{Type: EntityTimeRange, Value: "last week"},
	}, got)

	// Merging the result again is stable.
	assert.Equal(t, got, MergeEntities(current, got))
	assert.Empty(t, MergeEntities(nil, nil))
}

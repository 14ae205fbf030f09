package model

import "strings"

// Truncate returns at most n runes of s. It never splits a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// MergeEntities appends carried to entities, skipping any carried entity
// whose type and value (case-insensitive) is already present.
func MergeEntities(entities, carried []Entity) []Entity {
	out := make([]Entity, 0, len(entities)+len(carried))
	seen := make(map[string]bool, len(entities)+len(carried))
	for _, list := range [][]Entity{entities, carried} {
		for _, e := range list {
			key := string(e.Type) + "\x00" + strings.ToLower(e.Value)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	return out
}

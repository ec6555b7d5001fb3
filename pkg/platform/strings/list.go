// Package strings holds small list helpers used when reading configuration
// and embedded word lists.
package strings

import (
	"strings"
)

// SplitList splits a separator-delimited value, trims each element and drops
// empties and repeats. Order of first occurrence is kept.
//
//	SplitList(" kafka-1:9092, kafka-2:9092,,kafka-1:9092", ",")
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return uniq(strings.Split(raw, sep), strings.TrimSpace)
}

// Lines returns the non-empty, lowercased, de-duplicated lines of text.
// Lines starting with '#' are comments.
func Lines(text string) []string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "#") {
			continue
		}
		kept = append(kept, l)
	}
	return uniq(kept, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func uniq(values []string, norm func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Package strings provides string list helpers.
package strings

import (
	"strings"
)

// SplitList splits raw on sep, trims each element and drops empties and
// duplicates. Order of first occurrence is preserved.
//
// Example:
//
//	SplitList(" k1:9092, ,k2:9092,k1:9092", ",")
//	// Returns: []string{"k1:9092", "k2:9092"}
func SplitList(raw, sep string) []string {
	return DedupeAndTrim(strings.Split(raw, sep))
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

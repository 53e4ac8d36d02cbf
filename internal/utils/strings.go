// Package utils holds small helpers shared by configuration parsing.
package utils

import "strings"

// ParseList splits a comma-separated string into trimmed, non-empty values.
// Duplicates are dropped, keeping the first occurrence. Returns nil for
// empty or whitespace-only input.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var result []string
	seen := make(map[string]struct{})
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

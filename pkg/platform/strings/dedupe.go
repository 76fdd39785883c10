// Package strings provides string slice helpers.
package strings

import (
	"strings"
)

// Dedupe removes exact duplicates and empty strings from values. The first
// occurrence wins, so order is preserved. Values are compared byte for byte.
//
// Example:
//
//	Dedupe([]string{"a@x.io", "", "A@x.io", "a@x.io"})
//	// Returns: []string{"a@x.io", "A@x.io"}
func Dedupe(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// TrimOptional trims whitespace and reports an empty result as absent.
func TrimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

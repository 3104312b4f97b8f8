package utils

import (
	"slices"
	"strings"
)

func Contains(slice []string, value string) bool {
	return slices.Contains(slice, value)
}

// NormalizeTags lowercases, trims and dedupes tags, keeping first-seen order.
func NormalizeTags(in []string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, p := range in {
		tag := strings.ToLower(strings.TrimSpace(p))
		if tag == "" || seen[tag] {
			continue
		}
		tags = append(tags, tag)
		seen[tag] = true
	}
	return tags
}

// SortedUnique returns a sorted copy of in with duplicates and blanks removed.
func SortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

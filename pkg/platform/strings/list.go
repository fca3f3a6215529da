// Package strings holds helpers for comma separated configuration lists.
package strings

import "strings"

// SplitList splits raw on commas, trims each item and drops blanks and
// repeats. Order of first appearance is kept. It returns nil when nothing
// remains.
func SplitList(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for item := range strings.SplitSeq(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

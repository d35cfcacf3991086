package unique

import (
	"sort"
	"strings"
)

// Strings returns the unique subset of input, preserving first-seen order.
func Strings(input []string) []string {
	var (
		u    = make([]string, 0, len(input))
		seen = map[string]struct{}{}
	)
	for _, val := range input {
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		u = append(u, val)
	}
	return u
}

// StringsSorted is Strings with the result sorted.
func StringsSorted(input []string) []string {
	u := Strings(input)
	sort.Strings(u)
	return u
}

// Extensions normalizes a file-extension allow-list: each entry is
// lowercased and given a leading dot, then the set is deduplicated and
// sorted.  Empty entries are dropped.
func Extensions(input []string) []string {
	normalized := make([]string, 0, len(input))
	for _, ext := range input {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return StringsSorted(normalized)
}

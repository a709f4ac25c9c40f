package layout

import (
	"path/filepath"
	"strings"
)

// SuffixFilter matches file names against a set of extensions, ignoring case.
type SuffixFilter struct {
	suffixes []string
}

// NewSuffixFilter normalizes suffixes to lower case with a leading dot.
// Empty entries are dropped.
func NewSuffixFilter(suffixes ...string) SuffixFilter {
	f := SuffixFilter{}
	seen := make(map[string]bool)
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		if !seen[s] {
			seen[s] = true
			f.suffixes = append(f.suffixes, s)
		}
	}
	return f
}

// Match reports whether name ends with one of the configured suffixes.
func (f SuffixFilter) Match(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range f.suffixes {
		if strings.HasSuffix(lower, s) && len(lower) > len(s) {
			return true
		}
	}
	return false
}

// Suffixes returns the normalized suffix list.
func (f SuffixFilter) Suffixes() []string {
	return append([]string(nil), f.suffixes...)
}

// stem strips the final extension from a file name regardless of its case.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

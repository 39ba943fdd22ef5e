// Package dedupe folds duplicate projects and evidence items collected
// from different sources and passes.
package dedupe

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/infratracker/internal/model"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeTitle lower-cases a title, expands "&" to "and", collapses every
// run of non-alphanumeric characters to one space and trims the result.
// Two titles are duplicates iff their normalized forms are equal.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Set tracks normalized titles already seen.
type Set map[string]struct{}

// NewSet seeds a set with titles.
func NewSet(titles ...string) Set {
	s := make(Set, len(titles))
	for _, t := range titles {
		s.Add(t)
	}
	return s
}

// Add records title and reports whether it was new.
func (s Set) Add(title string) bool {
	key := NormalizeTitle(title)
	if key == "" {
		return false
	}
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Has reports whether an equivalent title was recorded.
func (s Set) Has(title string) bool {
	_, ok := s[NormalizeTitle(title)]
	return ok
}

// MergeCandidates concatenates the given lists in order and drops later
// entries whose normalized title was already seen. Pass connector output
// first so it takes precedence over discovered duplicates.
func MergeCandidates(lists ...[]model.Candidate) []model.Candidate {
	seen := NewSet()
	var merged []model.Candidate
	for _, list := range lists {
		for _, c := range list {
			if !seen.Add(c.Title) {
				continue
			}
			merged = append(merged, c)
		}
	}
	return merged
}

// EvidenceKey is the composite identity of an evidence item within a project.
func EvidenceKey(e model.Evidence) string {
	return strings.Join([]string{
		strings.TrimSpace(e.SourceURL),
		strings.ToLower(strings.TrimSpace(e.Source)),
		strings.ToLower(strings.TrimSpace(e.Title)),
		strings.ToLower(strings.TrimSpace(e.Summary)),
	}, "\x1f")
}

// Evidence drops items whose composite key was already seen; first wins.
func Evidence(items []model.Evidence) []model.Evidence {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.Evidence, 0, len(items))
	for _, e := range items {
		key := EvidenceKey(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

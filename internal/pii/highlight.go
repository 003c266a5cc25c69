package pii

import (
	"regexp"
	"sort"
	"strings"
)

// span is a half-open [start, end) byte range in the original text.
type span struct {
	start, end int
}

// Highlight returns text with every span matched by a category that fired
// in result wrapped in <mark> tags, for side-by-side review against the
// redacted copy. Limiting the markup to result.Types keeps the highlights
// aligned with the scan under review rather than the scanner's full table.
// Overlapping spans from different categories are merged into one tag. The
// text content itself is never altered, only annotated.
func (s *Scanner) Highlight(text string, result Result) string {
	firing := make(map[EntityType]bool, len(result.Types))
	for _, e := range result.Types {
		firing[e] = true
	}

	var spans []span
	for _, p := range s.patterns {
		if !firing[p.entity] {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1]})
		}
	}
	if s.names != nil && firing[EntityName] {
		for _, word := range s.names.FindWords(text) {
			wordRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
			for _, loc := range wordRe.FindAllStringIndex(text, -1) {
				spans = append(spans, span{start: loc[0], end: loc[1]})
			}
		}
	}
	if len(spans) == 0 {
		return text
	}

	merged := mergeSpans(spans)

	var b strings.Builder
	b.Grow(len(text) + len(merged)*len("<mark></mark>"))
	prev := 0
	for _, sp := range merged {
		b.WriteString(text[prev:sp.start])
		b.WriteString("<mark>")
		b.WriteString(text[sp.start:sp.end])
		b.WriteString("</mark>")
		prev = sp.end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// mergeSpans sorts spans by start and coalesces overlapping or adjacent
// ranges into a minimal cover.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := spans[:1]
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}

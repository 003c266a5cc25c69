package pii

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// wordRe extracts candidate name tokens: a capitalised word followed by
// lowercase letters. All-caps tokens (acronyms, placeholder fragments)
// never match, so redacted output cannot re-fire the name category.
var wordRe = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// NameOption is a functional option for configuring a [NameMatcher].
type NameOption func(*NameMatcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched word to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) NameOption {
	return func(m *NameMatcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when a
// word has no phonetic overlap with any known name and matching falls back
// to pure string similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) NameOption {
	return func(m *NameMatcher) {
		m.fuzzyThreshold = threshold
	}
}

// knownName is a known person name with its precomputed Double Metaphone
// codes.
type knownName struct {
	lower string
	codes map[string]struct{}
}

// NameMatcher detects spoken person names in transcript text by matching
// words against a known-name list (clinicians, patients on the current
// worklist). Dictated names are frequently mistranscribed, so matching is
// phonetic: Double Metaphone codes filter candidates and Jaro-Winkler
// similarity ranks them.
//
// A NameMatcher is read-only after construction and safe for concurrent use.
type NameMatcher struct {
	known             []knownName
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewNameMatcher builds a matcher over the given known names. Phonetic codes
// are computed once here, not per scan. Empty entries are dropped.
func NewNameMatcher(names []string, opts ...NameOption) *NameMatcher {
	m := &NameMatcher{
		known:             make([]knownName, 0, len(names)),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, n := range names {
		lower := strings.ToLower(strings.TrimSpace(n))
		if lower == "" {
			continue
		}
		m.known = append(m.known, knownName{
			lower: lower,
			codes: codesForTokens(strings.Fields(lower)),
		})
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FindWords returns the words of text that match a known name, in order of
// first appearance with duplicates removed. Words shorter than three letters
// are skipped: initials and particles produce degenerate phonetic codes.
func (m *NameMatcher) FindWords(text string) []string {
	if len(m.known) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, word := range wordRe.FindAllString(text, -1) {
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true
		if m.matches(word) {
			out = append(out, word)
		}
	}
	return out
}

// matches reports whether word aligns with any known name. Phonetic overlap
// with any code of a name admits the word at the phonetic threshold;
// otherwise pure Jaro-Winkler similarity must clear the stricter fuzzy
// threshold.
func (m *NameMatcher) matches(word string) bool {
	wordLower := strings.ToLower(word)
	wordCodes := codesForTokens([]string{wordLower})

	for _, name := range m.known {
		score := bestJWScore(wordLower, name.lower)
		if codesOverlap(wordCodes, name.codes) {
			if score >= m.phoneticThreshold {
				return true
			}
			continue
		}
		if score >= m.fuzzyThreshold {
			return true
		}
	}
	return false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (words too short or with no consonants) are
// excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between a word
// and a known name: the full name string, and the best per-token score for
// multi-word names ("sarah okafor" matched by the single word "Okafor").
func bestJWScore(word, name string) float64 {
	score := matchr.JaroWinkler(word, name, false)
	for _, token := range strings.Fields(name) {
		if s := matchr.JaroWinkler(word, token, false); s > score {
			score = s
		}
	}
	return score
}

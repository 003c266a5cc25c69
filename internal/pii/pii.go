// Package pii implements the pattern-based PII detection and redaction
// engine for the dictation pipeline.
//
// A [Scanner] applies a fixed, ordered table of categorised regular
// expressions (the UK healthcare set: NHS numbers, postcodes, National
// Insurance numbers, contact details, dates of birth, person names) against
// a transcript and replaces every match with a category-specific placeholder
// token such as [NHS-NUMBER].
//
// Matchers are independent: every pattern is tested against the ORIGINAL
// input, not the partially-redacted working copy, so overlapping spans are
// redacted independently rather than composed and there is no longest-match
// arbitration. This is a known, accepted limitation — consumers depend on
// category-specific placeholders even for overlapping spans, so do not
// introduce overlap resolution here.
//
// Scan is deterministic, side-effect-free, and idempotent on its own
// output: no placeholder token can re-trigger any pattern.
package pii

import (
	"regexp"
	"strings"
)

// EntityType is a detected PII category.
type EntityType string

// The UK healthcare pattern set, in detection order.
const (
	EntityNHSNumber EntityType = "nhs-number"
	EntityPostcode  EntityType = "postcode"
	EntityNINumber  EntityType = "ni-number"
	EntityEmail     EntityType = "email"
	EntityPhone     EntityType = "phone"
	EntityDOB       EntityType = "dob"
	EntityName      EntityType = "name"
	EntityDOBPhrase EntityType = "dob-phrase"
)

// Result is the outcome of one [Scanner.Scan] call. Results are never
// mutated in place — a new Result replaces the old on every scan.
type Result struct {
	// Detected reports whether any category fired. Invariant:
	// Detected == (len(Types) > 0).
	Detected bool

	// Types lists the firing categories in pattern-table order,
	// duplicates removed (first-seen wins).
	Types []EntityType

	// OriginalText is the input exactly as scanned.
	OriginalText string

	// RedactedText is OriginalText with every match of every firing
	// pattern replaced by that category's placeholder token.
	RedactedText string
}

// pattern pairs a compiled matcher with its category and placeholder token.
type pattern struct {
	entity      EntityType
	re          *regexp.Regexp
	placeholder string
}

// Option is a functional option for configuring a [Scanner].
type Option func(*Scanner)

// WithKnownNames enables phonetic person-name detection against the given
// list of known names (clinicians, patients on the current worklist).
// Matched words fire the [EntityName] category alongside the title-based
// regex.
func WithKnownNames(names []string, opts ...NameOption) Option {
	return func(s *Scanner) {
		s.names = NewNameMatcher(names, opts...)
	}
}

// WithExtraPattern appends a custom category to the end of the pattern
// table. expr must be a valid regular expression; the placeholder should
// follow the [UPPER-KEBAB] token convention so redacted output cannot
// re-trigger any pattern.
func WithExtraPattern(entity EntityType, expr, placeholder string) Option {
	return func(s *Scanner) {
		s.patterns = append(s.patterns, pattern{
			entity:      entity,
			re:          regexp.MustCompile(expr),
			placeholder: placeholder,
		})
	}
}

// Scanner is the PII detection engine. It is read-only after construction
// and safe for concurrent use.
type Scanner struct {
	patterns []pattern
	names    *NameMatcher
}

// NewScanner creates a Scanner with the built-in UK pattern table and any
// supplied options applied.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		patterns: defaultPatterns(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan classifies and redacts text. It is deterministic and performs no I/O.
//
// Each pattern in the table is tested against the original text; each firing
// pattern then replaces all of its matches in a working copy. Because
// detection runs on the original, a span already redacted by an earlier
// category can still fire a later one (see the package comment).
func (s *Scanner) Scan(text string) Result {
	res := Result{
		OriginalText: text,
		RedactedText: text,
	}

	seen := make(map[EntityType]bool, len(s.patterns))
	fire := func(e EntityType) {
		if !seen[e] {
			seen[e] = true
			res.Types = append(res.Types, e)
		}
	}

	for _, p := range s.patterns {
		if !p.re.MatchString(text) {
			continue
		}
		fire(p.entity)
		res.RedactedText = p.re.ReplaceAllString(res.RedactedText, p.placeholder)
	}

	if s.names != nil {
		for _, word := range s.names.FindWords(text) {
			fire(EntityName)
			wordRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
			res.RedactedText = wordRe.ReplaceAllString(res.RedactedText, placeholderName)
		}
	}

	res.Detected = len(res.Types) > 0
	return res
}

// placeholderName is the token substituted for person names, shared by the
// title-based pattern and the phonetic matcher.
const placeholderName = "[NAME]"

// Categories returns the entity types in the scanner's table order.
// Exposed so the UI layer can render a legend without inspecting the
// pattern table itself.
func (s *Scanner) Categories() []EntityType {
	out := make([]EntityType, 0, len(s.patterns))
	seen := make(map[EntityType]bool, len(s.patterns))
	for _, p := range s.patterns {
		if !seen[p.entity] {
			seen[p.entity] = true
			out = append(out, p.entity)
		}
	}
	return out
}

// TypesFromStrings normalises a server-supplied entity list into
// EntityTypes, dropping empties. Unknown categories are preserved as-is:
// the server's taxonomy is authoritative over the local table.
func TypesFromStrings(raw []string) []EntityType {
	out := make([]EntityType, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, EntityType(r))
	}
	return out
}

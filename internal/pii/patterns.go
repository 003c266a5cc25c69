package pii

import "regexp"

// defaultPatterns returns the built-in UK healthcare pattern table.
// Order is significant: Types reports firing categories in this order, and
// redaction applies replacements in this order. Append new categories at
// the end rather than reordering.
//
// Placeholder tokens deliberately contain no digits, no "@", and no
// lowercase letters, so redacted output can never re-trigger a pattern.
func defaultPatterns() []pattern {
	return []pattern{
		{
			// 10-digit NHS numbers, plain or 3-3-4 grouped.
			entity:      EntityNHSNumber,
			re:          regexp.MustCompile(`\b\d{3}[ -]?\d{3}[ -]?\d{4}\b`),
			placeholder: "[NHS-NUMBER]",
		},
		{
			entity:      EntityPostcode,
			re:          regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?\s?\d[A-Z]{2}\b`),
			placeholder: "[POSTCODE]",
		},
		{
			entity:      EntityNINumber,
			re:          regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`),
			placeholder: "[NI-NUMBER]",
		},
		{
			entity:      EntityEmail,
			re:          regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			placeholder: "[EMAIL]",
		},
		{
			// Landline (020x style) and +44 forms, plus 5-6 grouped mobiles.
			// Not exhaustive for every UK numbering plan variant.
			entity:      EntityPhone,
			re:          regexp.MustCompile(`(?:\+44[ -]?\d{3,4}|\(?\b0\d{3}\)?)[ -]?\d{3}[ -]?\d{3,4}\b|\b0\d{4}[ -]?\d{6}\b`),
			placeholder: "[PHONE]",
		},
		{
			entity:      EntityDOB,
			re:          regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`),
			placeholder: "[DOB]",
		},
		{
			// Title-prefixed names ("Dr Okafor", "Mrs Price-Hughes").
			entity:      EntityName,
			re:          regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Master|Dr|Prof)\.?\s+[A-Z][a-z]+(?:[-'][A-Z][a-z]+)?(?:\s+[A-Z][a-z]+(?:[-'][A-Z][a-z]+)?)?`),
			placeholder: placeholderName,
		},
		{
			// Spoken date-of-birth phrases ("date of birth 12th of April 1986").
			entity:      EntityDOBPhrase,
			re:          regexp.MustCompile(`(?i)\b(?:date of birth|born on|d\.?o\.?b\.?)(?:\s+(?:is|was))?\s*:?\s*\d{1,2}(?:st|nd|rd|th)?(?:[ /\-.][0-9a-z]+){0,3}`),
			placeholder: "[DOB-PHRASE]",
		},
	}
}

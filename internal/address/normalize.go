// Package address normalizes free-form postal addresses and infers missing
// country context from them.
package address

import "regexp"

var (
	lineBreaksRe = regexp.MustCompile(`[\r\n]+`)
	spaceRunRe   = regexp.MustCompile(`\s{2,}`)

	// Quotes, whitespace and the separators left behind by leading or trailing
	// line breaks are stripped together, so `" 'x' "` and `'x'` normalize to the
	// same key in a single pass.
	edgeRe = regexp.MustCompile(`^[\s"',]+|[\s"',]+$`)
)

// Normalize returns the canonical single-line form of raw: line breaks become
// ", ", whitespace runs collapse to one space, and surrounding quotes,
// whitespace and dangling separators are removed. It is pure and idempotent.
// Blank input yields "".
func Normalize(raw string) string {
	s := lineBreaksRe.ReplaceAllString(raw, ", ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return edgeRe.ReplaceAllString(s, "")
}

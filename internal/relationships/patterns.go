package relationships

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/videograph/internal/domain"
)

// namePattern matches a concept name in normalized text: word boundaries on
// both sides, optional possessive suffix.
func namePattern(name string) string {
	return `\b` + regexp.QuoteMeta(strings.ToLower(name)) + `(?:'?s)?\b`
}

// gap is the permitted filler between a name and its cue. It never crosses a
// sentence boundary.
const gap = `[^.?!]{0,30}?`

// intraPatterns maps each intra-group type to its regex templates. Each
// template takes two operands: %[1]s is the source name pattern, %[2]s the
// target. Types are tried in domain.IntraGroupTypes order and the first
// template match wins.
var intraPatterns = map[domain.RelationshipType][]string{
	domain.RelDefines: {
		`%[1]s` + gap + `\bdefines\b` + gap + `%[2]s`,
		`%[2]s` + gap + `\b(?:is|are) defined (?:as|by)\b` + gap + `%[1]s`,
		`%[1]s` + gap + `\b(?:is|are) (?:a|an|the) (?:definition|formalization) of\b` + gap + `%[2]s`,
	},
	domain.RelCauses: {
		`%[1]s` + gap + `\b(?:causes|leads to|results in|produces)\b` + gap + `%[2]s`,
		`%[2]s` + gap + `\b(?:is|are) caused by\b` + gap + `%[1]s`,
	},
	domain.RelRequires: {
		`%[1]s` + gap + `\b(?:requires|needs|depends on)\b` + gap + `%[2]s`,
		`%[2]s` + gap + `\b(?:is|are) (?:required|needed) (?:by|for)\b` + gap + `%[1]s`,
	},
	domain.RelContradicts: {
		`%[1]s` + gap + `\b(?:contradicts|conflicts with|is at odds with)\b` + gap + `%[2]s`,
		`\bunlike\b` + gap + `%[2]s` + gap + `%[1]s`,
	},
	domain.RelExemplifies: {
		`%[1]s` + gap + `\b(?:is|are) (?:an example|examples|an instance|instances) of\b` + gap + `%[2]s`,
		`%[2]s` + gap + `\bsuch as\b` + gap + `%[1]s`,
		`%[2]s` + gap + `\b(?:like|for example)\b` + gap + `%[1]s`,
	},
	domain.RelImplements: {
		`%[1]s` + gap + `\bimplements\b` + gap + `%[2]s`,
		`%[1]s` + gap + `\b(?:is|are) (?:an implementation|implementations) of\b` + gap + `%[2]s`,
	},
	domain.RelUses: {
		`%[1]s` + gap + `\b(?:uses|utilizes|employs|relies on|applies|is based on)\b` + gap + `%[2]s`,
		`%[2]s` + gap + `\b(?:is|are) used (?:by|in)\b` + gap + `%[1]s`,
	},
}

// interCues maps each inter-group type to the back-reference phrases a
// speaker uses when returning to earlier material. Types are tried in
// domain.InterGroupTypes order.
var interCues = map[domain.RelationshipType][]string{
	domain.RelBuildsOn: {
		"building on", "as i mentioned", "as we discussed", "as we saw",
		"going back to", "coming back to",
	},
	domain.RelElaborates: {
		"to elaborate", "in more detail", "let me expand", "digging deeper into",
	},
	domain.RelReferences: {
		"as i said", "as mentioned earlier", "we talked about", "remember",
	},
	domain.RelRefines: {
		"to refine", "to be more precise", "more precisely", "to clarify",
	},
}

// snippet returns text around [start, end) padded by pad bytes on each side,
// clamped to the text bounds. The padded cuts are widened outward to the
// nearest rune boundary so multi-byte characters stay intact.
func snippet(text string, start, end, pad int) string {
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := end + pad
	if hi > len(text) {
		hi = len(text)
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

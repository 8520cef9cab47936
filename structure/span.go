// CLAUDE:SUMMARY Span values emitted by the structure detectors and their Markdown replacements.
// Package structure infers Markdown structure (headings, lists, tables, code
// fences) in plain text such as OCR output, and rewrites the text by applying
// the detected spans from right to left over the untouched source.
package structure

import "strings"

// Kind is the structural role of a Span.
type Kind string

const (
	KindHeading      Kind = "heading"
	KindBulletList   Kind = "bullet_list"
	KindNumberedList Kind = "numbered_list"
	KindTable        Kind = "table"
	KindCodeBlock    Kind = "code_block"
)

// priority decides which span survives when detectors disagree about a region.
func (k Kind) priority() int {
	switch k {
	case KindCodeBlock:
		return 4
	case KindTable:
		return 3
	case KindBulletList, KindNumberedList:
		return 2
	default:
		return 1
	}
}

// Span is a detected region [Start, End) of the parsed string, in bytes.
type Span struct {
	Kind   Kind
	Start  int
	End    int
	Level  int        // heading level 1-6, or list nesting level
	Text   string     // heading or list item text, code block body
	Number string     // numbered list item marker, e.g. "3"
	Rows   [][]string // table rows, header first
	Lang   string     // code fence language tag
	Raw    string     // source text covered by the span
}

// Overlaps reports whether s and o share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Markdown returns the replacement text for the span.
func (s Span) Markdown() string {
	switch s.Kind {
	case KindHeading:
		return strings.Repeat("#", clampLevel(s.Level)) + " " + s.Text
	case KindBulletList:
		return listIndent(s.Level) + "- " + s.Text
	case KindNumberedList:
		return listIndent(s.Level) + s.Number + ". " + s.Text
	case KindTable:
		return Table(s.Rows)
	default:
		return s.Raw
	}
}

func listIndent(level int) string {
	if level <= 1 {
		return ""
	}
	return strings.Repeat("  ", level-1)
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

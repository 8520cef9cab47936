package structure

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// tableGap is the largest distance, in bytes, between the end of one
	// table row and the start of the next for both to join the same table.
	tableGap = 5
	// Upper-case lines shorter than these become level 1 / level 2 headings.
	upperH1Len = 50
	upperH2Len = 100
)

var (
	headingRe  = regexp.MustCompile(`^(#+)\s+(.+)$`)
	bulletRe   = regexp.MustCompile(`^([ \t]*)([-*+•])[ \t]+(.+)$`)
	numberedRe = regexp.MustCompile(`^([ \t]*)(\d+)[.)][ \t]+(.+)$`)
)

// Structure is the output of Parse, one slice per detector.
type Structure struct {
	Headings   []Span
	Lists      []Span
	Tables     []Span
	CodeBlocks []Span
}

// All returns every detected span ordered by start offset.
func (s *Structure) All() []Span {
	out := make([]Span, 0, len(s.Headings)+len(s.Lists)+len(s.Tables)+len(s.CodeBlocks))
	out = append(out, s.CodeBlocks...)
	out = append(out, s.Tables...)
	out = append(out, s.Lists...)
	out = append(out, s.Headings...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

type line struct {
	text       string
	start, end int // end excludes the newline
	inCode     bool
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			lines = append(lines, line{text: text[start:], start: start, end: len(text)})
			break
		}
		lines = append(lines, line{text: text[start : start+end], start: start, end: start + end})
		start += end + 1
	}
	return lines
}

// Parse runs every detector over text. Lines inside a fenced code block are
// invisible to the other detectors.
func Parse(text string) *Structure {
	lines := splitLines(text)
	s := &Structure{}
	s.CodeBlocks = detectCodeBlocks(text, lines)
	s.Headings = detectHeadings(lines)
	s.Lists = detectLists(lines)
	s.Tables = detectTables(text, lines)
	return s
}

// DetectHeadings returns the heading spans of text.
func DetectHeadings(text string) []Span { return Parse(text).Headings }

// DetectLists returns the list item spans of text.
func DetectLists(text string) []Span { return Parse(text).Lists }

// DetectTables returns the table spans of text.
func DetectTables(text string) []Span { return Parse(text).Tables }

// DetectCodeBlocks returns the fenced code block spans of text.
func DetectCodeBlocks(text string) []Span { return Parse(text).CodeBlocks }

func detectCodeBlocks(text string, lines []line) []Span {
	var spans []Span
	for i := 0; i < len(lines); i++ {
		open := strings.TrimSpace(lines[i].text)
		if !strings.HasPrefix(open, "```") {
			continue
		}
		closeAt := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j].text) == "```" {
				closeAt = j
				break
			}
		}
		if closeAt < 0 {
			break
		}
		first, last := lines[i], lines[closeAt]
		var code string
		if closeAt > i+1 {
			code = text[lines[i+1].start:lines[closeAt-1].end]
		}
		spans = append(spans, Span{
			Kind:  KindCodeBlock,
			Start: first.start,
			End:   last.end,
			Lang:  strings.TrimSpace(strings.TrimPrefix(open, "```")),
			Text:  code,
			Raw:   text[first.start:last.end],
		})
		for k := i; k <= closeAt; k++ {
			lines[k].inCode = true
		}
		i = closeAt
	}
	return spans
}

// detectHeadings prefers explicit '#' headings. Only when the text has none
// are upper-case lines and setext underlines considered.
func detectHeadings(lines []line) []Span {
	var spans []Span
	for _, l := range lines {
		if l.inCode {
			continue
		}
		m := headingRe.FindStringSubmatch(l.text)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}
		spans = append(spans, Span{
			Kind:  KindHeading,
			Start: l.start,
			End:   l.end,
			Level: clampLevel(len(m[1])),
			Text:  text,
			Raw:   l.text,
		})
	}
	if len(spans) > 0 {
		return spans
	}

	for i := 0; i < len(lines); i++ {
		l := lines[i]
		trimmed := strings.TrimSpace(l.text)
		if l.inCode || trimmed == "" {
			continue
		}
		if i+1 < len(lines) && !lines[i+1].inCode && !isListLine(l.text) {
			if level := underlineLevel(lines[i+1].text); level > 0 {
				next := lines[i+1]
				spans = append(spans, Span{
					Kind:  KindHeading,
					Start: l.start,
					End:   next.end,
					Level: level,
					Text:  trimmed,
					Raw:   l.text + "\n" + next.text,
				})
				i++
				continue
			}
		}
		n := utf8.RuneCountInString(trimmed)
		if n < upperH2Len && isUpperLine(trimmed) {
			level := 2
			if n < upperH1Len {
				level = 1
			}
			spans = append(spans, Span{
				Kind:  KindHeading,
				Start: l.start,
				End:   l.end,
				Level: level,
				Text:  trimmed,
				Raw:   l.text,
			})
		}
	}
	return spans
}

// underlineLevel returns 1 for a line of '=' and 2 for a line of '-'.
func underlineLevel(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0
	}
	switch {
	case strings.Trim(s, "=") == "":
		return 1
	case strings.Trim(s, "-") == "":
		return 2
	}
	return 0
}

// isUpperLine reports whether s has at least one cased letter and no
// lower-case letter.
func isUpperLine(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func isListLine(s string) bool {
	return bulletRe.MatchString(s) || numberedRe.MatchString(s)
}

func indentWidth(s string) int {
	w := 0
	for _, r := range s {
		if r == '\t' {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func detectLists(lines []line) []Span {
	var spans []Span
	for _, l := range lines {
		if l.inCode {
			continue
		}
		if m := bulletRe.FindStringSubmatch(l.text); m != nil {
			spans = append(spans, Span{
				Kind:  KindBulletList,
				Start: l.start,
				End:   l.end,
				Level: indentWidth(m[1])/2 + 1,
				Text:  strings.TrimSpace(m[3]),
				Raw:   l.text,
			})
			continue
		}
		if m := numberedRe.FindStringSubmatch(l.text); m != nil {
			spans = append(spans, Span{
				Kind:   KindNumberedList,
				Start:  l.start,
				End:    l.end,
				Level:  indentWidth(m[1])/2 + 1,
				Number: m[2],
				Text:   strings.TrimSpace(m[3]),
				Raw:    l.text,
			})
		}
	}
	return spans
}

// detectTables groups pipe-delimited rows that sit close to each other.
// A line of text between two rows ends the group. A group needs a header
// and at least one data row, so a lone pipe row stays text; separator rows already
// present in the text are absorbed without becoming data.
func detectTables(text string, lines []line) []Span {
	var spans []Span
	var rows [][]string
	start, end := -1, -1

	flush := func() {
		if len(rows) >= 2 {
			spans = append(spans, Span{
				Kind:  KindTable,
				Start: start,
				End:   end,
				Rows:  rows,
				Raw:   text[start:end],
			})
		}
		rows, start, end = nil, -1, -1
	}

	for _, l := range lines {
		var cells []string
		if !l.inCode && strings.Contains(l.text, "|") && !strings.HasPrefix(strings.TrimSpace(l.text), "#") {
			cells = splitRow(l.text)
		}
		if len(cells) < 2 {
			// only blank lines may sit between the rows of one table
			if start >= 0 && strings.TrimSpace(l.text) != "" {
				flush()
			}
			continue
		}
		if start >= 0 && l.start-end >= tableGap {
			flush()
		}
		if start < 0 {
			start = l.start
		}
		end = l.end
		if !isSeparatorRow(cells) {
			rows = append(rows, cells)
		}
	}
	if start >= 0 {
		flush()
	}
	return spans
}

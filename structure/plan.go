package structure

import (
	"sort"
	"strings"
)

// Plan turns the detected spans into a replacement plan sorted by
// descending start offset. When spans from different detectors overlap,
// the one with the higher priority (code, table, list, heading) is kept.
func (s *Structure) Plan() []Span {
	candidates := s.All()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Kind.priority() > candidates[j].Kind.priority()
	})

	var plan []Span
	for _, c := range candidates {
		clash := false
		for _, p := range plan {
			if c.Overlaps(p) {
				clash = true
				break
			}
		}
		if !clash {
			plan = append(plan, c)
		}
	}
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Start > plan[j].Start })
	return plan
}

// Apply rewrites text by replacing every planned span with its Markdown.
// Spans are applied from the end of the string backwards in one pass over
// the original text, so earlier offsets never shift. Spans that overlap an
// already applied one or fall outside text are ignored.
func Apply(text string, plan []Span) string {
	ordered := append([]Span(nil), plan...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	parts := make([]string, 0, 2*len(ordered)+1)
	cursor := len(text)
	for _, s := range ordered {
		if s.Start < 0 || s.Start > s.End || s.End > cursor {
			continue
		}
		parts = append(parts, text[s.End:cursor], s.Markdown())
		cursor = s.Start
	}
	parts = append(parts, text[:cursor])

	var b strings.Builder
	b.Grow(len(text))
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	return b.String()
}

// Format parses text and returns it with the inferred structure applied.
func Format(text string) string {
	return Apply(text, Parse(text).Plan())
}

package mdrender

import (
	"regexp"
	"strings"
)

var (
	headingLineRe = regexp.MustCompile(`^#{1,6}\s`)
	blankRunRe    = regexp.MustCompile(`\n{4,}`)
)

// PostProcess normalizes spacing: fenced code blocks get a blank line
// around them and headings one before, runs of four or more newlines shrink to one blank
// line and the result is trimmed. Fence contents are not inspected for
// headings.
func PostProcess(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))

	ensureBlank := func() {
		if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
	}

	inFence, afterFence := false, false
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		fence := strings.HasPrefix(trimmed, "```")
		switch {
		case fence && !inFence:
			ensureBlank()
			out = append(out, l)
			inFence = true
			continue
		case fence && inFence:
			out = append(out, l)
			inFence, afterFence = false, true
			continue
		case inFence:
			out = append(out, l)
			continue
		}
		if afterFence {
			if trimmed != "" {
				out = append(out, "")
			}
			afterFence = false
		}
		if headingLineRe.MatchString(l) {
			ensureBlank()
		}
		out = append(out, l)
	}

	text := blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// CLAUDE:SUMMARY Whitespace/control-character normalization for extracted text and confidence filtering for OCR output.
// CLAUDE:EXPORTS Clean, CleanOCR, CleanOCRLines, CleanDocument, DefaultThreshold
package textclean

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// DefaultThreshold is the minimum OCR confidence kept by CleanOCR.
const DefaultThreshold = 0.7

var (
	// C0 and C1 control characters except \t (0x09) and \n (0x0A).
	controlRe = regexp.MustCompile(`[\x{00}-\x{08}\x{0B}-\x{1F}\x{7F}-\x{9F}]`)
	// Two or more whitespace characters that are not newlines.
	spaceRunRe = regexp.MustCompile(`[\t\p{Z}]{2,}`)
	newlineRe  = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes text: control characters are removed (tabs and newlines
// survive), horizontal whitespace runs become one space, more than one blank
// line becomes exactly one, and the result is trimmed.
// Clean(Clean(s)) == Clean(s) for every s.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = controlRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CleanOCR keeps the details whose confidence reaches threshold, joins their
// text with single spaces and cleans the result.
func CleanOCR(details []docmodel.OCRDetail, threshold float64) string {
	return Clean(strings.Join(confident(details, threshold), " "))
}

// CleanOCRLines is CleanOCR with one detail per line.
func CleanOCRLines(details []docmodel.OCRDetail, threshold float64) string {
	return Clean(strings.Join(confident(details, threshold), "\n"))
}

func confident(details []docmodel.OCRDetail, threshold float64) []string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		if d.Confidence < threshold {
			continue
		}
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

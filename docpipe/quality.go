// CLAUDE:SUMMARY PDF extraction quality scoring. Flags scanned pages that only OCR can read.
// CLAUDE:EXPORTS computeQuality, computePrintableRatio, computeWordlikeRatio, countVisualRefs
package docpipe

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hazyhaar/mdconv/docmodel"
)

func computeQuality(pageCount int, text string, hasImages bool) *docmodel.Quality {
	var charsPerPage float64
	if pageCount > 0 {
		charsPerPage = float64(len([]rune(text))) / float64(pageCount)
	}
	return &docmodel.Quality{
		PageCount:       pageCount,
		CharsPerPage:    charsPerPage,
		PrintableRatio:  computePrintableRatio(text),
		WordlikeRatio:   computeWordlikeRatio(text),
		HasImageStreams: hasImages,
		VisualRefCount:  countVisualRefs(text),
	}
}

// computePrintableRatio returns the share of runes that are not garbage.
// Empty text scores 1 so that image-only PDFs are flagged by chars per page.
func computePrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if !isGarbage(r) {
			printable++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(printable) / float64(total)
}

// isGarbage flags private-use runes (CID fonts without ToUnicode), the
// replacement character and non-whitespace control characters.
func isGarbage(r rune) bool {
	if r >= 0xE000 && r <= 0xF8FF || r == unicode.ReplacementChar {
		return true
	}
	if r == '\n' || r == '\r' || r == '\t' {
		return false
	}
	return !unicode.IsPrint(r)
}

// computeWordlikeRatio returns the ratio of word-like tokens (length 2-15) to total tokens.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(see|refer\s+to|cf\.?)\s+(the\s+)?(figure|fig\.?|table|image|illustration|graph|diagram)\s*\d`),
	regexp.MustCompile(`(?i)(figure|fig\.?|table)\s+\d+`),
}

// countVisualRefs counts references to figures, tables, and diagrams in text.
func countVisualRefs(text string) int {
	count := 0
	for _, pat := range visualRefPatterns {
		count += len(pat.FindAllString(text, -1))
	}
	return count
}

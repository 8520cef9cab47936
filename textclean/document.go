package textclean

import (
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// CleanDocument is the cleaning stage of the conversion pipeline. It replaces
// the block and image slices of doc with cleaned copies (the extractor's
// slices are left untouched), drops blocks that clean to nothing and rebuilds
// the whole-document OCR text from the confident details of every image.
func CleanDocument(doc *docmodel.Document, threshold float64) {
	blocks := make([]docmodel.TextBlock, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		if b.Kind == docmodel.BlockTable {
			b.TableRows = cleanRows(b.TableRows)
			if len(b.TableRows) == 0 {
				continue
			}
			b.Content = tableText(b.TableRows)
		} else {
			b.Content = Clean(b.Content)
			if b.Content == "" {
				continue
			}
		}
		b.Index = len(blocks)
		blocks = append(blocks, b)
	}
	doc.Blocks = blocks

	images := make([]docmodel.ImageRef, len(doc.Images))
	var full []string
	for i, im := range doc.Images {
		if len(im.OCRDetails) > 0 {
			im.OCRDetails = append([]docmodel.OCRDetail(nil), im.OCRDetails...)
			im.OCRText = CleanOCR(im.OCRDetails, threshold)
			if lines := CleanOCRLines(im.OCRDetails, threshold); lines != "" {
				full = append(full, lines)
			}
		} else {
			im.OCRText = Clean(im.OCRText)
		}
		images[i] = im
	}
	doc.Images = images

	if len(full) > 0 {
		doc.OCRFullText = strings.Join(full, "\n\n")
	} else {
		doc.OCRFullText = Clean(doc.OCRFullText)
	}
}

func cleanRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, len(r))
		empty := true
		for i, cell := range r {
			row[i] = Clean(cell)
			if row[i] != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}

func tableText(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = strings.Join(r, "\t")
	}
	return strings.Join(lines, "\n")
}

package docmodel

// SourceShape tells the merger how text and OCR output relate for a document.
// It is decided once, from the extracted blocks, and carried on the Document.
type SourceShape string

const (
	// ShapeParagraph: styled paragraphs and tables without page positions.
	ShapeParagraph SourceShape = "paragraph_structured"
	// ShapePage: every block is tied to a page.
	ShapePage SourceShape = "page_structured"
	// ShapeFreeText: blocks without style or page information.
	ShapeFreeText SourceShape = "free_text"
	// ShapeNoText: nothing was extracted; OCR is the only possible text.
	ShapeNoText SourceShape = "no_text"
)

// ClassifyShape derives the shape of a document from its extracted blocks.
func ClassifyShape(blocks []TextBlock) SourceShape {
	if len(blocks) == 0 {
		return ShapeNoText
	}
	paged, styled := true, false
	for _, b := range blocks {
		if b.Page <= 0 {
			paged = false
		}
		if b.Style != "" || b.Kind == BlockTable {
			styled = true
		}
	}
	switch {
	case paged:
		return ShapePage
	case styled:
		return ShapeParagraph
	default:
		return ShapeFreeText
	}
}

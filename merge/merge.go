// Package merge combines extracted text blocks and OCR output into the single
// ordered stream the Markdown renderer walks.
package merge

import (
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// Merge builds the merged stream for doc. Exactly one strategy runs, picked
// by doc.Shape. OCR text is only ever added next to document text, never in
// place of it.
func Merge(doc *docmodel.Document) []docmodel.MergedItem {
	switch doc.Shape {
	case docmodel.ShapeParagraph:
		return paragraphs(doc)
	case docmodel.ShapePage:
		return pages(doc)
	case docmodel.ShapeNoText:
		if strings.TrimSpace(doc.OCRFullText) != "" {
			return []docmodel.MergedItem{{Kind: docmodel.ItemOCRText, Content: doc.OCRFullText}}
		}
		return nil
	default:
		return blockItems(doc.Blocks)
	}
}

// paragraphs keeps every block in order and appends one image_ocr item per
// image that has OCR text, in image order.
func paragraphs(doc *docmodel.Document) []docmodel.MergedItem {
	items := blockItems(doc.Blocks)
	for _, im := range doc.Images {
		if strings.TrimSpace(im.OCRText) == "" {
			continue
		}
		items = append(items, docmodel.MergedItem{
			Kind:    docmodel.ItemImageOCR,
			Content: im.OCRText,
			ImageID: im.ID,
		})
	}
	return items
}

// pages attaches the OCR text of the images found on a block's page to the
// block itself.
func pages(doc *docmodel.Document) []docmodel.MergedItem {
	byPage := make(map[int][]docmodel.ImageRef)
	for _, im := range doc.Images {
		if im.HasPage() && strings.TrimSpace(im.OCRText) != "" {
			byPage[im.Page] = append(byPage[im.Page], im)
		}
	}

	items := make([]docmodel.MergedItem, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		it := blockItem(b)
		if imgs := byPage[b.Page]; len(imgs) > 0 {
			texts := make([]string, len(imgs))
			ids := make([]string, len(imgs))
			for i, im := range imgs {
				texts[i] = im.OCRText
				ids[i] = im.ID
			}
			it.OCRText = strings.Join(texts, "\n\n")
			it.ImageIDs = ids
		}
		items = append(items, it)
	}
	return items
}

func blockItems(blocks []docmodel.TextBlock) []docmodel.MergedItem {
	items := make([]docmodel.MergedItem, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, blockItem(b))
	}
	return items
}

func blockItem(b docmodel.TextBlock) docmodel.MergedItem {
	if b.Kind == docmodel.BlockTable {
		rows := make([][]string, len(b.TableRows))
		for i, r := range b.TableRows {
			rows[i] = append([]string(nil), r...)
		}
		return docmodel.MergedItem{Kind: docmodel.ItemTable, Rows: rows, Page: b.Page}
	}
	return docmodel.MergedItem{
		Kind:    docmodel.ItemParagraph,
		Content: b.Content,
		Style:   b.Style,
		Page:    b.Page,
	}
}

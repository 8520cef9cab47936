package merge

import (
	"testing"

	"github.com/hazyhaar/mdconv/docmodel"
)

func TestParagraphStructured(t *testing.T) {
	doc := &docmodel.Document{
		Shape: docmodel.ShapeParagraph,
		Blocks: []docmodel.TextBlock{
			{Index: 0, Content: "Intro", Kind: docmodel.BlockParagraph, Style: "Heading 1"},
			{Index: 1, Content: "Body", Kind: docmodel.BlockParagraph, Style: "Normal"},
			{Index: 2, Kind: docmodel.BlockTable, TableRows: [][]string{{"A", "B"}, {"1", "2"}}},
		},
		Images: []docmodel.ImageRef{
			{ID: "i1", OCRText: "first"},
			{ID: "i2"},
			{ID: "i3", OCRText: "third"},
		},
	}

	items := Merge(doc)
	// 3 blocks + 2 images with OCR text.
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	wantKinds := []docmodel.ItemKind{
		docmodel.ItemParagraph, docmodel.ItemParagraph, docmodel.ItemTable,
		docmodel.ItemImageOCR, docmodel.ItemImageOCR,
	}
	for i, k := range wantKinds {
		if items[i].Kind != k {
			t.Errorf("item %d kind = %s, want %s", i, items[i].Kind, k)
		}
	}
	if items[3].ImageID != "i1" || items[4].ImageID != "i3" {
		t.Errorf("image order lost: %s, %s", items[3].ImageID, items[4].ImageID)
	}
	if items[0].Style != "Heading 1" {
		t.Errorf("style lost: %q", items[0].Style)
	}
	items[2].Rows[0][0] = "changed"
	if doc.Blocks[2].TableRows[0][0] != "A" {
		t.Error("merged table shares rows with the block")
	}
}

func TestPageStructured(t *testing.T) {
	doc := &docmodel.Document{
		Shape: docmodel.ShapePage,
		Blocks: []docmodel.TextBlock{
			{Index: 0, Content: "page one", Page: 1},
			{Index: 1, Content: "page two", Page: 2},
		},
		Images: []docmodel.ImageRef{
			{ID: "a", Page: 2, OCRText: "scan A"},
			{ID: "b", Page: 2, OCRText: "scan B"},
			{ID: "c", Page: 1},
			{ID: "d", OCRText: "no page"},
		},
	}

	items := Merge(doc)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].OCRText != "" || len(items[0].ImageIDs) != 0 {
		t.Errorf("page 1 should carry no OCR text: %+v", items[0])
	}
	if items[1].OCRText != "scan A\n\nscan B" {
		t.Errorf("page 2 ocr text = %q", items[1].OCRText)
	}
	if len(items[1].ImageIDs) != 2 || items[1].ImageIDs[0] != "a" {
		t.Errorf("page 2 image ids = %v", items[1].ImageIDs)
	}
	if items[1].Content != "page two" {
		t.Errorf("document text displaced: %q", items[1].Content)
	}
}

func TestNoTextUsesFullOCR(t *testing.T) {
	doc := &docmodel.Document{
		Shape:       docmodel.ShapeNoText,
		OCRFullText: "SCANNED\nline",
		Images:      []docmodel.ImageRef{{ID: "x", OCRText: "SCANNED line"}},
	}
	items := Merge(doc)
	if len(items) != 1 || items[0].Kind != docmodel.ItemOCRText || items[0].Content != "SCANNED\nline" {
		t.Fatalf("items = %+v", items)
	}
}

func TestNoOCRData(t *testing.T) {
	doc := &docmodel.Document{Shape: docmodel.ShapeNoText}
	if items := Merge(doc); len(items) != 0 {
		t.Errorf("expected no items, got %+v", items)
	}

	doc = &docmodel.Document{
		Shape:  docmodel.ShapeFreeText,
		Blocks: []docmodel.TextBlock{{Content: "one"}, {Content: "two"}},
	}
	items := Merge(doc)
	if len(items) != 2 || items[1].Content != "two" {
		t.Errorf("free text blocks not passed through: %+v", items)
	}
}

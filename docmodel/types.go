// CLAUDE:SUMMARY Canonical document model shared by extractors, cleaner, merger and renderer.
// Package docmodel holds the in-memory representation every conversion stage
// reads and writes: extracted blocks, image references, OCR results and the
// ordered merged stream that the renderer turns into Markdown.
package docmodel

import "time"

// SourceType identifies the family of the uploaded file.
type SourceType string

const (
	SourcePDF           SourceType = "pdf"
	SourceWordProcessor SourceType = "wordprocessor"
	SourceImage         SourceType = "image"
)

// BlockKind distinguishes prose blocks from tables.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockTable     BlockKind = "table"
)

// TextBlock is one unit of text produced by an extractor. Page is 1-based;
// zero means the source carries no page information.
type TextBlock struct {
	Index     int        `json:"index"`
	Content   string     `json:"content"`
	Kind      BlockKind  `json:"kind"`
	Style     string     `json:"style,omitempty"`
	Page      int        `json:"page,omitempty"`
	TableRows [][]string `json:"table_rows,omitempty"`
}

// Point is one corner of an OCR bounding box, in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OCRDetail is a single recognized region. Confidence is in [0, 1].
type OCRDetail struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Box        [4]Point `json:"box"`
}

// ImageRef points at an image saved under the media directory.
type ImageRef struct {
	ID         string      `json:"id"`
	Filename   string      `json:"filename"`
	Path       string      `json:"path"`
	Bytes      []byte      `json:"-"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	Page       int         `json:"page,omitempty"`
	OCRText    string      `json:"ocr_text,omitempty"`
	OCRDetails []OCRDetail `json:"ocr_details,omitempty"`
	Markdown   string      `json:"markdown,omitempty"`
}

// HasPage reports whether the image was found on a known page.
func (im ImageRef) HasPage() bool { return im.Page > 0 }

// ItemKind tags a MergedItem.
type ItemKind string

const (
	ItemParagraph ItemKind = "paragraph"
	ItemTable     ItemKind = "table"
	ItemImageOCR  ItemKind = "image_ocr"
	ItemOCRText   ItemKind = "ocr_text"
)

// MergedItem is one element of the ordered stream handed to the renderer.
// Which fields are meaningful depends on Kind:
//
//	paragraph  Content, Style, Page, OCRText and ImageIDs (page-local images)
//	table      Rows
//	image_ocr  Content, ImageID
//	ocr_text   Content
type MergedItem struct {
	Kind     ItemKind   `json:"kind"`
	Content  string     `json:"content,omitempty"`
	Style    string     `json:"style,omitempty"`
	Page     int        `json:"page,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	ImageID  string     `json:"image_id,omitempty"`
	OCRText  string     `json:"ocr_text,omitempty"`
	ImageIDs []string   `json:"image_ids,omitempty"`
}

// Quality summarizes how much usable text a PDF yielded.
type Quality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
}

// NeedsOCR returns true if the PDF likely carries its text inside images.
func (q *Quality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap returns true if the text references figures or tables and the
// PDF carries images.
func (q *Quality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

// Document is the unit of work of a conversion job.
type Document struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	SourceType  SourceType   `json:"type"`
	Shape       SourceShape  `json:"shape,omitempty"`
	Title       string       `json:"title,omitempty"`
	Blocks      []TextBlock  `json:"blocks,omitempty"`
	Images      []ImageRef   `json:"images,omitempty"`
	OCRFullText string       `json:"ocr_full_text,omitempty"`
	Merged      []MergedItem `json:"merged,omitempty"`
	Markdown    string       `json:"markdown,omitempty"`
	Status      Status       `json:"status"`
	Error       string       `json:"error,omitempty"`
	SourcePath  string       `json:"-"`
	Quality     *Quality     `json:"quality,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Image returns the image with the given id.
func (d *Document) Image(id string) (ImageRef, bool) {
	for _, im := range d.Images {
		if im.ID == id {
			return im, true
		}
	}
	return ImageRef{}, false
}

// Clone returns a deep copy of d. Stores hand out clones so callers never
// share slices with the stored record.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Blocks = make([]TextBlock, len(d.Blocks))
	for i, b := range d.Blocks {
		b.TableRows = cloneRows(b.TableRows)
		c.Blocks[i] = b
	}
	c.Images = make([]ImageRef, len(d.Images))
	for i, im := range d.Images {
		im.OCRDetails = append([]OCRDetail(nil), im.OCRDetails...)
		im.Bytes = append([]byte(nil), im.Bytes...)
		c.Images[i] = im
	}
	c.Merged = make([]MergedItem, len(d.Merged))
	for i, it := range d.Merged {
		it.Rows = cloneRows(it.Rows)
		it.ImageIDs = append([]string(nil), it.ImageIDs...)
		c.Merged[i] = it
	}
	if d.Quality != nil {
		q := *d.Quality
		c.Quality = &q
	}
	return &c
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// StatusPayload is the projection returned to API clients.
type StatusPayload struct {
	ID        string     `json:"id"`
	Filename  string     `json:"filename"`
	Type      SourceType `json:"type"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Markdown  string     `json:"markdown,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Payload projects d onto the client-facing status shape.
func (d *Document) Payload() StatusPayload {
	return StatusPayload{
		ID:        d.ID,
		Filename:  d.Filename,
		Type:      d.SourceType,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Markdown:  d.Markdown,
		Error:     d.Error,
	}
}

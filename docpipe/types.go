// CLAUDE:SUMMARY Defines Format and Extraction types for the docpipe extraction stage.
package docpipe

import "github.com/hazyhaar/mdconv/docmodel"

// Format identifies a file format accepted for upload.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatODT  Format = "odt"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
)

// SourceType maps a format to the document family the pipeline works with.
func (f Format) SourceType() docmodel.SourceType {
	switch f {
	case FormatPDF:
		return docmodel.SourcePDF
	case FormatDocx, FormatODT:
		return docmodel.SourceWordProcessor
	default:
		return docmodel.SourceImage
	}
}

// Extraction is what an extractor produces for one source file.
type Extraction struct {
	Format  Format
	Title   string
	Blocks  []docmodel.TextBlock
	Images  []docmodel.ImageRef
	Quality *docmodel.Quality // pdf only
}

// Apply copies the extraction onto doc and classifies its shape.
func (e *Extraction) Apply(doc *docmodel.Document) {
	doc.Title = e.Title
	doc.Blocks = e.Blocks
	doc.Images = e.Images
	doc.Quality = e.Quality
	doc.Shape = docmodel.ClassifyShape(e.Blocks)
}

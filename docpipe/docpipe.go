// CLAUDE:SUMMARY Extraction stage: detects the upload format and dispatches to the pdf, docx, odt or image extractor.
// Package docpipe pulls text blocks and images out of uploaded files.
//
// Supported formats:
//   - .pdf  : one block per page (pdfcpu), embedded images saved per page
//   - .docx : styled paragraphs and tables from word/document.xml, word/media images
//   - .odt  : headings, paragraphs and tables from content.xml, Pictures images
//   - images: .png .jpg .jpeg .gif .bmp .tif .tiff .webp, saved as-is for OCR
//
// Extracted images are written under Config.ImagesDir with a random name so
// concurrent jobs never collide.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{ImagesDir: "media/images"})
//	ext, err := pipe.Extract(ctx, "/path/to/file.docx")
//	fmt.Println(len(ext.Blocks), "blocks", len(ext.Images), "images")
package docpipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// Extractor turns a source file into blocks and images. It never modifies
// the source file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

var _ Extractor = (*Pipeline)(nil)

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the document format based on the file extension.
func Detect(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	case ".odt":
		return FormatODT, nil
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".gif":
		return FormatGIF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".webp":
		return FormatWebP, nil
	default:
		return "", &docmodel.UnsupportedTypeError{Name: name}
	}
}

// DetectWithHint resolves the format of an upload. A non-empty hint
// ("pdf", "docx", "odt" or "image") must agree with the file name.
func DetectWithHint(name, hint string) (Format, error) {
	f, err := Detect(name)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "":
		return f, nil
	case "pdf":
		if f == FormatPDF {
			return f, nil
		}
	case "docx", "odt", "wordprocessor":
		if f.SourceType() == docmodel.SourceWordProcessor {
			return f, nil
		}
	case "image":
		if f.SourceType() == docmodel.SourceImage {
			return f, nil
		}
	}
	return "", &docmodel.UnsupportedTypeError{Name: fmt.Sprintf("%s as %s", name, hint)}
}

// Extract parses a document into blocks and images. Any failure is returned
// as a *docmodel.ExtractionError except an unsupported extension.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Extraction, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Extraction, error) {
		return nil, &docmodel.ExtractionError{Path: path, Format: string(format), Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Errorf("stat: %w", err))
	}
	if info.Size() > p.cfg.MaxFileSize {
		return fail(fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), p.cfg.MaxFileSize))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	p.logger.Debug("extracting document", "path", path, "format", format)

	var ext *Extraction
	switch format {
	case FormatPDF:
		ext, err = p.extractPDF(ctx, path)
	case FormatDocx:
		ext, err = p.extractDocx(path)
	case FormatODT:
		ext, err = p.extractODT(path)
	default:
		ext, err = p.extractImage(path)
	}
	if err != nil {
		return fail(err)
	}
	ext.Format = format

	p.logger.Debug("document extracted",
		"path", path, "format", format,
		"blocks", len(ext.Blocks), "images", len(ext.Images))
	return ext, nil
}

// SupportedFormats returns all supported format extensions.
func SupportedFormats() []string {
	return []string{"pdf", "docx", "odt", "png", "jpg", "jpeg", "gif", "bmp", "tif", "tiff", "webp"}
}

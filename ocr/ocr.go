// Package ocr recognizes text in the images pulled out of a document and
// attaches the results back to the document's image references.
//
// The Tesseract engine is compiled in with the "ocr" build tag:
//
//	go build -tags ocr ./cmd/mdconv
//
// Without the tag NewTesseract returns ErrOCRNotEnabled and callers fall
// back to Nop.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// ErrOCRNotEnabled is returned by NewTesseract when the binary was built
// without the "ocr" tag.
var ErrOCRNotEnabled = errors.New("ocr support not enabled; rebuild with -tags ocr")

// Engine recognizes text regions in one encoded image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) ([]docmodel.OCRDetail, error)
}

// Nop recognizes nothing. It stands in when OCR is disabled.
type Nop struct{}

func (Nop) Recognize(context.Context, []byte) ([]docmodel.OCRDetail, error) { return nil, nil }

// Detail is a recognized region tagged with the index of its image in the
// batch.
type Detail struct {
	docmodel.OCRDetail
	ImageIndex int `json:"image_index"`
}

// Result is the outcome of a batch.
type Result struct {
	// FullText is the text of every recognized image, one region per line,
	// images separated by a blank line.
	FullText string
	Details  []Detail
	// Failed lists the indexes of images the engine could not read.
	Failed []int
}

// Batch runs an Engine over a list of image files.
type Batch struct {
	engine    Engine
	logger    *slog.Logger
	onFailure func(*docmodel.OCREngineError)
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithLogger sets the logger used for per-image failures.
func WithLogger(l *slog.Logger) BatchOption {
	return func(b *Batch) { b.logger = l }
}

// WithFailureHook registers fn to be called for every image that fails.
func WithFailureHook(fn func(*docmodel.OCREngineError)) BatchOption {
	return func(b *Batch) { b.onFailure = fn }
}

// NewBatch returns a Batch over engine.
func NewBatch(engine Engine, opts ...BatchOption) *Batch {
	b := &Batch{engine: engine, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Recognize runs the engine over every path in order. An image that cannot
// be read or recognized is logged and skipped; the batch itself only fails
// when ctx is done.
func (b *Batch) Recognize(ctx context.Context, paths []string) (*Result, error) {
	res := &Result{}
	var texts []string
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ocr batch: %w", err)
		}
		details, err := b.recognizeOne(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("ocr batch: %w", ctx.Err())
			}
			oerr := &docmodel.OCREngineError{ImageIndex: i, Path: path, Err: err}
			b.logger.Warn("ocr: image skipped", "index", i, "path", path, "error", err)
			if b.onFailure != nil {
				b.onFailure(oerr)
			}
			res.Failed = append(res.Failed, i)
			continue
		}
		var lines []string
		for _, d := range details {
			res.Details = append(res.Details, Detail{OCRDetail: d, ImageIndex: i})
			if t := strings.TrimSpace(d.Text); t != "" {
				lines = append(lines, t)
			}
		}
		if len(lines) > 0 {
			texts = append(texts, strings.Join(lines, "\n"))
		}
	}
	res.FullText = strings.Join(texts, "\n\n")
	return res, nil
}

func (b *Batch) recognizeOne(ctx context.Context, path string) ([]docmodel.OCRDetail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return b.engine.Recognize(ctx, data)
}

// Attach distributes a batch result over images, matching details to images
// by index. Each image that received details gets OCRDetails set and OCRText
// set to the detail texts joined by single spaces; nothing else is touched.
func Attach(images []docmodel.ImageRef, res *Result) {
	if res == nil {
		return
	}
	byImage := make(map[int][]docmodel.OCRDetail)
	for _, d := range res.Details {
		if d.ImageIndex < 0 || d.ImageIndex >= len(images) {
			continue
		}
		byImage[d.ImageIndex] = append(byImage[d.ImageIndex], d.OCRDetail)
	}
	for idx, details := range byImage {
		texts := make([]string, 0, len(details))
		for _, d := range details {
			texts = append(texts, d.Text)
		}
		images[idx].OCRDetails = details
		images[idx].OCRText = strings.Join(texts, " ")
	}
}

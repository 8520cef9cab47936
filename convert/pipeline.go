package convert

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/merge"
	"github.com/hazyhaar/mdconv/ocr"
	"github.com/hazyhaar/mdconv/textclean"
)

var errNoContent = errors.New(msgNoContent)

// convert runs the transformation stages in order on doc, which the caller
// owns: extract, OCR every image, clean, merge, render.
func (c *Converter) convert(ctx context.Context, doc *docmodel.Document) (*docmodel.Document, error) {
	start := time.Now()
	ext, err := c.extractor.Extract(ctx, doc.SourcePath)
	if err != nil {
		return nil, err
	}
	ext.Apply(doc)
	c.metrics.stage("extract", start)
	c.metrics.images(len(doc.Images))
	c.logger.Debug("extracted",
		"id", doc.ID,
		"shape", doc.Shape,
		"blocks", len(doc.Blocks),
		"images", len(doc.Images))

	if c.engine != nil && len(doc.Images) > 0 {
		start = time.Now()
		paths := make([]string, len(doc.Images))
		for i, im := range doc.Images {
			paths[i] = im.Path
		}
		batch := ocr.NewBatch(c.engine,
			ocr.WithLogger(c.logger.With("id", doc.ID)),
			ocr.WithFailureHook(c.metrics.ocrFailed))
		res, err := batch.Recognize(ctx, paths)
		if err != nil {
			return nil, err
		}
		ocr.Attach(doc.Images, res)
		doc.OCRFullText = res.FullText
		c.metrics.stage("ocr", start)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	textclean.CleanDocument(doc, c.threshold)
	c.metrics.stage("clean", start)

	start = time.Now()
	doc.Merged = merge.Merge(doc)
	c.metrics.stage("merge", start)

	start = time.Now()
	md := c.renderer.Render(doc)
	c.metrics.stage("render", start)
	if strings.TrimSpace(md) == "" {
		return nil, errNoContent
	}
	doc.Markdown = md
	return doc, nil
}

//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/hazyhaar/mdconv/docmodel"
)

// Tesseract recognizes text lines with a single gosseract client. Calls are
// serialized because the underlying Tesseract handle is not goroutine safe.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract configures a Tesseract engine for the given languages
// (Tesseract codes such as "eng" or "chi_sim").
func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	c := gosseract.NewClient()
	if len(cfg.Languages) > 0 {
		if err := c.SetLanguage(cfg.Languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if cfg.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			c.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	return &Tesseract{client: c}, nil
}

// Recognize returns one detail per text line found in img.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) ([]docmodel.OCRDetail, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}

	details := make([]docmodel.OCRDetail, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		minX, minY := float64(b.Box.Min.X), float64(b.Box.Min.Y)
		maxX, maxY := float64(b.Box.Max.X), float64(b.Box.Max.Y)
		details = append(details, docmodel.OCRDetail{
			Text:       text,
			Confidence: b.Confidence / 100.0,
			Box: [4]docmodel.Point{
				{X: minX, Y: minY}, {X: maxX, Y: minY},
				{X: maxX, Y: maxY}, {X: minX, Y: maxY},
			},
		})
	}
	return details, nil
}

// Close releases the Tesseract handle.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

//go:build !ocr

package ocr

import (
	"context"

	"github.com/hazyhaar/mdconv/docmodel"
)

// Tesseract is unavailable in builds without the "ocr" tag.
type Tesseract struct{}

// NewTesseract returns ErrOCRNotEnabled.
func NewTesseract(TesseractConfig) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Recognize returns ErrOCRNotEnabled.
func (t *Tesseract) Recognize(context.Context, []byte) ([]docmodel.OCRDetail, error) {
	return nil, ErrOCRNotEnabled
}

// Close is a no-op. It is safe to call on a nil engine.
func (t *Tesseract) Close() error { return nil }

package docmodel

import "fmt"

// ExtractionError is fatal for a document: the source could not be parsed.
type ExtractionError struct {
	Path   string
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// OCREngineError reports a failure to recognize one image. It never fails
// the document; the image simply carries no OCR text.
type OCREngineError struct {
	ImageIndex int
	Path       string
	Err        error
}

func (e *OCREngineError) Error() string {
	return fmt.Sprintf("ocr image %d (%s): %v", e.ImageIndex, e.Path, e.Err)
}

func (e *OCREngineError) Unwrap() error { return e.Err }

// UnsupportedTypeError is raised before any job is created.
type UnsupportedTypeError struct {
	Name string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported document type: %q", e.Name)
}

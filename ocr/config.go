package ocr

// TesseractConfig configures the Tesseract engine.
type TesseractConfig struct {
	Languages   []string `yaml:"languages" json:"languages"`
	PageSegMode int      `yaml:"page_seg_mode" json:"page_seg_mode"`
}

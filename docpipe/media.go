package docpipe

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/mdconv/docmodel"
)

// saveImage writes data under the images directory as <prefix>_<id><ext>
// and returns its reference. Width and height are filled in when the format
// is one the image decoders know; page is 0 when unknown.
func (p *Pipeline) saveImage(prefix, ext string, data []byte, page int) (docmodel.ImageRef, error) {
	if err := os.MkdirAll(p.cfg.ImagesDir, 0o755); err != nil {
		return docmodel.ImageRef{}, fmt.Errorf("create images dir: %w", err)
	}
	id := p.cfg.NewID()
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := prefix + "_" + id + ext
	path := filepath.Join(p.cfg.ImagesDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return docmodel.ImageRef{}, fmt.Errorf("write image %s: %w", name, err)
	}
	w, h := imageSize(data)
	return docmodel.ImageRef{
		ID:       id,
		Filename: name,
		Path:     path,
		Width:    w,
		Height:   h,
		Page:     page,
	}, nil
}

func imageSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// extractImage handles a raw image upload: the file is copied into the
// images directory and becomes the only image of the document.
func (p *Pipeline) extractImage(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	ref, err := p.saveImage("uploaded_image", filepath.Ext(path), data, 0)
	if err != nil {
		return nil, err
	}
	return &Extraction{Images: []docmodel.ImageRef{ref}}, nil
}

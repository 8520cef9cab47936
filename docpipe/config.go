// CLAUDE:SUMMARY Configuration struct and defaults for the docpipe extraction stage.
package docpipe

import (
	"log/slog"

	"github.com/hazyhaar/mdconv/idgen"
)

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum file size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// ImagesDir receives every image pulled out of a document.
	ImagesDir string `json:"images_dir" yaml:"images_dir"`

	// NewID names extracted images (default: random UUIDs).
	NewID idgen.Generator `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.ImagesDir == "" {
		c.ImagesDir = "media/images"
	}
	if c.NewID == nil {
		c.NewID = idgen.Random()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

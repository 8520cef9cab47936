package convert

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/mdconv/guard"
	"github.com/hazyhaar/mdconv/mdrender"
	"github.com/hazyhaar/mdconv/ocr"
)

// Config holds the full mdconv service configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	PublicURL  mdrender.BaseURL `yaml:"public_url"`
	DBPath     string           `yaml:"db_path"` // empty = in-memory store
	DBTrace    bool             `yaml:"db_trace"`
	UploadsDir string           `yaml:"uploads_dir"`
	ImagesDir  string           `yaml:"images_dir"`
	MaxFileMB  int              `yaml:"max_file_mb"`
	MaxConns   int              `yaml:"max_conns"`
	OCR        OCRConfig        `yaml:"ocr"`
	Workers    WorkersConfig    `yaml:"workers"`
	Auth       AuthConfig       `yaml:"auth"`
}

// OCRConfig configures image text recognition.
type OCRConfig struct {
	Enabled             bool    `yaml:"enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	ocr.TesseractConfig `yaml:",inline"`
}

// WorkersConfig bounds background conversion.
type WorkersConfig struct {
	Concurrency int           `yaml:"concurrency"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

// AuthConfig enables HTTP Basic auth when both credentials are set.
// A token secret additionally enables bearer tokens from /api/token.
type AuthConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	TokenSecret  string        `yaml:"token_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Enabled reports whether Basic auth is configured.
func (a AuthConfig) Enabled() bool { return a.Username != "" && a.PasswordHash != "" }

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8000",
		PublicURL: mdrender.BaseURL{
			Scheme: "http",
			Host:   "localhost",
			Port:   8000,
		},
		UploadsDir: "uploads",
		ImagesDir:  "media/images",
		MaxFileMB:  100,
		MaxConns:   256,
		OCR: OCRConfig{
			Enabled:             true,
			ConfidenceThreshold: 0.7,
			TesseractConfig:     ocr.TesseractConfig{Languages: []string{"eng"}},
		},
		Workers: WorkersConfig{
			Concurrency: 4,
			JobTimeout:  10 * time.Minute,
		},
		Auth: AuthConfig{TokenTTL: 12 * time.Hour},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.UploadsDir == "" {
		return fmt.Errorf("uploads_dir is required")
	}
	if c.ImagesDir == "" {
		return fmt.Errorf("images_dir is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	switch c.PublicURL.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("public_url.scheme must be http or https, got %q", c.PublicURL.Scheme)
	}
	if c.PublicURL.Host == "" {
		return fmt.Errorf("public_url.host is required")
	}
	if c.PublicURL.Port < 0 || c.PublicURL.Port > 65535 {
		return fmt.Errorf("public_url.port out of range: %d", c.PublicURL.Port)
	}
	if t := c.OCR.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("ocr.confidence_threshold must be within [0, 1], got %v", t)
	}
	if c.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be > 0")
	}
	if c.Workers.JobTimeout < 0 {
		return fmt.Errorf("workers.job_timeout must be >= 0")
	}
	if (c.Auth.Username == "") != (c.Auth.PasswordHash == "") {
		return fmt.Errorf("auth.username and auth.password_hash must be set together")
	}
	if c.Auth.TokenSecret != "" {
		if !c.Auth.Enabled() {
			return fmt.Errorf("auth.token_secret requires auth.username and auth.password_hash")
		}
		if err := guard.ValidateSecret([]byte(c.Auth.TokenSecret)); err != nil {
			return fmt.Errorf("auth.token_secret: %w", err)
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0")
		}
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

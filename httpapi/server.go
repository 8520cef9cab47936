// CLAUDE:SUMMARY HTTP surface of mdconv: chi routes for upload/status/markdown/preview, media files, metrics, health and the MCP endpoint.
// CLAUDE:EXPORTS Server, Config, New
// CLAUDE:DEPENDS convert, preview, auth, shield, kit
// Package httpapi exposes the conversion service over HTTP and MCP.
//
// Routes:
//
//	GET  /                          upload form
//	GET  /v1/health                 liveness
//	GET  /metrics                   Prometheus
//	GET  /media/images/{filename}   extracted images
//	POST /api/upload                multipart "file" + optional "doc_type"
//	POST /api/token                 bearer token for the Basic credentials
//	GET  /api/formats
//	GET  /api/documents             ?limit=&status=
//	GET  /api/status/{id}
//	GET  /api/status/{id}/history
//	GET  /api/markdown/{id}
//	GET  /api/preview/{id}
//	*    /mcp                       streamable MCP
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/mdconv/auth"
	"github.com/hazyhaar/mdconv/convert"
	"github.com/hazyhaar/mdconv/preview"
	"github.com/hazyhaar/mdconv/shield"
)

// multipartSlack covers multipart framing on top of the file size cap.
const multipartSlack = 1 << 20

// Config configures the HTTP surface.
type Config struct {
	// ImagesDir is where extracted images are served from.
	ImagesDir string

	// MaxFileBytes is the largest accepted upload.
	MaxFileBytes int64

	// Auth guards /api and /mcp when Username is set.
	Auth auth.Config

	// TokenTTL is the lifetime of tokens from /api/token.
	TokenTTL time.Duration

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Version is reported by /v1/health and the MCP handshake.
	Version string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ImagesDir == "" {
		c.ImagesDir = "media/images"
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 100 << 20
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 12 * time.Hour
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server serves one Converter.
type Server struct {
	cfg     Config
	conv    *convert.Converter
	preview *preview.Renderer
	mcp     *mcp.Server
	logger  *slog.Logger
}

// New builds the server and registers its MCP tools.
func New(conv *convert.Converter, cfg Config) *Server {
	cfg.defaults()
	s := &Server{
		cfg:     cfg,
		conv:    conv,
		preview: preview.New(),
		logger:  cfg.Logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "mdconv", Version: cfg.Version}, nil)
	s.registerMCP(s.mcp)
	return s
}

// MCPServer returns the MCP server carrying the mdconv tools.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) authEnabled() bool { return s.cfg.Auth.Username != "" }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok", "version": s.cfg.Version})
	})
	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/media/images/{filename}", s.handleImage)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	// base64 inflates uploads by 4/3
	mcpLimit := s.cfg.MaxFileBytes/3*4 + 4 + multipartSlack

	r.Group(func(r chi.Router) {
		if s.authEnabled() {
			r.Use(auth.Require(s.cfg.Auth))
		}

		r.Route("/api", func(r chi.Router) {
			r.With(shield.MaxBody(s.cfg.MaxFileBytes+multipartSlack)).Post("/upload", s.handleUpload)
			if len(s.cfg.Auth.TokenSecret) > 0 {
				r.Post("/token", s.handleToken)
			}
			r.Get("/formats", s.handleFormats)
			r.Get("/documents", s.handleDocuments)
			r.Get("/status/{id}", s.handleStatus)
			r.Get("/status/{id}/history", s.handleHistory)
			r.Get("/markdown/{id}", s.handleMarkdown)
			r.Get("/preview/{id}", s.handlePreview)
		})

		r.With(shield.MaxBody(mcpLimit)).Handle("/mcp", mcpHandler)
	})

	return r
}

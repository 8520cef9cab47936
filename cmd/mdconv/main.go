// CLAUDE:SUMMARY Entry point for the mdconv service: config, store, extraction pipeline, OCR, converter, chi HTTP server and optional MCP over stdio.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/mdconv/auth"
	"github.com/hazyhaar/mdconv/convert"
	"github.com/hazyhaar/mdconv/dbopen"
	"github.com/hazyhaar/mdconv/docpipe"
	"github.com/hazyhaar/mdconv/httpapi"
	"github.com/hazyhaar/mdconv/mdrender"
	"github.com/hazyhaar/mdconv/ocr"
	"github.com/hazyhaar/mdconv/trace"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(); err != nil {
			fmt.Fprintln(os.Stderr, "hash-password:", err)
			os.Exit(1)
		}
		return
	}

	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging. stdout belongs to the MCP stream in stdio mode.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	out := os.Stdout
	if mcpTransport == "stdio" {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, mcpTransport, logger); err != nil {
		slog.Error("mdconv", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *convert.Config, mcpTransport string, logger *slog.Logger) error {
	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := convert.NewMetrics(reg)

	// Store.
	var store convert.Store
	if cfg.DBPath != "" {
		var dbOpts []dbopen.Option
		if cfg.DBTrace {
			trace.SetObserver(metrics.ObserveSQL)
			dbOpts = append(dbOpts, dbopen.WithDriver(trace.DriverName))
		}
		s, err := convert.OpenSQLiteStore(cfg.DBPath, dbOpts...)
		if err != nil {
			return err
		}
		store = s
		slog.Info("sqlite store", "path", cfg.DBPath, "trace", cfg.DBTrace)
	} else {
		store = convert.NewMemoryStore()
		slog.Info("in-memory store; documents are lost on restart")
	}
	defer store.Close()

	// Extraction pipeline.
	pipe := docpipe.New(docpipe.Config{
		MaxFileSize: cfg.MaxFileBytes(),
		ImagesDir:   cfg.ImagesDir,
		Logger:      logger,
	})

	opts := []convert.Option{
		convert.WithRenderer(mdrender.New(cfg.PublicURL)),
		convert.WithConfidenceThreshold(cfg.OCR.ConfidenceThreshold),
		convert.WithUploadsDir(cfg.UploadsDir),
		convert.WithMaxFileBytes(cfg.MaxFileBytes()),
		convert.WithConcurrency(cfg.Workers.Concurrency),
		convert.WithJobTimeout(cfg.Workers.JobTimeout),
		convert.WithMetrics(metrics),
		convert.WithLogger(logger),
	}

	// OCR.
	if cfg.OCR.Enabled {
		engine, err := ocr.NewTesseract(cfg.OCR.TesseractConfig)
		if err != nil {
			slog.Warn("ocr unavailable, images keep no text", "error", err)
		} else {
			defer engine.Close()
			opts = append(opts, convert.WithOCR(engine))
			slog.Info("ocr enabled", "languages", cfg.OCR.Languages)
		}
	}

	conv := convert.New(store, pipe, opts...)
	defer conv.Close()

	n, err := conv.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover documents: %w", err)
	}
	if n > 0 {
		slog.Info("documents recovered", "count", n)
	}

	api := httpapi.New(conv, httpapi.Config{
		ImagesDir:    cfg.ImagesDir,
		MaxFileBytes: cfg.MaxFileBytes(),
		Auth: auth.Config{
			Username:     cfg.Auth.Username,
			PasswordHash: cfg.Auth.PasswordHash,
			TokenSecret:  []byte(cfg.Auth.TokenSecret),
		},
		TokenTTL: cfg.Auth.TokenTTL,
		Gatherer: reg,
		Version:  version,
		Logger:   logger,
	})

	if mcpTransport == "stdio" {
		go func() {
			slog.Info("mcp over stdio")
			if err := api.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp stdio", "error", err)
			}
			cancel()
		}()
	}

	// HTTP server.
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "listen", cfg.Listen, "public_url", cfg.PublicURL.String(), "version", version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// loadConfig reads MDCONV_CONFIG when set and applies the env overrides.
func loadConfig() (*convert.Config, error) {
	cfg := convert.DefaultConfig()
	if path := env("MDCONV_CONFIG", ""); path != "" {
		c, err := convert.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	if host, port := os.Getenv("HOST"), os.Getenv("PORT"); host != "" || port != "" {
		h, p, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			return nil, fmt.Errorf("listen %q: %w", cfg.Listen, err)
		}
		cfg.Listen = net.JoinHostPort(env("HOST", h), env("PORT", p))
	}
	if v := os.Getenv("MDCONV_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MDCONV_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	return cfg, cfg.Validate()
}

// hashPassword reads a password from stdin and prints its bcrypt hash for
// auth.password_hash.
func hashPassword() error {
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return errors.New("empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

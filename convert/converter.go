// CLAUDE:SUMMARY Job runner: persists uploads, runs each document through extract → OCR → clean → merge → render on a bounded worker pool, and records the terminal status.
// CLAUDE:DEPENDS docpipe, ocr, textclean, merge, mdrender, convert/store.go
// CLAUDE:EXPORTS Converter, New, Option, ErrFileTooLarge, ErrClosed
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/docpipe"
	"github.com/hazyhaar/mdconv/idgen"
	"github.com/hazyhaar/mdconv/mdrender"
	"github.com/hazyhaar/mdconv/ocr"
)

var (
	// ErrFileTooLarge is returned by Submit when the upload exceeds the limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("converter closed")
)

const (
	msgNoContent   = "no content could be extracted"
	msgTimeout     = "conversion timed out"
	msgCancelled   = "conversion cancelled"
	msgInterrupted = "processing interrupted"
)

// Converter accepts uploads and converts them to Markdown in the background.
type Converter struct {
	store      Store
	extractor  docpipe.Extractor
	engine     ocr.Engine
	renderer   *mdrender.Renderer
	threshold  float64
	uploadsDir string
	maxBytes   int64
	jobTimeout time.Duration
	newID      idgen.Generator
	metrics    *Metrics
	logger     *slog.Logger
	removeFile func(string) error
	now        func() time.Time

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Option configures a Converter.
type Option func(*Converter)

// WithOCR enables image text recognition with engine.
func WithOCR(engine ocr.Engine) Option {
	return func(c *Converter) { c.engine = engine }
}

// WithRenderer sets the Markdown renderer (default: links to http://localhost:8000).
func WithRenderer(r *mdrender.Renderer) Option {
	return func(c *Converter) { c.renderer = r }
}

// WithConfidenceThreshold sets the minimum OCR confidence kept by the cleaner.
func WithConfidenceThreshold(t float64) Option {
	return func(c *Converter) { c.threshold = t }
}

// WithUploadsDir sets where uploaded files wait for conversion.
func WithUploadsDir(dir string) Option {
	return func(c *Converter) { c.uploadsDir = dir }
}

// WithMaxFileBytes caps the size of an upload. Zero means no limit.
func WithMaxFileBytes(n int64) Option {
	return func(c *Converter) { c.maxBytes = n }
}

// WithConcurrency bounds the number of documents converted at once.
func WithConcurrency(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithJobTimeout bounds the conversion of one document. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Converter) { c.jobTimeout = d }
}

// WithIDGenerator sets the generator for document ids.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Converter) { c.newID = g }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Converter) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// New creates a converter over store and extractor.
func New(store Store, extractor docpipe.Extractor, opts ...Option) *Converter {
	c := &Converter{
		store:      store,
		extractor:  extractor,
		threshold:  0.7,
		uploadsDir: "uploads",
		newID:      idgen.Default,
		logger:     slog.Default(),
		removeFile: os.Remove,
		now:        time.Now,
		sem:        make(chan struct{}, 4),
	}
	for _, o := range opts {
		o(c)
	}
	if c.renderer == nil {
		c.renderer = mdrender.New(mdrender.BaseURL{Scheme: "http", Host: "localhost", Port: 8000})
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Store returns the document store.
func (c *Converter) Store() Store { return c.store }

// Renderer returns the Markdown renderer.
func (c *Converter) Renderer() *mdrender.Renderer { return c.renderer }

// Submit saves the upload, records a pending document and schedules its
// conversion. The returned document is a snapshot in the pending state.
// An unsupported file name is rejected with *docmodel.UnsupportedTypeError
// before anything is written.
func (c *Converter) Submit(ctx context.Context, filename string, r io.Reader, hint string) (*docmodel.Document, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	name := filepath.Base(filepath.Clean("/" + filename))
	format, err := docpipe.DetectWithHint(name, hint)
	if err != nil {
		return nil, err
	}

	id := c.newID()
	path, err := c.saveUpload(id, filepath.Ext(name), r)
	if err != nil {
		return nil, err
	}

	now := c.now()
	doc := &docmodel.Document{
		ID:         id,
		Filename:   name,
		SourceType: format.SourceType(),
		Status:     docmodel.StatusPending,
		SourcePath: path,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.Put(ctx, doc); err != nil {
		c.removeFile(path)
		return nil, fmt.Errorf("record document: %w", err)
	}
	c.metrics.submitted(doc.SourceType)
	c.logger.Info("document accepted", "id", id, "filename", name, "type", doc.SourceType)

	c.schedule(id)
	return doc, nil
}

// saveUpload copies r to <uploads>/<id><ext>.
func (c *Converter) saveUpload(id, ext string, r io.Reader) (string, error) {
	if err := os.MkdirAll(c.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	path := filepath.Join(c.uploadsDir, id+strings.ToLower(ext))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	src := r
	if c.maxBytes > 0 {
		src = io.LimitReader(r, c.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && c.maxBytes > 0 && n > c.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, c.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrFileTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

func (c *Converter) schedule(id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		select {
		case c.sem <- struct{}{}:
		case <-c.ctx.Done():
			// Left pending; Recover picks it up on the next start.
			return
		}
		defer func() { <-c.sem }()
		c.process(id)
	}()
}

// process drives one document from pending to a terminal state. The
// uploaded source is removed exactly once, when the document leaves
// processing.
func (c *Converter) process(id string) {
	ctx := c.ctx
	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.jobTimeout)
		defer cancel()
	}
	// Status writes must land even when the job context is done.
	storeCtx := context.WithoutCancel(ctx)

	doc, err := c.store.Transition(storeCtx, id, docmodel.StatusProcessing, nil)
	if err != nil {
		c.logger.Error("start processing", "id", id, "error", err)
		return
	}
	start := c.now()
	c.metrics.inFlight(1)
	defer c.metrics.inFlight(-1)

	defer sync.OnceFunc(func() { c.removeSource(doc) })()

	result, err := c.runSafe(ctx, doc)
	if err != nil {
		msg := failureMessage(ctx, err)
		c.logger.Warn("conversion failed", "id", id, "filename", doc.Filename, "error", err)
		c.finish(storeCtx, doc, start, docmodel.StatusFailed, func(d *docmodel.Document) {
			d.Error = msg
			d.Markdown = ""
		})
		return
	}

	c.finish(storeCtx, doc, start, docmodel.StatusCompleted, func(d *docmodel.Document) {
		d.Title = result.Title
		d.Shape = result.Shape
		d.Blocks = result.Blocks
		d.Images = result.Images
		d.OCRFullText = result.OCRFullText
		d.Merged = result.Merged
		d.Quality = result.Quality
		d.Markdown = result.Markdown
		d.Error = ""
	})
}

func (c *Converter) finish(ctx context.Context, doc *docmodel.Document, start time.Time, to docmodel.Status, mutate func(*docmodel.Document)) {
	final, err := c.store.Transition(ctx, doc.ID, to, mutate)
	if err != nil {
		c.logger.Error("record terminal status", "id", doc.ID, "status", to, "error", err)
		return
	}
	c.metrics.finished(final.SourceType, final.Status, c.now().Sub(start))
	c.logger.Info("document finished",
		"id", final.ID,
		"status", final.Status,
		"duration", c.now().Sub(start),
		"images", len(final.Images))
}

func (c *Converter) removeSource(doc *docmodel.Document) {
	if doc.SourcePath == "" {
		return
	}
	if err := c.removeFile(doc.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("remove upload", "id", doc.ID, "path", doc.SourcePath, "error", err)
	}
}

// runSafe converts doc and turns a panic in any stage into an error.
func (c *Converter) runSafe(ctx context.Context, doc *docmodel.Document) (res *docmodel.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("conversion panicked", "id", doc.ID, "panic", r)
			res, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return c.convert(ctx, doc.Clone())
}

func failureMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return msgTimeout
	case errors.Is(err, context.Canceled):
		return msgCancelled
	}
	var ee *docmodel.ExtractionError
	if errors.As(err, &ee) {
		return fmt.Sprintf("could not read %s file: %v", ee.Format, ee.Err)
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "conversion failed"
}

// Wait blocks until every scheduled conversion has returned.
func (c *Converter) Wait() { c.wg.Wait() }

// Close stops accepting uploads, cancels running conversions and waits for
// them. Cancelled documents are marked failed; queued ones stay pending.
func (c *Converter) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

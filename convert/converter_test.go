package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/docpipe"
	"github.com/hazyhaar/mdconv/idgen"
)

// --- fakes ---

type extractFunc func(ctx context.Context, path string) (*docpipe.Extraction, error)

func (f extractFunc) Extract(ctx context.Context, path string) (*docpipe.Extraction, error) {
	return f(ctx, path)
}

type fakeEngine struct {
	text string
	conf float64
}

func (e fakeEngine) Recognize(context.Context, []byte) ([]docmodel.OCRDetail, error) {
	return []docmodel.OCRDetail{{Text: e.text, Confidence: e.conf}}, nil
}

func paragraphsExtraction(texts ...string) *docpipe.Extraction {
	ext := &docpipe.Extraction{Format: docpipe.FormatDocx}
	for i, s := range texts {
		ext.Blocks = append(ext.Blocks, docmodel.TextBlock{Index: i, Content: s, Kind: docmodel.BlockParagraph, Style: "Normal"})
	}
	return ext
}

// newTestConverter wires a converter on a memory store and counts source
// file removals.
func newTestConverter(t *testing.T, ex docpipe.Extractor, opts ...Option) (*Converter, *atomic.Int32) {
	t.Helper()
	var removed atomic.Int32
	opts = append([]Option{
		WithUploadsDir(filepath.Join(t.TempDir(), "uploads")),
		WithIDGenerator(idgen.Sequence("doc-")),
	}, opts...)
	c := New(NewMemoryStore(), ex, opts...)
	c.removeFile = func(path string) error {
		removed.Add(1)
		return os.Remove(path)
	}
	t.Cleanup(c.Close)
	return c, &removed
}

func submitAndWait(t *testing.T, c *Converter, name, body string) *docmodel.Document {
	t.Helper()
	doc, err := c.Submit(context.Background(), name, strings.NewReader(body), "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	c.Wait()
	got, err := c.Store().Get(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

// --- end to end ---

func writeDocx(t *testing.T, paragraphs []string, img []byte) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range map[string][]byte{
		"word/document.xml":     []byte(doc),
		"word/media/image1.png": img,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestConverter_DocxWithImage(t *testing.T) {
	// WHAT: A two-paragraph document with one image completes with both
	// paragraphs, the image link and its OCR caption, in that order.
	imagesDir := filepath.Join(t.TempDir(), "images")
	pipe := docpipe.New(docpipe.Config{ImagesDir: imagesDir})
	c, removed := newTestConverter(t, pipe, WithOCR(fakeEngine{text: "label", conf: 0.9}))

	data := writeDocx(t, []string{"First paragraph.", "Second paragraph."}, pngBytes(t))
	doc := submitAndWait(t, c, "report.docx", string(data))

	if doc.Status != docmodel.StatusCompleted {
		t.Fatalf("status = %s, error = %q", doc.Status, doc.Error)
	}
	if doc.SourceType != docmodel.SourceWordProcessor || doc.Shape != docmodel.ShapeParagraph {
		t.Errorf("type = %s, shape = %s", doc.SourceType, doc.Shape)
	}
	if len(doc.Images) != 1 || doc.Images[0].OCRText != "label" {
		t.Fatalf("images = %+v", doc.Images)
	}

	md := doc.Markdown
	order := []string{
		"First paragraph.",
		"Second paragraph.",
		"![label](http://localhost:8000/media/images/" + doc.Images[0].Filename + ")",
		"*Image text: label*",
	}
	last := -1
	for _, want := range order {
		i := strings.Index(md, want)
		if i < 0 {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
		if i <= last {
			t.Fatalf("%q out of order:\n%s", want, md)
		}
		last = i
	}
	if strings.Count(md, "![") != 1 {
		t.Errorf("image emitted more than once:\n%s", md)
	}

	if removed.Load() != 1 {
		t.Errorf("source removed %d times, want 1", removed.Load())
	}
	entries, _ := os.ReadDir(c.uploadsDir)
	if len(entries) != 0 {
		t.Errorf("uploads dir not empty: %v", entries)
	}
	if _, err := os.Stat(filepath.Join(imagesDir, doc.Images[0].Filename)); err != nil {
		t.Errorf("extracted image missing: %v", err)
	}
}

func TestConverter_History(t *testing.T) {
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		return paragraphsExtraction("Hello"), nil
	}))
	doc := submitAndWait(t, c, "a.docx", "zip")

	events, err := c.Store().History(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, ev := range events {
		got = append(got, string(ev.To))
	}
	if strings.Join(got, ",") != "pending,processing,completed" {
		t.Errorf("history = %v", got)
	}
}

// --- failures ---

func TestConverter_ExtractionError(t *testing.T) {
	// WHAT: An extractor error fails the document with a readable message.
	c, removed := newTestConverter(t, extractFunc(func(_ context.Context, path string) (*docpipe.Extraction, error) {
		return nil, &docmodel.ExtractionError{Path: path, Format: "pdf", Err: errors.New("xref table broken")}
	}))
	doc := submitAndWait(t, c, "broken.pdf", "%PDF-1.4")

	if doc.Status != docmodel.StatusFailed {
		t.Fatalf("status = %s", doc.Status)
	}
	if doc.Error != "could not read pdf file: xref table broken" {
		t.Errorf("error = %q", doc.Error)
	}
	if doc.Markdown != "" {
		t.Errorf("failed document carries markdown: %q", doc.Markdown)
	}
	if removed.Load() != 1 {
		t.Errorf("source removed %d times, want 1", removed.Load())
	}
}

func TestConverter_Panic(t *testing.T) {
	c, removed := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		panic("nil map")
	}))
	doc := submitAndWait(t, c, "a.docx", "zip")

	if doc.Status != docmodel.StatusFailed || !strings.Contains(doc.Error, "nil map") {
		t.Fatalf("doc = %s %q", doc.Status, doc.Error)
	}
	if removed.Load() != 1 {
		t.Errorf("source removed %d times, want 1", removed.Load())
	}
}

func TestConverter_NoContent(t *testing.T) {
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		return &docpipe.Extraction{Format: docpipe.FormatDocx}, nil
	}))
	doc := submitAndWait(t, c, "empty.docx", "zip")

	if doc.Status != docmodel.StatusFailed || doc.Error != "no content could be extracted" {
		t.Fatalf("doc = %s %q", doc.Status, doc.Error)
	}
}

func TestConverter_Timeout(t *testing.T) {
	c, _ := newTestConverter(t, extractFunc(func(ctx context.Context, _ string) (*docpipe.Extraction, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithJobTimeout(20*time.Millisecond))
	doc := submitAndWait(t, c, "slow.pdf", "%PDF")

	if doc.Status != docmodel.StatusFailed || doc.Error != "conversion timed out" {
		t.Fatalf("doc = %s %q", doc.Status, doc.Error)
	}
}

func TestConverter_UnsupportedType(t *testing.T) {
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		t.Error("extractor must not run")
		return nil, nil
	}))
	_, err := c.Submit(context.Background(), "legacy.doc", strings.NewReader("x"), "")
	var ute *docmodel.UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("err = %v, want UnsupportedTypeError", err)
	}
	docs, _ := c.Store().List(context.Background(), 0)
	if len(docs) != 0 {
		t.Errorf("rejected upload was stored: %v", ids(docs))
	}

	_, err = c.Submit(context.Background(), "scan.png", strings.NewReader("x"), "pdf")
	if !errors.As(err, &ute) {
		t.Fatalf("hint mismatch err = %v", err)
	}
}

func TestConverter_FileTooLarge(t *testing.T) {
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		return paragraphsExtraction("x"), nil
	}), WithMaxFileBytes(4))

	_, err := c.Submit(context.Background(), "big.pdf", strings.NewReader("0123456789"), "")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
	entries, _ := os.ReadDir(c.uploadsDir)
	if len(entries) != 0 {
		t.Errorf("partial upload left behind: %v", entries)
	}

	doc := submitAndWait(t, c, "small.pdf", "0123")
	if doc.Status != docmodel.StatusCompleted {
		t.Errorf("upload at the limit: %s %q", doc.Status, doc.Error)
	}
}

func TestConverter_FilenameIsSanitized(t *testing.T) {
	var gotPath string
	c, _ := newTestConverter(t, extractFunc(func(_ context.Context, path string) (*docpipe.Extraction, error) {
		gotPath = path
		return paragraphsExtraction("x"), nil
	}))
	doc := submitAndWait(t, c, "../../etc/report.PDF", "%PDF")

	if doc.Filename != "report.PDF" {
		t.Errorf("filename = %q", doc.Filename)
	}
	if filepath.Dir(gotPath) != c.uploadsDir || filepath.Ext(gotPath) != ".pdf" {
		t.Errorf("source path = %q", gotPath)
	}
}

// --- concurrency ---

func TestConverter_BoundedConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return paragraphsExtraction("x"), nil
	}), WithConcurrency(2))

	for i := 0; i < 6; i++ {
		if _, err := c.Submit(context.Background(), "a.docx", strings.NewReader("zip"), ""); err != nil {
			t.Fatal(err)
		}
	}
	c.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	completed, _ := c.Store().ListByStatus(context.Background(), docmodel.StatusCompleted)
	if len(completed) != 6 {
		t.Errorf("completed = %d, want 6", len(completed))
	}
}

func TestConverter_SubmitAfterClose(t *testing.T) {
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		return paragraphsExtraction("x"), nil
	}))
	c.Close()
	if _, err := c.Submit(context.Background(), "a.docx", strings.NewReader("zip"), ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

// --- recovery ---

func TestConverter_Recover(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	uploads := t.TempDir()

	// left processing by a crash
	stuckDoc := pendingDoc("stuck", t0)
	stuckDoc.SourcePath = filepath.Join(uploads, "stuck.docx")
	store.Put(ctx, stuckDoc)
	store.Transition(ctx, "stuck", docmodel.StatusProcessing, nil)

	// pending with its upload still on disk
	queued := pendingDoc("queued", t0.Add(time.Second))
	queued.SourcePath = filepath.Join(uploads, "queued.docx")
	os.WriteFile(queued.SourcePath, []byte("zip"), 0o644)
	store.Put(ctx, queued)

	// pending without its upload
	lost := pendingDoc("lost", t0.Add(2*time.Second))
	lost.SourcePath = filepath.Join(uploads, "lost.docx")
	store.Put(ctx, lost)

	c := New(store, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		return paragraphsExtraction("recovered"), nil
	}), WithUploadsDir(uploads))
	defer c.Close()

	n, err := c.Recover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("requeued = %d, want 1", n)
	}
	c.Wait()

	for id, want := range map[string]docmodel.Status{
		"stuck":  docmodel.StatusFailed,
		"queued": docmodel.StatusCompleted,
		"lost":   docmodel.StatusFailed,
	} {
		doc, _ := store.Get(ctx, id)
		if doc.Status != want {
			t.Errorf("%s: status = %s, want %s", id, doc.Status, want)
		}
		if want == docmodel.StatusFailed && doc.Error == "" {
			t.Errorf("%s: failed without error", id)
		}
	}
	stuck, _ := store.Get(ctx, "stuck")
	if stuck.Error != "processing interrupted" {
		t.Errorf("stuck error = %q", stuck.Error)
	}
	if _, err := os.Stat(queued.SourcePath); !os.IsNotExist(err) {
		t.Errorf("requeued upload not removed: %v", err)
	}
}

// --- metrics ---

func TestConverter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newTestConverter(t, extractFunc(func(context.Context, string) (*docpipe.Extraction, error) {
		return paragraphsExtraction("x"), nil
	}), WithMetrics(NewMetrics(reg)))
	submitAndWait(t, c, "a.docx", "zip")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	if values["mdconv_documents_submitted_total"] != 1 {
		t.Errorf("submitted = %v", values["mdconv_documents_submitted_total"])
	}
	if values["mdconv_documents_finished_total"] != 1 {
		t.Errorf("finished = %v", values["mdconv_documents_finished_total"])
	}
	if values["mdconv_stage_duration_seconds"] < 4 {
		t.Errorf("stage samples = %v, want extract, clean, merge and render", values["mdconv_stage_duration_seconds"])
	}
}

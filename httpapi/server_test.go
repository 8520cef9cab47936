package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/mdconv/auth"
	"github.com/hazyhaar/mdconv/convert"
	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/docpipe"
	"github.com/hazyhaar/mdconv/idgen"
)

// lineExtractor turns every non-empty line of the upload into a paragraph.
type lineExtractor struct {
	gate chan struct{} // when set, Extract blocks until it is closed
}

func (e lineExtractor) Extract(ctx context.Context, path string) (*docpipe.Extraction, error) {
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &docmodel.ExtractionError{Path: path, Format: "docx", Err: err}
	}
	ext := &docpipe.Extraction{Format: docpipe.FormatDocx}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ext.Blocks = append(ext.Blocks, docmodel.TextBlock{
				Index:   len(ext.Blocks),
				Content: line,
				Kind:    docmodel.BlockParagraph,
				Style:   "Normal",
			})
		}
	}
	return ext, nil
}

type testEnv struct {
	srv     *Server
	conv    *convert.Converter
	handler http.Handler
	images  string
}

func newTestEnv(t *testing.T, ex docpipe.Extractor, mutate func(*Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	conv := convert.New(convert.NewMemoryStore(), ex,
		convert.WithUploadsDir(filepath.Join(dir, "uploads")),
		convert.WithIDGenerator(idgen.Sequence("doc-")),
		convert.WithMetrics(convert.NewMetrics(reg)),
	)
	t.Cleanup(conv.Close)

	cfg := Config{
		ImagesDir: filepath.Join(dir, "images"),
		Gatherer:  reg,
		Version:   "test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(conv, cfg)
	return &testEnv{srv: srv, conv: conv, handler: srv.Handler(), images: cfg.ImagesDir}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest("GET", path, nil))
}

func uploadRequest(t *testing.T, filename, content, docType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, content)
	}
	if docType != "" {
		mw.WriteField("doc_type", docType)
	}
	mw.Close()
	req := httptest.NewRequest("POST", "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)
	w := env.get(t, "/v1/health")
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[map[string]string](t, w)
	if got["status"] != "ok" || got["version"] != "test" {
		t.Errorf("body = %v", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestUploadLifecycle(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)

	w := env.do(t, uploadRequest(t, "report.docx", "First paragraph\nSecond paragraph", ""))
	if w.Code != 200 {
		t.Fatalf("upload status = %d: %s", w.Code, w.Body.String())
	}
	accepted := decode[docmodel.StatusPayload](t, w)
	if accepted.ID != "doc-1" || accepted.Filename != "report.docx" ||
		accepted.Type != docmodel.SourceWordProcessor || accepted.Status != docmodel.StatusPending {
		t.Fatalf("accepted = %+v", accepted)
	}
	env.conv.Wait()

	status := decode[docmodel.StatusPayload](t, env.get(t, "/api/status/doc-1"))
	if status.Status != docmodel.StatusCompleted || !strings.Contains(status.Markdown, "Second paragraph") {
		t.Fatalf("status = %+v", status)
	}

	w = env.get(t, "/api/markdown/doc-1")
	if w.Code != 200 || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("markdown: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	md := w.Body.String()
	first, second := strings.Index(md, "First paragraph"), strings.Index(md, "Second paragraph")
	if first < 0 || second < first {
		t.Errorf("markdown = %q", md)
	}

	w = env.get(t, "/api/preview/doc-1")
	if w.Code != 200 || !strings.Contains(w.Body.String(), "<p>First paragraph</p>") {
		t.Errorf("preview: %d\n%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "<title>report.docx</title>") {
		t.Error("preview title missing")
	}

	events := decode[[]convert.Event](t, env.get(t, "/api/status/doc-1/history"))
	if len(events) != 3 || events[2].To != docmodel.StatusCompleted {
		t.Errorf("history = %+v", events)
	}

	list := decode[[]docmodel.StatusPayload](t, env.get(t, "/api/documents"))
	if len(list) != 1 || list[0].ID != "doc-1" || list[0].Markdown != "" {
		t.Errorf("documents = %+v", list)
	}
	completed := decode[[]docmodel.StatusPayload](t, env.get(t, "/api/documents?status=completed"))
	if len(completed) != 1 {
		t.Errorf("completed documents = %+v", completed)
	}
	failed := decode[[]docmodel.StatusPayload](t, env.get(t, "/api/documents?status=failed"))
	if len(failed) != 0 {
		t.Errorf("failed documents = %+v", failed)
	}
}

func TestUpload_Rejected(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)
	tests := []struct {
		name     string
		filename string
		docType  string
		want     int
	}{
		{"legacy doc", "old.doc", "", 400},
		{"no extension", "README", "", 400},
		{"hint mismatch", "scan.png", "pdf", 400},
		{"missing file", "", "", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, uploadRequest(t, tt.filename, "x", tt.docType))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if decode[map[string]string](t, w)["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
	if list := decode[[]docmodel.StatusPayload](t, env.get(t, "/api/documents")); len(list) != 0 {
		t.Errorf("rejected uploads created jobs: %+v", list)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, func(c *Config) { c.MaxFileBytes = 16 })

	big := strings.Repeat("a", multipartSlack+64)
	w := env.do(t, uploadRequest(t, "big.docx", big, ""))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: status = %d", w.Code)
	}

	// WHAT: A file over the cap but inside the multipart slack is refused by the converter.
	conv := convert.New(convert.NewMemoryStore(), lineExtractor{},
		convert.WithUploadsDir(t.TempDir()),
		convert.WithMaxFileBytes(16),
	)
	t.Cleanup(conv.Close)
	h := New(conv, Config{MaxFileBytes: 16}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "big.docx", strings.Repeat("a", 64), ""))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized file: status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMarkdown_NotReady(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, lineExtractor{gate: gate}, nil)

	if w := env.do(t, uploadRequest(t, "slow.docx", "text", "docx")); w.Code != 200 {
		t.Fatalf("upload status = %d", w.Code)
	}

	for _, path := range []string{"/api/markdown/doc-1", "/api/preview/doc-1"} {
		w := env.get(t, path)
		if w.Code != 400 {
			t.Errorf("%s status = %d, want 400", path, w.Code)
		}
		if msg := decode[map[string]string](t, w)["error"]; !strings.Contains(msg, "not complete") {
			t.Errorf("%s error = %q", path, msg)
		}
	}

	close(gate)
	env.conv.Wait()
	if w := env.get(t, "/api/markdown/doc-1"); w.Code != 200 {
		t.Errorf("after completion status = %d", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)
	for _, path := range []string{
		"/api/status/missing",
		"/api/status/a.b",
		"/api/status/missing/history",
		"/api/markdown/missing",
		"/api/preview/missing",
	} {
		if w := env.get(t, path); w.Code != 404 {
			t.Errorf("%s status = %d, want 404", path, w.Code)
		}
	}
	if w := env.get(t, "/api/documents?status=bogus"); w.Code != 400 {
		t.Errorf("bogus status filter = %d, want 400", w.Code)
	}
}

func TestMediaImages(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)
	if err := os.MkdirAll(env.images, 0o755); err != nil {
		t.Fatal(err)
	}
	png := []byte("\x89PNG\r\n\x1a\n0000")
	os.WriteFile(filepath.Join(env.images, "docx_image_1.png"), png, 0o644)
	os.WriteFile(filepath.Join(filepath.Dir(env.images), "secret.txt"), []byte("s"), 0o644)

	w := env.get(t, "/media/images/docx_image_1.png")
	if w.Code != 200 || w.Header().Get("Content-Type") != "image/png" || !bytes.Equal(w.Body.Bytes(), png) {
		t.Fatalf("image: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	for _, path := range []string{
		"/media/images/missing.png",
		"/media/images/..%2Fsecret.txt",
		"/media/images/.hidden",
	} {
		if w := env.get(t, path); w.Code != 404 {
			t.Errorf("%s status = %d, want 404", path, w.Code)
		}
	}
}

func TestIndexAndFormats(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)
	w := env.get(t, "/")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `action="/api/upload"`) {
		t.Fatalf("index: %d", w.Code)
	}
	f := decode[formats](t, env.get(t, "/api/formats"))
	if len(f.Formats) == 0 || len(f.DocTypes) != 4 {
		t.Errorf("formats = %+v", f)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, lineExtractor{}, nil)
	env.do(t, uploadRequest(t, "a.docx", "hello", ""))
	env.conv.Wait()

	w := env.get(t, "/metrics")
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	for _, name := range []string{"mdconv_documents_submitted_total", "mdconv_documents_finished_total", "mdconv_jobs_in_flight"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("missing %s", name)
		}
	}
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	secret := bytes.Repeat([]byte("k"), 32)
	env := newTestEnv(t, lineExtractor{}, func(c *Config) {
		c.Auth = auth.Config{Username: "admin", PasswordHash: string(hash), TokenSecret: secret}
		c.TokenTTL = time.Hour
	})

	if w := env.get(t, "/v1/health"); w.Code != 200 {
		t.Errorf("health behind auth: %d", w.Code)
	}
	if w := env.get(t, "/api/documents"); w.Code != 401 {
		t.Errorf("anonymous /api: %d, want 401", w.Code)
	}
	if w := env.do(t, uploadRequest(t, "a.docx", "x", "")); w.Code != 401 {
		t.Errorf("anonymous upload: %d, want 401", w.Code)
	}
	if w := env.do(t, httptest.NewRequest("POST", "/mcp", strings.NewReader("{}"))); w.Code != 401 {
		t.Errorf("anonymous mcp: %d, want 401", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/documents", nil)
	req.SetBasicAuth("admin", "pw")
	if w := env.do(t, req); w.Code != 200 {
		t.Errorf("basic auth: %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/token", nil)
	req.SetBasicAuth("admin", "pw")
	w := env.do(t, req)
	if w.Code != 200 {
		t.Fatalf("token: %d %s", w.Code, w.Body.String())
	}
	tok := decode[map[string]any](t, w)["token"].(string)

	req = httptest.NewRequest("GET", "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if w := env.do(t, req); w.Code != 200 {
		t.Errorf("bearer: %d", w.Code)
	}
}

func TestTokenRouteDisabledWithoutSecret(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	env := newTestEnv(t, lineExtractor{}, func(c *Config) {
		c.Auth = auth.Config{Username: "admin", PasswordHash: string(hash)}
	})
	req := httptest.NewRequest("POST", "/api/token", nil)
	req.SetBasicAuth("admin", "pw")
	if w := env.do(t, req); w.Code == 200 {
		t.Errorf("token issued without a secret")
	}
}

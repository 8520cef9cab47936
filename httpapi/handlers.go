package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/mdconv/auth"
	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/docpipe"
	"github.com/hazyhaar/mdconv/guard"
	"github.com/hazyhaar/mdconv/kit"
	"github.com/hazyhaar/mdconv/shield"
)

// maxMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const maxMemory = 32 << 20

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var errImageNotFound = errors.New("image not found")

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	doc, err := s.conv.Submit(r.Context(), header.Filename, file, r.FormValue("doc_type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Payload())
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, exp, err := auth.GenerateToken(s.cfg.Auth.TokenSecret, kit.GetUserID(r.Context()), s.cfg.TokenTTL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": exp.UTC(),
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, formatsResponse())
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	limit := min(max(queryInt(r, "limit", defaultListLimit), 1), maxListLimit)

	var (
		docs []*docmodel.Document
		err  error
	)
	if st := r.URL.Query().Get("status"); st != "" {
		status := docmodel.Status(st)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", st))
			return
		}
		docs, err = s.conv.Store().ListByStatus(r.Context(), status)
		if len(docs) > limit {
			docs = docs[:limit]
		}
	} else {
		docs, err = s.conv.Store().List(r.Context(), limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]docmodel.StatusPayload, 0, len(docs))
	for _, d := range docs {
		out = append(out, listPayload(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := s.document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Payload())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.document(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.conv.Store().History(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	doc, err := s.completed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc.Markdown))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, err := s.completed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.preview.Page(doc.Filename, doc.Markdown)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, err := guard.FileIn(s.cfg.ImagesDir, name)
	if err != nil {
		writeError(w, http.StatusNotFound, errImageNotFound)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, errImageNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, errImageNotFound)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, formatsResponse()); err != nil {
		shield.GetLogger(r.Context()).Error("render index", "error", err)
	}
}

// fail writes err with its mapped status. Server errors are logged since
// the client only sees the message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		shield.GetLogger(r.Context()).Error("request failed", "error", err)
	}
	writeError(w, code, err)
}

type formats struct {
	Formats  []string `json:"formats"`
	DocTypes []string `json:"doc_types"`
}

func formatsResponse() formats {
	return formats{
		Formats:  docpipe.SupportedFormats(),
		DocTypes: []string{"pdf", "docx", "odt", "image"},
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

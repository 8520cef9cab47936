package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/mdconv/convert"
	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/guard"
)

// NotReadyError is returned when a document's Markdown is requested before
// the conversion completed.
type NotReadyError struct {
	Status docmodel.Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("document processing is not complete, current status: %s", e.Status)
}

// pollInterval is how often waitDone re-reads a document.
const pollInterval = 100 * time.Millisecond

// document loads id. Ids that could never have been issued are reported as
// not found.
func (s *Server) document(ctx context.Context, id string) (*docmodel.Document, error) {
	if err := guard.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", convert.ErrNotFound, err)
	}
	return s.conv.Store().Get(ctx, id)
}

// completed loads id and requires it to be completed.
func (s *Server) completed(ctx context.Context, id string) (*docmodel.Document, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != docmodel.StatusCompleted {
		return nil, &NotReadyError{Status: doc.Status}
	}
	return doc, nil
}

// waitDone polls id until it is terminal or ctx ends, returning the last
// snapshot read.
func (s *Server) waitDone(ctx context.Context, id string) (*docmodel.Document, error) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		doc, err := s.document(ctx, id)
		if err != nil || doc.Status.Terminal() {
			return doc, err
		}
		select {
		case <-ctx.Done():
			return doc, nil
		case <-t.C:
		}
	}
}

// listPayload returns a payload without the Markdown body.
func listPayload(d *docmodel.Document) docmodel.StatusPayload {
	p := d.Payload()
	p.Markdown = ""
	return p
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var unsupported *docmodel.UnsupportedTypeError
	var notReady *NotReadyError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &unsupported), errors.As(err, &notReady):
		return http.StatusBadRequest
	case errors.Is(err, convert.ErrFileTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, convert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, convert.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CLAUDE:SUMMARY Document store contract and the in-memory implementation; transitions are validated against the status state machine.
// CLAUDE:EXPORTS Store, Event, ErrNotFound, ErrExists, MemoryStore, NewMemoryStore
package convert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/mdconv/docmodel"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Put when the id is already taken.
	ErrExists = errors.New("document already exists")
)

// Store persists documents and their status history. Implementations hand
// out deep copies: mutating a returned document never changes the store.
type Store interface {
	// Put inserts a new pending document.
	Put(ctx context.Context, doc *docmodel.Document) error
	Get(ctx context.Context, id string) (*docmodel.Document, error)
	// Transition moves id to status to. mutate, when non-nil, runs on a copy
	// of the stored document before the target state is validated; the copy
	// is saved only if the transition is legal.
	Transition(ctx context.Context, id string, to docmodel.Status, mutate func(*docmodel.Document)) (*docmodel.Document, error)
	// List returns the most recent documents first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*docmodel.Document, error)
	ListByStatus(ctx context.Context, status docmodel.Status) ([]*docmodel.Document, error)
	// History returns the status events of id, oldest first.
	History(ctx context.Context, id string) ([]Event, error)
	Close() error
}

// Event records one status change.
type Event struct {
	DocumentID string          `json:"document_id"`
	From       docmodel.Status `json:"from,omitempty"`
	To         docmodel.Status `json:"to"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

// applyTransition runs the shared transition logic on a copy of cur.
func applyTransition(cur *docmodel.Document, to docmodel.Status, mutate func(*docmodel.Document), now time.Time) (*docmodel.Document, error) {
	next := cur.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.ID = cur.ID
	next.Status = to
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = now
	if err := docmodel.CheckTransition(next, cur.Status, to); err != nil {
		return nil, err
	}
	return next, nil
}

func checkNew(doc *docmodel.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.Status != docmodel.StatusPending {
		return fmt.Errorf("%w: new document %s must be pending, got %s", docmodel.ErrIllegalTransition, doc.ID, doc.Status)
	}
	return nil
}

// MemoryStore keeps documents in a map. Used when no db_path is configured
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*docmodel.Document
	events map[string][]Event
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*docmodel.Document),
		events: make(map[string][]Event),
		now:    time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, doc *docmodel.Document) error {
	if err := checkNew(doc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, doc.ID)
	}
	c := doc.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.docs[doc.ID] = c
	s.events[doc.ID] = []Event{{DocumentID: doc.ID, To: docmodel.StatusPending, At: c.CreatedAt}}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*docmodel.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to docmodel.Status, mutate func(*docmodel.Document)) (*docmodel.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := applyTransition(cur, to, mutate, s.now())
	if err != nil {
		return nil, err
	}
	s.docs[id] = next
	s.events[id] = append(s.events[id], Event{
		DocumentID: id,
		From:       cur.Status,
		To:         to,
		Error:      next.Error,
		At:         next.UpdatedAt,
	})
	return next.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*docmodel.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*docmodel.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status docmodel.Status) ([]*docmodel.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*docmodel.Document
	for _, d := range s.docs {
		if d.Status == status {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, id string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]Event(nil), ev...), nil
}

func (s *MemoryStore) Close() error { return nil }

// Package memory provides an in-memory persistence.Store implementation.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"golang.org/x/xerrors"
)

// Compile-time check for ensuring InMemoryStore implements Store.
var _ persistence.Store = (*InMemoryStore)(nil)

// InMemoryStore is a persistence.Store implementation backed by maps. It is
// safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	books   map[uuid.UUID]*persistence.Logbook
	details map[uuid.UUID]*persistence.FlowDetail
}

// NewInMemoryStore creates a new in-memory persistence store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		books:   make(map[uuid.UUID]*persistence.Logbook),
		details: make(map[uuid.UUID]*persistence.FlowDetail),
	}
}

// SaveLogbook implements persistence.Store.
func (s *InMemoryStore) SaveLogbook(book *persistence.Logbook) error {
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
		book.CreatedAt = time.Now().UTC()
	}
	book.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	cloned := *book
	s.books[book.ID] = &cloned
	s.mu.Unlock()
	return nil
}

// GetLogbook implements persistence.Store.
func (s *InMemoryStore) GetLogbook(id uuid.UUID) (*persistence.Logbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, exists := s.books[id]
	if !exists {
		return nil, xerrors.Errorf("get logbook: %w", persistence.ErrNotFound)
	}
	cloned := *book
	return &cloned, nil
}

// DeleteLogbook implements persistence.Store.
func (s *InMemoryStore) DeleteLogbook(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[id]; !exists {
		return xerrors.Errorf("delete logbook: %w", persistence.ErrNotFound)
	}
	delete(s.books, id)
	for detailID, detail := range s.details {
		if detail.BookID == id {
			delete(s.details, detailID)
		}
	}
	return nil
}

// SaveFlowDetail implements persistence.Store.
func (s *InMemoryStore) SaveFlowDetail(detail *persistence.FlowDetail) error {
	if detail.ID == uuid.Nil {
		detail.ID = uuid.New()
	}
	detail.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.details[detail.ID] = cloneDetail(detail)
	s.mu.Unlock()
	return nil
}

// GetFlowDetail implements persistence.Store.
func (s *InMemoryStore) GetFlowDetail(id uuid.UUID) (*persistence.FlowDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	detail, exists := s.details[id]
	if !exists {
		return nil, xerrors.Errorf("get flow detail: %w", persistence.ErrNotFound)
	}
	return cloneDetail(detail), nil
}

// ListFlowDetails implements persistence.Store.
func (s *InMemoryStore) ListFlowDetails(bookID uuid.UUID) ([]*persistence.FlowDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*persistence.FlowDetail
	for _, detail := range s.details {
		if detail.BookID == bookID {
			out = append(out, cloneDetail(detail))
		}
	}
	return out, nil
}

func cloneDetail(detail *persistence.FlowDetail) *persistence.FlowDetail {
	cloned := *detail
	if detail.Results != nil {
		cloned.Results = make(map[string]interface{}, len(detail.Results))
		for k, v := range detail.Results {
			cloned.Results[k] = v
		}
	}
	return &cloned
}

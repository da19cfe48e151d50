package documents

import (
	"sync"

	"memodraft/internal/models"
)

// Store is the ordered document list of one session. Entries are never replaced or
// deduplicated.
type Store struct {
	mu   sync.RWMutex
	docs []models.UploadedDocument
}

func NewStore() *Store {
	return &Store{}
}

// Append adds a whole ingestion batch.
func (s *Store) Append(docs ...models.UploadedDocument) {
	if len(docs) == 0 {
		return
	}
	s.mu.Lock()
	s.docs = append(s.docs, docs...)
	s.mu.Unlock()
}

// List returns a copy of the documents in insertion order.
func (s *Store) List() []models.UploadedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.UploadedDocument, len(s.docs))
	copy(out, s.docs)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.docs = nil
	s.mu.Unlock()
}

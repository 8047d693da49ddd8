package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/casebill/casebill/internal/s3"
)

var _ s3.Service = (*InMemoryDocumentStore)(nil)

// InMemoryDocumentStore implements s3.Service on a map
type InMemoryDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*s3.Document
}

func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		documents: make(map[string]*s3.Document),
	}
}

func documentKey(id string, docType s3.DocumentType) string {
	return fmt.Sprintf("%s/%s", docType, id)
}

func (s *InMemoryDocumentStore) UploadDocument(ctx context.Context, document *s3.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[documentKey(document.ID, document.Type)] = document
	return nil
}

func (s *InMemoryDocumentStore) GetPresignedUrl(ctx context.Context, id string, docType s3.DocumentType) (string, error) {
	if ok, _ := s.Exists(ctx, id, docType); !ok {
		return "", notFound(id)
	}
	return "https://documents.test/" + documentKey(id, docType) + ".html", nil
}

func (s *InMemoryDocumentStore) Exists(ctx context.Context, id string, docType s3.DocumentType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[documentKey(id, docType)]
	return ok, nil
}

// Get returns the stored document or nil
func (s *InMemoryDocumentStore) Get(id string, docType s3.DocumentType) *s3.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documents[documentKey(id, docType)]
}

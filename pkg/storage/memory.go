package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshot documents in memory
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	seq  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) CreateAndStore(ctx context.Context, name string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	handle := fmt.Sprintf("%s#%d", name, s.seq)
	s.docs[handle] = append([]byte(nil), content...)
	return handle, nil
}

func (s *MemoryStore) Open(ctx context.Context, handle string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return append([]byte(nil), doc...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, handle)
	return nil
}

// Put stores raw content under a fixed handle
func (s *MemoryStore) Put(handle string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[handle] = append([]byte(nil), content...)
}

// Len returns the number of stored documents
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

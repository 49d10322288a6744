package trifleachievements

import (
	"fmt"
	"sync"
)

// MemoryBlobStore keeps blobs in process memory. A positive Quota caps the
// total number of bytes held, mimicking browser-style storage limits.
type MemoryBlobStore struct {
	Quota int64

	mu   sync.Mutex
	data map[string]string
}

// NewMemoryBlobStore creates an unbounded in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{data: map[string]string{}}
}

func (s *MemoryBlobStore) Description() string {
	if s.Quota > 0 {
		return fmt.Sprintf("MemoryBlobStore(%d)", s.Quota)
	}
	return "MemoryBlobStore"
}

// Load returns the blob stored under key.
func (s *MemoryBlobStore) Load(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok, nil
}

// Save stores data under key, failing with QuotaExceeded when it does not fit.
func (s *MemoryBlobStore) Save(key string, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = map[string]string{}
	}
	if s.Quota > 0 {
		total := int64(len(key) + len(data))
		for k, v := range s.data {
			if k == key {
				continue
			}
			total += int64(len(k) + len(v))
		}
		if total > s.Quota {
			return NewQuotaExceededError(total-s.Quota, nil)
		}
	}
	s.data[key] = data
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *MemoryBlobStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

// MemoryStore keeps the serialized state in process. A zero ttl never
// expires.
type MemoryStore struct {
	mu        sync.RWMutex
	data      []byte
	expiresAt time.Time
	ttl       time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl}
}

func (ms *MemoryStore) Load(ctx context.Context) (*session.State, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.data == nil {
		return nil, ErrNotFound
	}

	if !ms.expiresAt.IsZero() && time.Now().After(ms.expiresAt) {
		return nil, ErrNotFound
	}

	return session.Unmarshal(ms.data)
}

func (ms *MemoryStore) Save(ctx context.Context, s *session.State) error {
	data, err := session.Marshal(s)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.data = data
	ms.expiresAt = time.Time{}
	if ms.ttl > 0 {
		ms.expiresAt = time.Now().Add(ms.ttl)
	}

	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.data = nil
	ms.expiresAt = time.Time{}
	return nil
}

func (ms *MemoryStore) Type() string {
	return "memory"
}

func (ms *MemoryStore) Close() error {
	return nil
}

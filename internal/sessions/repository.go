package sessions

import (
	"context"
	"sync"
	"time"
)

// Repository provides session persistence operations. Lookups of unknown
// tokens return (nil, nil).
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByRefresh(ctx context.Context, refresh string) (*Session, error)
	DeleteByRefresh(ctx context.Context, refresh string) error
	// DeleteBySub drops every session of one subject.
	DeleteBySub(ctx context.Context, sub string) error
}

// MemoryRepository keeps sessions in process.
type MemoryRepository struct {
	mu    sync.Mutex
	store map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: map[string]Session{}}
}

func (r *MemoryRepository) Create(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(7 * 24 * time.Hour)
	}
	r.mu.Lock()
	r.store[s.RefreshToken] = *s
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.store[refresh]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	r.mu.Lock()
	delete(r.store, refresh)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeleteBySub(ctx context.Context, sub string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range r.store {
		if s.Sub == sub {
			delete(r.store, k)
		}
	}
	return nil
}

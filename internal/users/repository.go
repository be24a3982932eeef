package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrUsernameTaken = errors.New("Username already exists")

// UserRepository defines persistence operations for accounts. Lookups of
// unknown accounts return (nil, nil).
type UserRepository interface {
	Create(ctx context.Context, a *Account) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByID(ctx context.Context, id int) (*Account, error)
}

// MemoryUserRepository keeps accounts in process. Usernames are unique
// case-insensitively.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*Account
	byName map[string]int
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{nextID: 1, byID: map[int]*Account{}, byName: map[string]int{}}
}

func (r *MemoryUserRepository) Create(ctx context.Context, a *Account) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(a.Username)
	if _, ok := r.byName[key]; ok {
		return nil, ErrUsernameTaken
	}
	cp := *a
	cp.ID = r.nextID
	r.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.byID[cp.ID] = &cp
	r.byName[key] = cp.ID
	out := cp
	return &out, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[strings.ToLower(username)]
	if !ok {
		return nil, nil
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id int) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

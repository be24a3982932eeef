package credentials

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meowchat/meowchat/webclient/internal/models"
)

// Credential proves identity to the backend. Token is empty when the session
// rides on an HTTP-only cookie instead.
type Credential struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IsZero reports whether no credential is held.
func (c Credential) IsZero() bool {
	return c.Token == "" && c.RefreshToken == ""
}

// ExpiresAt returns the exp claim when the token happens to be a JWT.
// Opaque tokens report ok=false; the client never relies on this for access decisions.
func (c Credential) ExpiresAt() (time.Time, bool) {
	if c.Token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// State is everything persisted between runs: enough to answer "was I logged
// in" without a round trip. Passwords are never part of it.
type State struct {
	LoggedIn   bool                 `json:"logged_in"`
	User       *models.UserSnapshot `json:"user,omitempty"`
	Credential Credential           `json:"credential"`
	SavedAt    time.Time            `json:"saved_at"`
}

// ErrNotLoggedIn is returned by Load when nothing has been persisted.
var ErrNotLoggedIn = errors.New("not logged in")

// Store persists the client's credential state. Implementations do no network
// I/O towards the chat backend.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps state for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, ErrNotLoggedIn
	}
	return m.state.clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.clone()
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	m.state = c
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

func (s *State) clone() *State {
	c := *s
	c.User = s.User.Clone()
	return &c
}

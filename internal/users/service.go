package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrPasswordMismatch   = errors.New("Passwords don't match")
)

// FieldError is a validation failure on one registration field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// Registration is the account creation form as the backend receives it.
type Registration struct {
	Username        string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

// Service encapsulates account logic.
type Service struct {
	repo UserRepository
	cost int
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, cost: bcrypt.MinCost}
}

// Register validates the form and creates the account.
func (s *Service) Register(ctx context.Context, reg Registration) (*Account, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	if reg.Username == "" {
		return nil, &FieldError{Field: "username", Message: "This field is required."}
	}
	if len(reg.Password) < 4 {
		return nil, &FieldError{Field: "password", Message: "Ensure this field has at least 4 characters."}
	}
	if reg.Password != reg.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a, err := s.repo.Create(ctx, &Account{
		Username:     reg.Username,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PasswordHash: hash,
	})
	if errors.Is(err, ErrUsernameTaken) {
		return nil, &FieldError{Field: "username", Message: ErrUsernameTaken.Error()}
	}
	return a, err
}

// Authenticate returns the account for a matching username and password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if a == nil || bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

func (s *Service) GetByID(ctx context.Context, id int) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// Lookup returns the account for username, or nil.
func (s *Service) Lookup(ctx context.Context, username string) (*Account, error) {
	return s.repo.GetByUsername(ctx, username)
}

package session

import (
	"fmt"
	"strings"

	"github.com/meowchat/meowchat/webclient/internal/credentials"
	"github.com/meowchat/meowchat/webclient/internal/models"
)

// Status is the derived belief about authentication.
type Status int

const (
	StatusUnknown Status = iota
	StatusLoading
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Session is a snapshot of the client's belief. While IsLoading is true,
// IsLoggedIn is not authoritative and must not drive access decisions.
type Session struct {
	IsLoggedIn bool                 `json:"isLoggedIn"`
	IsLoading  bool                 `json:"isLoading"`
	User       *models.UserSnapshot `json:"user,omitempty"`
	// Resolved is false until the belief has been established once by a
	// verify, a login or a logout.
	Resolved bool `json:"resolved"`
}

func (s Session) Status() Status {
	switch {
	case s.IsLoading:
		return StatusLoading
	case !s.Resolved:
		return StatusUnknown
	case s.IsLoggedIn:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}

// RegisterRequest is the account creation form.
type RegisterRequest struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerBody struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

type userPayload struct {
	ID          any    `json:"id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

// authPayload covers login, verify and refresh responses.
type authPayload struct {
	Authenticated *bool        `json:"authenticated"`
	Token         string       `json:"token"`
	Access        string       `json:"access"`
	RefreshToken  string       `json:"refresh_token"`
	Refresh       string       `json:"refresh"`
	UserID        any          `json:"user_id"`
	Username      string       `json:"username"`
	User          *userPayload `json:"user"`
}

func (p authPayload) accessToken() string {
	if p.Token != "" {
		return p.Token
	}
	return p.Access
}

func (p authPayload) refreshToken() string {
	if p.RefreshToken != "" {
		return p.RefreshToken
	}
	return p.Refresh
}

func (p authPayload) credential() credentials.Credential {
	return credentials.Credential{Token: p.accessToken(), RefreshToken: p.refreshToken()}
}

// snapshot returns the identity the server asserted, or nil when the payload
// carries none. The result always replaces the cached user as a whole.
func (p authPayload) snapshot() *models.UserSnapshot {
	if p.User != nil {
		u := &models.UserSnapshot{ID: idString(p.User.ID), Username: p.User.Username}
		u.DisplayName = p.User.DisplayName
		if u.DisplayName == "" {
			u.DisplayName = strings.TrimSpace(p.User.FirstName + " " + p.User.LastName)
		}
		if !u.Empty() {
			return u
		}
	}
	u := &models.UserSnapshot{ID: idString(p.UserID), Username: p.Username}
	if u.Empty() {
		return nil
	}
	return u
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}

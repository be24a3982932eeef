package sessions

import "time"

// Session is a refresh session issued by the dev backend. The refresh token
// is its key; Sub is the account id.
type Session struct {
	RefreshToken string    `json:"refreshToken"`
	Sub          string    `json:"sub"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

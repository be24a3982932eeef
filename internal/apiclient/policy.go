package apiclient

import (
	"net/http"

	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/credentials"
)

const (
	SchemeToken  = "Token"
	SchemeBearer = "Bearer"
)

// AttachPolicy decides how a credential rides on an outgoing request.
type AttachPolicy interface {
	Attach(req *http.Request, cred credentials.Credential)
}

// HeaderPolicy sends "Authorization: <Scheme> <token>".
type HeaderPolicy struct {
	Scheme string
}

func (p HeaderPolicy) Attach(req *http.Request, cred credentials.Credential) {
	if cred.Token == "" {
		return
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = SchemeToken
	}
	req.Header.Set("Authorization", scheme+" "+cred.Token)
}

// CookiePolicy attaches nothing; the HTTP-only cookie in the jar carries the session.
type CookiePolicy struct{}

func (CookiePolicy) Attach(*http.Request, credentials.Credential) {}

// PolicyForMode maps an AUTH_MODE value to its policy.
func PolicyForMode(mode string) AttachPolicy {
	switch mode {
	case config.ModeBearer:
		return HeaderPolicy{Scheme: SchemeBearer}
	case config.ModeCookie:
		return CookiePolicy{}
	default:
		return HeaderPolicy{Scheme: SchemeToken}
	}
}

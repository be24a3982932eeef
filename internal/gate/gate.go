package gate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/membership"
	"github.com/meowchat/meowchat/webclient/internal/session"
)

// Decision is what a protected view should do right now.
type Decision int

const (
	// Defer renders a neutral placeholder: no content and no redirect.
	Defer Decision = iota
	Redirect
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Redirect:
		return "redirect"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	}
	return "defer"
}

// Context keys set by the middlewares for downstream handlers.
const (
	SessionKey  = "session"
	ServerIDKey = "serverId"
)

type SessionSource interface {
	Session() session.Session
}

type MembershipChecker interface {
	IsMember(ctx context.Context, serverID int) (bool, error)
}

// Decide maps a session belief onto a decision. It never allows while the
// belief is unknown or loading, and never redirects while loading.
func Decide(s session.Session) Decision {
	switch s.Status() {
	case session.StatusAuthenticated:
		return Allow
	case session.StatusUnauthenticated:
		return Redirect
	default:
		return Defer
	}
}

// DecideMembership additionally requires membership in serverID. The checker
// is not consulted until the session has settled.
func DecideMembership(ctx context.Context, s session.Session, checker MembershipChecker, serverID int) (Decision, error) {
	if d := Decide(s); d != Allow {
		return d, nil
	}
	ok, err := checker.IsMember(ctx, serverID)
	switch {
	case errors.Is(err, membership.ErrSessionPending):
		return Defer, nil
	case err != nil && ctx.Err() != nil:
		return Defer, ctx.Err()
	case err != nil:
		return Deny, err
	case !ok:
		return Deny, nil
	}
	return Allow, nil
}

// RequireSession guards a route on the session belief.
func RequireSession(src SessionSource, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := src.Session()
		switch Decide(s) {
		case Allow:
			c.Set(SessionKey, s)
			c.Next()
		case Redirect:
			redirectToLogin(c, loginPath)
		default:
			placeholder(c)
		}
	}
}

// RequireMembership guards a route on membership in the server named by the
// given path parameter. Chain it after RequireSession.
func RequireMembership(src SessionSource, checker MembershipChecker, param, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param(param))
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
			return
		}

		ctx := c.Request.Context()
		d, err := DecideMembership(ctx, src.Session(), checker, id)
		if ctx.Err() != nil {
			// the caller went away; nothing to render
			c.Abort()
			return
		}
		switch d {
		case Allow:
			c.Set(ServerIDKey, id)
			c.Next()
		case Redirect:
			redirectToLogin(c, loginPath)
		case Deny:
			body := gin.H{"error": "You are not a member of this server"}
			if err != nil {
				body["details"] = err.Error()
			}
			c.AbortWithStatusJSON(http.StatusForbidden, body)
		default:
			placeholder(c)
		}
	}
}

func placeholder(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": "loading"})
}

func redirectToLogin(c *gin.Context, loginPath string) {
	if loginPath == "" {
		loginPath = "/login"
	}
	target := loginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

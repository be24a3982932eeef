package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/membership"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/stretchr/testify/require"
)

var (
	unknown       = session.Session{IsLoggedIn: true}
	loading       = session.Session{IsLoggedIn: true, IsLoading: true, Resolved: true}
	authenticated = session.Session{IsLoggedIn: true, Resolved: true}
	anonymous     = session.Session{Resolved: true}
)

type fixedSession session.Session

func (f fixedSession) Session() session.Session { return session.Session(f) }

type fakeChecker struct {
	member bool
	err    error
	calls  int
}

func (f *fakeChecker) IsMember(ctx context.Context, serverID int) (bool, error) {
	f.calls++
	return f.member, f.err
}

func TestDecide(t *testing.T) {
	require.Equal(t, Defer, Decide(unknown))
	require.Equal(t, Defer, Decide(loading))
	require.Equal(t, Defer, Decide(session.Session{IsLoading: true, Resolved: true}), "loading never redirects")
	require.Equal(t, Allow, Decide(authenticated))
	require.Equal(t, Redirect, Decide(anonymous))
}

func TestDecideMembership(t *testing.T) {
	ctx := context.Background()

	chk := &fakeChecker{member: true}
	d, err := DecideMembership(ctx, loading, chk, 7)
	require.NoError(t, err)
	require.Equal(t, Defer, d)
	require.Zero(t, chk.calls, "no lookup while the session is loading")

	d, _ = DecideMembership(ctx, anonymous, chk, 7)
	require.Equal(t, Redirect, d)
	require.Zero(t, chk.calls)

	d, err = DecideMembership(ctx, authenticated, chk, 7)
	require.NoError(t, err)
	require.Equal(t, Allow, d)
	require.Equal(t, 1, chk.calls)

	d, _ = DecideMembership(ctx, authenticated, &fakeChecker{member: false}, 7)
	require.Equal(t, Deny, d)

	d, err = DecideMembership(ctx, authenticated, &fakeChecker{err: membership.ErrSessionPending}, 7)
	require.NoError(t, err)
	require.Equal(t, Defer, d)

	boom := errors.New("lookup failed")
	d, err = DecideMembership(ctx, authenticated, &fakeChecker{err: boom}, 7)
	require.ErrorIs(t, err, boom)
	require.Equal(t, Deny, d)
}

func setupRouter(s session.Session, chk MembershipChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	src := fixedSession(s)
	servers := r.Group("/servers", RequireSession(src, "/login"))
	servers.GET("/:serverId", RequireMembership(src, chk, "serverId", "/login"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"server": c.GetInt(ServerIDKey)})
	})
	return r
}

func TestRequireSession_Responses(t *testing.T) {
	cases := []struct {
		name     string
		sess     session.Session
		wantCode int
	}{
		{"unknown shows placeholder", unknown, http.StatusAccepted},
		{"loading shows placeholder", loading, http.StatusAccepted},
		{"anonymous redirects", anonymous, http.StatusFound},
		{"authenticated passes", authenticated, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(tc.sess, &fakeChecker{member: true})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/servers/7", nil)
			r.ServeHTTP(w, req)

			require.Equal(t, tc.wantCode, w.Code)
			switch tc.wantCode {
			case http.StatusAccepted:
				require.Equal(t, "1", w.Header().Get("Retry-After"))
				require.JSONEq(t, `{"status":"loading"}`, w.Body.String())
			case http.StatusFound:
				require.Equal(t, "/login?next=%2Fservers%2F7", w.Header().Get("Location"))
			case http.StatusOK:
				require.JSONEq(t, `{"server":7}`, w.Body.String())
			}
		})
	}
}

func TestRequireMembership_Denies(t *testing.T) {
	r := setupRouter(authenticated, &fakeChecker{member: false})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/7", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "not a member")
}

func TestRequireMembership_BadID(t *testing.T) {
	r := setupRouter(authenticated, &fakeChecker{member: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/abc", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireMembership_CancelledRequestAbortsSilently(t *testing.T) {
	chk := &fakeChecker{err: context.Canceled}
	r := setupRouter(authenticated, chk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/7", nil).WithContext(ctx))

	require.Empty(t, w.Body.String())
	require.NotEqual(t, http.StatusForbidden, w.Code)
}

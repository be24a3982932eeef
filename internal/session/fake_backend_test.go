package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/credentials"
	"github.com/stretchr/testify/require"
)

var testEndpoints = config.EndpointsConfig{
	Login:      "/api/auth/login/",
	Register:   "/api/auth/register/",
	Verify:     "/api/auth/verify/",
	Refresh:    "/api/token/refresh/",
	Logout:     "/api/auth/logout/",
	Membership: "/api/membership/",
}

// fakeBackend is a scriptable stand-in for the chat backend.
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	validToken    string
	refreshIssues string
	refreshStatus int
	verifyStatus  int
	logoutStatus  int
	verifyGate    chan struct{}
	refreshGate   chan struct{}
	logoutGate    chan struct{}
	logoutAuth    string
	hits          map[string]int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fb := &fakeBackend{validToken: "good", refreshIssues: "good", hits: map[string]int{}}

	r := gin.New()
	r.POST(testEndpoints.Login, fb.login)
	r.POST(testEndpoints.Register, fb.register)
	r.GET(testEndpoints.Verify, fb.verify)
	r.POST(testEndpoints.Refresh, fb.refresh)
	r.POST(testEndpoints.Logout, fb.logout)

	fb.srv = httptest.NewServer(r)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) hit(name string) {
	fb.mu.Lock()
	fb.hits[name]++
	fb.mu.Unlock()
}

func (fb *fakeBackend) count(name string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.hits[name]
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

func (fb *fakeBackend) login(c *gin.Context) {
	fb.hit("login")
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}
	if body.Password != "secret" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	fb.mu.Lock()
	tok := fb.validToken
	fb.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"token":         tok,
		"refresh_token": "r1",
		"user_id":       1,
		"username":      body.Username,
		"user":          gin.H{"id": 1, "username": body.Username, "first_name": "Alice", "last_name": "Smith"},
	})
}

func (fb *fakeBackend) register(c *gin.Context) {
	fb.hit("register")
	var body map[string]string
	_ = c.ShouldBindJSON(&body)
	if body["password"] != body["confirm_password"] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords don't match"})
		return
	}
	if body["username"] == "taken" {
		c.JSON(http.StatusBadRequest, gin.H{"username": []string{"A user with that username already exists."}})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": 2, "username": body["username"]})
}

func (fb *fakeBackend) verify(c *gin.Context) {
	fb.hit("verify")
	fb.mu.Lock()
	gate, status, tok := fb.verifyGate, fb.verifyStatus, fb.validToken
	fb.mu.Unlock()
	wait(gate)
	if status != 0 {
		c.JSON(status, gin.H{"detail": "backend trouble"})
		return
	}
	if c.GetHeader("Authorization") != "Token "+tok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user_id": 1, "username": "alice"})
}

func (fb *fakeBackend) refresh(c *gin.Context) {
	fb.hit("refresh")
	fb.mu.Lock()
	gate, status, issue := fb.refreshGate, fb.refreshStatus, fb.refreshIssues
	fb.mu.Unlock()
	wait(gate)
	if status != 0 && status != http.StatusOK {
		c.JSON(status, gin.H{"detail": "Token is invalid or expired"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": issue})
}

func (fb *fakeBackend) logout(c *gin.Context) {
	fb.hit("logout")
	fb.mu.Lock()
	fb.logoutAuth = c.GetHeader("Authorization")
	gate, status := fb.logoutGate, fb.logoutStatus
	fb.mu.Unlock()
	wait(gate)
	if status != 0 {
		c.JSON(status, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

type harness struct {
	fb    *fakeBackend
	store *credentials.MemoryStore
	m     *Manager
	navs  atomic.Int32
}

func newHarness(t *testing.T, persisted *credentials.State) *harness {
	t.Helper()
	h := &harness{fb: newFakeBackend(t), store: credentials.NewMemoryStore()}
	if persisted != nil {
		require.NoError(t, h.store.Save(context.Background(), persisted))
	}
	client, err := apiclient.New(apiclient.Options{
		BaseURL:          h.fb.srv.URL,
		Policy:           apiclient.HeaderPolicy{Scheme: apiclient.SchemeToken},
		ForbiddenLogsOut: true,
	})
	require.NoError(t, err)

	redirect := apiclient.NewRedirector(apiclient.NavigatorFunc(func(string) { h.navs.Add(1) }), "/login")
	h.m = NewManager(context.Background(), client, h.store, Options{
		Endpoints:      testEndpoints,
		VerifyTimeout:  2 * time.Second,
		RefreshTimeout: 2 * time.Second,
		LogoutTimeout:  2 * time.Second,
		Redirector:     redirect,
	})
	t.Cleanup(h.m.Close)
	return h
}

func persistedLogin(token string) *credentials.State {
	return &credentials.State{
		LoggedIn:   true,
		Credential: credentials.Credential{Token: token, RefreshToken: "r1"},
	}
}

package backendstub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/sessions"
	"github.com/meowchat/meowchat/webclient/internal/tokens"
	"github.com/meowchat/meowchat/webclient/internal/users"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/meowchat/meowchat/webclient/pkg/middleware"
	"github.com/redis/go-redis/v9"
)

var log = logger.Named("backendstub")

// Cookie names used when the client runs with the cookie policy.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

type Options struct {
	Endpoints  config.EndpointsConfig
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Redis, when set, holds refresh sessions and the logout blacklist.
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
}

func OptionsFromConfig(cfg *config.Config, client *redis.Client) Options {
	return Options{
		Endpoints: cfg.Endpoints,
		Secret:    cfg.DevBackend.Secret,
		AccessTTL: cfg.DevBackend.AccessTokenTTL,
		Redis:     client,
		RateLimit: cfg.RateLimit,
	}
}

// Backend is an in-memory implementation of the chat backend's auth and
// membership API.
type Backend struct {
	opts      Options
	issuer    *tokens.Issuer
	users     *users.Service
	sessions  *sessions.Service
	blacklist sessions.Blacklist
	auth      middleware.AuthOptions

	mu      sync.Mutex
	nextID  int
	servers map[int]*server
}

type server struct {
	ID      int
	Name    string
	OwnerID int
	Members map[int]bool
}

func New(opts Options) *Backend {
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	var repo sessions.Repository = sessions.NewMemoryRepository()
	if opts.Redis != nil {
		repo = sessions.NewRedisRepository(opts.Redis, "meowchat:stub:session:")
	}
	b := &Backend{
		opts:      opts,
		issuer:    tokens.NewIssuer(opts.Secret, opts.AccessTTL),
		users:     users.NewService(users.NewMemoryUserRepository()),
		sessions:  sessions.NewService(repo),
		blacklist: sessions.NewBlacklist(opts.Redis),
		nextID:    1,
		servers:   map[int]*server{},
	}
	b.auth = middleware.AuthOptions{
		Schemes: []string{"Token", "Bearer"},
		Cookie:  AccessCookie,
		Revoked: b.blacklist.Contains,
	}
	return b
}

// Handler returns a standalone router serving the API.
func (b *Backend) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if rl := middleware.RateLimit(b.opts.RateLimit, b.opts.Redis); rl != nil {
		r.Use(rl)
	}
	b.Register(r)
	return r
}

// Register mounts the API routes on r.
func (b *Backend) Register(r gin.IRouter) {
	ep := b.opts.Endpoints
	authed := middleware.AuthMiddleware(b, b.auth)

	r.POST(ep.Login, b.login)
	r.POST(ep.Register, b.register)
	r.GET(ep.Verify, authed, b.verify)
	r.POST(ep.Refresh, b.refresh)
	r.POST(ep.Logout, b.logout)

	m := r.Group(ep.Membership, authed)
	m.GET(":id/is_member/", b.isMember)
	m.POST(":id/", b.join)
	m.DELETE(":id/remove_member/", b.leave)
}

// Verify implements middleware.Verifier.
func (b *Backend) Verify(ctx context.Context, raw string) (map[string]interface{}, error) {
	claims, err := b.issuer.Parse(raw)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}(claims), nil
}

// AddUser registers an account directly.
func (b *Backend) AddUser(ctx context.Context, username, password string) (*users.Account, error) {
	return b.users.Register(ctx, users.Registration{Username: username, Password: password, ConfirmPassword: password})
}

// CreateServer creates a server owned by ownerID, who becomes its first member.
func (b *Backend) CreateServer(name string, ownerID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.servers[id] = &server{ID: id, Name: name, OwnerID: ownerID, Members: map[int]bool{ownerID: true}}
	return id
}

// AddMember puts userID into serverID.
func (b *Backend) AddMember(serverID, userID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.servers[serverID]
	if !ok {
		return fmt.Errorf("server %d not found", serverID)
	}
	s.Members[userID] = true
	return nil
}

// ExpireAccessTokens makes every outstanding access token fail with 401.
func (b *Backend) ExpireAccessTokens() {
	b.issuer.Expire()
	log.Infof("all access tokens expired")
}

// RevokeRefresh ends the refresh sessions of username so the next refresh
// fails.
func (b *Backend) RevokeRefresh(ctx context.Context, username string) error {
	a, err := b.users.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("user %q not found", username)
	}
	return b.sessions.RevokeSubject(ctx, a.Sub())
}

// Seed creates a demo account and two servers for local runs.
func (b *Backend) Seed(ctx context.Context) error {
	admin, err := b.AddUser(ctx, "admin", "admin1234")
	if err != nil {
		return err
	}
	demo, err := b.AddUser(ctx, "demo", "demo1234")
	if err != nil {
		return err
	}
	lobby := b.CreateServer("Lobby", admin.ID)
	if err := b.AddMember(lobby, demo.ID); err != nil {
		return err
	}
	b.CreateServer("Demo's corner", demo.ID)
	log.Infof("seeded dev backend: users=admin,demo servers=2")
	return nil
}

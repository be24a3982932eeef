package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/backendstub"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/credentials"
	"github.com/meowchat/meowchat/webclient/internal/membership"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.Named("app")

// Runtime is the single set of session components a process runs with.
type Runtime struct {
	Config     *config.Config
	Redis      *redis.Client
	Store      credentials.Store
	Client     *apiclient.Client
	Redirector *apiclient.Redirector
	Sessions   *session.Manager
	Scheduler  *session.Scheduler
	Membership *membership.Cache
	// Backend is set when the in-process dev backend is enabled.
	Backend *backendstub.Backend

	devServer *http.Server
}

// New builds the runtime from cfg. nav receives login navigations; it may
// be nil. Call Start to arm the refresh scheduler and Close when done.
func New(ctx context.Context, cfg *config.Config, nav apiclient.Navigator) (*Runtime, error) {
	c := *cfg
	rt := &Runtime{Config: &c}

	if c.Redis.Host != "" {
		rt.Redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr(), Password: c.Redis.Password, DB: c.Redis.DB})
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			log.Warnf("failed to connect to Redis (%s): %v", c.RedisAddr(), err)
		} else {
			log.Infof("connected to Redis %s", c.RedisAddr())
		}
	}

	if c.DevBackend.Enabled {
		url, err := rt.startDevBackend(ctx)
		if err != nil {
			rt.Close()
			return nil, err
		}
		c.Backend.BaseURL = url
	}

	store, err := NewStore(&c, rt.Redis)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store

	client, err := apiclient.New(apiclient.OptionsFromConfig(&c))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Client = client
	rt.Redirector = apiclient.NewRedirector(nav, c.Auth.LoginPath)
	rt.Sessions = session.NewManager(ctx, client, store, session.OptionsFromConfig(&c, rt.Redirector))
	rt.Scheduler = session.NewScheduler(rt.Sessions, c.Auth.RefreshInterval)
	rt.Membership = membership.New(client, rt.Sessions, membership.OptionsFromConfig(&c))
	rt.Sessions.OnLogout(rt.Membership.Purge)

	log.Infof("runtime ready: backend=%s mode=%s store=%s", c.Backend.BaseURL, c.Auth.Mode, c.Store.Driver)
	return rt, nil
}

// NewStore opens the credential store selected by cfg.Store.Driver.
func NewStore(cfg *config.Config, client *redis.Client) (credentials.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return credentials.NewMemoryStore(), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis store selected but no Redis client is configured")
		}
		return credentials.NewRedisStore(client, cfg.Store.KeyPrefix), nil
	case "file", "":
		return credentials.NewFileStore(cfg.Store.Path)
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

// Start arms the proactive refresh scheduler.
func (rt *Runtime) Start() {
	rt.Scheduler.Start()
}

// Close stops background work and waits for pending logout notifications.
func (rt *Runtime) Close() {
	if rt.Scheduler != nil {
		rt.Scheduler.Stop()
	}
	if rt.Sessions != nil {
		rt.Sessions.Close()
	}
	if rt.devServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = rt.devServer.Shutdown(ctx)
		cancel()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}

func (rt *Runtime) startDevBackend(ctx context.Context) (string, error) {
	b := backendstub.New(backendstub.OptionsFromConfig(rt.Config, rt.Redis))
	if err := b.Seed(ctx); err != nil {
		return "", fmt.Errorf("failed to seed dev backend: %w", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to listen for dev backend: %w", err)
	}
	rt.Backend = b
	rt.devServer = &http.Server{Handler: b.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := rt.devServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("dev backend stopped: %v", err)
		}
	}()
	url := "http://" + ln.Addr().String()
	log.Warnf("using in-process dev backend at %s (not for production)", url)
	return url, nil
}

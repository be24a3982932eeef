package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/credentials"
	"github.com/meowchat/meowchat/webclient/internal/models"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/meowchat/meowchat/webclient/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

var log = logger.Named("session")

// ErrSuperseded is returned by Login when a newer session operation started
// before it completed; its result was discarded.
var ErrSuperseded = errors.New("superseded by a newer session operation")

const storeTimeout = 5 * time.Second

// Options configures a Manager.
type Options struct {
	Endpoints      config.EndpointsConfig
	VerifyTimeout  time.Duration
	RefreshTimeout time.Duration
	// LogoutTimeout bounds the background server notification.
	LogoutTimeout time.Duration
	Redirector    *apiclient.Redirector
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config, r *apiclient.Redirector) Options {
	return Options{
		Endpoints:      cfg.Endpoints,
		VerifyTimeout:  cfg.Backend.VerifyTimeout,
		RefreshTimeout: cfg.Backend.RefreshTimeout,
		LogoutTimeout:  cfg.Backend.RequestTimeout,
		Redirector:     r,
	}
}

// Manager is the single source of truth for "am I logged in". It owns the
// in-memory credential cell and keeps the persisted state in step with it.
//
// Every belief-changing operation takes a sequence number when it starts; a
// completion is applied only if no newer operation has started since. Logout
// is its own operation and always applies. Credential writes from a refresh
// are dropped if a login or logout changed the credential epoch meanwhile.
type Manager struct {
	client   *apiclient.Client
	store    credentials.Store
	redirect *apiclient.Redirector
	opts     Options

	group singleflight.Group

	mu         sync.Mutex
	sess       Session
	cred       credentials.Credential
	seq        uint64
	latestDone bool
	epoch      uint64
	refreshing bool
	subs       map[int]func(Session)
	nextSub    int
	onLogout   []func()

	storeMu  sync.Mutex
	notifyMu sync.Mutex
	bg       sync.WaitGroup
}

// NewManager reads the persisted state for a fast initial belief and
// installs itself as the client's Authority.
func NewManager(ctx context.Context, client *apiclient.Client, store credentials.Store, opts Options) *Manager {
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 5 * time.Second
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}
	if opts.LogoutTimeout <= 0 {
		opts.LogoutTimeout = 10 * time.Second
	}
	if opts.Redirector == nil {
		opts.Redirector = apiclient.NewRedirector(nil, "")
	}
	m := &Manager{
		client:     client,
		store:      store,
		redirect:   opts.Redirector,
		opts:       opts,
		latestDone: true,
		subs:       make(map[int]func(Session)),
	}

	st, err := store.Load(ctx)
	switch {
	case err == nil && st.LoggedIn:
		m.sess = Session{IsLoggedIn: true, User: st.User.Clone()}
		m.cred = st.Credential
		log.Debugf("restored persisted session user=%s", userName(st))
	case err != nil && !errors.Is(err, credentials.ErrNotLoggedIn):
		log.Warnf("failed to read persisted session, starting logged out: %v", err)
	}

	client.SetAuthority(m)
	return m
}

// Session returns the current belief.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Session {
	s := m.sess
	s.User = m.sess.User.Clone()
	s.IsLoading = !m.latestDone || m.refreshing
	return s
}

// Credential implements apiclient.Authority.
func (m *Manager) Credential() credentials.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred
}

// Subscribe registers fn to be called after every belief change. Listeners
// run synchronously and must not call Login, Logout or VerifySession.
func (m *Manager) Subscribe(fn func(Session)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// OnLogout registers a hook run on every local teardown.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// VerifySession establishes the belief. Without any local sign of a prior
// login it resolves to logged out immediately; otherwise concurrent callers
// share one verify call. A cancelled ctx returns the current belief early.
func (m *Manager) VerifySession(ctx context.Context) Session {
	m.mu.Lock()
	if !m.sess.IsLoggedIn && m.cred.IsZero() && m.latestDone {
		changed := !m.sess.Resolved
		m.sess = Session{Resolved: true}
		s := m.snapshotLocked()
		m.mu.Unlock()
		if changed {
			m.publish()
		}
		return s
	}
	m.mu.Unlock()

	ch := m.group.DoChan("verify", func() (any, error) {
		m.verify()
		return nil, nil
	})
	select {
	case <-ch:
	case <-ctx.Done():
	}
	return m.Session()
}

func (m *Manager) verify() {
	op := m.begin()
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.VerifyTimeout)
	defer cancel()

	resp, err := m.client.Get(ctx, m.opts.Endpoints.Verify)
	var payload authPayload
	if err == nil {
		if derr := resp.Decode(&payload); derr != nil {
			log.Warnf("verify returned an unreadable body: %v", derr)
		}
		if payload.Authenticated != nil && !*payload.Authenticated {
			err = &apiclient.StatusError{StatusCode: http.StatusUnauthorized, Message: "not authenticated", Method: http.MethodGet, Path: m.opts.Endpoints.Verify}
		}
	}

	switch {
	case err == nil:
		user := payload.snapshot()
		applied := m.end(op, func() {
			m.sess.IsLoggedIn = true
			m.sess.Resolved = true
			if user != nil {
				m.sess.User = user
			}
		})
		if applied {
			m.syncStore()
			m.redirect.BeginEpisode()
			log.Debugf("session verified user=%s", userName(m.persistedView()))
		}

	case errors.Is(err, apiclient.ErrUnauthorized) || errors.Is(err, apiclient.ErrForbidden):
		// A 401 has already been through refresh, and a refresh failure has
		// already torn the session down; that logout superseded this op.
		var prev credentials.Credential
		rejected := false
		m.end(op, func() {
			rejected = true
			prev = m.teardownLocked()
		})
		if rejected {
			log.Infof("session rejected by server: %v", err)
			m.finishTeardown("verify_rejected", prev, true)
		}

	default:
		m.end(op, func() { m.sess.Resolved = true })
		log.Warnf("verify failed, keeping local belief: %v", err)
	}
}

// Login submits credentials. It returns 200 on success, otherwise the
// server's status code (500 when no response arrived) and the error.
func (m *Manager) Login(ctx context.Context, username, password string) (int, error) {
	op := m.begin()
	resp, err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   m.opts.Endpoints.Login,
		Body:   loginRequest{Username: username, Password: password},
	}, apiclient.Exempt())

	var payload authPayload
	if err == nil {
		err = resp.Decode(&payload)
	}
	if err != nil {
		code := apiclient.StatusCode(err)
		cleared := false
		m.end(op, func() {
			cleared = true
			m.teardownLocked()
		})
		if cleared {
			m.finishTeardown("login_failed", credentials.Credential{}, false)
		}
		log.Infof("login failed for user=%s status=%d", username, code)
		return code, err
	}

	user := payload.snapshot()
	if user == nil {
		user = &models.UserSnapshot{Username: username}
	}
	cred := payload.credential()
	applied := m.end(op, func() {
		m.epoch++
		m.cred = cred
		m.sess = Session{IsLoggedIn: true, Resolved: true, User: user}
	})
	if !applied {
		return http.StatusConflict, ErrSuperseded
	}
	m.syncStore()
	m.redirect.BeginEpisode()
	log.Infof("logged in user=%s token_len=%d", user.Username, len(cred.Token))
	return http.StatusOK, nil
}

// Register creates an account. It never establishes a session.
func (m *Manager) Register(ctx context.Context, r RegisterRequest) (int, error) {
	resp, err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   m.opts.Endpoints.Register,
		Body: registerBody{
			Username:        r.Username,
			Password:        r.Password,
			ConfirmPassword: r.Password,
			FirstName:       r.FirstName,
			LastName:        r.LastName,
		},
	}, apiclient.Exempt())
	if err != nil {
		code := apiclient.StatusCode(err)
		log.Infof("registration failed for user=%s status=%d", r.Username, code)
		return code, err
	}
	return resp.StatusCode, nil
}

// Logout tears the local session down synchronously and then notifies the
// server in the background. It never fails and is safe to call repeatedly.
func (m *Manager) Logout() { m.logout("logout") }

func (m *Manager) logout(cause string) {
	m.mu.Lock()
	m.seq++
	m.latestDone = true
	prev := m.teardownLocked()
	m.mu.Unlock()
	m.finishTeardown(cause, prev, true)
}

// teardownLocked resets the belief and the credential cell, returning the
// credential held before.
func (m *Manager) teardownLocked() credentials.Credential {
	prev := m.cred
	m.epoch++
	m.cred = credentials.Credential{}
	m.sess = Session{Resolved: true}
	m.refreshing = false
	return prev
}

func (m *Manager) finishTeardown(cause string, prev credentials.Credential, navigate bool) {
	m.syncStore()

	m.mu.Lock()
	hooks := append([]func(){}, m.onLogout...)
	m.mu.Unlock()
	for _, h := range hooks {
		h()
	}

	metrics.Logouts.WithLabelValues(cause).Inc()
	m.publish()

	if !navigate {
		return
	}
	m.redirect.RedirectToLogin()
	m.notifyServer(prev)
}

func (m *Manager) notifyServer(prev credentials.Credential) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.LogoutTimeout)
		defer cancel()
		_, err := m.client.Do(ctx, apiclient.Request{
			Method:     http.MethodPost,
			Path:       m.opts.Endpoints.Logout,
			Credential: &prev,
		}, apiclient.Exempt())
		if err != nil {
			log.Debugf("logout notification failed (ignored): %v", err)
		}
	}()
}

// RefreshAccessToken renews the credential. Concurrent callers share one
// network call. On failure the session is logged out and the error returned.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return nil, m.refresh()
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh() error {
	m.mu.Lock()
	if !m.sess.IsLoggedIn && m.cred.IsZero() {
		m.mu.Unlock()
		return credentials.ErrNotLoggedIn
	}
	epoch := m.epoch
	cred := m.cred
	m.refreshing = true
	m.mu.Unlock()
	m.publish()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.RefreshTimeout)
	defer cancel()

	// No access token on refresh: the backend rejects a stale Authorization
	// header before the refresh view runs.
	resp, err := m.client.Do(ctx, apiclient.Request{
		Method:     http.MethodPost,
		Path:       m.opts.Endpoints.Refresh,
		Body:       refreshRequest{Refresh: cred.RefreshToken},
		Credential: &credentials.Credential{},
	}, apiclient.Exempt())
	var payload authPayload
	if err == nil {
		err = resp.Decode(&payload)
	}

	if err != nil {
		metrics.CredentialRefreshes.WithLabelValues("failure").Inc()
		m.mu.Lock()
		current := m.epoch == epoch
		m.refreshing = false
		m.mu.Unlock()
		if !current {
			log.Debugf("refresh failed for a superseded credential: %v", err)
			return fmt.Errorf("credential refresh failed: %w", err)
		}
		log.Warnf("credential refresh failed, logging out: %v", err)
		m.logout("refresh_failed")
		return fmt.Errorf("credential refresh failed: %w", err)
	}

	metrics.CredentialRefreshes.WithLabelValues("success").Inc()
	next := payload.credential()
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	if next.Token == "" {
		next.Token = cred.Token
	}
	m.mu.Lock()
	current := m.epoch == epoch
	if current {
		m.cred = next
	}
	m.refreshing = false
	m.mu.Unlock()
	if current {
		m.syncStore()
		log.Debugf("credential refreshed token_len=%d", len(next.Token))
	}
	m.publish()
	return nil
}

// Close waits for background logout notifications to finish.
func (m *Manager) Close() {
	m.bg.Wait()
}

// Redirector exposes the navigation guard shared with the surfaces.
func (m *Manager) Redirector() *apiclient.Redirector { return m.redirect }

func (m *Manager) begin() uint64 {
	m.mu.Lock()
	m.seq++
	op := m.seq
	m.latestDone = false
	m.mu.Unlock()
	m.publish()
	return op
}

// end applies fn under the lock if op is still the latest operation.
func (m *Manager) end(op uint64, fn func()) bool {
	m.mu.Lock()
	applied := op == m.seq
	if applied {
		if fn != nil {
			fn()
		}
		m.latestDone = true
	}
	m.mu.Unlock()
	m.publish()
	return applied
}

// publish delivers the latest belief to listeners, one delivery at a time.
func (m *Manager) publish() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.mu.Lock()
	s := m.snapshotLocked()
	subs := make([]func(Session), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// syncStore writes the current belief to the store. Holding storeMu while
// reading the state keeps the last write in line with the last change.
func (m *Manager) syncStore() {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	st := m.persistedView()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var err error
	if st.LoggedIn {
		err = m.store.Save(ctx, st)
	} else {
		err = m.store.Clear(ctx)
	}
	if err != nil {
		log.Errorf("failed to persist session state: %v", err)
	}
}

func (m *Manager) persistedView() *credentials.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &credentials.State{
		LoggedIn:   m.sess.IsLoggedIn,
		User:       m.sess.User.Clone(),
		Credential: m.cred,
	}
}

func userName(st *credentials.State) string {
	if st == nil || st.User == nil {
		return "-"
	}
	return st.User.Username
}

package membership

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/meowchat/meowchat/webclient/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

var log = logger.Named("membership")

// ErrSessionPending is returned while the session belief is still loading;
// a lookup now would go out without an established credential.
var ErrSessionPending = errors.New("session is still loading")

// SessionSource exposes the current session belief.
type SessionSource interface {
	Session() session.Session
}

// Entry is the cached membership belief for one server.
type Entry struct {
	ServerID  int       `json:"serverId"`
	IsMember  bool      `json:"isMember"`
	FetchedAt time.Time `json:"fetchedAt"`
}

type Options struct {
	BasePath string
	TTL      time.Duration
	Size     int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BasePath: cfg.Endpoints.Membership,
		TTL:      cfg.Membership.TTL,
		Size:     cfg.Membership.Size,
	}
}

// stamp identifies the cache state a lookup started against. A lookup only
// writes its result if nothing invalidated the key or purged the cache since.
type stamp struct {
	epoch uint64
	gen   uint64
}

// Cache holds short-lived membership beliefs keyed by server id. Concurrent
// lookups for one key share a single request.
type Cache struct {
	client   *apiclient.Client
	sessions SessionSource
	base     string
	ttl      time.Duration

	entries *expirable.LRU[int, Entry]
	group   singleflight.Group

	mu    sync.Mutex
	epoch uint64
	gens  map[int]uint64
}

func New(client *apiclient.Client, sessions SessionSource, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.BasePath == "" {
		opts.BasePath = "/api/membership/"
	}
	return &Cache{
		client:   client,
		sessions: sessions,
		base:     opts.BasePath,
		ttl:      opts.TTL,
		entries:  expirable.NewLRU[int, Entry](opts.Size, nil, opts.TTL),
		gens:     make(map[int]uint64),
	}
}

// IsMember reports whether the current user belongs to serverID. A fresh
// cached answer is returned without network I/O. 401, 403 and 404 resolve to
// false with no error; other failures resolve to false with the error.
func (c *Cache) IsMember(ctx context.Context, serverID int) (bool, error) {
	s := c.sessions.Session()
	if s.IsLoading {
		metrics.MembershipLookups.WithLabelValues("skipped").Inc()
		return false, ErrSessionPending
	}
	if !s.IsLoggedIn {
		metrics.MembershipLookups.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if e, ok := c.Belief(serverID); ok {
		metrics.MembershipLookups.WithLabelValues("hit").Inc()
		return e.IsMember, nil
	}

	st := c.stampFor(serverID)
	key := fmt.Sprintf("%d:%d:%d", st.epoch, serverID, st.gen)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.lookup(serverID, st)
	})
	select {
	case r := <-ch:
		if r.Shared {
			metrics.MembershipLookups.WithLabelValues("shared").Inc()
		}
		member, _ := r.Val.(bool)
		return member, r.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Cache) lookup(serverID int, st stamp) (bool, error) {
	metrics.MembershipLookups.WithLabelValues("miss").Inc()
	resp, err := c.client.Do(context.Background(), apiclient.Request{
		Method: http.MethodGet,
		Path:   c.path(serverID, "is_member/"),
		Scope:  apiclient.ScopeResource,
	}, apiclient.RetryContext{})
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) || errors.Is(err, apiclient.ErrForbidden) || errors.Is(err, apiclient.ErrNotFound) {
			log.Debugf("server=%d treated as non-member: %v", serverID, err)
			return false, nil
		}
		log.Warnf("membership lookup failed server=%d: %v", serverID, err)
		return false, fmt.Errorf("membership lookup for server %d: %w", serverID, err)
	}

	var body struct {
		IsMember bool `json:"is_member"`
	}
	if err := resp.Decode(&body); err != nil {
		return false, err
	}
	c.put(serverID, st, body.IsMember)
	return body.IsMember, nil
}

// Belief returns the cached entry for serverID while it is fresh.
func (c *Cache) Belief(serverID int) (Entry, bool) {
	e, ok := c.entries.Get(serverID)
	if !ok || time.Since(e.FetchedAt) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// JoinServer joins serverID. Already being a member counts as success.
func (c *Cache) JoinServer(ctx context.Context, serverID int) error {
	_, err := c.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   c.path(serverID, ""),
		Scope:  apiclient.ScopeResource,
	}, apiclient.RetryContext{})
	if err != nil && !errors.Is(err, apiclient.ErrConflict) {
		return &ActionError{Action: "join", ServerID: serverID, StatusCode: apiclient.StatusCode(err), Message: MsgJoinFailed, Err: err}
	}
	c.Invalidate(serverID)
	log.Infof("joined server=%d", serverID)
	return nil
}

// LeaveServer leaves serverID. Ownership or permission conflicts come back
// as an *ActionError matching ErrDenied; the cached belief is kept.
func (c *Cache) LeaveServer(ctx context.Context, serverID int) error {
	_, err := c.client.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   c.path(serverID, "remove_member/"),
		Scope:  apiclient.ScopeResource,
	}, apiclient.RetryContext{})
	if err != nil {
		code := apiclient.StatusCode(err)
		msg := MsgLeaveFailed
		switch code {
		case http.StatusForbidden, http.StatusConflict:
			msg = MsgLeaveDenied
		case http.StatusNotFound:
			msg = MsgLeaveNotFound
		}
		return &ActionError{Action: "leave", ServerID: serverID, StatusCode: code, Message: msg, Err: err}
	}
	c.Invalidate(serverID)
	log.Infof("left server=%d", serverID)
	return nil
}

// Invalidate drops the entry for serverID. Lookups already in flight will
// not write their result back.
func (c *Cache) Invalidate(serverID int) {
	c.mu.Lock()
	c.gens[serverID]++
	c.entries.Remove(serverID)
	c.mu.Unlock()
}

// Purge drops every entry. Registered as a logout hook.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.epoch++
	c.gens = make(map[int]uint64)
	c.entries.Purge()
	c.mu.Unlock()
	log.Debugf("membership cache purged")
}

// Len returns the number of cached entries, fresh or not yet evicted.
func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) stampFor(serverID int) stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stamp{epoch: c.epoch, gen: c.gens[serverID]}
}

func (c *Cache) put(serverID int, st stamp, member bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st.epoch != c.epoch || st.gen != c.gens[serverID] {
		log.Debugf("discarding superseded lookup server=%d", serverID)
		return
	}
	c.entries.Add(serverID, Entry{ServerID: serverID, IsMember: member, FetchedAt: time.Now()})
}

func (c *Cache) path(serverID int, suffix string) string {
	base := c.base
	if base == "" || base[len(base)-1] != '/' {
		base += "/"
	}
	return base + strconv.Itoa(serverID) + "/" + suffix
}

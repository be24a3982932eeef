package membership

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSession struct {
	mu sync.Mutex
	s  session.Session
}

func (f *staticSession) Session() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *staticSession) set(s session.Session) {
	f.mu.Lock()
	f.s = s
	f.mu.Unlock()
}

var loggedIn = session.Session{IsLoggedIn: true, Resolved: true}

// membershipBackend models one user's server memberships.
type membershipBackend struct {
	mu      sync.Mutex
	members map[int]bool
	owned   map[int]bool
	status  map[int]int // forced lookup status per server
	gate    chan struct{}
	lookups int
}

func (b *membershipBackend) lookupCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookups
}

func (b *membershipBackend) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/membership/:id/is_member/", func(c *gin.Context) {
		id, _ := strconv.Atoi(c.Param("id"))
		b.mu.Lock()
		b.lookups++
		gate, forced, member := b.gate, b.status[id], b.members[id]
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if forced != 0 {
			c.JSON(forced, gin.H{"detail": http.StatusText(forced)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"is_member": member})
	})
	r.POST("/api/membership/:id/", func(c *gin.Context) {
		id, _ := strconv.Atoi(c.Param("id"))
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.members[id] {
			c.JSON(http.StatusConflict, gin.H{"error": "Already a member"})
			return
		}
		b.members[id] = true
		c.JSON(http.StatusCreated, gin.H{"server": id})
	})
	r.DELETE("/api/membership/:id/remove_member/", func(c *gin.Context) {
		id, _ := strconv.Atoi(c.Param("id"))
		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case b.owned[id]:
			c.JSON(http.StatusForbidden, gin.H{"error": "Server owner cannot leave the server"})
		case !b.members[id]:
			c.JSON(http.StatusNotFound, gin.H{"error": "Not a member"})
		case b.status[id] == http.StatusInternalServerError:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
		default:
			delete(b.members, id)
			c.Status(http.StatusNoContent)
		}
	})
	return r
}

func newCache(t *testing.T, ttl time.Duration) (*Cache, *membershipBackend, *staticSession) {
	t.Helper()
	b := &membershipBackend{members: map[int]bool{}, owned: map[int]bool{}, status: map[int]int{}}
	ts := httptest.NewServer(b.router())
	t.Cleanup(ts.Close)

	client, err := apiclient.New(apiclient.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	src := &staticSession{s: loggedIn}
	return New(client, src, Options{BasePath: "/api/membership/", TTL: ttl, Size: 16}), b, src
}

func TestIsMember_ServesFreshEntryFromCache(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[42] = true

	for i := 0; i < 3; i++ {
		ok, err := c.IsMember(context.Background(), 42)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, b.lookupCount())

	e, ok := c.Belief(42)
	require.True(t, ok)
	require.True(t, e.IsMember)
	require.Equal(t, 42, e.ServerID)
}

func TestIsMember_ConcurrentCallsShareOneLookup(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[42] = true
	b.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := c.IsMember(context.Background(), 42)
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	require.Eventually(t, func() bool { return b.lookupCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(b.gate)
	wg.Wait()

	require.Equal(t, 1, b.lookupCount())
	for _, r := range results {
		require.True(t, r)
	}
}

func TestIsMember_ExpiredEntryIsRefetched(t *testing.T) {
	c, b, _ := newCache(t, 30*time.Millisecond)
	b.members[5] = true

	_, err := c.IsMember(context.Background(), 5)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Belief(5)
	require.False(t, ok, "stale entry counts as absent")
	_, err = c.IsMember(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 2, b.lookupCount())
}

func TestIsMember_FailureStatuses(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.status[1] = http.StatusUnauthorized
	b.status[2] = http.StatusForbidden
	b.status[3] = http.StatusNotFound
	b.status[4] = http.StatusInternalServerError

	for _, id := range []int{1, 2, 3} {
		ok, err := c.IsMember(context.Background(), id)
		require.NoError(t, err, "server %d", id)
		require.False(t, ok)
	}

	ok, err := c.IsMember(context.Background(), 4)
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, http.StatusInternalServerError, apiclient.StatusCode(err))

	_, cached := c.Belief(4)
	require.False(t, cached)
}

func TestIsMember_FollowsSessionBelief(t *testing.T) {
	c, b, src := newCache(t, time.Minute)

	src.set(session.Session{IsLoggedIn: true, IsLoading: true})
	ok, err := c.IsMember(context.Background(), 9)
	require.ErrorIs(t, err, ErrSessionPending)
	require.False(t, ok)

	src.set(session.Session{Resolved: true})
	ok, err = c.IsMember(context.Background(), 9)
	require.NoError(t, err)
	require.False(t, ok)

	require.Zero(t, b.lookupCount(), "no lookups before the session is established")
}

func TestJoinServer_ForcesFreshLookup(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)

	ok, err := c.IsMember(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.JoinServer(context.Background(), 42))

	ok, err = c.IsMember(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok, "no stale pre-join answer")
	require.Equal(t, 2, b.lookupCount())
}

func TestJoinServer_AlreadyMemberIsSuccess(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[7] = true

	require.NoError(t, c.JoinServer(context.Background(), 7))

	ok, err := c.IsMember(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaveServer_OwnerIsDenied(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[7] = true
	b.owned[7] = true

	ok, err := c.IsMember(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)

	err = c.LeaveServer(context.Background(), 7)
	require.Error(t, err)
	require.Equal(t, "Cannot leave server. You might be the server owner or admin.", err.Error())
	require.ErrorIs(t, err, ErrDenied)
	require.ErrorIs(t, err, apiclient.ErrForbidden)

	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, http.StatusForbidden, ae.StatusCode)

	e, cached := c.Belief(7)
	require.True(t, cached, "membership unchanged")
	require.True(t, e.IsMember)
	require.Equal(t, 1, b.lookupCount())
}

func TestLeaveServer_Outcomes(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[3] = true
	b.members[4] = true
	b.status[4] = http.StatusInternalServerError

	err := c.LeaveServer(context.Background(), 99)
	require.EqualError(t, err, MsgLeaveNotFound)
	require.NotErrorIs(t, err, ErrDenied)

	err = c.LeaveServer(context.Background(), 4)
	require.EqualError(t, err, MsgLeaveFailed)

	_, err = c.IsMember(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, c.LeaveServer(context.Background(), 3))
	_, cached := c.Belief(3)
	require.False(t, cached, "successful leave invalidates")

	ok, err := c.IsMember(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidate_DiscardsInFlightResult(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[8] = true
	b.gate = make(chan struct{})

	done := make(chan bool)
	go func() {
		ok, _ := c.IsMember(context.Background(), 8)
		done <- ok
	}()
	require.Eventually(t, func() bool { return b.lookupCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Invalidate(8)
	close(b.gate)
	<-done

	_, cached := c.Belief(8)
	require.False(t, cached, "lookup that raced an invalidation is not stored")
}

func TestPurge_ClearsEverything(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.members[1] = true
	b.members[2] = true

	for _, id := range []int{1, 2} {
		_, err := c.IsMember(context.Background(), id)
		require.NoError(t, err)
	}
	require.Equal(t, 2, c.Len())

	c.Purge()
	require.Zero(t, c.Len())
	_, cached := c.Belief(1)
	require.False(t, cached)
}

func TestIsMember_CallerCancellation(t *testing.T) {
	c, b, _ := newCache(t, time.Minute)
	b.gate = make(chan struct{})
	defer close(b.gate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.IsMember(ctx, 11)
	require.ErrorIs(t, err, context.Canceled)
}

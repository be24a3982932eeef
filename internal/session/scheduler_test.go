package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_ArmsOnLoginAndDisarmsOnLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.fb.set(func(fb *fakeBackend) { fb.refreshIssues = "renewed" })

	s := NewScheduler(h.m, 20*time.Millisecond)
	s.Start()
	defer s.Stop()
	require.False(t, s.Armed(), "nothing to refresh while logged out")

	_, err := h.m.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.True(t, s.Armed())

	require.Eventually(t, func() bool { return h.fb.count("refresh") >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "renewed", h.m.Credential().Token)
	require.True(t, h.m.Session().IsLoggedIn)

	h.m.Logout()
	require.False(t, s.Armed())

	// no further refreshes once disarmed
	require.Eventually(t, func() bool { return !h.m.Session().IsLoading }, time.Second, 5*time.Millisecond)
	after := h.fb.count("refresh")
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, after, h.fb.count("refresh"))
}

func TestScheduler_FailureLogsOutOnce(t *testing.T) {
	h := newHarness(t, persistedLogin("good"))
	h.fb.set(func(fb *fakeBackend) { fb.refreshStatus = http.StatusUnauthorized })

	s := NewScheduler(h.m, 15*time.Millisecond)
	s.Start()
	defer s.Stop()
	require.True(t, s.Armed(), "a restored login arms immediately")

	require.Eventually(t, func() bool { return !h.m.Session().IsLoggedIn }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Armed() }, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, h.fb.count("refresh"))
	require.EqualValues(t, 1, h.navs.Load())
}

func TestScheduler_StopLeavesNothingRunning(t *testing.T) {
	h := newHarness(t, persistedLogin("good"))
	gate := make(chan struct{})
	defer close(gate)
	h.fb.set(func(fb *fakeBackend) { fb.refreshGate = gate })

	s := NewScheduler(h.m, 10*time.Millisecond)
	s.Start()
	require.Eventually(t, func() bool { return h.fb.count("refresh") == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on an in-flight refresh")
	}
	require.False(t, s.Armed())

	// re-login after Stop does not re-arm
	h.m.Logout()
	_, err := h.m.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.False(t, s.Armed())
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/meowchat/meowchat/webclient/pkg/metrics"
)

// Scheduler refreshes the credential on a fixed interval while the session
// is logged in. It arms on a false→true transition and disarms on true→false.
type Scheduler struct {
	m        *Manager
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	unsub   func()
	started bool
}

func NewScheduler(m *Manager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{m: m, interval: interval}
}

// Start begins tracking the session. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	unsub := s.m.Subscribe(func(Session) { s.sync() })
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()
	s.sync()
}

// Stop disarms the timer and waits for its goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	unsub := s.unsub
	s.unsub = nil
	done := s.disarmLocked()
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		<-done
	}
}

// Armed reports whether a refresh timer is currently running.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Scheduler) sync() {
	loggedIn := s.m.Session().IsLoggedIn

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	switch {
	case loggedIn && s.stop == nil:
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.run(s.stop, s.done)
		log.Debugf("refresh scheduler armed interval=%s", s.interval)
	case !loggedIn && s.stop != nil:
		s.disarmLocked()
		log.Debugf("refresh scheduler disarmed")
	}
}

// disarmLocked signals the loop to exit and returns its done channel. It
// never waits: it may run on the loop's own goroutine via a logout.
func (s *Scheduler) disarmLocked() chan struct{} {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	done := s.done
	s.stop, s.done = nil, nil
	return done
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-stop:
					cancel()
				case <-ctx.Done():
				}
			}()
			err := s.m.RefreshAccessToken(ctx)
			cancel()
			if err != nil {
				// the refresh path has already logged out where that applies
				metrics.ScheduledRefreshFailures.Inc()
				log.Errorf("scheduled credential refresh failed: %v", err)
			}
		}
	}
}

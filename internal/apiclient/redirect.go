package apiclient

import (
	"sync/atomic"

	"github.com/meowchat/meowchat/webclient/pkg/metrics"
)

// Navigator moves the user to the login entry point.
type Navigator interface {
	NavigateToLogin(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) NavigateToLogin(path string) { f(path) }

// Redirector fires at most one navigation per failure episode. An episode
// ends with BeginEpisode, called when a login or verify succeeds.
type Redirector struct {
	nav   Navigator
	path  string
	fired atomic.Bool
}

func NewRedirector(nav Navigator, loginPath string) *Redirector {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Redirector{nav: nav, path: loginPath}
}

// RedirectToLogin navigates unless this episode already did. It reports
// whether a navigation happened.
func (r *Redirector) RedirectToLogin() bool {
	if !r.fired.CompareAndSwap(false, true) {
		return false
	}
	metrics.LoginRedirects.Inc()
	log.Infof("redirecting to %s", r.path)
	if r.nav != nil {
		r.nav.NavigateToLogin(r.path)
	}
	return true
}

func (r *Redirector) BeginEpisode() { r.fired.Store(false) }

// Redirected reports whether the current episode has navigated already.
func (r *Redirector) Redirected() bool { return r.fired.Load() }

func (r *Redirector) LoginPath() string { return r.path }

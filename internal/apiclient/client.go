package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/credentials"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/meowchat/meowchat/webclient/pkg/metrics"
	"golang.org/x/time/rate"
)

const maxResponseBody = 1 << 20

var log = logger.Named("apiclient")

// Authority owns the credential and the session lifecycle. The Client asks it
// for the current credential on every send and delegates repair to it.
type Authority interface {
	Credential() credentials.Credential
	RefreshAccessToken(ctx context.Context) error
	Logout()
}

// Scope tells the Client what a 403 on this request means.
type Scope int

const (
	// ScopeSession: 403 means the session itself is no longer valid.
	ScopeSession Scope = iota
	// ScopeResource: 403 is a denial for one resource and goes back to the caller.
	ScopeResource
)

// Request is one logical backend call. A retry re-sends the same bytes.
type Request struct {
	Method string
	Path   string
	Body   any
	Scope  Scope
	// Credential, when set, replaces the authority's credential for this call.
	Credential *credentials.Credential
}

// RetryContext travels with a request through the repair protocol.
type RetryContext struct {
	// Attempt is 0 for the first send and 1 for the single retry.
	Attempt int
	// Exempt requests are never repaired: login, register, refresh and
	// logout notifications report their status as-is.
	Exempt bool
}

func (rc RetryContext) FirstAttempt() bool { return rc.Attempt == 0 }
func (rc RetryContext) Retried() bool      { return rc.Attempt > 0 }

func (rc RetryContext) next() RetryContext {
	rc.Attempt++
	return rc
}

// Exempt is the RetryContext for calls that must not trigger refresh or logout.
func Exempt() RetryContext { return RetryContext{Exempt: true} }

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	BaseURL          string
	Policy           AttachPolicy
	Timeout          time.Duration
	RPS              float64
	Burst            int
	ForbiddenLogsOut bool
	// HTTPClient overrides the transport; a cookie jar is still installed
	// for CookiePolicy when the override has none.
	HTTPClient *http.Client
}

// OptionsFromConfig maps the backend and auth sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:          cfg.Backend.BaseURL,
		Policy:           PolicyForMode(cfg.Auth.Mode),
		Timeout:          cfg.Backend.RequestTimeout,
		RPS:              cfg.Backend.RPS,
		Burst:            cfg.Backend.Burst,
		ForbiddenLogsOut: cfg.Auth.ForbiddenLogsOut,
	}
}

// Client is the single gateway to the backend. It attaches the credential,
// repairs 401s with one refresh and one retry, and applies the 403 policy.
type Client struct {
	baseURL          string
	http             *http.Client
	policy           AttachPolicy
	timeout          time.Duration
	limiter          *rate.Limiter
	forbiddenLogsOut bool

	mu        sync.RWMutex
	authority Authority
}

// New builds a Client. Call SetAuthority before issuing repaired requests.
func New(opts Options) (*Client, error) {
	if opts.Policy == nil {
		opts.Policy = HeaderPolicy{Scheme: SchemeToken}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if _, ok := opts.Policy.(CookiePolicy); ok && hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		cp := *hc
		cp.Jar = jar
		hc = &cp
	}
	c := &Client{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		http:             hc,
		policy:           opts.Policy,
		timeout:          opts.Timeout,
		forbiddenLogsOut: opts.ForbiddenLogsOut,
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c, nil
}

func (c *Client) SetAuthority(a Authority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authority = a
}

func (c *Client) getAuthority() Authority {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authority
}

// BaseURL returns the backend root the client resolves paths against.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends req and runs the repair protocol. Non-2xx responses are returned
// together with a *StatusError; a nil response means a *TransportError.
func (c *Client) Do(ctx context.Context, req Request, rc RetryContext) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()

	for {
		resp, err := c.send(ctx, req, body, reqID)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			return resp, nil
		}
		serr := newStatusError(req.Method, req.Path, resp.StatusCode, resp.Body)
		auth := c.getAuthority()
		if rc.Exempt || auth == nil || req.Credential != nil {
			return resp, serr
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			if rc.FirstAttempt() {
				if rerr := auth.RefreshAccessToken(ctx); rerr != nil {
					if ctx.Err() != nil {
						// gave up waiting; the refresh itself may still succeed
						return nil, &TransportError{Op: req.Method + " " + req.Path, Err: ctx.Err()}
					}
					// refresh failure has already torn the session down
					log.Debugf("refresh failed for %s %s request_id=%s: %v", req.Method, req.Path, reqID, rerr)
					return resp, serr
				}
				metrics.RequestRetries.Inc()
				rc = rc.next()
				log.Debugf("retrying %s %s request_id=%s after refresh", req.Method, req.Path, reqID)
				continue
			}
			log.Warnf("%s %s rejected after refresh; logging out", req.Method, req.Path)
			auth.Logout()
		case http.StatusForbidden:
			if req.Scope == ScopeSession && c.forbiddenLogsOut {
				log.Warnf("%s %s forbidden; session no longer valid", req.Method, req.Path)
				auth.Logout()
			}
		}
		return resp, serr
	}
}

// Get is a shorthand for a repaired GET in session scope.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, RetryContext{})
}

func (c *Client) send(ctx context.Context, req Request, body []byte, reqID string) (*Response, error) {
	op := req.Method + " " + req.Path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
	}

	ctx, cancel := ensureTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.resolve(req.Path), rdr)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Request-ID", reqID)
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	cred := c.credentialFor(req)
	c.policy.Attach(hreq, cred)

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}

func (c *Client) credentialFor(req Request) credentials.Credential {
	if req.Credential != nil {
		return *req.Credential
	}
	if a := c.getAuthority(); a != nil {
		return a.Credential()
	}
	return credentials.Credential{}
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return b, nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

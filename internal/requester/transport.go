package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxReplays is how many times one logical request may go back through the
// refresh path.
const maxReplays = 1

// pendingRequest is one send of a logical call. It is never mutated: a
// replay is a new value with attempt+1 and the token to attach.
type pendingRequest struct {
	orig    *http.Request
	body    []byte
	attempt int
	token   string
}

func newPendingRequest(req *http.Request) (pendingRequest, error) {
	p := pendingRequest{orig: req}
	if req.Body == nil || req.Body == http.NoBody {
		return p, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return p, fmt.Errorf("failed to buffer request body: %w", err)
	}
	p.body = body
	return p, nil
}

func (p pendingRequest) replay(token string) pendingRequest {
	return pendingRequest{orig: p.orig, body: p.body, attempt: p.attempt + 1, token: token}
}

func (p pendingRequest) build(ctx context.Context) *http.Request {
	r := p.orig.Clone(ctx)
	if p.body != nil {
		body := p.body
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.ContentLength = int64(len(body))
	}
	return r
}

// PathMatcher reports whether a URL targets the authentication subsystem.
// Such requests never go through refresh and replay.
type PathMatcher struct {
	prefixes []string
}

// NewPathMatcher builds a matcher for prefix and any extra routes, all
// relative to baseURL's path.
func NewPathMatcher(baseURL, prefix string, routes ...string) *PathMatcher {
	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = strings.TrimSuffix(u.Path, "/")
	}

	m := &PathMatcher{}
	for _, p := range append([]string{prefix}, routes...) {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		m.prefixes = append(m.prefixes, basePath+p)
	}
	return m
}

// Match reports whether u is an authentication route.
func (m *PathMatcher) Match(u *url.URL) bool {
	if m == nil || u == nil {
		return false
	}
	for _, p := range m.prefixes {
		if u.Path == p || strings.HasPrefix(u.Path, p+"/") {
			return true
		}
	}
	return false
}

// TransportParams holds the parameters for creating a Transport
type TransportParams struct {
	fx.In

	BackendConfig *config.BackendConfig
	AuthManager   AuthManager
	Coordinator   *Coordinator
	Logger        *zap.Logger `optional:"true"`
}

// Transport is an http.RoundTripper that authenticates every request and
// transparently recovers from an expired access token: on 401 it waits for
// (or performs) a single refresh and replays the request once.
type Transport struct {
	base           http.RoundTripper
	auth           AuthManager
	coordinator    *Coordinator
	excluded       *PathMatcher
	attemptTimeout time.Duration
	log            *zap.Logger
}

// NewTransport creates a new Transport on top of http.DefaultTransport
func NewTransport(params TransportParams) *Transport {
	log := params.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	cfg := params.BackendConfig
	routes := cfg.Routes
	return &Transport{
		base:        http.DefaultTransport,
		auth:        params.AuthManager,
		coordinator: params.Coordinator,
		excluded: NewPathMatcher(cfg.BaseURL, cfg.AuthPathPrefix,
			routes.Login, routes.Signup, routes.SocialLogin, routes.Refresh, routes.Logout),
		attemptTimeout: cfg.Timeout,
		log:            log.Named("transport"),
	}
}

// WithBase returns a copy of t sending through base.
func (t *Transport) WithBase(base http.RoundTripper) *Transport {
	c := *t
	c.base = base
	return &c
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	call, err := newPendingRequest(req)
	if err != nil {
		return nil, err
	}

	for {
		resp, used, err := t.send(call)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}

		fields := []zap.Field{zap.String("method", req.Method), zap.String("path", req.URL.Path)}
		if t.excluded.Match(req.URL) {
			t.log.Debug("authorization failure on auth route, not refreshing", fields...)
			return resp, nil
		}
		if call.attempt >= maxReplays {
			t.log.Debug("authorization failure after replay", append(fields, zap.Error(ErrAlreadyRetried))...)
			return resp, nil
		}

		outcome := t.coordinator.Refresh(req.Context(), used)
		if outcome.Kind != OutcomeToken {
			t.log.Debug("refresh did not recover request", append(fields, zap.Error(outcome.Err))...)
			return resp, nil
		}

		drain(resp)
		call = call.replay(outcome.AccessToken)
	}
}

// send performs one attempt and returns the access token it carried.
func (t *Transport) send(call pendingRequest) (*http.Response, string, error) {
	ctx := call.orig.Context()
	cancel := context.CancelFunc(func() {})
	if t.attemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.attemptTimeout)
	}

	r := call.build(ctx)
	if call.token != "" {
		setBearer(r, call.token)
	} else if err := t.auth.ApplyAuth(r); err != nil {
		cancel()
		return nil, "", err
	}

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		cancel()
		return nil, "", err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, bearerToken(r), nil
}

// cancelOnClose releases an attempt's timeout once the body is done.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

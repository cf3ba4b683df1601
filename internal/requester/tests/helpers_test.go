package tests

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/credentials"
	"github.com/brizzai/drinklog/internal/requester"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
	delay time.Duration
	fn    func(refreshToken string) (*oauth2.Token, error)
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	f.calls = append(f.calls, refreshToken)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &requester.NetworkError{Op: "refresh", Err: ctx.Err()}
		}
	}
	return f.fn(refreshToken)
}

func (f *fakeRefresher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func backendConfig(baseURL string) *config.BackendConfig {
	return &config.BackendConfig{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		RefreshTimeout: 5 * time.Second,
		AuthPathPrefix: "/auth",
		Routes: config.AuthRoutes{
			Login:       "/auth/login",
			Signup:      "/auth/signup",
			SocialLogin: "/auth/social",
			Refresh:     "/auth/refresh",
			Logout:      "/auth/logout",
		},
	}
}

type stack struct {
	store       *credentials.MemoryStore
	coordinator *requester.Coordinator
	requester   *requester.HTTPRequester
}

func newStack(t *testing.T, baseURL string, refresher requester.TokenRefresher, session config.SessionConfig) *stack {
	t.Helper()

	store := credentials.NewMemoryStore()
	cfg := backendConfig(baseURL)

	coordinator := requester.NewCoordinator(requester.CoordinatorParams{
		Store:         store,
		Refresher:     refresher,
		BackendConfig: cfg,
		SessionConfig: &session,
	})
	transport := requester.NewTransport(requester.TransportParams{
		BackendConfig: cfg,
		AuthManager:   requester.NewBearerAuthManager(store),
		Coordinator:   coordinator,
	})
	r := requester.NewHTTPRequester(requester.HTTPRequesterParams{
		BackendConfig: cfg,
		Transport:     transport,
	})

	return &stack{store: store, coordinator: coordinator, requester: r}
}

func (s *stack) login(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, credentials.SavePair(context.Background(), s.store, credentials.Pair{
		AccessToken:  access,
		RefreshToken: refresh,
	}))
}

type sent struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

// barrier holds the first n rejected requests until all n have arrived.
type barrier struct {
	mu      sync.Mutex
	n       int
	arrived int
	ch      chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, ch: make(chan struct{})}
}

func (b *barrier) wait() {
	b.mu.Lock()
	if b.arrived >= b.n {
		b.mu.Unlock()
		return
	}
	b.arrived++
	if b.arrived == b.n {
		close(b.ch)
	}
	b.mu.Unlock()
	<-b.ch
}

// fakeBackend accepts only "Bearer <valid>" and rejects every /auth route.
type fakeBackend struct {
	mu           sync.Mutex
	valid        string
	alwaysReject bool
	gate         *barrier
	log          []sent
}

func newFakeBackend(t *testing.T, valid string) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{valid: valid}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) setValid(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid = token
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	auth := r.Header.Get("Authorization")

	b.mu.Lock()
	b.log = append(b.log, sent{Method: r.Method, Path: r.URL.Path, Auth: auth, Body: string(body)})
	valid := b.valid
	reject := b.alwaysReject
	gate := b.gate
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if reject || strings.HasPrefix(r.URL.Path, "/auth/") || auth != "Bearer "+valid {
		if gate != nil {
			gate.wait()
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "UNAUTHORIZED", "message": "token expired"},
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
}

// Sent returns the request log sorted by path, then arrival order.
func (b *fakeBackend) Sent() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]sent(nil), b.log...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/drinklog/internal/auth/constants"
	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/credentials"
	"github.com/brizzai/drinklog/internal/mockapi"
	"github.com/brizzai/drinklog/internal/requester"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testBackendConfig(baseURL string) *config.BackendConfig {
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

type testEnv struct {
	srv         *httptest.Server
	api         *mockapi.Server
	store       *credentials.MemoryStore
	clock       clockwork.FakeClock
	coordinator *requester.Coordinator
	requester   *requester.HTTPRequester
	session     *Session
}

// newTestEnv wires the real request path and session against a mock
// backend whose clock is shared with the session.
func newTestEnv(t *testing.T, opts mockapi.Options) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	if opts.Clock == nil {
		opts.Clock = clock
	}
	api := mockapi.New(opts)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	cfg := testBackendConfig(srv.URL)
	sessionCfg := &config.SessionConfig{ClockSkew: 30 * time.Second, ReuseRefreshToken: true}
	store := credentials.NewMemoryStore()
	public := requester.NewPublicClient(cfg)

	coordinator := requester.NewCoordinator(requester.CoordinatorParams{
		Store:         store,
		Refresher:     NewHTTPRefresher(HTTPRefresherParams{Client: public, BackendConfig: cfg}),
		BackendConfig: cfg,
		SessionConfig: sessionCfg,
	})
	transport := requester.NewTransport(requester.TransportParams{
		BackendConfig: cfg,
		AuthManager:   requester.NewBearerAuthManager(store),
		Coordinator:   coordinator,
	})
	r := requester.NewHTTPRequester(requester.HTTPRequesterParams{BackendConfig: cfg, Transport: transport})

	session := NewSession(SessionParams{
		Store:         store,
		Public:        public,
		Requester:     r,
		Coordinator:   coordinator,
		BackendConfig: cfg,
		SessionConfig: sessionCfg,
		Clock:         clock,
	})

	return &testEnv{
		srv:         srv,
		api:         api,
		store:       store,
		clock:       clock,
		coordinator: coordinator,
		requester:   r,
		session:     session,
	}
}

// signIn stores a pair issued by the mock backend as a prior run would have.
func (e *testEnv) signIn(t *testing.T, autoLogin bool) models.TokenData {
	t.Helper()
	tokens, err := e.api.IssueTokens("ada")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, credentials.SavePair(ctx, e.store, credentials.Pair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}))
	require.NoError(t, e.store.Set(ctx, credentials.KeyLoginID, "ada"))
	if autoLogin {
		require.NoError(t, e.store.Set(ctx, credentials.KeyAutoLogin, constants.AutoLoginEnabled))
	}
	return tokens
}

func (e *testEnv) stored(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, k := range []string{
		credentials.KeyAccessToken,
		credentials.KeyRefreshToken,
		credentials.KeyAutoLogin,
		credentials.KeyLoginID,
	} {
		v, err := credentials.Lookup(context.Background(), e.store, k)
		require.NoError(t, err)
		if v != "" {
			out[k] = v
		}
	}
	return out
}

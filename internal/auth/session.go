// Package auth owns the user session: it establishes credentials through
// the public auth routes, restores them at startup and reacts when the
// refresh machinery gives up on them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brizzai/drinklog/internal/auth/constants"
	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/credentials"
	"github.com/brizzai/drinklog/internal/logger"
	"github.com/brizzai/drinklog/internal/requester"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrAuthFailed is returned when the backend refuses a login, signup or
// social login.
var ErrAuthFailed = errors.New("authentication failed")

// SessionParams holds the parameters for creating a Session
type SessionParams struct {
	fx.In

	Store         credentials.Store
	Public        *requester.PublicClient
	Requester     *requester.HTTPRequester
	Coordinator   *requester.Coordinator
	BackendConfig *config.BackendConfig
	SessionConfig *config.SessionConfig
	Clock         clockwork.Clock `optional:"true"`
	Logger        *zap.Logger     `optional:"true"`
}

// Session establishes and tears down credentials.
type Session struct {
	store       credentials.Store
	public      *requester.PublicClient
	requester   *requester.HTTPRequester
	coordinator *requester.Coordinator
	routes      config.AuthRoutes
	clockSkew   time.Duration
	clock       clockwork.Clock
	log         *zap.Logger

	invalidated chan error
}

// NewSession creates a new Session and subscribes it to refresh failures
// that invalidate the stored credentials.
func NewSession(params SessionParams) *Session {
	log := params.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	clock := params.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		store:       params.Store,
		public:      params.Public,
		requester:   params.Requester,
		coordinator: params.Coordinator,
		routes:      params.BackendConfig.Routes,
		clockSkew:   params.SessionConfig.ClockSkew,
		clock:       clock,
		log:         log.Named("session"),
		invalidated: make(chan error, 1),
	}
	params.Coordinator.OnSessionInvalid(s.handleInvalid)
	return s
}

// Invalidated delivers the cause each time a failed refresh forced the
// session out. Only the latest unread cause is kept.
func (s *Session) Invalidated() <-chan error {
	return s.invalidated
}

// Login signs in with an identifier and password. With autoLogin the
// session is restored by Hydrate on the next start.
func (s *Session) Login(ctx context.Context, identifier, password string, autoLogin bool) error {
	body := models.LoginRequest{Identifier: identifier, Password: password}
	return s.establish(ctx, s.routes.Login, body, identifier, autoLogin)
}

// Signup creates an account and signs in with it.
func (s *Session) Signup(ctx context.Context, identifier, password, name string, autoLogin bool) error {
	body := models.SignupRequest{Identifier: identifier, Password: password, Name: name}
	return s.establish(ctx, s.routes.Signup, body, identifier, autoLogin)
}

// SocialLogin signs in with a token issued by a social identity provider.
func (s *Session) SocialLogin(ctx context.Context, provider, token string, autoLogin bool) error {
	if provider == "" {
		return fmt.Errorf("%w: provider is required", ErrAuthFailed)
	}
	path := strings.TrimSuffix(s.routes.SocialLogin, "/") + "/" + provider
	return s.establish(ctx, path, models.SocialLoginRequest{Token: token}, provider, autoLogin)
}

func (s *Session) establish(ctx context.Context, path string, body interface{}, loginID string, autoLogin bool) error {
	resp, err := s.public.Do(ctx, &requester.Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return &requester.NetworkError{Op: "login", Err: err}
	}

	var env models.Envelope[models.TokenData]
	if err := json.Unmarshal(resp.Body, &env); err != nil && resp.OK() {
		return &requester.NetworkError{Op: "login", Err: fmt.Errorf("malformed response: %w", err)}
	}
	if !resp.OK() || !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%w: %w", ErrAuthFailed, env.Error)
		}
		return fmt.Errorf("%w: backend returned %d", ErrAuthFailed, resp.StatusCode)
	}
	if env.Data == nil || env.Data.AccessToken == "" || env.Data.RefreshToken == "" {
		return &requester.NetworkError{Op: "login", Err: errors.New("malformed response: missing credentials")}
	}

	pair := credentials.Pair{AccessToken: env.Data.AccessToken, RefreshToken: env.Data.RefreshToken}
	if err := credentials.SavePair(ctx, s.store, pair); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	if err := s.store.Set(ctx, credentials.KeyLoginID, loginID); err != nil {
		return fmt.Errorf("failed to store login id: %w", err)
	}
	if autoLogin {
		err = s.store.Set(ctx, credentials.KeyAutoLogin, constants.AutoLoginEnabled)
	} else {
		err = s.store.Remove(ctx, credentials.KeyAutoLogin)
	}
	if err != nil {
		return fmt.Errorf("failed to store auto-login flag: %w", err)
	}

	s.log.Info("signed in", zap.String("path", path), zap.Bool("autoLogin", autoLogin))
	return nil
}

// Logout tells the backend the session ended and clears every stored
// credential. The backend call is best effort; the local state is always
// cleared.
func (s *Session) Logout(ctx context.Context) error {
	access, err := credentials.Lookup(ctx, s.store, credentials.KeyAccessToken)
	if err != nil {
		s.log.Warn("failed to read access token", zap.Error(err))
	}
	if access != "" {
		if _, err := s.requester.Post(ctx, s.routes.Logout, nil); err != nil {
			s.log.Warn("backend logout failed", zap.Error(err))
		}
	}

	if err := s.store.RemoveMany(ctx,
		credentials.KeyAccessToken,
		credentials.KeyRefreshToken,
		credentials.KeyAutoLogin,
		credentials.KeyLoginID,
	); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	s.log.Info("signed out")
	return nil
}

// LoginID returns the identifier of the signed in user, or "".
func (s *Session) LoginID(ctx context.Context) (string, error) {
	return credentials.Lookup(ctx, s.store, credentials.KeyLoginID)
}

// handleInvalid runs after the coordinator cleared the tokens.
func (s *Session) handleInvalid(cause error) {
	s.log.Warn("session invalidated, signing out", zap.Error(cause))

	ctx := context.Background()
	if err := s.store.RemoveMany(ctx, credentials.KeyAutoLogin, credentials.KeyLoginID); err != nil {
		s.log.Error("failed to clear session flags", zap.Error(err))
	}

	select {
	case s.invalidated <- cause:
	default:
		select {
		case <-s.invalidated:
		default:
		}
		select {
		case s.invalidated <- cause:
		default:
		}
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/drinklog/internal/auth/constants"
	"github.com/brizzai/drinklog/internal/credentials"
	"github.com/brizzai/drinklog/internal/requester"
	"go.uber.org/zap"
)

// State describes the stored session after Hydrate.
type State int

const (
	// StateLoggedOut means no usable credentials are stored.
	StateLoggedOut State = iota
	// StateAuthenticated means the stored access token can be used.
	StateAuthenticated
	// StateStale means credentials are stored but could not be refreshed
	// because the backend was unreachable. They are kept for a later try.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged out"
	case StateAuthenticated:
		return "authenticated"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Hydrate restores the session at startup. Without the auto-login flag the
// tokens of a previous run are discarded. An access token that is expired,
// or about to be within the configured clock skew, is refreshed eagerly
// through the coordinator so that concurrent requests share the call.
func (s *Session) Hydrate(ctx context.Context) (State, error) {
	autoLogin, err := credentials.Lookup(ctx, s.store, credentials.KeyAutoLogin)
	if err != nil {
		return StateLoggedOut, fmt.Errorf("failed to read auto-login flag: %w", err)
	}
	if autoLogin != constants.AutoLoginEnabled {
		if err := credentials.ClearPair(ctx, s.store); err != nil {
			return StateLoggedOut, fmt.Errorf("failed to clear credentials: %w", err)
		}
		s.log.Debug("auto-login disabled, starting signed out")
		return StateLoggedOut, nil
	}

	pair, err := credentials.LoadPair(ctx, s.store)
	if err != nil {
		return StateLoggedOut, fmt.Errorf("failed to read credentials: %w", err)
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return StateLoggedOut, nil
	}
	if s.usable(pair.AccessToken) {
		return StateAuthenticated, nil
	}

	s.log.Info("stored access token expired, refreshing")
	outcome := s.coordinator.Refresh(ctx, pair.AccessToken)
	if outcome.Kind == requester.OutcomeToken {
		return StateAuthenticated, nil
	}

	switch {
	case errors.Is(outcome.Err, requester.ErrSessionInvalid):
		return StateLoggedOut, nil
	case errors.Is(outcome.Err, requester.ErrNoRefreshToken):
		if err := credentials.ClearPair(ctx, s.store); err != nil {
			s.log.Warn("failed to clear expired credentials", zap.Error(err))
		}
		return StateLoggedOut, nil
	default:
		return StateStale, fmt.Errorf("failed to refresh credentials: %w", outcome.Err)
	}
}

// usable reports whether token is present and not about to expire. A token
// that is not a JWT cannot be judged and is treated as expired.
func (s *Session) usable(token string) bool {
	if token == "" {
		return false
	}
	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	if exp.IsZero() {
		return true
	}
	return s.clock.Now().Add(s.clockSkew).Before(exp)
}

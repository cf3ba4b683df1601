package requester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/credentials"
	"github.com/brizzai/drinklog/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenRefresher exchanges a refresh token for a new access token. The
// returned token's RefreshToken is empty when the backend did not rotate it.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OutcomeKind tells how a refresh settled.
type OutcomeKind int

const (
	// OutcomeToken carries a new access token to replay with.
	OutcomeToken OutcomeKind = iota + 1
	// OutcomeFailed is definitive: the request must not be replayed.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeToken:
		return "token"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is delivered to the request that led a refresh and to every
// request that queued behind it.
type Outcome struct {
	Kind        OutcomeKind
	AccessToken string
	Err         error
}

func newTokenOutcome(token string) Outcome {
	return Outcome{Kind: OutcomeToken, AccessToken: token}
}

func failedOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// CoordinatorParams holds the parameters for creating a Coordinator
type CoordinatorParams struct {
	fx.In

	Store         credentials.Store
	Refresher     TokenRefresher
	BackendConfig *config.BackendConfig
	SessionConfig *config.SessionConfig
	Logger        *zap.Logger `optional:"true"`
}

// Coordinator makes sure at most one refresh call is in flight. Requests
// that hit an authorization failure while a refresh is running wait for it
// and all receive the same outcome.
type Coordinator struct {
	store     credentials.Store
	refresher TokenRefresher
	log       *zap.Logger

	refreshTimeout          time.Duration
	reuseRefreshToken       bool
	clearOnTransientFailure bool

	mu        sync.Mutex
	inFlight  bool
	waiters   []chan Outcome
	onInvalid []func(error)
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(params CoordinatorParams) *Coordinator {
	log := params.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Coordinator{
		store:                   params.Store,
		refresher:               params.Refresher,
		log:                     log.Named("refresh"),
		refreshTimeout:          params.BackendConfig.RefreshTimeout,
		reuseRefreshToken:       params.SessionConfig.ReuseRefreshToken,
		clearOnTransientFailure: params.SessionConfig.ClearOnTransientFailure,
	}
}

// OnSessionInvalid registers fn to run after a failed refresh cleared the
// credentials. fn must not call Refresh.
func (c *Coordinator) OnSessionInvalid(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInvalid = append(c.onInvalid, fn)
}

// Refreshing reports whether a refresh call is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Refresh obtains an access token newer than stale. It starts a refresh
// call unless one is already running, in which case it waits for that one.
// A waiter is not released by ctx: it resolves when the refresh settles,
// which the refresh timeout bounds.
func (c *Coordinator) Refresh(ctx context.Context, stale string) Outcome {
	c.mu.Lock()
	if c.inFlight {
		ch := make(chan Outcome, 1)
		c.waiters = append(c.waiters, ch)
		queued := len(c.waiters)
		c.mu.Unlock()

		c.log.Debug("waiting for in-flight refresh", zap.Int("waiters", queued))
		return <-ch
	}
	c.inFlight = true
	c.mu.Unlock()

	settled := false
	defer func() {
		// the refresher panicked: release the waiters before the panic unwinds
		if !settled {
			c.log.Error("refresh aborted by panic")
			c.settle(failedOutcome(ErrRefreshAborted))
		}
	}()

	outcome := c.lead(context.WithoutCancel(ctx), stale)
	c.settle(outcome)
	settled = true

	if outcome.Kind == OutcomeFailed && errors.Is(outcome.Err, ErrSessionInvalid) {
		c.notifyInvalid(outcome.Err)
	}
	return outcome
}

func (c *Coordinator) lead(ctx context.Context, stale string) Outcome {
	current, err := credentials.LoadPair(ctx, c.store)
	if err != nil {
		return failedOutcome(fmt.Errorf("failed to read credentials: %w", err))
	}

	// Another refresh finished after this request was sent.
	if current.AccessToken != "" && current.AccessToken != stale {
		c.log.Debug("credential already rotated, replaying with stored token")
		return newTokenOutcome(current.AccessToken)
	}

	if current.RefreshToken == "" {
		c.log.Debug("no refresh token stored, passing failure through")
		return failedOutcome(ErrNoRefreshToken)
	}

	c.log.Info("refreshing credentials")
	start := time.Now()

	refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	token, err := c.refresher.Refresh(refreshCtx, current.RefreshToken)
	if err == nil && (token == nil || token.AccessToken == "") {
		err = &NetworkError{Op: "refresh", Err: errors.New("response carried no access token")}
	}
	if err != nil {
		return c.fail(ctx, err)
	}

	if err := c.persist(ctx, current.RefreshToken, token); err != nil {
		c.log.Error("failed to persist refreshed credentials", zap.Error(err))
		return failedOutcome(err)
	}

	c.log.Info("credentials refreshed",
		zap.Duration("took", time.Since(start)),
		zap.Bool("rotated", token.RefreshToken != ""),
	)
	return newTokenOutcome(token.AccessToken)
}

// persist stores the new pair before any waiter is resumed.
func (c *Coordinator) persist(ctx context.Context, oldRefresh string, token *oauth2.Token) error {
	next := credentials.Pair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if next.RefreshToken == "" {
		if !c.reuseRefreshToken {
			if err := c.store.Set(ctx, credentials.KeyAccessToken, next.AccessToken); err != nil {
				return fmt.Errorf("failed to store access token: %w", err)
			}
			if err := c.store.Remove(ctx, credentials.KeyRefreshToken); err != nil {
				return fmt.Errorf("failed to discard refresh token: %w", err)
			}
			return nil
		}
		next.RefreshToken = oldRefresh
	}
	if err := credentials.SavePair(ctx, c.store, next); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, err error) Outcome {
	rejected := errors.Is(err, ErrRefreshRejected)
	c.log.Warn("credential refresh failed", zap.Bool("rejected", rejected), zap.Error(err))

	if !rejected && !c.clearOnTransientFailure {
		return failedOutcome(err)
	}

	if cerr := credentials.ClearPair(ctx, c.store); cerr != nil {
		c.log.Error("failed to clear credentials", zap.Error(cerr))
	}
	return failedOutcome(fmt.Errorf("%w: %w", ErrSessionInvalid, err))
}

func (c *Coordinator) settle(outcome Outcome) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	if len(waiters) > 0 {
		c.log.Debug("resuming waiters",
			zap.Int("waiters", len(waiters)),
			zap.Stringer("outcome", outcome.Kind),
		)
	}
	for _, ch := range waiters {
		ch <- outcome
	}
}

func (c *Coordinator) notifyInvalid(err error) {
	c.mu.Lock()
	hooks := append([]func(error){}, c.onInvalid...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(err)
	}
}

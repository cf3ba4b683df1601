package main

import (
	"context"
	"fmt"

	"github.com/brizzai/drinklog/internal/auth"
	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/credentials"
	"github.com/brizzai/drinklog/internal/logger"
	"github.com/brizzai/drinklog/internal/requester"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// client is what a command needs from the dependency graph
type client struct {
	fx.In

	Config    *config.Config
	Session   *auth.Session
	Requester *requester.HTTPRequester
}

// withClient builds the graph, runs fn and shuts the graph down, which
// flushes logs and closes the credential store.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c client) error) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	var c client
	app := fx.New(
		config.Module(cfg),
		logger.Module,
		credentials.Module,
		requester.Module,
		auth.Module,
		fx.Populate(&c),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}

	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()
	logger.Debug("client started",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("store", string(cfg.Store.Type)),
	)

	return fn(ctx, c)
}

// hydrate restores the stored session. When the backend refused the stored
// refresh token the session comes back logged out and the user is told to
// sign in again.
func hydrate(ctx context.Context, s *auth.Session) (auth.State, error) {
	state, err := s.Hydrate(ctx)
	if err != nil {
		return state, fmt.Errorf("failed to restore session: %w", err)
	}

	select {
	case cause := <-s.Invalidated():
		logger.Warn("stored session was revoked", zap.Error(cause))
		pterm.Warning.Println("Stored session has expired, please sign in again")
	default:
	}
	logger.Debug("session restored", zap.Stringer("state", state))
	return state, nil
}

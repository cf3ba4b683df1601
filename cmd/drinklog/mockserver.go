package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/logger"
	"github.com/brizzai/drinklog/internal/mockapi"
	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMockServerCmd() *cobra.Command {
	var (
		addr         string
		accessTTL    time.Duration
		rotate       bool
		refreshDelay time.Duration
		users        []string
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-process fake backend for trying the client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			if logLevel == "" {
				logLevel = "info"
			}
			if err := logger.InitLogger(&config.LoggingConfig{Level: logLevel, Format: "console", DisableStacktrace: true}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			gin.SetMode(gin.ReleaseMode)

			api := mockapi.New(mockapi.Options{
				AccessTTL:           accessTTL,
				RotateRefreshTokens: rotate,
				RefreshDelay:        refreshDelay,
				Logger:              logger.GetLogger(),
			})
			for _, u := range users {
				id, pw, ok := strings.Cut(u, ":")
				if !ok {
					return fmt.Errorf("--user must be identifier:password, got %q", u)
				}
				api.AddUser(id, pw)
				logger.Info("registered account", zap.String("identifier", id))
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pterm.Info.Printfln("Mock backend listening on http://%s (access tokens live %s)", ln.Addr(), accessTTL)
			return api.Serve(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "Listen address")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 30*time.Second, "Access token lifetime")
	cmd.Flags().BoolVar(&rotate, "rotate", true, "Rotate refresh tokens on every refresh")
	cmd.Flags().DurationVar(&refreshDelay, "refresh-delay", 200*time.Millisecond, "Latency added to the refresh route")
	cmd.Flags().StringArrayVar(&users, "user", []string{"demo:demo"}, "Account as identifier:password (repeatable)")
	return cmd
}

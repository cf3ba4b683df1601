package auth

import (
	"github.com/brizzai/drinklog/internal/requester"
	"go.uber.org/fx"
)

// Module provides the refresher the coordinator depends on and the Session
var Module = fx.Module("auth",
	fx.Provide(
		fx.Annotate(NewHTTPRefresher, fx.As(new(requester.TokenRefresher))),
		NewSession,
	),
)

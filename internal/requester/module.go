package requester

import (
	"go.uber.org/fx"
)

// Module provides the requester module dependencies. A TokenRefresher must
// be provided elsewhere.
var Module = fx.Module("requester",
	fx.Provide(
		NewPublicClient,
		fx.Annotate(
			NewBearerAuthManager,
			fx.As(new(AuthManager)),
		),
		NewCoordinator,
		NewTransport,
		NewHTTPRequester,
	),
)

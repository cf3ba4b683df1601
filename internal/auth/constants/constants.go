package constants

const (
	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "
)

// Error codes the backend uses in the envelope when it refuses a credential.
var RejectedErrorCodes = []string{
	"UNAUTHORIZED",
	"INVALID_TOKEN",
	"TOKEN_EXPIRED",
	"INVALID_REFRESH_TOKEN",
	"REFRESH_TOKEN_EXPIRED",
}

// AutoLoginEnabled is the stored value of the auto-login flag when set.
const AutoLoginEnabled = "true"

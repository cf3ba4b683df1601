package requester

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/brizzai/drinklog/internal/auth/constants"
	"github.com/brizzai/drinklog/internal/credentials"
)

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// BearerAuthManager attaches the stored access token as a bearer credential.
// It only reads the store: it never blocks on the backend and never refreshes.
type BearerAuthManager struct {
	store credentials.Store
}

// NewBearerAuthManager creates a new BearerAuthManager
func NewBearerAuthManager(store credentials.Store) *BearerAuthManager {
	return &BearerAuthManager{store: store}
}

// ApplyAuth adds the access token to the request when one is stored. A
// missing token is not an error: the request goes out unmodified.
func (a *BearerAuthManager) ApplyAuth(req *http.Request) error {
	token, err := credentials.Lookup(req.Context(), a.store, credentials.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if token != "" {
		setBearer(req, token)
	}
	return nil
}

func setBearer(req *http.Request, token string) {
	req.Header.Set(constants.AuthHeaderName, constants.AuthHeaderPrefix+token)
}

func bearerToken(req *http.Request) string {
	v := req.Header.Get(constants.AuthHeaderName)
	if !strings.HasPrefix(v, constants.AuthHeaderPrefix) {
		return ""
	}
	return strings.TrimPrefix(v, constants.AuthHeaderPrefix)
}

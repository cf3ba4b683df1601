package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/brizzai/drinklog/internal/auth/constants"
	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/logger"
	"github.com/brizzai/drinklog/internal/requester"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// HTTPRefresherParams holds the parameters for creating an HTTPRefresher
type HTTPRefresherParams struct {
	fx.In

	Client        *requester.PublicClient
	BackendConfig *config.BackendConfig
	Logger        *zap.Logger `optional:"true"`
}

// HTTPRefresher calls the backend refresh route. It goes through the
// PublicClient so the call can never re-enter the refresh coordinator.
type HTTPRefresher struct {
	client *requester.PublicClient
	path   string
	log    *zap.Logger
}

// NewHTTPRefresher creates a new HTTPRefresher
func NewHTTPRefresher(params HTTPRefresherParams) *HTTPRefresher {
	log := params.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &HTTPRefresher{
		client: params.Client,
		path:   params.BackendConfig.Routes.Refresh,
		log:    log.Named("refresher"),
	}
}

// Refresh exchanges refreshToken for a new access token. It fails with
// requester.ErrRefreshRejected when the backend refuses the refresh token
// and with *requester.NetworkError when the outcome is unknown.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	resp, err := r.client.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   r.path,
		Headers: map[string]string{
			constants.AuthHeaderName: constants.AuthHeaderPrefix + refreshToken,
		},
	})
	if err != nil {
		return nil, &requester.NetworkError{Op: "refresh", Err: err}
	}

	var env models.Envelope[models.TokenData]
	decodeErr := json.Unmarshal(resp.Body, &env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, rejected(resp.StatusCode, env.Error)
	case !resp.OK() && env.Error != nil && slices.Contains(constants.RejectedErrorCodes, env.Error.Code):
		return nil, rejected(resp.StatusCode, env.Error)
	case !resp.OK():
		// 5xx, 429 or a 4xx the backend did not attribute to the token
		return nil, &requester.NetworkError{Op: "refresh", Err: fmt.Errorf("backend returned %d", resp.StatusCode)}
	case decodeErr != nil:
		return nil, &requester.NetworkError{Op: "refresh", Err: fmt.Errorf("malformed response: %w", decodeErr)}
	case !env.Success:
		return nil, rejected(resp.StatusCode, env.Error)
	case env.Data == nil || env.Data.AccessToken == "":
		return nil, &requester.NetworkError{Op: "refresh", Err: errors.New("malformed response: missing access token")}
	}

	token := &oauth2.Token{
		AccessToken:  env.Data.AccessToken,
		RefreshToken: env.Data.RefreshToken,
		TokenType:    constants.TokenType,
	}
	if exp, ok := tokenExpiry(token.AccessToken); ok {
		token.Expiry = exp
	}
	r.log.Debug("refresh call succeeded", zap.Bool("rotated", token.RefreshToken != ""))
	return token, nil
}

func rejected(status int, apiErr *models.APIError) error {
	if apiErr == nil {
		return fmt.Errorf("%w: backend returned %d", requester.ErrRefreshRejected, status)
	}
	return fmt.Errorf("%w: %w", requester.ErrRefreshRejected, apiErr)
}

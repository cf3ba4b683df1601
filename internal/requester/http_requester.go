package requester

import (
	"context"
	"net/http"
	"net/url"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/brizzai/drinklog/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HTTPRequester is the authenticated request path for domain calls. The
// credential refresh it relies on is invisible to callers unless it fails.
type HTTPRequester struct {
	executor
	log *zap.Logger
}

type HTTPRequesterParams struct {
	fx.In

	BackendConfig *config.BackendConfig
	Transport     *Transport
	Logger        *zap.Logger `optional:"true"`
}

// NewHTTPRequester creates a new HTTPRequester. Timeouts are applied per
// attempt by the Transport, not across the refresh and replay.
func NewHTTPRequester(params HTTPRequesterParams) *HTTPRequester {
	log := params.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &HTTPRequester{
		executor: executor{
			client:  &http.Client{Transport: params.Transport},
			builder: NewHTTPRequestBuilder(params.BackendConfig.BaseURL, params.BackendConfig.Headers),
		},
		log: log.Named("requester"),
	}
}

// Do sends req with the current access token. A request that still fails
// authorization after refresh and replay returns the response together with
// an *AuthorizationError.
func (r *HTTPRequester) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := r.do(ctx, req)
	if err != nil {
		r.log.Error("failed to execute request", zap.Error(err))
		return nil, err
	}
	r.log.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return resp, &AuthorizationError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}
	return resp, nil
}

func (r *HTTPRequester) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return r.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

func (r *HTTPRequester) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return r.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

func (r *HTTPRequester) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return r.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

func (r *HTTPRequester) Delete(ctx context.Context, path string) (*Response, error) {
	return r.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

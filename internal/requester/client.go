package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/brizzai/drinklog/internal/config"
)

// executor sends built requests through one http.Client
type executor struct {
	client  *http.Client
	builder *HTTPRequestBuilder
}

func (e *executor) do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := e.builder.BuildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

// PublicClient sends requests that must never carry a stored credential or
// trigger a refresh: login, signup, the refresh call itself.
type PublicClient struct {
	executor
}

// NewPublicClient creates a new PublicClient
func NewPublicClient(cfg *config.BackendConfig) *PublicClient {
	return &PublicClient{executor{
		client:  &http.Client{Timeout: cfg.Timeout},
		builder: NewHTTPRequestBuilder(cfg.BaseURL, cfg.Headers),
	}}
}

// SetTransport replaces the underlying transport
func (c *PublicClient) SetTransport(rt http.RoundTripper) {
	c.client.Transport = rt
}

// Do sends req as is
func (c *PublicClient) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req)
}

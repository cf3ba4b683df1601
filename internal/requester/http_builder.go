package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-call id so a request and its replay can be
// correlated in backend logs.
const RequestIDHeader = "X-Request-ID"

// HTTPRequestBuilder turns a Request into an *http.Request against the
// backend base URL
type HTTPRequestBuilder struct {
	baseURL string
	headers map[string]string
}

// NewHTTPRequestBuilder creates a new HTTPRequestBuilder
func NewHTTPRequestBuilder(baseURL string, headers map[string]string) *HTTPRequestBuilder {
	return &HTTPRequestBuilder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: headers,
	}
}

// BuildRequest builds the HTTP request
func (b *HTTPRequestBuilder) BuildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := b.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, contentType, err := b.createRequestBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Merge headers, request headers win
	for key, value := range b.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	}

	return httpReq, nil
}

func (b *HTTPRequestBuilder) buildURL(path string, query url.Values) (string, error) {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(b.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}

	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (b *HTTPRequestBuilder) createRequestBody(body interface{}) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(v), "application/json", nil
	case json.RawMessage:
		return bytes.NewReader(v), "application/json", nil
	default:
		jsonData, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(jsonData), "application/json", nil
	}
}

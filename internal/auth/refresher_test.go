package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/brizzai/drinklog/internal/requester"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "ada"}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestHTTPRefresher_Refresh(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	access := signedToken(t, exp)

	tests := []struct {
		name          string
		status        int
		body          interface{}
		wantRejected  bool
		wantTransient bool
		wantAccess    string
		wantRefresh   string
	}{
		{
			name:        "rotated pair",
			status:      http.StatusOK,
			body:        models.Envelope[models.TokenData]{Success: true, Data: &models.TokenData{AccessToken: access, RefreshToken: "R2"}},
			wantAccess:  access,
			wantRefresh: "R2",
		},
		{
			name:       "access token only",
			status:     http.StatusOK,
			body:       models.Envelope[models.TokenData]{Success: true, Data: &models.TokenData{AccessToken: access}},
			wantAccess: access,
		},
		{
			name:         "unauthorized",
			status:       http.StatusUnauthorized,
			body:         models.Envelope[struct{}]{Error: &models.APIError{Code: "INVALID_REFRESH_TOKEN"}},
			wantRejected: true,
		},
		{
			name:         "forbidden without body",
			status:       http.StatusForbidden,
			body:         nil,
			wantRejected: true,
		},
		{
			name:         "bad request with a token error code",
			status:       http.StatusBadRequest,
			body:         models.Envelope[struct{}]{Error: &models.APIError{Code: "REFRESH_TOKEN_EXPIRED"}},
			wantRejected: true,
		},
		{
			name:          "bad request with another code",
			status:        http.StatusBadRequest,
			body:          models.Envelope[struct{}]{Error: &models.APIError{Code: "BAD_REQUEST"}},
			wantTransient: true,
		},
		{
			name:         "success false",
			status:       http.StatusOK,
			body:         models.Envelope[struct{}]{Error: &models.APIError{Code: "UNAUTHORIZED"}},
			wantRejected: true,
		},
		{
			name:          "server error",
			status:        http.StatusBadGateway,
			body:          nil,
			wantTransient: true,
		},
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          nil,
			wantTransient: true,
		},
		{
			name:          "malformed body",
			status:        http.StatusOK,
			body:          "<html>",
			wantTransient: true,
		},
		{
			name:          "missing access token",
			status:        http.StatusOK,
			body:          models.Envelope[models.TokenData]{Success: true, Data: &models.TokenData{}},
			wantTransient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
				switch b := tt.body.(type) {
				case nil:
				case string:
					_, _ = w.Write([]byte(b))
				default:
					_ = json.NewEncoder(w).Encode(b)
				}
			}))
			defer srv.Close()

			cfg := testBackendConfig(srv.URL)
			r := NewHTTPRefresher(HTTPRefresherParams{Client: requester.NewPublicClient(cfg), BackendConfig: cfg})

			token, err := r.Refresh(context.Background(), "R1")
			assert.Equal(t, "Bearer R1", gotAuth)
			assert.Equal(t, "/auth/refresh", gotPath)

			var netErr *requester.NetworkError
			switch {
			case tt.wantRejected:
				assert.ErrorIs(t, err, requester.ErrRefreshRejected)
				assert.False(t, errors.As(err, &netErr))
			case tt.wantTransient:
				assert.True(t, errors.As(err, &netErr), "expected NetworkError, got %v", err)
				assert.NotErrorIs(t, err, requester.ErrRefreshRejected)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantAccess, token.AccessToken)
				assert.Equal(t, tt.wantRefresh, token.RefreshToken)
				assert.Equal(t, "Bearer", token.TokenType)
				assert.True(t, exp.Equal(token.Expiry))
			}
		})
	}
}

func TestHTTPRefresher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := testBackendConfig(srv.URL)
	r := NewHTTPRefresher(HTTPRefresherParams{Client: requester.NewPublicClient(cfg), BackendConfig: cfg})

	_, err := r.Refresh(context.Background(), "R1")
	var netErr *requester.NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	got, ok := tokenExpiry(signedToken(t, exp))
	assert.True(t, ok)
	assert.True(t, exp.Equal(got))

	got, ok = tokenExpiry(signedToken(t, time.Time{}))
	assert.True(t, ok)
	assert.True(t, got.IsZero())

	_, ok = tokenExpiry("opaque-token")
	assert.False(t, ok)
}

package mockapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) models.Envelope[T] {
	t.Helper()
	var env models.Envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestLogin(t *testing.T) {
	s := New(Options{})
	s.AddUser("ada@example.com", "pw")

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid credentials",
			body:       models.LoginRequest{Identifier: "ada@example.com", Password: "pw"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong password",
			body:       models.LoginRequest{Identifier: "ada@example.com", Password: "nope"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeInvalidCredentials,
		},
		{
			name:       "unknown user",
			body:       models.LoginRequest{Identifier: "bob@example.com", Password: "pw"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeInvalidCredentials,
		},
		{
			name:       "malformed body",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/auth/login", "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			env := decode[models.TokenData](t, rec)
			if tt.wantCode == "" {
				require.True(t, env.Success)
				assert.NotEmpty(t, env.Data.AccessToken)
				assert.NotEmpty(t, env.Data.RefreshToken)
				return
			}
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestSignup(t *testing.T) {
	s := New(Options{})

	rec := do(t, s, http.MethodPost, "/auth/signup", "", models.SignupRequest{Identifier: "ada", Password: "pw", Name: "Ada"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/signup", "", models.SignupRequest{Identifier: "ada", Password: "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/login", "", models.LoginRequest{Identifier: "ada", Password: "pw"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSocialLogin(t *testing.T) {
	s := New(Options{})

	rec := do(t, s, http.MethodPost, "/auth/social/google", "", models.SocialLoginRequest{Token: "id-token"})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[models.TokenData](t, rec)

	rec = do(t, s, http.MethodGet, "/goals", env.Data.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/social/google", "", models.SocialLoginRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name        string
		rotate      bool
		wantRotated bool
	}{
		{name: "rotating", rotate: true, wantRotated: true},
		{name: "non-rotating", rotate: false, wantRotated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{RotateRefreshTokens: tt.rotate})
			tokens, err := s.IssueTokens("ada")
			require.NoError(t, err)

			rec := do(t, s, http.MethodPost, "/auth/refresh", tokens.RefreshToken, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			env := decode[models.TokenData](t, rec)
			require.True(t, env.Success)
			assert.NotEmpty(t, env.Data.AccessToken)
			assert.Equal(t, tt.wantRotated, env.Data.RefreshToken != "")

			// the old refresh token only survives when it was not rotated
			rec = do(t, s, http.MethodPost, "/auth/refresh", tokens.RefreshToken, nil)
			if tt.rotate {
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
			} else {
				assert.Equal(t, http.StatusOK, rec.Code)
			}
			assert.Equal(t, 2, s.RefreshCalls())
		})
	}
}

func TestRefresh_Revoked(t *testing.T) {
	s := New(Options{})
	tokens, err := s.IssueTokens("ada")
	require.NoError(t, err)

	s.Revoke()

	rec := do(t, s, http.MethodPost, "/auth/refresh", tokens.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode[models.TokenData](t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRefreshToken, env.Error.Code)
}

func TestRequireAuth(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := New(Options{AccessTTL: time.Minute, Clock: clock})
	tokens, err := s.IssueTokens("ada")
	require.NoError(t, err)

	other := New(Options{})
	foreign, err := other.IssueTokens("ada")
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/drinks", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/drinks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/drinks", foreign.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, decode[struct{}](t, rec).Error.Code)

	clock.Advance(2 * time.Minute)
	rec = do(t, s, http.MethodGet, "/drinks", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeTokenExpired, decode[struct{}](t, rec).Error.Code)

	assert.Equal(t, 3, s.Rejected())
}

func TestDrinks(t *testing.T) {
	s := New(Options{})
	tokens, err := s.IssueTokens("ada")
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/drinks", tokens.AccessToken, Drink{Name: "water", VolumeML: 250})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[Drink](t, rec)
	assert.NotEmpty(t, created.Data.ID)
	assert.False(t, created.Data.LoggedAt.IsZero())

	rec = do(t, s, http.MethodPost, "/drinks", tokens.AccessToken, Drink{Name: "water"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/drinks", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]Drink](t, rec)
	require.Len(t, *list.Data, 1)
	assert.Equal(t, "water", (*list.Data)[0].Name)
}

func TestLogout_RevokesRefreshTokens(t *testing.T) {
	s := New(Options{})
	tokens, err := s.IssueTokens("ada")
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/auth/logout", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/refresh", tokens.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/logout", "garbage", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// Package mockapi is an in-process stand-in for the drink log backend. It
// issues short-lived JWT access tokens and opaque refresh tokens so the
// client's refresh behavior can be exercised end to end.
package mockapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brizzai/drinklog/internal/auth/constants"
	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/brizzai/drinklog/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const subjectKey = "subject"

// Options configures a Server
type Options struct {
	// Secret signs access tokens. A random one is used when empty.
	Secret []byte
	// AccessTTL is the lifetime of access tokens. Defaults to 15 minutes.
	AccessTTL time.Duration
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// invalidates the old one. When false the refresh response omits it.
	RotateRefreshTokens bool
	// RefreshDelay holds every refresh call before answering.
	RefreshDelay time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger
}

// Drink is one logged drink
type Drink struct {
	ID       string    `json:"id"`
	Name     string    `json:"name" binding:"required"`
	VolumeML int       `json:"volumeMl" binding:"required,gt=0"`
	LoggedAt time.Time `json:"loggedAt"`
}

// Goals is the daily target of a user
type Goals struct {
	DailyML int `json:"dailyMl"`
}

type user struct {
	password string
	name     string
}

// Server is the fake backend
type Server struct {
	opts   Options
	engine *gin.Engine
	log    *zap.Logger

	mu            sync.Mutex
	users         map[string]user
	refreshTokens map[string]string
	drinks        map[string][]Drink
	refreshCalls  int
	rejected      int
}

// New creates a Server with its routes registered
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(uuid.NewString())
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Server{
		opts:          opts,
		log:           log.Named("mockapi"),
		users:         make(map[string]user),
		refreshTokens: make(map[string]string),
		drinks:        make(map[string][]Drink),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", s.login)
		authGroup.POST("/signup", s.signup)
		authGroup.POST("/social/:provider", s.socialLogin)
		authGroup.POST("/refresh", s.refresh)
		authGroup.POST("/logout", s.logout)
	}

	api := r.Group("/", s.requireAuth())
	{
		api.GET("/drinks", s.listDrinks)
		api.POST("/drinks", s.addDrink)
		api.GET("/goals", s.goals)
	}
	return r
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// AddUser registers an account that can log in
func (s *Server) AddUser(identifier, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[identifier] = user{password: password}
}

// IssueTokens returns a fresh credential pair for subject without going
// through a login route.
func (s *Server) IssueTokens(subject string) (models.TokenData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(subject)
}

// Revoke invalidates every refresh token issued so far
func (s *Server) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]string)
}

// RefreshCalls is the number of requests the refresh route received
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// Rejected is the number of domain requests answered with 401
func (s *Server) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

func (s *Server) issueLocked(subject string) (models.TokenData, error) {
	now := s.opts.Clock.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return models.TokenData{}, err
	}

	refresh := uuid.NewString()
	s.refreshTokens[refresh] = subject
	return models.TokenData{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Server) parseAccess(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func bearer(c *gin.Context) string {
	h := c.GetHeader(constants.AuthHeaderName)
	if !strings.HasPrefix(h, constants.AuthHeaderPrefix) {
		return ""
	}
	return strings.TrimPrefix(h, constants.AuthHeaderPrefix)
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			s.countRejected()
			sendUnauthorized(c, CodeUnauthorized, "Bearer token required")
			return
		}

		subject, err := s.parseAccess(token)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			s.countRejected()
			sendUnauthorized(c, CodeTokenExpired, "Access token expired")
			return
		case err != nil:
			s.countRejected()
			sendUnauthorized(c, CodeUnauthorized, "Invalid token")
			return
		}

		c.Set(subjectKey, subject)
		c.Next()
	}
}

func (s *Server) countRejected() {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

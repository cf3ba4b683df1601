package mockapi

import (
	"net/http"
	"time"

	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Server) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeBadRequest, "Invalid request data")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.Identifier]
	if !ok || u.password != req.Password {
		sendUnauthorized(c, CodeInvalidCredentials, "Invalid identifier or password")
		return
	}
	s.respondTokensLocked(c, req.Identifier)
}

func (s *Server) signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Identifier == "" || req.Password == "" {
		sendError(c, http.StatusBadRequest, CodeBadRequest, "Identifier and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[req.Identifier]; exists {
		sendError(c, http.StatusConflict, CodeConflict, "Account already exists")
		return
	}
	s.users[req.Identifier] = user{password: req.Password, name: req.Name}
	s.respondTokensLocked(c, req.Identifier)
}

func (s *Server) socialLogin(c *gin.Context) {
	var req models.SocialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		sendError(c, http.StatusBadRequest, CodeBadRequest, "Provider token is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.respondTokensLocked(c, c.Param("provider")+":"+req.Token)
}

func (s *Server) respondTokensLocked(c *gin.Context, subject string) {
	tokens, err := s.issueLocked(subject)
	if err != nil {
		s.log.Error("failed to issue tokens", zap.Error(err))
		sendError(c, http.StatusInternalServerError, "INTERNAL", "Failed to issue tokens")
		return
	}
	sendData(c, http.StatusOK, tokens)
}

func (s *Server) refresh(c *gin.Context) {
	if d := s.opts.RefreshDelay; d > 0 {
		select {
		case <-s.opts.Clock.After(d):
		case <-c.Request.Context().Done():
			return
		}
	}

	refresh := bearer(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	subject, ok := s.refreshTokens[refresh]
	if !ok {
		sendUnauthorized(c, CodeInvalidRefreshToken, "Refresh token is invalid or revoked")
		return
	}

	tokens, err := s.issueLocked(subject)
	if err != nil {
		s.log.Error("failed to issue tokens", zap.Error(err))
		sendError(c, http.StatusInternalServerError, "INTERNAL", "Failed to issue tokens")
		return
	}
	if s.opts.RotateRefreshTokens {
		delete(s.refreshTokens, refresh)
	} else {
		delete(s.refreshTokens, tokens.RefreshToken)
		tokens.RefreshToken = ""
	}
	sendData(c, http.StatusOK, tokens)
}

// logout revokes the refresh tokens of the caller. It answers 200 even for
// an expired access token so a client can always sign out.
func (s *Server) logout(c *gin.Context) {
	subject, err := s.parseAccess(bearer(c))
	if err != nil {
		sendData(c, http.StatusOK, struct{}{})
		return
	}

	s.mu.Lock()
	for token, owner := range s.refreshTokens {
		if owner == subject {
			delete(s.refreshTokens, token)
		}
	}
	s.mu.Unlock()
	sendData(c, http.StatusOK, struct{}{})
}

func (s *Server) listDrinks(c *gin.Context) {
	subject := c.GetString(subjectKey)

	s.mu.Lock()
	drinks := append([]Drink{}, s.drinks[subject]...)
	s.mu.Unlock()

	sendData(c, http.StatusOK, drinks)
}

func (s *Server) addDrink(c *gin.Context) {
	var d Drink
	if err := c.ShouldBindJSON(&d); err != nil {
		sendError(c, http.StatusBadRequest, CodeBadRequest, "Name and a positive volume are required")
		return
	}
	d.ID = uuid.NewString()
	if d.LoggedAt.IsZero() {
		d.LoggedAt = s.opts.Clock.Now().UTC().Truncate(time.Second)
	}

	subject := c.GetString(subjectKey)
	s.mu.Lock()
	s.drinks[subject] = append(s.drinks[subject], d)
	s.mu.Unlock()

	sendData(c, http.StatusCreated, d)
}

func (s *Server) goals(c *gin.Context) {
	sendData(c, http.StatusOK, Goals{DailyML: 2000})
}

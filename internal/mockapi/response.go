package mockapi

import (
	"net/http"

	"github.com/brizzai/drinklog/internal/auth/models"
	"github.com/gin-gonic/gin"
)

// Error codes returned in the envelope
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
)

func sendData[T any](c *gin.Context, status int, data T) {
	c.JSON(status, models.Envelope[T]{Success: true, Data: &data})
}

func sendError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.Envelope[struct{}]{
		Error: &models.APIError{Code: code, Message: message},
	})
}

func sendUnauthorized(c *gin.Context, code, message string) {
	sendError(c, http.StatusUnauthorized, code, message)
}

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionIDContextKey = "auth_session_id"

// Middleware resolves the request token to a session id and stores it in the
// gin context. Missing, unknown and expired tokens are rejected with 401.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "You must be logged in."})
			return
		}
		sessionID, err := s.ValidateToken(c.Request.Context(), token)
		switch {
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case err != nil:
			s.log.Error("validate token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Set(sessionIDContextKey, sessionID)
		c.Next()
	}
}

// SessionIDFromContext retrieves the session id bound to the request token.
func SessionIDFromContext(c *gin.Context) (string, bool) {
	sessionID := c.GetString(sessionIDContextKey)
	return sessionID, sessionID != ""
}

// extractToken prefers the Authorization bearer over the cookie.
func (s *Service) extractToken(c *gin.Context) string {
	if h := c.GetHeader(s.headerName); hasBearer(h) {
		return strings.TrimSpace(h[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil {
		return token
	}
	return ""
}

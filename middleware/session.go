package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
)

// SessionReader is the part of the auth store the middleware needs.
// Current returns services.ErrNoSession when nobody is signed in.
type SessionReader interface {
	Current() (*models.AuthSession, error)
}

// RequireSession rejects view server calls that need the marketplace token
// while no one is signed in, and stores the session for handlers.
func RequireSession(sessions SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.Current()
		if err != nil {
			status := http.StatusInternalServerError
			code := "SESSION_READ_FAILED"
			message := "Failed to read the stored session"
			if errors.Is(err, services.ErrNoSession) {
				status = http.StatusUnauthorized
				code = "NOT_SIGNED_IN"
				message = "Sign in to continue"
			}
			c.JSON(status, gin.H{
				"success": false,
				"error": gin.H{
					"code":    code,
					"message": message,
				},
			})
			c.Abort()
			return
		}

		c.Set("session", session)
		c.Next()
	}
}

// GetSession returns the session stored by RequireSession
func GetSession(c *gin.Context) (*models.AuthSession, error) {
	value, exists := c.Get("session")
	if !exists {
		return nil, &AuthError{Code: "MISSING_SESSION", Message: "Session not found in context"}
	}
	session, ok := value.(*models.AuthSession)
	if !ok {
		return nil, &AuthError{Code: "INVALID_SESSION", Message: "Session is not in the expected format"}
	}
	return session, nil
}

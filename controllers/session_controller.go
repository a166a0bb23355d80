package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/services"
)

// SignInRequest carries the marketplace bearer token obtained by the shell's login flow
type SignInRequest struct {
	Token string `json:"token" binding:"required"`
}

// GetSession handles GET /api/v1/session
func (ctl *Controller) GetSession(c *gin.Context) {
	session, err := ctl.Sessions.Current()
	if errors.Is(err, services.ErrNoSession) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"signed_in": false},
		})
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "SESSION_READ_FAILED", "Failed to read the stored session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"signed_in": true,
			"user":      session.User,
		},
	})
}

// SignIn handles POST /api/v1/session
func (ctl *Controller) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	session, err := ctl.Sessions.SignIn(c.Request.Context(), req.Token)
	if errors.Is(err, services.ErrUnauthorized) {
		respondError(c, http.StatusUnauthorized, "INVALID_TOKEN", "The marketplace rejected this token")
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"signed_in": true,
			"user":      session.User,
		},
	})
}

// RefreshSession handles POST /api/v1/session/refresh. It reloads the cached
// profile from the marketplace.
func (ctl *Controller) RefreshSession(c *gin.Context) {
	session, err := ctl.Sessions.RefreshProfile(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"signed_in": true,
			"user":      session.User,
		},
	})
}

// Logout handles POST /api/v1/session/logout
func (ctl *Controller) Logout(c *gin.Context) {
	if err := ctl.Sessions.Logout(); err != nil {
		respondError(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to clear the stored session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"signed_in": false},
	})
}

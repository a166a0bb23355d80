package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/services"
	"go.uber.org/zap"
)

// Controller holds what the view server handlers need from the client core
type Controller struct {
	API           services.MarketplaceAPI
	Cache         *services.QueryCache
	Conversations *services.ConversationRegistry
	Sessions      *services.SessionService
	Resolver      services.AttachmentResolver
	Navigation    *services.NavigationQueue
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps errors coming back from the services layer
func respondServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var apiErr *services.APIError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    validationErr.Code,
				"message": validationErr.Message,
				"details": validationErr.Details,
			},
		})
	case errors.Is(err, services.ErrNoSession):
		respondError(c, http.StatusUnauthorized, "NOT_SIGNED_IN", "Sign in to continue")
	case errors.Is(err, services.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, "SESSION_EXPIRED", services.UserMessage(err))
	case errors.Is(err, services.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", services.UserMessage(err))
	case errors.As(err, &apiErr):
		respondError(c, http.StatusBadGateway, apiErr.Code, services.UserMessage(err))
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", services.UserMessage(err))
	}
}

// staleOrFail reports whether err only means cached data is being served.
// Any other error is written to c and false is returned.
func staleOrFail(c *gin.Context, err error) (stale bool, ok bool) {
	if err == nil {
		return false, true
	}
	var staleErr *services.StaleError
	if errors.As(err, &staleErr) {
		logger.Warn("serving cached data", zap.String("key", staleErr.Key), zap.Error(staleErr.Err))
		return true, true
	}
	respondServiceError(c, err)
	return false, false
}

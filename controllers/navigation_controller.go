package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/services"
)

// DrainNavigation handles GET /api/v1/navigation. The shell polls it and resets
// its stack to the newest intent.
func (ctl *Controller) DrainNavigation(c *gin.Context) {
	intents := []services.NavigationIntent{}
	intents = append(intents, ctl.Navigation.Drain()...)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    intents,
	})
}

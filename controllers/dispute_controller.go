package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/services"
)

// ListDisputes handles GET /api/v1/disputes?tab=open|resolved|all&q=...
func (ctl *Controller) ListDisputes(c *gin.Context) {
	tab := services.ParseThreadTab(c.Query("tab"))
	search := c.Query("q")

	disputes, err := services.Query(c.Request.Context(), ctl.Cache, "disputes", ctl.API.FetchDisputes)
	stale, ok := staleOrFail(c, err)
	if !ok {
		return
	}

	bucket := services.BucketForDisputesTab(tab, disputes, search)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stale":   stale,
		"data": gin.H{
			"tab":      tab,
			"query":    search,
			"disputes": bucket,
		},
	})
}


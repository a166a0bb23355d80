package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
)

// ListOrders handles GET /api/v1/orders?tab=0|1|2&page=N
func (ctl *Controller) ListOrders(c *gin.Context) {
	tab, err := services.ParseOrdersTab(c.DefaultQuery("tab", "0"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_TAB", err.Error())
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		respondError(c, http.StatusBadRequest, "INVALID_PAGE", "page must be a positive integer")
		return
	}

	key := "orders:page:" + strconv.Itoa(page)
	result, err := services.Query(c.Request.Context(), ctl.Cache, key, func(ctx context.Context) (*models.Page[models.Order], error) {
		return ctl.API.FetchOrders(ctx, page)
	})
	stale, ok := staleOrFail(c, err)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stale":   stale,
		"data": gin.H{
			"tab":          tab.String(),
			"orders":       services.BucketForOrdersTab(tab, result.Data),
			"current_page": result.CurrentPage,
			"last_page":    result.LastPage,
			"has_more":     result.HasMore(),
		},
	})
}

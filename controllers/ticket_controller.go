package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/middleware"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
	"github.com/kendall-kelly/marketplace-client/utils"
	"go.uber.org/zap"
)

const ticketsCacheKey = "tickets"

// ListTickets handles GET /api/v1/tickets?tab=open|resolved|all
func (ctl *Controller) ListTickets(c *gin.Context) {
	tab := services.ParseThreadTab(c.Query("tab"))

	tickets, err := services.Query(c.Request.Context(), ctl.Cache, ticketsCacheKey, ctl.API.FetchTickets)
	stale, ok := staleOrFail(c, err)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stale":   stale,
		"data": gin.H{
			"tab":     tab,
			"tickets": services.BucketForTicketsTab(tab, tickets),
		},
	})
}

// CreateTicket handles POST /api/v1/tickets
func (ctl *Controller) CreateTicket(c *gin.Context) {
	var req models.CreateTicketRequest
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

	if err := utils.GetValidator().Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": utils.ParseErrors(err),
			},
		})
		return
	}

	ticket, err := ctl.API.CreateTicket(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if session, err := middleware.GetSession(c); err == nil {
		logger.Info("support ticket opened", zap.Uint64("ticket_id", ticket.ID), zap.Uint64("user_id", session.User.ID))
	}

	if err := ctl.Cache.Invalidate(c.Request.Context(), ticketsCacheKey); err != nil {
		logger.Warn("query invalidation failed", zap.String("key", ticketsCacheKey), zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    ticket,
	})
}

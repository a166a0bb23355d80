package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/middleware"
)

// RouteGuards are extra middleware applied when the view server is protected
type RouteGuards struct {
	// Token validates the caller, e.g. middleware.EnsureValidToken
	Token gin.HandlerFunc
	// Write is applied to mutating conversation routes, e.g. middleware.RequireScope
	Write gin.HandlerFunc
}

// RegisterRoutes mounts every view server route except /health on v1
func (ctl *Controller) RegisterRoutes(v1 *gin.RouterGroup, guards RouteGuards) {
	api := v1.Group("")
	if guards.Token != nil {
		api.Use(guards.Token)
	}

	// Session routes work while signed out
	api.GET("/session", ctl.GetSession)
	api.POST("/session", ctl.SignIn)
	api.POST("/session/logout", ctl.Logout)
	api.GET("/navigation", ctl.DrainNavigation)
	api.GET("/attachments/resolve", ctl.ResolveAttachment)
	api.GET("/attachments/staged/:filename", GetStagedAttachment)

	signedIn := api.Group("", middleware.RequireSession(ctl.Sessions))
	{
		signedIn.POST("/session/refresh", ctl.RefreshSession)
		signedIn.GET("/orders", ctl.ListOrders)
		signedIn.GET("/disputes", ctl.ListDisputes)
		signedIn.GET("/tickets", ctl.ListTickets)

		conversation := signedIn.Group("/conversations/:kind/:id")
		conversation.GET("/messages", ctl.GetMessages)
		conversation.POST("/refresh", ctl.RefreshConversation)
		conversation.GET("/notices", ctl.DrainNotices)
		conversation.DELETE("", ctl.DismissConversation)

		writes := signedIn.Group("")
		if guards.Write != nil {
			writes.Use(guards.Write)
		}
		writes.POST("/tickets", ctl.CreateTicket)

		writeConversation := writes.Group("/conversations/:kind/:id")
		writeConversation.POST("/messages", ctl.SendMessage)
		writeConversation.POST("/messages/:tempId/retry", ctl.RetryMessage)
		writeConversation.DELETE("/messages/:tempId", ctl.DiscardMessage)
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/marketplace-client/config"
	"github.com/kendall-kelly/marketplace-client/controllers"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/middleware"
	"github.com/kendall-kelly/marketplace-client/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app is the wired client core behind the view server
type app struct {
	controller *controllers.Controller
	guards     controllers.RouteGuards
	redis      *services.RedisCacheStore
}

// newApp wires the client core. api is injected so tests can pass a mock.
func newApp(ctx context.Context, cfg *config.Config, db *gorm.DB, api services.MarketplaceAPI) (*app, error) {
	a := &app{}

	var store services.CacheStore
	if cfg.RedisURL != "" {
		redisStore, err := services.NewRedisCacheStore(ctx, cfg.RedisURL, 24*time.Hour)
		if err != nil {
			logger.Warn("redis query cache unavailable, using memory", zap.Error(err))
		} else {
			store = redisStore
			a.redis = redisStore
		}
	}
	cache := services.NewQueryCache(store, cfg.QueryStaleTime)

	var resolver services.AttachmentResolver = services.StorageURLResolver{BaseURL: cfg.StorageBaseURL}
	if cfg.UsesS3Attachments() {
		s3Resolver, err := services.NewS3AttachmentResolver(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up attachment presigning: %w", err)
		}
		resolver = s3Resolver
	}

	navigation := services.NewNavigationQueue()
	sessions := services.NewSessionService(db, api, navigation.Navigator())
	if err := sessions.Migrate(); err != nil {
		return nil, err
	}

	registry := services.NewConversationRegistry(api, cache, resolver)
	sessions.OnReset(func() {
		if err := cache.Clear(context.Background()); err != nil {
			logger.Warn("failed to clear query cache", zap.Error(err))
		}
	})
	sessions.OnReset(func() { registry.DismissAll() })

	if client, ok := api.(*services.APIClient); ok {
		client.UseTokens(sessions)
		client.OnUnauthorized(func() {
			logger.Warn("marketplace rejected the stored token, signing out")
			if err := sessions.Logout(); err != nil {
				logger.Error("logout after 401 failed", zap.Error(err))
			}
		})
	}

	if cfg.UsesAuth0() {
		guard, err := middleware.EnsureValidToken(cfg)
		if err != nil {
			return nil, err
		}
		a.guards = controllers.RouteGuards{
			Token: guard,
			Write: middleware.RequireScope(middleware.ScopeWriteConversations),
		}
	}

	a.controller = &controllers.Controller{
		API:           api,
		Cache:         cache,
		Conversations: registry,
		Sessions:      sessions,
		Resolver:      resolver,
		Navigation:    navigation,
	}
	return a, nil
}

// shutdown lets in-flight sends finish, then releases shared resources
func (a *app) shutdown() {
	a.controller.Conversations.CloseAll()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

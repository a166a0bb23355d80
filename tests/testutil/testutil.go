package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/controllers"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
	"github.com/kendall-kelly/marketplace-client/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: tests must run with GO_ENV=test so the stored session is never touched. Current GO_ENV=%q.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test and fails if it cannot be set.
// Use this in TestMain or suite setup functions.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	if err := os.Setenv("GO_ENV", "test"); err != nil {
		t.Fatalf("Failed to set GO_ENV=test: %v", err)
	}
	RequireTestEnvironment(t)
}

// NewTestDB opens a private in-memory session store
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: would get its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// Harness is a fully wired controller over a mock marketplace
type Harness struct {
	Controller *controllers.Controller
	API        *services.MockAPIClient
	Router     *gin.Engine
}

// NewHarness wires the view server routes over a MockAPIClient whose message
// ids start at firstID. Attachments are staged in a per-test directory.
func NewHarness(t *testing.T, firstID uint64, guards controllers.RouteGuards) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.StagingDir = t.TempDir()

	api := services.NewMockAPIClient(firstID)
	api.Profile = &models.User{ID: 21, Name: "Test Customer", Email: "customer@test.com"}

	cache := services.NewQueryCache(nil, 0)
	resolver := services.StorageURLResolver{BaseURL: "https://shop.test/storage"}
	nav := services.NewNavigationQueue()
	sessions := services.NewSessionService(NewTestDB(t), api, nav.Navigator())
	require.NoError(t, sessions.Migrate())

	ctl := &controllers.Controller{
		API:           api,
		Cache:         cache,
		Conversations: services.NewConversationRegistry(api, cache, resolver),
		Sessions:      sessions,
		Resolver:      resolver,
		Navigation:    nav,
	}
	sessions.OnReset(func() { _ = cache.Clear(context.Background()) })
	sessions.OnReset(func() { ctl.Conversations.DismissAll() })
	t.Cleanup(ctl.Conversations.CloseAll)

	router := gin.New()
	ctl.RegisterRoutes(router.Group("/api/v1"), guards)
	return &Harness{Controller: ctl, API: api, Router: router}
}

// SignIn stores a session for the harness's mock profile
func (h *Harness) SignIn(t *testing.T) {
	t.Helper()
	_, err := h.Controller.Sessions.SignIn(context.Background(), "test-token")
	require.NoError(t, err)
}

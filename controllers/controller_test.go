package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
	"github.com/kendall-kelly/marketplace-client/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	router *gin.Engine
	ctl    *Controller
	api    *services.MockAPIClient
}

func setupSessionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

// setupTestServer builds the view server over a mock marketplace API. When
// signedIn is true a session is stored before any request is made.
func setupTestServer(t *testing.T, signedIn bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.StagingDir = t.TempDir()

	api := services.NewMockAPIClient(501)
	api.Profile = &models.User{ID: 8, Name: "Noor Haddad", Email: "noor@example.com"}

	cache := services.NewQueryCache(nil, 0)
	resolver := services.StorageURLResolver{BaseURL: "https://shop.example.com/storage"}
	nav := services.NewNavigationQueue()
	sessions := services.NewSessionService(setupSessionDB(t), api, nav.Navigator())
	require.NoError(t, sessions.Migrate())

	ctl := &Controller{
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

	if signedIn {
		_, err := sessions.SignIn(context.Background(), "test-token")
		require.NoError(t, err)
	}

	router := gin.New()
	ctl.RegisterRoutes(router.Group("/api/v1"), RouteGuards{})
	return &testServer{router: router, ctl: ctl, api: api}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

// waitConversation blocks until the open conversation's sends have finished
func (s *testServer) waitConversation(t *testing.T, ref models.ConversationRef) {
	t.Helper()
	oc, ok := s.ctl.Conversations.Get(ref)
	require.True(t, ok, "conversation %s should be open", ref)
	oc.Wait()
}

func errorCode(response map[string]interface{}) string {
	errBody, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errBody["code"].(string)
	return code
}

func orderFixture(id uint64, status string) models.Order {
	return models.Order{
		ID:          id,
		OrderNumber: fmt.Sprintf("ORD-%04d", id),
		SubOrders:   []models.SubOrder{{ID: id * 10, Status: status}},
	}
}

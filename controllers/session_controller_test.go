package controllers

import (
	"net/http"
	"testing"

	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	server := setupTestServer(t, false)

	w, response := server.do(t, http.MethodGet, "/api/v1/session", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["data"].(map[string]interface{})["signed_in"])

	w, response = server.do(t, http.MethodPost, "/api/v1/session", map[string]interface{}{"token": "Bearer fresh-token"})
	require.Equal(t, http.StatusCreated, w.Code)
	user := response["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "Noor Haddad", user["name"])

	w, _ = server.do(t, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code, "signed-in routes open up")

	w, response = server.do(t, http.MethodPost, "/api/v1/session/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["data"].(map[string]interface{})["signed_in"])

	_, response = server.do(t, http.MethodGet, "/api/v1/navigation", nil)
	intents := response["data"].([]interface{})
	require.Len(t, intents, 1)
	assert.Equal(t, services.RouteLogin, intents[0].(map[string]interface{})["route"])

	w, _ = server.do(t, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignInErrors(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]interface{}
		rejectProfile  bool
		expectedStatus int
		expectedError  string
	}{
		{"missing token", map[string]interface{}{}, false, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"blank bearer", map[string]interface{}{"token": "Bearer "}, false, http.StatusBadRequest, "MISSING_TOKEN"},
		{"rejected token", map[string]interface{}{"token": "revoked"}, true, http.StatusUnauthorized, "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, false)
			if tt.rejectProfile {
				server.api.Profile = nil
			}

			w, response := server.do(t, http.MethodPost, "/api/v1/session", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedError, errorCode(response))
		})
	}
}

func TestNavigationIsEmptyByDefault(t *testing.T) {
	server := setupTestServer(t, false)

	w, response := server.do(t, http.MethodGet, "/api/v1/navigation", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, response["data"].([]interface{}))
}

func TestRefreshSessionReloadsProfile(t *testing.T) {
	server := setupTestServer(t, true)
	server.api.Profile = &models.User{ID: 8, Name: "Noor H.", Email: "noor@example.com"}

	w, response := server.do(t, http.MethodPost, "/api/v1/session/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := response["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "Noor H.", user["name"])

	_, response = server.do(t, http.MethodGet, "/api/v1/session", nil)
	user = response["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "Noor H.", user["name"], "refreshed profile is persisted")
}

func TestRefreshSessionRequiresSignIn(t *testing.T) {
	server := setupTestServer(t, false)

	w, response := server.do(t, http.MethodPost, "/api/v1/session/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_SIGNED_IN", errorCode(response))
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kendall-kelly/marketplace-client/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMarketplace serves the handful of REST endpoints the client core calls
type fakeMarketplace struct {
	mu       sync.Mutex
	token    string
	revoked  bool
	nextID   int
	messages []map[string]interface{}
	posted   []string
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		token:  "good-token",
		nextID: 501,
		messages: []map[string]interface{}{
			{"id": 10, "message": "Where is my parcel?", "sender_type": "customer", "created_at": "2026-10-01T09:00:00Z"},
		},
	}
}

func (f *fakeMarketplace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.revoked || r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/user":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"id": 4, "name": "Amara Okafor"}})
	case r.Method == http.MethodGet && r.URL.Path == "/api/disputes/3":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"id": 3, "status": "open", "messages": f.messages}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/disputes/3/messages":
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "multipart/form-data" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		text := r.FormValue("message")
		created := map[string]interface{}{
			"id":          f.nextID,
			"message":     text,
			"sender_type": "customer",
			"created_at":  time.Now().UTC().Format(time.RFC3339),
		}
		f.nextID++
		f.messages = append(f.messages, created)
		f.posted = append(f.posted, r.FormValue("dispute_id")+":"+text)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": created})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not found."}`))
	}
}

func (f *fakeMarketplace) revoke() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = true
}

func (f *fakeMarketplace) postedMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posted...)
}

type envelope struct {
	Success bool            `json:"success"`
	Stale   bool            `json:"stale"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

type acceptanceClient struct {
	t      *testing.T
	server *httptest.Server
}

func (c acceptanceClient) call(method, path string, body interface{}) (int, envelope) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

type conversationView struct {
	Messages []struct {
		ID           interface{} `json:"id"`
		Text         string      `json:"text"`
		IsOptimistic bool        `json:"is_optimistic"`
	} `json:"messages"`
	Pending int `json:"pending"`
}

// TestAcceptanceSendMessageThroughMarketplace drives the view server against a
// fake marketplace: sign in, open a dispute thread, send, and see the server copy
// replace the optimistic entry.
func TestAcceptanceSendMessageThroughMarketplace(t *testing.T) {
	market := newFakeMarketplace()
	upstream := httptest.NewServer(market)
	defer upstream.Close()

	cfg := testConfig()
	cfg.APIBaseURL = upstream.URL + "/api"
	cfg.HTTPTimeout = 5 * time.Second
	router, _ := setupRouterWith(t, cfg, services.NewAPIClient(cfg))

	server := httptest.NewServer(router)
	defer server.Close()
	client := acceptanceClient{t: t, server: server}

	// Step 1: sign in with the marketplace token
	status, env := client.call(http.MethodPost, "/api/v1/session", map[string]string{"token": "good-token"})
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, string(env.Data), "Amara Okafor")

	// Step 2: open the dispute thread
	status, env = client.call(http.MethodGet, "/api/v1/conversations/disputes/3/messages", nil)
	require.Equal(t, http.StatusOK, status)
	var view conversationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "Where is my parcel?", view.Messages[0].Text)

	// Step 3: send a message and get the optimistic entry back
	status, env = client.call(http.MethodPost, "/api/v1/conversations/disputes/3/messages", map[string]string{"text": "  Hello  "})
	require.Equal(t, http.StatusAccepted, status)
	var optimistic struct {
		ID           string `json:"id"`
		Text         string `json:"text"`
		IsOptimistic bool   `json:"is_optimistic"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &optimistic))
	assert.Equal(t, "Hello", optimistic.Text)
	assert.True(t, optimistic.IsOptimistic)
	assert.NotEmpty(t, optimistic.ID)

	// Step 4: the confirmed server message replaces the optimistic one
	assert.Eventually(t, func() bool {
		_, env := client.call(http.MethodGet, "/api/v1/conversations/disputes/3/messages", nil)
		var view conversationView
		if err := json.Unmarshal(env.Data, &view); err != nil {
			return false
		}
		if view.Pending != 0 || len(view.Messages) != 2 {
			return false
		}
		last := view.Messages[1]
		return fmt.Sprint(last.ID) == "501" && last.Text == "Hello" && !last.IsOptimistic
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"3:Hello"}, market.postedMessages())

	// Step 5: no notices were raised for a successful send
	status, env = client.call(http.MethodGet, "/api/v1/conversations/disputes/3/notices", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "send_error")

	// Step 6: a revoked token signs the user out and asks for the login screen
	market.revoke()
	client.call(http.MethodPost, "/api/v1/conversations/disputes/3/refresh", nil)

	status, env = client.call(http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"signed_in":false`)

	status, env = client.call(http.MethodGet, "/api/v1/navigation", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), services.RouteLogin)

	status, env = client.call(http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "NOT_SIGNED_IN", env.Error.Code)
}

// TestAcceptanceSignInRejected covers a token the marketplace refuses
func TestAcceptanceSignInRejected(t *testing.T) {
	market := newFakeMarketplace()
	upstream := httptest.NewServer(market)
	defer upstream.Close()

	cfg := testConfig()
	cfg.APIBaseURL = upstream.URL + "/api"
	router, _ := setupRouterWith(t, cfg, services.NewAPIClient(cfg))

	w := &testResponseWriter{header: make(http.Header)}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"token":"stolen"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.statusCode)
	assert.Contains(t, string(w.body), "INVALID_TOKEN")
}

// testResponseWriter is a minimal http.ResponseWriter for handler tests
type testResponseWriter struct {
	header     http.Header
	body       []byte
	statusCode int
}

func (w *testResponseWriter) Header() http.Header {
	return w.header
}

func (w *testResponseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return len(b), nil
}

func (w *testResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
}

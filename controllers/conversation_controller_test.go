package controllers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketRef = models.ConversationRef{Kind: models.ConversationTicket, ID: 14}

func messagesOf(t *testing.T, response map[string]interface{}) []map[string]interface{} {
	t.Helper()
	data := response["data"].(map[string]interface{})
	raw := data["messages"].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]interface{}))
	}
	return out
}

func TestGetMessagesOpensConversation(t *testing.T) {
	server := setupTestServer(t, true)
	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	server.api.Seed(ticketRef,
		models.MessageResource{ID: models.ServerID(2), Message: "We are on it", SenderType: "support", CreatedAt: at.Add(time.Minute)},
		models.MessageResource{ID: models.ServerID(1), Message: "My parcel is late", SenderType: "customer", Attachment: "tickets/1.jpg", CreatedAt: at},
	)

	w, response := server.do(t, http.MethodGet, "/api/v1/conversations/tickets/14/messages", nil)

	require.Equal(t, http.StatusOK, w.Code)
	messages := messagesOf(t, response)
	require.Len(t, messages, 2)
	assert.Equal(t, float64(1), messages[0]["id"])
	assert.Equal(t, "self", messages[0]["sender_role"])
	assert.Equal(t, "https://shop.example.com/storage/tickets/1.jpg", messages[0]["attachment_url"])
	assert.Equal(t, "counterpart", messages[1]["sender_role"])

	_, ok := server.ctl.Conversations.Get(ticketRef)
	assert.True(t, ok)
}

func TestGetMessagesRejectsBadRef(t *testing.T) {
	server := setupTestServer(t, true)

	tests := []string{
		"/api/v1/conversations/chats/1/messages",
		"/api/v1/conversations/disputes/abc/messages",
		"/api/v1/conversations/disputes/0/messages",
	}
	for _, path := range tests {
		w, response := server.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "INVALID_CONVERSATION", errorCode(response))
	}
}

func TestSendMessageEndToEnd(t *testing.T) {
	server := setupTestServer(t, true)
	server.api.SendGate = make(chan struct{})
	ref := models.ConversationRef{Kind: models.ConversationDispute, ID: 3}

	w, response := server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages", map[string]interface{}{"text": "Hello"})
	require.Equal(t, http.StatusAccepted, w.Code)
	sent := response["data"].(map[string]interface{})
	assert.Equal(t, "Hello", sent["text"])
	assert.Equal(t, true, sent["is_optimistic"])
	assert.Equal(t, "pending", sent["state"])
	assert.Equal(t, []interface{}{"clear_compose", "scroll_to_end"}, response["actions"], "the shell clears the input and scrolls")

	_, response = server.do(t, http.MethodGet, "/api/v1/conversations/disputes/3/messages", nil)
	messages := messagesOf(t, response)
	require.Len(t, messages, 1)
	assert.Equal(t, sent["id"], messages[0]["id"])
	sentRevision := response["data"].(map[string]interface{})["revision"].(float64)

	close(server.api.SendGate)
	server.waitConversation(t, ref)

	_, response = server.do(t, http.MethodGet, "/api/v1/conversations/disputes/3/messages", nil)
	messages = messagesOf(t, response)
	require.Len(t, messages, 1)
	assert.Equal(t, float64(501), messages[0]["id"])
	assert.Nil(t, messages[0]["is_optimistic"])
	assert.Equal(t, float64(0), response["data"].(map[string]interface{})["pending"])
	assert.Greater(t, response["data"].(map[string]interface{})["revision"].(float64), sentRevision)
}

func TestSendMessageValidation(t *testing.T) {
	server := setupTestServer(t, true)

	w, response := server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages", map[string]interface{}{"text": "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_MESSAGE", errorCode(response))
	assert.Equal(t, 0, server.api.CreateCalls())

	_, response = server.do(t, http.MethodGet, "/api/v1/conversations/disputes/3/notices", nil)
	notices := response["data"].([]interface{})
	require.Len(t, notices, 1)
	assert.Equal(t, "validation", notices[0].(map[string]interface{})["kind"])
}

func multipartMessage(t *testing.T, path, text, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if text != "" {
		require.NoError(t, writer.WriteField("text", text))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("attachment", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSendMessageWithAttachment(t *testing.T) {
	server := setupTestServer(t, true)
	server.api.SendGate = make(chan struct{})

	req := multipartMessage(t, "/api/v1/conversations/disputes/9/messages", "See photo", "box.png", []byte("png-bytes"))
	w, response := server.serve(t, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	sent := response["data"].(map[string]interface{})
	url := sent["attachment_url"].(string)
	assert.Contains(t, url, "/api/v1/attachments/staged/")
	assert.Contains(t, url, "_box.png")

	preview, _ := server.serve(t, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, preview.Code)
	assert.Equal(t, "png-bytes", preview.Body.String())

	close(server.api.SendGate)
	server.waitConversation(t, models.ConversationRef{Kind: models.ConversationDispute, ID: 9})

	require.Len(t, server.api.Sent, 1)
	assert.Equal(t, "See photo", server.api.Sent[0].Text)
	assert.NoFileExists(t, server.api.Sent[0].AttachmentPath, "staged copy is removed after delivery")
}

func TestSendMessageRejectsBadAttachment(t *testing.T) {
	server := setupTestServer(t, true)

	req := multipartMessage(t, "/api/v1/conversations/disputes/9/messages", "", "notes.pdf", []byte("%PDF"))
	w, response := server.serve(t, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE_FORMAT", errorCode(response))

	entries, err := os.ReadDir(utils.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, server.api.CreateCalls())
}

func TestRetryAndDiscardFailedMessage(t *testing.T) {
	server := setupTestServer(t, true)
	ref := models.ConversationRef{Kind: models.ConversationDispute, ID: 3}
	server.api.FailNextSend(errors.New("connection reset"))
	server.api.FailNextSend(errors.New("connection reset"))

	_, first := server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages", map[string]interface{}{"text": "one"})
	server.waitConversation(t, ref)
	_, second := server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages", map[string]interface{}{"text": "two"})
	server.waitConversation(t, ref)

	firstID := first["data"].(map[string]interface{})["id"].(string)
	secondID := second["data"].(map[string]interface{})["id"].(string)

	_, response := server.do(t, http.MethodGet, "/api/v1/conversations/disputes/3/notices", nil)
	assert.Len(t, response["data"].([]interface{}), 2)

	w, response := server.do(t, http.MethodDelete, "/api/v1/conversations/disputes/3/messages/"+secondID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, secondID, response["data"].(map[string]interface{})["discarded"])

	w, _ = server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages/"+firstID+"/retry", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	server.waitConversation(t, ref)

	_, response = server.do(t, http.MethodGet, "/api/v1/conversations/disputes/3/messages", nil)
	messages := messagesOf(t, response)
	require.Len(t, messages, 1)
	assert.Equal(t, "one", messages[0]["text"])
	assert.Equal(t, float64(501), messages[0]["id"])

	w, response = server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages/"+firstID+"/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "MESSAGE_NOT_FOUND", errorCode(response))
}

func TestRetryRequiresOpenConversation(t *testing.T) {
	server := setupTestServer(t, true)

	w, response := server.do(t, http.MethodPost, "/api/v1/conversations/disputes/3/messages/temp-1/retry", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONVERSATION_NOT_OPEN", errorCode(response))
}

func TestRefreshServesCachedMessagesWhenOffline(t *testing.T) {
	server := setupTestServer(t, true)
	server.api.Seed(ticketRef, models.MessageResource{ID: models.ServerID(1), Message: "hi", CreatedAt: time.Now()})

	w, _ := server.do(t, http.MethodGet, "/api/v1/conversations/tickets/14/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	server.api.FailFetches(errors.New("offline"))
	w, response := server.do(t, http.MethodPost, "/api/v1/conversations/tickets/14/refresh", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["stale"])
	assert.Len(t, messagesOf(t, response), 1)
}

func TestDismissConversation(t *testing.T) {
	server := setupTestServer(t, true)
	_, _ = server.do(t, http.MethodGet, "/api/v1/conversations/tickets/14/messages", nil)

	w, response := server.do(t, http.MethodDelete, "/api/v1/conversations/tickets/14", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["data"].(map[string]interface{})["dismissed"])

	_, response = server.do(t, http.MethodDelete, "/api/v1/conversations/tickets/14", nil)
	assert.Equal(t, false, response["data"].(map[string]interface{})["dismissed"])

	_, response = server.do(t, http.MethodGet, "/api/v1/conversations/tickets/14/notices", nil)
	assert.Empty(t, response["data"].([]interface{}))
}

package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/services"
	"github.com/kendall-kelly/marketplace-client/utils"
	"go.uber.org/zap"
)

// SendMessageRequest is the JSON form of a compose-and-send call
type SendMessageRequest struct {
	Text string `json:"text"`
}

func parseConversationRef(c *gin.Context) (models.ConversationRef, bool) {
	kind, err := models.ParseConversationKind(c.Param("kind"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONVERSATION", "Conversation kind must be dispute or ticket")
		return models.ConversationRef{}, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_CONVERSATION", "Conversation id must be a positive integer")
		return models.ConversationRef{}, false
	}
	return models.ConversationRef{Kind: kind, ID: id}, true
}

// openedConversation returns the open screen for ref, opening it when needed.
// loaded is true when this call already fetched the messages.
func (ctl *Controller) openedConversation(ctx context.Context, ref models.ConversationRef) (oc *services.OpenConversation, loaded bool, err error) {
	if oc, ok := ctl.Conversations.Get(ref); ok {
		return oc, false, nil
	}
	oc, err = ctl.Conversations.Open(ctx, ref)
	return oc, true, err
}

func (ctl *Controller) respondConversation(c *gin.Context, oc *services.OpenConversation, stale bool) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stale":   stale,
		"data": gin.H{
			"conversation": oc.Ref(),
			"messages":     oc.Display(c.Request.Context()),
			"pending":      len(oc.Pending()),
			"revision":     oc.Screen.Revision(),
		},
	})
}

// GetMessages handles GET /api/v1/conversations/:kind/:id/messages
func (ctl *Controller) GetMessages(c *gin.Context) {
	ref, ok := parseConversationRef(c)
	if !ok {
		return
	}

	oc, loaded, err := ctl.openedConversation(c.Request.Context(), ref)
	if !loaded {
		err = oc.Load(c.Request.Context())
	}
	stale, ok := staleOrFail(c, err)
	if !ok {
		return
	}
	ctl.respondConversation(c, oc, stale)
}

// RefreshConversation handles POST /api/v1/conversations/:kind/:id/refresh
func (ctl *Controller) RefreshConversation(c *gin.Context) {
	ref, ok := parseConversationRef(c)
	if !ok {
		return
	}

	oc, loaded, err := ctl.openedConversation(c.Request.Context(), ref)
	if !loaded {
		err = oc.Refresh(c.Request.Context())
	}
	stale, ok := staleOrFail(c, err)
	if !ok {
		return
	}
	ctl.respondConversation(c, oc, stale)
}

// SendMessage handles POST /api/v1/conversations/:kind/:id/messages.
// It answers 202 with the optimistic entry; delivery continues in the background.
func (ctl *Controller) SendMessage(c *gin.Context) {
	ref, ok := parseConversationRef(c)
	if !ok {
		return
	}

	draft, ok := bindDraft(c)
	if !ok {
		return
	}

	oc, _, err := ctl.openedConversation(c.Request.Context(), ref)
	if err != nil {
		// the screen stays open; its notices carry the fetch error
		logger.Warn("conversation load failed before send", zap.String("conversation", ref.Key()), zap.Error(err))
	}

	msg, err := oc.ComposeAndSend(c.Request.Context(), draft)
	if err != nil {
		if removeErr := utils.RemoveStaged(draft.AttachmentPath); removeErr != nil {
			logger.Warn("staged attachment cleanup failed", zap.Error(removeErr))
		}
		respondServiceError(c, err)
		return
	}

	actions := []services.ScreenAction{}
	actions = append(actions, oc.Screen.DrainActions()...)
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    ctl.resolveMessage(c.Request.Context(), msg),
		"actions": actions,
	})
}

// bindDraft reads text and an optional attachment from a multipart form or a JSON body
func bindDraft(c *gin.Context) (services.Draft, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request data")
			return services.Draft{}, false
		}
		return services.Draft{Text: req.Text}, true
	}

	draft := services.Draft{Text: c.PostForm("text")}
	fileHeader, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return draft, true
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read the attachment")
		return services.Draft{}, false
	}

	path, err := utils.StageAttachment(fileHeader, utils.StagingDir)
	if err != nil {
		var fileErr *utils.FileUploadError
		if errors.As(err, &fileErr) {
			respondError(c, http.StatusBadRequest, fileErr.Code, fileErr.Message)
			return services.Draft{}, false
		}
		logger.Error("failed to stage attachment", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "STAGING_FAILED", "Failed to prepare the attachment")
		return services.Draft{}, false
	}
	draft.AttachmentPath = path
	return draft, true
}

func (ctl *Controller) resolveMessage(ctx context.Context, msg models.Message) models.Message {
	if ctl.Resolver == nil || msg.AttachmentRef == "" {
		return msg
	}
	url, err := ctl.Resolver.ResolveURL(ctx, msg.AttachmentRef)
	if err != nil {
		logger.Warn("attachment url resolution failed", zap.String("ref", msg.AttachmentRef), zap.Error(err))
		return msg
	}
	msg.AttachmentURL = url
	return msg
}

func (ctl *Controller) openOrNotFound(c *gin.Context) (*services.OpenConversation, bool) {
	ref, ok := parseConversationRef(c)
	if !ok {
		return nil, false
	}
	oc, ok := ctl.Conversations.Get(ref)
	if !ok {
		respondError(c, http.StatusNotFound, "CONVERSATION_NOT_OPEN", "Open the conversation first")
		return nil, false
	}
	return oc, true
}

func respondPendingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		respondError(c, http.StatusNotFound, "MESSAGE_NOT_FOUND", "Message is not pending on this conversation")
	case errors.Is(err, services.ErrNotRetryable):
		respondError(c, http.StatusConflict, "NOT_RETRYABLE", "Only failed messages can be retried or discarded")
	default:
		respondServiceError(c, err)
	}
}

// RetryMessage handles POST /api/v1/conversations/:kind/:id/messages/:tempId/retry
func (ctl *Controller) RetryMessage(c *gin.Context) {
	oc, ok := ctl.openOrNotFound(c)
	if !ok {
		return
	}

	msg, err := oc.Retry(c.Request.Context(), c.Param("tempId"))
	if err != nil {
		respondPendingError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    ctl.resolveMessage(c.Request.Context(), msg),
	})
}

// DiscardMessage handles DELETE /api/v1/conversations/:kind/:id/messages/:tempId
func (ctl *Controller) DiscardMessage(c *gin.Context) {
	oc, ok := ctl.openOrNotFound(c)
	if !ok {
		return
	}

	id := c.Param("tempId")
	if err := oc.Discard(id); err != nil {
		respondPendingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"discarded": id},
	})
}

// DrainNotices handles GET /api/v1/conversations/:kind/:id/notices
func (ctl *Controller) DrainNotices(c *gin.Context) {
	ref, ok := parseConversationRef(c)
	if !ok {
		return
	}

	notices := []models.Notice{}
	if oc, open := ctl.Conversations.Get(ref); open {
		notices = append(notices, oc.Notices.Drain()...)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    notices,
	})
}

// DismissConversation handles DELETE /api/v1/conversations/:kind/:id
func (ctl *Controller) DismissConversation(c *gin.Context) {
	ref, ok := parseConversationRef(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"dismissed": ctl.Conversations.Dismiss(ref)},
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/models"
	"github.com/kendall-kelly/marketplace-client/utils"
	"go.uber.org/zap"
)

var (
	ErrMessageNotFound = errors.New("message is not pending on this conversation")
	ErrNotRetryable    = errors.New("only failed messages can be retried or discarded")
)

// Draft is the compose bar's content at the moment the user presses send
type Draft struct {
	Text           string `json:"text" validate:"required_without=AttachmentPath"`
	AttachmentPath string `json:"attachment_path"`
}

// ConversationHooks are the screen side effects of a send. All are optional and
// may be called from delivery goroutines.
type ConversationHooks struct {
	OnChange     func(display []models.Message)
	ClearCompose func()
	ScrollToEnd  func()
}

// ConversationDeps are the collaborators a conversation needs
type ConversationDeps struct {
	Transport MessageTransport
	Cache     *QueryCache
	Resolver  AttachmentResolver
	Notifier  Notifier
	Now       func() time.Time
	NewTempID func() string
}

// Conversation holds one open dispute or ticket thread: the fetched server
// messages plus the locally sent messages that are not confirmed yet.
type Conversation struct {
	ref   models.ConversationRef
	deps  ConversationDeps
	hooks ConversationHooks

	mu      sync.Mutex
	server  []models.Message
	pending []models.Message
	closed  bool

	inflight sync.WaitGroup
}

// NewConversation builds a conversation for ref; missing deps get defaults
func NewConversation(ref models.ConversationRef, deps ConversationDeps, hooks ConversationHooks) *Conversation {
	if deps.Cache == nil {
		deps.Cache = NewQueryCache(nil, 0)
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNoticeLog()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewTempID == nil {
		now := deps.Now
		deps.NewTempID = func() string {
			return fmt.Sprintf("%d-%s", now().UnixMilli(), uuid.NewString())
		}
	}
	return &Conversation{ref: ref, deps: deps, hooks: hooks}
}

func (c *Conversation) Ref() models.ConversationRef {
	return c.ref
}

// RenderConversation orders server messages by created_at and appends pending
// messages in send order. Pending messages never interleave with server ones.
func RenderConversation(server, pending []models.Message) []models.Message {
	display := make([]models.Message, 0, len(server)+len(pending))
	display = append(display, server...)
	sort.SliceStable(display, func(i, j int) bool {
		return display[i].CreatedAt.Before(display[j].CreatedAt)
	})
	return append(display, pending...)
}

// Display renders the current state and resolves attachment refs to URLs
func (c *Conversation) Display(ctx context.Context) []models.Message {
	c.mu.Lock()
	display := RenderConversation(c.server, c.pending)
	c.mu.Unlock()

	if c.deps.Resolver == nil {
		return display
	}
	for i := range display {
		if display[i].AttachmentRef == "" {
			continue
		}
		url, err := c.deps.Resolver.ResolveURL(ctx, display[i].AttachmentRef)
		if err != nil {
			logger.Warn("attachment url resolution failed",
				zap.String("conversation", c.ref.Key()),
				zap.String("ref", display[i].AttachmentRef),
				zap.Error(err),
			)
			continue
		}
		display[i].AttachmentURL = url
	}
	return display
}

// Pending returns a copy of the unconfirmed messages
func (c *Conversation) Pending() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.pending...)
}

// ServerMessages returns a copy of the last fetched server list
func (c *Conversation) ServerMessages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.server...)
}

// Load fills the server list, using a fresh cached copy when there is one
func (c *Conversation) Load(ctx context.Context) error {
	return c.load(ctx, false)
}

// Refresh refetches the server list (pull-to-refresh). Concurrent refreshes race
// and the last one to finish wins.
func (c *Conversation) Refresh(ctx context.Context) error {
	return c.load(ctx, true)
}

func (c *Conversation) load(ctx context.Context, force bool) error {
	msgs, err := c.fetchServer(ctx, force)
	var stale *StaleError
	if err == nil || errors.As(err, &stale) {
		c.mu.Lock()
		c.server = msgs
		if err == nil {
			c.pending = dropConfirmed(c.pending)
		}
		c.mu.Unlock()
		c.emitChange()
	}
	if err != nil {
		// a caller that went away gets no notice
		if ctx.Err() == nil {
			c.notify(models.NoticeFetchError, UserMessage(err), "")
		}
		return err
	}
	return nil
}

func (c *Conversation) fetchServer(ctx context.Context, force bool) ([]models.Message, error) {
	fetch := func(ctx context.Context) ([]models.MessageResource, error) {
		detail, err := c.deps.Transport.FetchConversation(ctx, c.ref)
		if err != nil {
			return nil, err
		}
		return detail.Messages, nil
	}

	var resources []models.MessageResource
	var err error
	if force {
		resources, err = Refetch(ctx, c.deps.Cache, c.ref.Key(), fetch)
	} else {
		resources, err = Query(ctx, c.deps.Cache, c.ref.Key(), fetch)
	}

	var stale *StaleError
	if err != nil && !errors.As(err, &stale) {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(resources))
	for _, res := range resources {
		msgs = append(msgs, res.ToMessage())
	}
	return msgs, err
}

// ComposeAndSend shows the message immediately and sends it in the background.
// It returns the optimistic entry, or a *ValidationError when there is nothing to send.
func (c *Conversation) ComposeAndSend(ctx context.Context, draft Draft) (models.Message, error) {
	draft.Text = strings.TrimSpace(draft.Text)
	if err := c.validate(draft); err != nil {
		c.notify(models.NoticeValidation, err.Message, "")
		return models.Message{}, err
	}

	msg := models.Message{
		ID:                  models.TempID(c.deps.NewTempID()),
		Text:                draft.Text,
		AttachmentRef:       utils.LocalAttachmentRef(draft.AttachmentPath),
		SenderRole:          models.SenderSelf,
		CreatedAt:           c.deps.Now(),
		IsOptimistic:        true,
		State:               models.DeliveryPending,
		LocalAttachmentPath: draft.AttachmentPath,
	}

	c.mu.Lock()
	c.pending = append(c.pending, msg)
	c.mu.Unlock()

	c.emitChange()
	if c.hooks.ClearCompose != nil {
		c.hooks.ClearCompose()
	}
	if c.hooks.ScrollToEnd != nil {
		c.hooks.ScrollToEnd()
	}

	c.dispatch(ctx, msg)
	return msg, nil
}

func (c *Conversation) validate(draft Draft) *ValidationError {
	if err := utils.GetValidator().Struct(draft); err != nil {
		return &ValidationError{
			Code:    "EMPTY_MESSAGE",
			Message: "Type a message or attach an image before sending",
			Details: utils.ParseErrors(err),
		}
	}
	if draft.AttachmentPath != "" {
		if err := utils.ValidateAttachmentPath(draft.AttachmentPath); err != nil {
			var fileErr *utils.FileUploadError
			if errors.As(err, &fileErr) {
				return &ValidationError{Code: fileErr.Code, Message: fileErr.Message}
			}
			return &ValidationError{Code: "INVALID_ATTACHMENT", Message: err.Error()}
		}
	}
	return nil
}

// dispatch sends msg on its own goroutine. Sends are not serialised and the
// request is not cancelled when the screen goes away.
func (c *Conversation) dispatch(ctx context.Context, msg models.Message) {
	ctx = context.WithoutCancel(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.deliver(ctx, msg)
	}()
}

func (c *Conversation) deliver(ctx context.Context, msg models.Message) {
	created, err := c.deps.Transport.CreateMessage(ctx, c.ref, OutgoingMessage{
		Text:           msg.Text,
		AttachmentPath: msg.LocalAttachmentPath,
	})
	if err != nil {
		logger.Warn("message send failed",
			zap.String("conversation", c.ref.Key()),
			zap.String("temp_id", msg.ID.String()),
			zap.Error(err),
		)
		c.markFailed(msg, err)
		c.notify(models.NoticeSendError, UserMessage(err), msg.ID.String())
		c.emitChange()
		return
	}

	logger.Info("message confirmed",
		zap.String("conversation", c.ref.Key()),
		zap.String("temp_id", msg.ID.String()),
		zap.String("server_id", created.ID.String()),
	)
	c.setState(msg.ID, models.DeliveryConfirmed, "")
	c.emitChange()
	c.reconcile(ctx)
}

// reconcile refetches the server list and, once that succeeds, drops every
// pending message whether or not the new list already contains it.
func (c *Conversation) reconcile(ctx context.Context) {
	if err := c.deps.Cache.Invalidate(ctx, c.ref.Key()); err != nil {
		logger.Warn("query invalidation failed", zap.String("key", c.ref.Key()), zap.Error(err))
	}

	msgs, err := c.fetchServer(ctx, true)
	if err != nil {
		c.notify(models.NoticeFetchError, UserMessage(err), "")
		return
	}

	c.mu.Lock()
	c.server = msgs
	cleared := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, m := range cleared {
		// still-sending messages need their staged file
		if m.State != models.DeliveryPending {
			if err := utils.RemoveStaged(m.LocalAttachmentPath); err != nil {
				logger.Warn("staged attachment cleanup failed", zap.Error(err))
			}
		}
	}
	c.emitChange()
}

func (c *Conversation) setState(id models.MessageID, state models.DeliveryState, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.pending {
		if c.pending[i].ID == id {
			c.pending[i].State = state
			c.pending[i].FailureReason = reason
			return true
		}
	}
	return false
}

// markFailed flags the entry; if a reconcile already cleared it the entry comes
// back so the user still sees what was not delivered.
func (c *Conversation) markFailed(msg models.Message, err error) {
	reason := UserMessage(err)
	if c.setState(msg.ID, models.DeliveryFailed, reason) {
		return
	}
	msg.State = models.DeliveryFailed
	msg.FailureReason = reason
	c.mu.Lock()
	c.pending = append(c.pending, msg)
	c.mu.Unlock()
}

func (c *Conversation) findPending(id string) (int, error) {
	for i := range c.pending {
		if c.pending[i].ID.String() == id {
			if c.pending[i].State != models.DeliveryFailed {
				return i, ErrNotRetryable
			}
			return i, nil
		}
	}
	return -1, ErrMessageNotFound
}

// Retry re-sends a failed message, keeping its place in the pending list
func (c *Conversation) Retry(ctx context.Context, id string) (models.Message, error) {
	c.mu.Lock()
	idx, err := c.findPending(id)
	if err != nil {
		c.mu.Unlock()
		return models.Message{}, err
	}
	c.pending[idx].State = models.DeliveryPending
	c.pending[idx].FailureReason = ""
	msg := c.pending[idx]
	c.mu.Unlock()

	c.emitChange()
	c.dispatch(ctx, msg)
	return msg, nil
}

// Discard drops a failed message and its staged attachment
func (c *Conversation) Discard(id string) error {
	c.mu.Lock()
	idx, err := c.findPending(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	msg := c.pending[idx]
	c.pending = append(c.pending[:idx:idx], c.pending[idx+1:]...)
	c.mu.Unlock()

	if err := utils.RemoveStaged(msg.LocalAttachmentPath); err != nil {
		logger.Warn("staged attachment cleanup failed", zap.Error(err))
	}
	c.emitChange()
	return nil
}

// Wait blocks until every in-flight send has finished
func (c *Conversation) Wait() {
	c.inflight.Wait()
}

// Close stops change and notice delivery. In-flight requests keep running.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conversation) emitChange() {
	if c.hooks.OnChange == nil || c.isClosed() {
		return
	}
	c.hooks.OnChange(c.Display(context.Background()))
}

func (c *Conversation) notify(kind models.NoticeKind, message, messageID string) {
	if c.isClosed() {
		return
	}
	c.deps.Notifier.Notify(models.Notice{
		Kind:         kind,
		Message:      message,
		Conversation: c.ref.Key(),
		MessageID:    messageID,
		At:           c.deps.Now(),
	})
}

// dropConfirmed keeps only entries that still need the user's attention
func dropConfirmed(pending []models.Message) []models.Message {
	out := pending[:0:0]
	for _, m := range pending {
		if m.State != models.DeliveryConfirmed {
			out = append(out, m)
		}
	}
	return out
}

package services

import (
	"context"
	"sync"

	"github.com/kendall-kelly/marketplace-client/models"
)

// OpenConversation is a conversation screen currently shown by the UI shell
type OpenConversation struct {
	*Conversation
	Notices *NoticeLog
	Screen  *ScreenState
}

// ConversationRegistry owns the conversations whose screens are open. Each
// screen instance gets its own pending buffer and notice log.
type ConversationRegistry struct {
	transport MessageTransport
	cache     *QueryCache
	resolver  AttachmentResolver

	mu   sync.Mutex
	open map[string]*OpenConversation
}

func NewConversationRegistry(transport MessageTransport, cache *QueryCache, resolver AttachmentResolver) *ConversationRegistry {
	return &ConversationRegistry{
		transport: transport,
		cache:     cache,
		resolver:  resolver,
		open:      make(map[string]*OpenConversation),
	}
}

// Open returns the screen for ref, creating and loading it on first use. The
// load error is returned but the screen stays open so the user can retry.
func (r *ConversationRegistry) Open(ctx context.Context, ref models.ConversationRef) (*OpenConversation, error) {
	r.mu.Lock()
	if oc, ok := r.open[ref.Key()]; ok {
		r.mu.Unlock()
		return oc, nil
	}
	notices := NewNoticeLog()
	screen := &ScreenState{}
	oc := &OpenConversation{
		Conversation: NewConversation(ref, ConversationDeps{
			Transport: r.transport,
			Cache:     r.cache,
			Resolver:  r.resolver,
			Notifier:  notices,
		}, screen.Hooks()),
		Notices: notices,
		Screen:  screen,
	}
	r.open[ref.Key()] = oc
	r.mu.Unlock()

	return oc, oc.Load(ctx)
}

// Get returns an already open screen
func (r *ConversationRegistry) Get(ref models.ConversationRef) (*OpenConversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	oc, ok := r.open[ref.Key()]
	return oc, ok
}

// Dismiss closes the screen; in-flight sends finish unobserved
func (r *ConversationRegistry) Dismiss(ref models.ConversationRef) bool {
	r.mu.Lock()
	oc, ok := r.open[ref.Key()]
	delete(r.open, ref.Key())
	r.mu.Unlock()
	if ok {
		oc.Close()
	}
	return ok
}

// DismissAll closes every screen without waiting. Safe to call from a
// delivery goroutine, e.g. when a 401 during a send triggers logout.
func (r *ConversationRegistry) DismissAll() []*OpenConversation {
	r.mu.Lock()
	open := r.open
	r.open = make(map[string]*OpenConversation)
	r.mu.Unlock()

	closed := make([]*OpenConversation, 0, len(open))
	for _, oc := range open {
		oc.Close()
		closed = append(closed, oc)
	}
	return closed
}

// CloseAll dismisses every screen and waits for their sends to finish
func (r *ConversationRegistry) CloseAll() {
	for _, oc := range r.DismissAll() {
		oc.Wait()
	}
}

// Len is the number of open screens
func (r *ConversationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

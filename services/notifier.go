package services

import (
	"sync"

	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/models"
	"go.uber.org/zap"
)

// Notifier surfaces dismissible notices to the user
type Notifier interface {
	Notify(n models.Notice)
}

// NoticeLog buffers notices until the screen drains them
type NoticeLog struct {
	mu      sync.Mutex
	notices []models.Notice
}

func NewNoticeLog() *NoticeLog {
	return &NoticeLog{}
}

func (l *NoticeLog) Notify(n models.Notice) {
	logger.Info("notice",
		zap.String("kind", string(n.Kind)),
		zap.String("conversation", n.Conversation),
		zap.String("message", n.Message),
	)
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

// Drain returns and forgets the buffered notices
func (l *NoticeLog) Drain() []models.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}

// Peek returns a copy without forgetting anything
func (l *NoticeLog) Peek() []models.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Notice(nil), l.notices...)
}

// ScreenAction is a one-off instruction for the conversation screen
type ScreenAction string

const (
	ActionClearCompose ScreenAction = "clear_compose"
	ActionScrollToEnd  ScreenAction = "scroll_to_end"
)

// ScreenState collects what a conversation asks of its screen: pending
// actions and a revision bumped on every change.
type ScreenState struct {
	mu       sync.Mutex
	actions  []ScreenAction
	revision uint64
}

// Hooks routes a conversation's callbacks into s
func (s *ScreenState) Hooks() ConversationHooks {
	return ConversationHooks{
		OnChange: func([]models.Message) {
			s.mu.Lock()
			s.revision++
			s.mu.Unlock()
		},
		ClearCompose: func() { s.push(ActionClearCompose) },
		ScrollToEnd:  func() { s.push(ActionScrollToEnd) },
	}
}

func (s *ScreenState) push(a ScreenAction) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	s.mu.Unlock()
}

// DrainActions returns and forgets the queued actions
func (s *ScreenState) DrainActions() []ScreenAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.actions
	s.actions = nil
	return out
}

// Revision changes whenever the rendered list may have changed
func (s *ScreenState) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

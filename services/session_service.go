package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionService is the local auth store: one bearer token and the cached
// profile of the signed-in user.
type SessionService struct {
	db       *gorm.DB
	profiles ProfileFetcher
	navigate Navigator

	mu      sync.RWMutex
	current *models.AuthSession
	onReset []func()
}

// NewSessionService wires the store. navigate is called with RouteLogin on logout.
func NewSessionService(db *gorm.DB, profiles ProfileFetcher, navigate Navigator) *SessionService {
	return &SessionService{db: db, profiles: profiles, navigate: navigate}
}

// Migrate creates the auth_sessions table
func (s *SessionService) Migrate() error {
	if err := s.db.AutoMigrate(&models.AuthSession{}); err != nil {
		return fmt.Errorf("failed to migrate auth store: %w", err)
	}
	return nil
}

// OnReset registers cleanup to run on logout (cache, open screens)
func (s *SessionService) OnReset(fn func()) {
	s.mu.Lock()
	s.onReset = append(s.onReset, fn)
	s.mu.Unlock()
}

// SignIn validates token by fetching the profile, then replaces the stored session
func (s *SessionService) SignIn(ctx context.Context, token string) (*models.AuthSession, error) {
	token = bareToken(token)
	if token == "" {
		return nil, &ValidationError{Code: "MISSING_TOKEN", Message: "Token is required"}
	}

	user, err := s.profiles.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	session := &models.AuthSession{Token: token, User: *user}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.AuthSession{}).Error; err != nil {
			return err
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	logger.Info("signed in", zap.Uint64("user_id", user.ID))
	return session, nil
}

// bareToken strips surrounding space and an optional, case-insensitive
// "Bearer" scheme. A lone scheme yields "".
func bareToken(raw string) string {
	token := strings.TrimSpace(raw)
	const scheme = "bearer"
	if len(token) >= len(scheme) && strings.EqualFold(token[:len(scheme)], scheme) {
		rest := token[len(scheme):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			token = strings.TrimSpace(rest)
		}
	}
	return token
}

// Current returns the stored session, reading through to the database once
func (s *SessionService) Current() (*models.AuthSession, error) {
	s.mu.RLock()
	cached := s.current
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	var session models.AuthSession
	err := s.db.Order("id DESC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	s.mu.Lock()
	s.current = &session
	s.mu.Unlock()
	return &session, nil
}

// Token implements TokenSource
func (s *SessionService) Token() (string, error) {
	session, err := s.Current()
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

// RefreshProfile re-fetches the cached profile with the stored token
func (s *SessionService) RefreshProfile(ctx context.Context) (*models.AuthSession, error) {
	session, err := s.Current()
	if err != nil {
		return nil, err
	}
	user, err := s.profiles.FetchProfile(ctx, session.Token)
	if err != nil {
		return nil, err
	}

	updated := *session
	updated.User = *user
	if err := s.db.WithContext(ctx).Save(&updated).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.mu.Lock()
	s.current = &updated
	s.mu.Unlock()
	return &updated, nil
}

// Logout forgets the session, runs reset hooks and sends the user to login
func (s *SessionService) Logout() error {
	err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.AuthSession{}).Error

	s.mu.Lock()
	s.current = nil
	hooks := append([]func(){}, s.onReset...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if s.navigate != nil {
		s.navigate(RouteLogin)
	}

	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	logger.Info("signed out")
	return nil
}

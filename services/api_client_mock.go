package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-client/models"
)

// MockAPIClient is an in-memory MarketplaceAPI for tests. Each conversation
// keeps its server messages; CreateMessage appends to them unless a failure is
// queued.
type MockAPIClient struct {
	mu sync.Mutex

	Profile  *models.User
	Orders   []models.Order
	Disputes []models.Dispute
	Tickets  []models.SupportTicket

	threads  map[string][]models.MessageResource
	nextID   uint64
	sendErrs []error
	fetchErr error
	// HideCreated skips adding created messages to the thread, like a lagging read replica
	HideCreated bool
	// SendGate, when set, blocks CreateMessage until a value is received
	SendGate chan struct{}
	// FetchGate does the same for FetchConversation
	FetchGate chan struct{}

	createCalls int
	fetchCalls  int
	Sent        []OutgoingMessage
}

// NewMockAPIClient creates a mock whose server ids start at firstID
func NewMockAPIClient(firstID uint64) *MockAPIClient {
	return &MockAPIClient{
		threads: make(map[string][]models.MessageResource),
		nextID:  firstID,
	}
}

// Seed sets the server messages of a conversation
func (m *MockAPIClient) Seed(ref models.ConversationRef, msgs ...models.MessageResource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[ref.Key()] = append([]models.MessageResource(nil), msgs...)
}

// FailNextSend queues an error for the next CreateMessage call
func (m *MockAPIClient) FailNextSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErrs = append(m.sendErrs, err)
}

// FailFetches makes FetchConversation return err until cleared with nil
func (m *MockAPIClient) FailFetches(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

// CreateCalls counts CreateMessage invocations
func (m *MockAPIClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// FetchCalls counts FetchConversation invocations
func (m *MockAPIClient) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

func (m *MockAPIClient) FetchProfile(_ context.Context, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" || m.Profile == nil {
		return nil, &APIError{StatusCode: 401, Code: "UNAUTHENTICATED", Message: "Unauthenticated."}
	}
	profile := *m.Profile
	return &profile, nil
}

func (m *MockAPIClient) FetchOrders(_ context.Context, page int) (*models.Page[models.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.Page[models.Order]{
		Data:        append([]models.Order(nil), m.Orders...),
		CurrentPage: page,
		LastPage:    1,
		Total:       len(m.Orders),
	}, nil
}

func (m *MockAPIClient) FetchDisputes(_ context.Context) ([]models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Dispute(nil), m.Disputes...), nil
}

func (m *MockAPIClient) FetchTickets(_ context.Context) ([]models.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SupportTicket(nil), m.Tickets...), nil
}

func (m *MockAPIClient) CreateTicket(_ context.Context, req models.CreateTicketRequest) (*models.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ticket := models.SupportTicket{
		ID:        m.nextID,
		Subject:   req.Subject,
		Category:  req.Category,
		Status:    string(models.TicketOpen),
		CreatedAt: time.Now(),
	}
	m.Tickets = append(m.Tickets, ticket)
	return &ticket, nil
}

func (m *MockAPIClient) FetchConversation(ctx context.Context, ref models.ConversationRef) (*models.ConversationDetail, error) {
	m.mu.Lock()
	m.fetchCalls++
	gate := m.FetchGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return &models.ConversationDetail{
		ID:       ref.ID,
		Messages: append([]models.MessageResource(nil), m.threads[ref.Key()]...),
	}, nil
}

func (m *MockAPIClient) CreateMessage(_ context.Context, ref models.ConversationRef, msg OutgoingMessage) (*models.Message, error) {
	m.mu.Lock()
	m.createCalls++
	m.Sent = append(m.Sent, msg)
	gate := m.SendGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		return nil, err
	}
	if msg.Text == "" && msg.AttachmentPath == "" {
		return nil, fmt.Errorf("mock: empty message")
	}

	res := models.MessageResource{
		ID:         models.ServerID(m.nextID),
		Message:    msg.Text,
		SenderType: "customer",
		CreatedAt:  time.Now(),
	}
	if msg.AttachmentPath != "" {
		res.Image = fmt.Sprintf("messages/%d.png", m.nextID)
	}
	m.nextID++
	if !m.HideCreated {
		m.threads[ref.Key()] = append(m.threads[ref.Key()], res)
	}
	created := res.ToMessage()
	return &created, nil
}

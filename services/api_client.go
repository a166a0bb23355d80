package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-client/config"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/models"
	"go.uber.org/zap"
)

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token() (string, error)
}

// OutgoingMessage is the body of a create-message request
type OutgoingMessage struct {
	Text           string
	AttachmentPath string
}

// MessageTransport is what a conversation needs from the API
type MessageTransport interface {
	FetchConversation(ctx context.Context, ref models.ConversationRef) (*models.ConversationDetail, error)
	CreateMessage(ctx context.Context, ref models.ConversationRef, msg OutgoingMessage) (*models.Message, error)
}

// ProfileFetcher loads the signed-in user's profile for a given token
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (*models.User, error)
}

// MarketplaceAPI is the full set of remote calls the client makes
type MarketplaceAPI interface {
	MessageTransport
	ProfileFetcher
	FetchOrders(ctx context.Context, page int) (*models.Page[models.Order], error)
	FetchDisputes(ctx context.Context) ([]models.Dispute, error)
	FetchTickets(ctx context.Context) ([]models.SupportTicket, error)
	CreateTicket(ctx context.Context, req models.CreateTicketRequest) (*models.SupportTicket, error)
}

// threadEndpoint describes how one conversation kind is addressed on the API
type threadEndpoint struct {
	detailPath string
	idField    string
	fileField  string
}

var threadEndpoints = map[models.ConversationKind]threadEndpoint{
	models.ConversationDispute: {detailPath: "/disputes/%d", idField: "dispute_id", fileField: "image"},
	models.ConversationTicket:  {detailPath: "/support/tickets/%d", idField: "ticket_id", fileField: "attachment"},
}

// APIClient talks to the marketplace REST API
type APIClient struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func()
}

// NewAPIClient creates a client for cfg.APIBaseURL
func NewAPIClient(cfg *config.Config) *APIClient {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// UseTokens sets where bearer tokens come from
func (c *APIClient) UseTokens(tokens TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
}

// OnUnauthorized registers the callback run when an authenticated call gets a 401
func (c *APIClient) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *APIClient) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *APIClient) bearer() (string, error) {
	c.mu.RLock()
	tokens := c.tokens
	c.mu.RUnlock()
	if tokens == nil {
		return "", ErrNoSession
	}
	return tokens.Token()
}

// do sends an authenticated request and returns the raw 2xx payload
func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}
	payload, err := c.send(ctx, method, c.endpoint(path, query), token, body, contentType)
	if err != nil && errors.Is(err, ErrUnauthorized) {
		c.mu.RLock()
		fn := c.onUnauthorized
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	}
	return payload, err
}

// doJSON is do followed by decodeData into out
func (c *APIClient) doJSON(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	payload, err := c.do(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	if err := decodeData(payload, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *APIClient) send(ctx context.Context, method, target, token string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, req.URL.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, payload)
	}
	return payload, nil
}

// decodeData unwraps an optional {"data": ...} envelope
func decodeData(payload []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			if data := bytes.TrimSpace(envelope.Data); len(data) > 0 && (data[0] == '{' || data[0] == '[') {
				return json.Unmarshal(data, out)
			}
		}
	}
	return json.Unmarshal(trimmed, out)
}

// decodePage accepts a bare paginator or one wrapped in {"data": {...}}
func decodePage[T any](payload []byte, out *models.Page[T]) error {
	trimmed := bytes.TrimSpace(payload)
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) > 0 && data[0] == '{' {
		return json.Unmarshal(data, out)
	}
	return json.Unmarshal(trimmed, out)
}

// decodeAPIError reads {"message": ...} or {"error": {"code", "message"}} payloads
func decodeAPIError(status int, payload []byte) error {
	apiErr := &APIError{StatusCode: status}

	var body struct {
		Message string          `json:"message"`
		Code    string          `json:"code"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		apiErr.Message = body.Message
		apiErr.Code = body.Code
		if len(body.Error) > 0 {
			var nested struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			var plain string
			if json.Unmarshal(body.Error, &nested) == nil {
				if apiErr.Message == "" {
					apiErr.Message = nested.Message
				}
				if apiErr.Code == "" {
					apiErr.Code = nested.Code
				}
			} else if json.Unmarshal(body.Error, &plain) == nil && apiErr.Message == "" {
				apiErr.Message = plain
			}
		}
	}
	if apiErr.Code == "" {
		apiErr.Code = "HTTP_" + strconv.Itoa(status)
	}
	return apiErr
}

// FetchProfile calls GET /user with an explicit token (used while signing in)
func (c *APIClient) FetchProfile(ctx context.Context, token string) (*models.User, error) {
	payload, err := c.send(ctx, http.MethodGet, c.endpoint("/user", nil), token, nil, "")
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := decodeData(payload, &user); err != nil {
		return nil, fmt.Errorf("failed to decode /user response: %w", err)
	}
	return &user, nil
}

// FetchOrders calls GET /orders?page=N
func (c *APIClient) FetchOrders(ctx context.Context, page int) (*models.Page[models.Order], error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{"page": {strconv.Itoa(page)}}
	payload, err := c.do(ctx, http.MethodGet, "/orders", query, nil, "")
	if err != nil {
		return nil, err
	}
	result := &models.Page[models.Order]{}
	if err := decodePage(payload, result); err != nil {
		return nil, fmt.Errorf("failed to decode /orders response: %w", err)
	}
	if result.CurrentPage == 0 {
		result.CurrentPage = page
	}
	return result, nil
}

// FetchDisputes calls GET /disputes
func (c *APIClient) FetchDisputes(ctx context.Context) ([]models.Dispute, error) {
	var disputes []models.Dispute
	if err := c.doJSON(ctx, http.MethodGet, "/disputes", nil, nil, "", &disputes); err != nil {
		return nil, err
	}
	return disputes, nil
}

// FetchTickets calls GET /support/tickets
func (c *APIClient) FetchTickets(ctx context.Context) ([]models.SupportTicket, error) {
	var tickets []models.SupportTicket
	if err := c.doJSON(ctx, http.MethodGet, "/support/tickets", nil, nil, "", &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// CreateTicket calls POST /support/tickets with a JSON body
func (c *APIClient) CreateTicket(ctx context.Context, req models.CreateTicketRequest) (*models.SupportTicket, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}
	var ticket models.SupportTicket
	if err := c.doJSON(ctx, http.MethodPost, "/support/tickets", nil, bytes.NewReader(body), "application/json", &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// FetchConversation loads a dispute or ticket with its messages
func (c *APIClient) FetchConversation(ctx context.Context, ref models.ConversationRef) (*models.ConversationDetail, error) {
	ep, ok := threadEndpoints[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown conversation kind %q", ref.Kind)
	}
	var detail models.ConversationDetail
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf(ep.detailPath, ref.ID), nil, nil, "", &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateMessage posts a message as multipart form data
func (c *APIClient) CreateMessage(ctx context.Context, ref models.ConversationRef, msg OutgoingMessage) (*models.Message, error) {
	ep, ok := threadEndpoints[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown conversation kind %q", ref.Kind)
	}

	body, contentType, err := buildMessageForm(ep, ref.ID, msg)
	if err != nil {
		return nil, err
	}

	var res models.MessageResource
	path := fmt.Sprintf(ep.detailPath, ref.ID) + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, contentType, &res); err != nil {
		return nil, err
	}
	created := res.ToMessage()
	return &created, nil
}

func buildMessageForm(ep threadEndpoint, id uint64, msg OutgoingMessage) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField(ep.idField, strconv.FormatUint(id, 10)); err != nil {
		return nil, "", fmt.Errorf("failed to write form: %w", err)
	}
	if msg.Text != "" {
		if err := writer.WriteField("message", msg.Text); err != nil {
			return nil, "", fmt.Errorf("failed to write form: %w", err)
		}
	}
	if msg.AttachmentPath != "" {
		file, err := os.Open(msg.AttachmentPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open attachment: %w", err)
		}
		defer func() {
			_ = file.Close()
		}()

		part, err := writer.CreateFormFile(ep.fileField, filepath.Base(msg.AttachmentPath))
		if err != nil {
			return nil, "", fmt.Errorf("failed to write form: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", fmt.Errorf("failed to read attachment: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

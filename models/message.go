package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TempIDPrefix marks a message id that was assigned on this device and not yet confirmed
const TempIDPrefix = "temp-"

// MessageID is either a server-assigned integer or a client-only temporary string
type MessageID struct {
	Server uint64
	Temp   string
}

// ServerID wraps an id assigned by the API
func ServerID(id uint64) MessageID {
	return MessageID{Server: id}
}

// TempID wraps a client id, adding the temp prefix when missing
func TempID(id string) MessageID {
	if !strings.HasPrefix(id, TempIDPrefix) {
		id = TempIDPrefix + id
	}
	return MessageID{Temp: id}
}

// IsTemp reports whether the id was assigned locally
func (id MessageID) IsTemp() bool {
	return id.Temp != ""
}

func (id MessageID) IsZero() bool {
	return id.Server == 0 && id.Temp == ""
}

func (id MessageID) String() string {
	if id.IsTemp() {
		return id.Temp
	}
	return strconv.FormatUint(id.Server, 10)
}

// MarshalJSON writes server ids as numbers and temporary ids as strings
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.IsTemp() {
		return json.Marshal(id.Temp)
	}
	return []byte(strconv.FormatUint(id.Server, 10)), nil
}

// UnmarshalJSON accepts a number, a numeric string or a temp-prefixed string
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = MessageID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseMessageID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %s: %w", data, err)
	}
	*id = ServerID(n)
	return nil
}

// ParseMessageID parses the string form produced by String
func ParseMessageID(s string) (MessageID, error) {
	if strings.HasPrefix(s, TempIDPrefix) {
		return MessageID{Temp: s}, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return MessageID{}, fmt.Errorf("invalid message id %q", s)
	}
	return ServerID(n), nil
}

// SenderRole says who authored a message from the viewer's point of view
type SenderRole string

const (
	SenderSelf        SenderRole = "self"
	SenderCounterpart SenderRole = "counterpart"
	SenderSystem      SenderRole = "system"
	SenderUnknown     SenderRole = "unknown"
)

// selfSenderTypes are the sender_type values the API uses for the app's own user
var selfSenderTypes = map[string]bool{
	"customer": true,
	"user":     true,
	"buyer":    true,
	"client":   true,
}

var counterpartSenderTypes = map[string]bool{
	"store":   true,
	"vendor":  true,
	"seller":  true,
	"admin":   true,
	"support": true,
	"agent":   true,
	"staff":   true,
}

// ParseSenderRole maps a free-form sender_type onto the closed role set
func ParseSenderRole(senderType string) SenderRole {
	t := strings.ToLower(strings.TrimSpace(senderType))
	switch {
	case t == string(SenderSelf) || selfSenderTypes[t]:
		return SenderSelf
	case t == string(SenderCounterpart) || counterpartSenderTypes[t]:
		return SenderCounterpart
	case t == "system" || t == "bot":
		return SenderSystem
	default:
		return SenderUnknown
	}
}

// DeliveryState tracks an optimistic message until the server confirms it
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is one entry in a dispute or support conversation
type Message struct {
	ID            MessageID     `json:"id"`
	Text          string        `json:"text,omitempty"`
	AttachmentRef string        `json:"attachment_ref,omitempty"`
	AttachmentURL string        `json:"attachment_url,omitempty"`
	SenderRole    SenderRole    `json:"sender_role"`
	CreatedAt     time.Time     `json:"created_at"`
	IsRead        bool          `json:"is_read"`
	IsOptimistic  bool          `json:"is_optimistic,omitempty"`
	State         DeliveryState `json:"state,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`

	// staged file on this device, kept so a failed send can be retried
	LocalAttachmentPath string `json:"-"`
}

// HasContent reports whether the message carries text, an attachment, or both
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Text) != "" || m.AttachmentRef != ""
}

// MessageResource is the API's loosely-shaped message payload
type MessageResource struct {
	ID         MessageID `json:"id"`
	Message    string    `json:"message"`
	Text       string    `json:"text"`
	SenderType string    `json:"sender_type"`
	SenderRole string    `json:"sender_role"`
	Image      string    `json:"image"`
	Attachment string    `json:"attachment"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToMessage normalises the resource at the API boundary
func (r MessageResource) ToMessage() Message {
	text := r.Message
	if text == "" {
		text = r.Text
	}
	attachment := r.Image
	if attachment == "" {
		attachment = r.Attachment
	}
	role := r.SenderType
	if role == "" {
		role = r.SenderRole
	}
	return Message{
		ID:            r.ID,
		Text:          text,
		AttachmentRef: attachment,
		SenderRole:    ParseSenderRole(role),
		CreatedAt:     r.CreatedAt,
		IsRead:        r.IsRead,
	}
}

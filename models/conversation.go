package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversationKind selects which screen family a conversation belongs to
type ConversationKind string

const (
	ConversationDispute ConversationKind = "dispute"
	ConversationTicket  ConversationKind = "ticket"
)

// ParseConversationKind accepts the singular or plural route form
func ParseConversationKind(s string) (ConversationKind, error) {
	switch strings.ToLower(s) {
	case "dispute", "disputes":
		return ConversationDispute, nil
	case "ticket", "tickets", "support":
		return ConversationTicket, nil
	default:
		return "", fmt.Errorf("unknown conversation kind %q", s)
	}
}

// ConversationRef identifies one dispute or support ticket thread
type ConversationRef struct {
	Kind ConversationKind `json:"kind"`
	ID   uint64           `json:"id"`
}

// Key is the query cache key for the thread's server messages
func (r ConversationRef) Key() string {
	return string(r.Kind) + ":" + strconv.FormatUint(r.ID, 10)
}

func (r ConversationRef) String() string {
	return r.Key()
}

// ConversationDetail is the detail payload both thread endpoints return
type ConversationDetail struct {
	ID       uint64            `json:"id"`
	Status   string            `json:"status"`
	Subject  string            `json:"subject,omitempty"`
	Messages []MessageResource `json:"messages"`
}

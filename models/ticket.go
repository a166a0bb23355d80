package models

import (
	"strings"
	"time"
)

// TicketStatus is the closed set of support ticket statuses
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketPending    TicketStatus = "pending"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
	TicketUnknown    TicketStatus = "unknown"
)

func ParseTicketStatus(raw string) TicketStatus {
	switch s := TicketStatus(strings.ToLower(raw)); s {
	case TicketOpen, TicketPending, TicketInProgress, TicketResolved, TicketClosed:
		return s
	default:
		return TicketUnknown
	}
}

// SupportTicket is a conversation with marketplace support
type SupportTicket struct {
	ID          uint64          `json:"id"`
	Subject     string          `json:"subject"`
	Category    string          `json:"category"`
	Status      string          `json:"status"`
	LastMessage *MessageSummary `json:"last_message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StatusKind parses the ticket's status at the boundary
func (t SupportTicket) StatusKind() TicketStatus {
	return ParseTicketStatus(t.Status)
}

// CreateTicketRequest is the JSON body for opening a ticket
type CreateTicketRequest struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Category string `json:"category" validate:"required"`
	Message  string `json:"message" validate:"required"`
	OrderID  uint64 `json:"order_id,omitempty"`
}

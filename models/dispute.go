package models

import (
	"strings"
	"time"
)

// DisputeStatus is the closed set of dispute statuses
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputePending  DisputeStatus = "pending"
	DisputeResolved DisputeStatus = "resolved"
	DisputeClosed   DisputeStatus = "closed"
	DisputeUnknown  DisputeStatus = "unknown"
)

// ParseDisputeStatus lower-cases the server value; anything else is DisputeUnknown
func ParseDisputeStatus(raw string) DisputeStatus {
	switch s := DisputeStatus(strings.ToLower(raw)); s {
	case DisputeOpen, DisputePending, DisputeResolved, DisputeClosed:
		return s
	default:
		return DisputeUnknown
	}
}

// MessageSummary is the last-message preview shown in list rows
type MessageSummary struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Dispute is a buyer complaint about a sub-order
type Dispute struct {
	ID          uint64          `json:"id"`
	OrderID     uint64          `json:"order_id"`
	SubOrderID  uint64          `json:"sub_order_id,omitempty"`
	Category    string          `json:"category"`
	Details     string          `json:"details"`
	Status      string          `json:"status"`
	Store       *Store          `json:"store,omitempty"`
	LastMessage *MessageSummary `json:"last_message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StatusKind parses the dispute's status at the boundary
func (d Dispute) StatusKind() DisputeStatus {
	return ParseDisputeStatus(d.Status)
}

// StoreName is empty when the payload omitted the store
func (d Dispute) StoreName() string {
	if d.Store == nil {
		return ""
	}
	return d.Store.Name
}

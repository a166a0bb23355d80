package models

import "time"

// NoticeKind classifies a user-visible, dismissible notice
type NoticeKind string

const (
	NoticeValidation NoticeKind = "validation"
	NoticeSendError  NoticeKind = "send_error"
	NoticeFetchError NoticeKind = "fetch_error"
)

// Notice is surfaced by a screen as an alert or inline retry prompt
type Notice struct {
	Kind         NoticeKind `json:"kind"`
	Message      string     `json:"message"`
	Conversation string     `json:"conversation,omitempty"`
	MessageID    string     `json:"message_id,omitempty"`
	At           time.Time  `json:"at"`
}

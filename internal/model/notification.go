package model

import (
	"time"
)

// Notification statuses. A record starts as pending and moves to exactly
// one terminal status.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Default delivery channel when a request does not name one.
const DefaultChannel = "email"

// Notification is a single queued reminder. JSON field names follow the
// legacy queue document layout, so older documents keep loading after
// upgrades.
type Notification struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"email"`
	Channel     string     `json:"channel"`
	SelfiePath  string     `json:"selfie_path,omitempty"`
	Description string     `json:"llm_description,omitempty"`
	Body        string     `json:"email_body,omitempty"`
	QueuedAt    time.Time  `json:"queued_at"`
	SendAt      time.Time  `json:"send_at"`
	Status      string     `json:"status"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Terminal reports whether the record has reached a final status.
func (n Notification) Terminal() bool {
	return n.Status == StatusSent || n.Status == StatusFailed
}

package domain

import (
	"context"
	"errors"
	"time"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

// NATS subjects and Redis keys used for delivery.
const (
	SubjectEmail   = "notifications.email"
	SubjectSMS     = "notifications.sms"
	InboxKeyPrefix = "inapp:"
)

var (
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrNoRecipients = errors.New("message has no recipients")
)

// Sender delivers one message over a single channel kind.
type Sender interface {
	Send(ctx context.Context, msg core.OutboundMessage) error
}

// Envelope is the payload published for email and sms messages.
type Envelope struct {
	core.OutboundMessage
	QueuedAt time.Time `json:"queued_at"`
}

// InboxEntry is what an in-app inbox stores per message.
type InboxEntry struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	QueuedAt  time.Time `json:"queued_at"`
}

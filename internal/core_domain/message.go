package core_domain

import "time"

// Content is a piece of catalogue content resolved by id.
type Content struct {
	ID          uint32    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"` // short, movie, vlog, ...
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// ChannelKind selects how an outbound message is delivered.
type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelSMS   ChannelKind = "sms"
	ChannelInApp ChannelKind = "in_app"
)

// OutboundMessage is one notification handed to the delivery service.
// For in-app messages Recipients[0] is the device id and Subject the title.
type OutboundMessage struct {
	ID         string      `json:"id"` // UUID, fresh per message
	Kind       ChannelKind `json:"kind"`
	Sender     string      `json:"sender"`
	Recipients []string    `json:"recipients"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
}

// DeliveryAck reports the outcome for one OutboundMessage.
type DeliveryAck struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"` // empty on success
}

// OK reports whether the delivery succeeded.
func (a DeliveryAck) OK() bool { return a.Error == "" }

// Identity is the caller resolved from a bearer token.
type Identity struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

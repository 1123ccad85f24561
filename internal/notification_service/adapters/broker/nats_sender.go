// Package broker publishes email and sms messages to NATS for the
// provider-facing workers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/notification_service/domain"
	"github.com/crmkit/crm_services/internal/platform/messagebroker"
)

// NatsSender publishes each message as a JSON envelope on a fixed subject.
type NatsSender struct {
	publisher messagebroker.Publisher
	subject   string
	now       func() time.Time
}

func NewNatsSender(publisher messagebroker.Publisher, subject string) *NatsSender {
	return &NatsSender{publisher: publisher, subject: subject, now: time.Now}
}

// NewEmailSender publishes to domain.SubjectEmail.
func NewEmailSender(publisher messagebroker.Publisher) *NatsSender {
	return NewNatsSender(publisher, domain.SubjectEmail)
}

// NewSMSSender publishes to domain.SubjectSMS.
func NewSMSSender(publisher messagebroker.Publisher) *NatsSender {
	return NewNatsSender(publisher, domain.SubjectSMS)
}

func (s *NatsSender) Send(ctx context.Context, msg core.OutboundMessage) error {
	if len(msg.Recipients) == 0 || msg.Recipients[0] == "" {
		return domain.ErrNoRecipients
	}
	payload, err := json.Marshal(domain.Envelope{OutboundMessage: msg, QueuedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return s.publisher.Publish(ctx, s.subject, payload)
}

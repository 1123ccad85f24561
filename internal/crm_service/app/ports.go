package app

import (
	"context"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

// CohortSource runs cohort queries. The returned stream must be closed.
type CohortSource interface {
	Query(ctx context.Context, f core.StructuredFilter) (core.RecordStream, error)
}

// ContentResolver resolves content ids. Unknown ids are absent from the result.
type ContentResolver interface {
	Materialize(ctx context.Context, ids []uint32) ([]core.Content, error)
}

// Notifier opens a delivery stream. It reads msgs until the channel is
// closed and reports acks on the returned stream.
type Notifier interface {
	Send(ctx context.Context, msgs <-chan core.OutboundMessage) (AckStream, error)
}

// AckStream yields delivery acks; Recv returns io.EOF once every submitted
// message has been acknowledged.
type AckStream interface {
	Recv() (core.DeliveryAck, error)
}

// Renderer produces a message body for a list of contents.
type Renderer interface {
	Render(subject string, contents []core.Content) (string, error)
}

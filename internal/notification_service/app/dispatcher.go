package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/notification_service/domain"
)

const defaultWorkers = 8

// DispatcherConfig tunes throughput. A zero RatePerSecond disables throttling.
type DispatcherConfig struct {
	RatePerSecond float64
	Burst         int
	Workers       int
}

// Dispatcher routes outbound messages to the sender registered for their
// kind and reports one ack per message.
type Dispatcher struct {
	senders map[core.ChannelKind]domain.Sender
	limiter *rate.Limiter
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

func NewDispatcher(senders map[core.ChannelKind]domain.Sender, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		senders: senders,
		limiter: limiter,
		workers: workers,
		logger:  logger.With("service_component", "Dispatcher"),
		now:     time.Now,
	}
}

// Send consumes in until it is closed and emits exactly one ack per message
// read. The returned channel is closed once in is closed and every message
// read has been acked. If ctx ends first, reading stops and acks that can
// no longer be delivered are dropped.
func (d *Dispatcher) Send(ctx context.Context, in <-chan core.OutboundMessage) <-chan core.DeliveryAck {
	acks := make(chan core.DeliveryAck, d.workers)
	openStreamsGauge.Inc()

	go func() {
		defer openStreamsGauge.Dec()
		defer close(acks)

		g := new(errgroup.Group)
		g.SetLimit(d.workers)
		received := 0
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case msg, ok := <-in:
				if !ok {
					break loop
				}
				received++
				g.Go(func() error {
					ack := d.deliver(ctx, msg)
					select {
					case acks <- ack:
					case <-ctx.Done():
						d.logger.WarnContext(ctx, "Dropping ack, stream closed", "message_id", msg.ID)
					}
					return nil
				})
			}
		}
		_ = g.Wait()
		d.logger.InfoContext(ctx, "Delivery stream finished", "messages", received)
	}()
	return acks
}

func (d *Dispatcher) deliver(ctx context.Context, msg core.OutboundMessage) core.DeliveryAck {
	start := time.Now()
	err := d.dispatch(ctx, msg)
	dispatchDurationHist.WithLabelValues(string(msg.Kind)).Observe(time.Since(start).Seconds())

	ack := core.DeliveryAck{MessageID: msg.ID, Timestamp: d.now().UTC()}
	if err != nil {
		ack.Error = err.Error()
		messagesDispatchedCounter.WithLabelValues(string(msg.Kind), "error").Inc()
		d.logger.WarnContext(ctx, "Message delivery failed", "message_id", msg.ID, "kind", msg.Kind, "error", err)
		return ack
	}
	messagesDispatchedCounter.WithLabelValues(string(msg.Kind), "success").Inc()
	d.logger.DebugContext(ctx, "Message delivered", "message_id", msg.ID, "kind", msg.Kind)
	return ack
}

func (d *Dispatcher) dispatch(ctx context.Context, msg core.OutboundMessage) error {
	sender, ok := d.senders[msg.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, msg.Kind)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	return sender.Send(ctx, msg)
}

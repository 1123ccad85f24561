package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

// Reasons a cohort record produced no message.
const (
	skipNoContents    = "no_contents"
	skipResolveFailed = "resolve_failed"
	skipRenderFailed  = "render_failed"
)

// buildFunc turns one record into a message. A non-empty skip reason means
// the record produces nothing.
type buildFunc func(ctx context.Context, rec core.UserRecord) (msg core.OutboundMessage, skip string)

// RunSummary is logged when a delivery run finishes.
type RunSummary struct {
	ID               string
	Operation        string
	Records          int64
	Skipped          int64
	Enqueued         int64
	SubmissionFailed int64
	AcksOK           int64
	AcksFailed       int64
	Err              error
}

// pipeline is the bounded channel between per-record tasks and the drain.
type pipeline struct {
	ctx   context.Context
	queue chan core.OutboundMessage
}

func newPipeline(ctx context.Context, capacity int) *pipeline {
	return &pipeline{ctx: ctx, queue: make(chan core.OutboundMessage, capacity)}
}

// enqueue blocks while the queue is full. Once the run is cancelled it
// returns domain.ErrSubmissionClosed instead of blocking or panicking.
func (p *pipeline) enqueue(msg core.OutboundMessage) error {
	if p.ctx.Err() != nil {
		return domain.ErrSubmissionClosed
	}
	select {
	case p.queue <- msg:
		return nil
	case <-p.ctx.Done():
		return domain.ErrSubmissionClosed
	}
}

// run delivers one cohort. It owns the record stream and the outward channel.
type run struct {
	id      string
	op      string
	ctx     context.Context
	cancel  context.CancelFunc
	records core.RecordStream
	acks    AckStream
	outward chan<- core.OutboundMessage
	build   buildFunc
	workers int
	pipe    *pipeline
	logger  *slog.Logger

	recordsRead      atomic.Int64
	skipped          atomic.Int64
	enqueued         atomic.Int64
	submissionFailed atomic.Int64
	acksOK           atomic.Int64
	acksFailed       atomic.Int64

	errMu sync.Mutex
	err   error
}

func (r *run) execute() RunSummary {
	defer r.cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); r.produce() }()
	go func() { defer wg.Done(); r.drain() }()
	go func() { defer wg.Done(); r.consumeAcks() }()
	wg.Wait()

	r.errMu.Lock()
	defer r.errMu.Unlock()
	return RunSummary{
		ID:               r.id,
		Operation:        r.op,
		Records:          r.recordsRead.Load(),
		Skipped:          r.skipped.Load(),
		Enqueued:         r.enqueued.Load(),
		SubmissionFailed: r.submissionFailed.Load(),
		AcksOK:           r.acksOK.Load(),
		AcksFailed:       r.acksFailed.Load(),
		Err:              r.err,
	}
}

func (r *run) fail(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// produce reads the cohort and spawns one task per record. It stops reading
// as soon as the run is cancelled and closes the queue once every task is done.
func (r *run) produce() {
	defer close(r.pipe.queue)
	defer r.records.Close()

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for r.ctx.Err() == nil {
		rec, err := r.records.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Error("Cohort stream failed", "error", err)
				r.fail(err)
			}
			break
		}
		r.recordsRead.Add(1)
		g.Go(func() error {
			r.process(rec)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) process(rec core.UserRecord) {
	msg, skip := r.build(r.ctx, rec)
	if skip != "" {
		r.skipped.Add(1)
		recordsSkippedCounter.WithLabelValues(r.op, skip).Inc()
		return
	}
	if err := r.pipe.enqueue(msg); err != nil {
		r.submissionFailed.Add(1)
		submissionFailuresCounter.WithLabelValues(r.op).Inc()
		r.logger.Warn("Dropping message", "message_id", msg.ID, "error", err)
		return
	}
	r.enqueued.Add(1)
	messagesEnqueuedCounter.WithLabelValues(r.op).Inc()
}

// drain forwards queued messages to the delivery stream. After cancellation
// it keeps emptying the queue so that no producer stays blocked.
func (r *run) drain() {
	defer close(r.outward)
	for msg := range r.pipe.queue {
		select {
		case r.outward <- msg:
		case <-r.ctx.Done():
			r.submissionFailed.Add(1)
			submissionFailuresCounter.WithLabelValues(r.op).Inc()
		}
	}
}

// consumeAcks counts acks. The end of the ack stream, clean or not, ends the run.
func (r *run) consumeAcks() {
	defer r.cancel()
	for {
		ack, err := r.acks.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Warn("Delivery stream failed, cancelling run", "error", err)
				r.fail(err)
			}
			return
		}
		if ack.OK() {
			r.acksOK.Add(1)
			acksCounter.WithLabelValues(r.op, "success").Inc()
			continue
		}
		r.acksFailed.Add(1)
		acksCounter.WithLabelValues(r.op, "error").Inc()
		r.logger.Debug("Message not delivered", "message_id", ack.MessageID, "error", ack.Error)
	}
}

// prefetched replays a record read ahead of the run.
type prefetched struct {
	core.RecordStream
	first *core.UserRecord
}

func (p *prefetched) Next(ctx context.Context) (core.UserRecord, error) {
	if p.first != nil {
		rec := *p.first
		p.first = nil
		return rec, nil
	}
	return p.RecordStream.Next(ctx)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/auth"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

const (
	// DefaultChannelCapacity bounds the fan-out queue when FANOUT_CHANNEL_CAPACITY is unset.
	DefaultChannelCapacity = 1024
	// DefaultWorkers limits concurrent per-record tasks when FANOUT_WORKERS is unset.
	DefaultWorkers = 16
)

const (
	opWelcome = "welcome"
	opRecall  = "recall"
	opRemind  = "remind"

	subjectWelcome = "Welcome"
	subjectRecall  = "Recall"
	subjectRemind  = "Remind"
)

// Config is fixed for the lifetime of a Service.
type Config struct {
	SenderEmail     string
	ChannelCapacity int
	Workers         int
}

// Service fans a cohort out into one email per matched user. Each call
// returns once delivery has been set up; delivery runs in the background
// until the cohort is exhausted, the delivery stream ends, or Shutdown.
type Service struct {
	cfg      Config
	cohorts  CohortSource
	contents ContentResolver
	notifier Notifier
	renderer Renderer
	logger   *slog.Logger
	now      func() time.Time

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	closing bool
	runs    sync.WaitGroup

	onRunDone func(RunSummary)
}

func NewService(cfg Config, cohorts CohortSource, contents ContentResolver, notifier Notifier, renderer Renderer, logger *slog.Logger) *Service {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = DefaultChannelCapacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if renderer == nil {
		renderer = HTMLRenderer{}
	}
	base, stop := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		cohorts:  cohorts,
		contents: contents,
		notifier: notifier,
		renderer: renderer,
		logger:   logger.With("service_component", "CrmService"),
		now:      time.Now,
		base:     base,
		stop:     stop,
	}
}

// Welcome notifies users created req.Interval days ago.
func (s *Service) Welcome(ctx context.Context, req *domain.WelcomeRequest) (*domain.Response, error) {
	if err := req.Validate(); err != nil {
		runsStartedCounter.WithLabelValues(opWelcome, "rejected").Inc()
		return nil, err
	}
	build, err := s.sharedBuilder(ctx, subjectWelcome, req.ContentIDs)
	if err != nil {
		runsStartedCounter.WithLabelValues(opWelcome, "failed").Inc()
		return nil, err
	}
	return s.start(ctx, opWelcome, req.ID, RecencyFilter(s.now(), req.Interval), build)
}

// Recall notifies users active within the last req.LastVisitInterval days.
func (s *Service) Recall(ctx context.Context, req *domain.RecallRequest) (*domain.Response, error) {
	if err := req.Validate(); err != nil {
		runsStartedCounter.WithLabelValues(opRecall, "rejected").Inc()
		return nil, err
	}
	build, err := s.sharedBuilder(ctx, subjectRecall, req.ContentIDs)
	if err != nil {
		runsStartedCounter.WithLabelValues(opRecall, "failed").Inc()
		return nil, err
	}
	return s.start(ctx, opRecall, req.ID, InactivityFilter(s.now(), req.LastVisitInterval), build)
}

// Remind notifies recently active users about contents they started but
// did not finish. Users with nothing unfinished get no message.
func (s *Service) Remind(ctx context.Context, req *domain.RemindRequest) (*domain.Response, error) {
	if err := req.Validate(); err != nil {
		runsStartedCounter.WithLabelValues(opRemind, "rejected").Inc()
		return nil, err
	}
	return s.start(ctx, opRemind, req.ID, InactivityFilter(s.now(), req.LastVisitInterval), s.remindBuilder())
}

// Shutdown cancels every background run and waits for them to finish or
// for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sharedBuilder resolves contents once and renders one body reused for
// every recipient.
func (s *Service) sharedBuilder(ctx context.Context, subject string, ids []uint32) (buildFunc, error) {
	var contents []core.Content
	if len(ids) > 0 {
		var err error
		contents, err = s.contents.Materialize(ctx, ids)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to resolve contents", "subject", subject, "error", err)
			if !errors.Is(err, domain.ErrContentUnavailable) {
				err = fmt.Errorf("%w: %v", domain.ErrContentUnavailable, err)
			}
			return nil, err
		}
	}
	body, err := s.renderer.Render(subject, contents)
	if err != nil {
		return nil, fmt.Errorf("render %s body: %w", subject, err)
	}
	return func(_ context.Context, rec core.UserRecord) (core.OutboundMessage, string) {
		return s.message(subject, rec.Email, body), ""
	}, nil
}

func (s *Service) remindBuilder() buildFunc {
	return func(ctx context.Context, rec core.UserRecord) (core.OutboundMessage, string) {
		ids := rec.Categories[core.CategoryStartedButNotFinished]
		if len(ids) == 0 {
			return core.OutboundMessage{}, skipNoContents
		}
		contents, err := s.contents.Materialize(ctx, ids)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Failed to resolve unfinished contents, skipping user", "email", rec.Email, "error", err)
			}
			return core.OutboundMessage{}, skipResolveFailed
		}
		body, err := s.renderer.Render(subjectRemind, contents)
		if err != nil {
			s.logger.Warn("Failed to render reminder, skipping user", "email", rec.Email, "error", err)
			return core.OutboundMessage{}, skipRenderFailed
		}
		return s.message(subjectRemind, rec.Email, body), ""
	}
}

func (s *Service) message(subject, recipient, body string) core.OutboundMessage {
	return core.OutboundMessage{
		ID:         uuid.NewString(),
		Kind:       core.ChannelEmail,
		Sender:     s.cfg.SenderEmail,
		Recipients: []string{recipient},
		Subject:    subject,
		Body:       body,
	}
}

// start opens the cohort and the delivery stream, then hands both to a
// background run. Failures up to that point are returned to the caller.
func (s *Service) start(ctx context.Context, op, id string, filter core.StructuredFilter, build buildFunc) (*domain.Response, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, domain.ErrShuttingDown
	}
	s.runs.Add(1)
	s.mu.Unlock()

	logger := s.logger.With("operation", op, "request_id", id)
	if caller, ok := auth.IdentityFromContext(ctx); ok {
		logger = logger.With("requested_by", caller.Email)
	}

	runCtx, cancel := context.WithCancel(s.base)
	abort := func(err error) (*domain.Response, error) {
		cancel()
		s.runs.Done()
		runsStartedCounter.WithLabelValues(op, "failed").Inc()
		logger.ErrorContext(ctx, "Failed to start notification run", "error", err)
		return nil, err
	}

	records, err := s.cohorts.Query(runCtx, filter)
	if err != nil {
		return abort(err)
	}
	// The first read surfaces query errors while the caller is still waiting.
	first, err := records.Next(runCtx)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		records.Close()
		return abort(err)
	default:
		records = &prefetched{RecordStream: records, first: &first}
	}

	outward := make(chan core.OutboundMessage)
	acks, err := s.notifier.Send(runCtx, outward)
	if err != nil {
		records.Close()
		if !errors.Is(err, domain.ErrDeliveryUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDeliveryUnavailable, err)
		}
		return abort(err)
	}

	r := &run{
		id:      id,
		op:      op,
		ctx:     runCtx,
		cancel:  cancel,
		records: records,
		acks:    acks,
		outward: outward,
		build:   build,
		workers: s.cfg.Workers,
		pipe:    newPipeline(runCtx, s.cfg.ChannelCapacity),
		logger:  logger,
	}

	runsStartedCounter.WithLabelValues(op, "started").Inc()
	runsInFlightGauge.Inc()
	logger.InfoContext(ctx, "Notification run started")

	go func() {
		defer s.runs.Done()
		defer runsInFlightGauge.Dec()
		summary := r.execute()
		logger.Info("Notification run finished",
			"records", summary.Records,
			"skipped", summary.Skipped,
			"enqueued", summary.Enqueued,
			"submission_failed", summary.SubmissionFailed,
			"acks_ok", summary.AcksOK,
			"acks_failed", summary.AcksFailed,
			"error", summary.Err,
		)
		if s.onRunDone != nil {
			s.onRunDone(summary)
		}
	}()

	return &domain.Response{ID: id}, nil
}

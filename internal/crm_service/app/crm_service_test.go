package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

type fakeCohorts struct {
	mu      sync.Mutex
	filters []core.StructuredFilter
	stream  core.RecordStream
	err     error
}

func (f *fakeCohorts) Query(_ context.Context, filter core.StructuredFilter) (core.RecordStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeResolver struct {
	calls   atomic.Int32
	failFor map[uint32]bool
	err     error
}

func (f *fakeResolver) Materialize(_ context.Context, ids []uint32) ([]core.Content, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Content
	for _, id := range ids {
		if f.failFor[id] {
			return nil, errors.New("metadata unavailable")
		}
		out = append(out, core.Content{ID: id, Name: fmt.Sprintf("content-%d", id), URL: fmt.Sprintf("https://cdn.acme.org/%d", id)})
	}
	return out, nil
}

// fakeNotifier acks every message it reads, failing those listed in failIDs
// by recipient. With breakAfter > 0 the ack stream errors after that many acks.
type fakeNotifier struct {
	mu         sync.Mutex
	sent       []core.OutboundMessage
	failFor    map[string]bool
	breakAfter int
	openErr    error
}

func (f *fakeNotifier) Send(ctx context.Context, msgs <-chan core.OutboundMessage) (AckStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	acks := make(chan core.DeliveryAck)
	errs := make(chan error, 1)
	go func() {
		defer close(acks)
		n := 0
		for msg := range msgs {
			if f.breakAfter > 0 && n == f.breakAfter {
				errs <- errors.New("notification service went away")
				return
			}
			f.mu.Lock()
			f.sent = append(f.sent, msg)
			f.mu.Unlock()
			ack := core.DeliveryAck{MessageID: msg.ID, Timestamp: time.Now()}
			if f.failFor[msg.Recipients[0]] {
				ack.Error = "mailbox full"
			}
			select {
			case acks <- ack:
			case <-ctx.Done():
				return
			}
			n++
		}
	}()
	return &chanAcks{acks: acks, errs: errs}, nil
}

func (f *fakeNotifier) messages() []core.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.OutboundMessage(nil), f.sent...)
}

type chanAcks struct {
	acks <-chan core.DeliveryAck
	errs <-chan error
}

func (c *chanAcks) Recv() (core.DeliveryAck, error) {
	ack, ok := <-c.acks
	if !ok {
		select {
		case err := <-c.errs:
			return core.DeliveryAck{}, err
		default:
			return core.DeliveryAck{}, io.EOF
		}
	}
	return ack, nil
}

// endlessStream yields records until closed or cancelled.
type endlessStream struct {
	read   atomic.Int64
	closed atomic.Bool
}

func (e *endlessStream) Next(ctx context.Context) (core.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.UserRecord{}, err
	}
	if e.closed.Load() {
		return core.UserRecord{}, io.EOF
	}
	n := e.read.Add(1)
	return core.UserRecord{Email: fmt.Sprintf("user%d@acme.org", n)}, nil
}

func (e *endlessStream) Close() { e.closed.Store(true) }

type harness struct {
	svc       *Service
	cohorts   *fakeCohorts
	resolver  *fakeResolver
	notifier  *fakeNotifier
	summaries chan RunSummary
}

var fixedNow = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

func newHarness(stream core.RecordStream) *harness {
	h := &harness{
		cohorts:   &fakeCohorts{stream: stream},
		resolver:  &fakeResolver{},
		notifier:  &fakeNotifier{},
		summaries: make(chan RunSummary, 4),
	}
	h.svc = NewService(Config{SenderEmail: "crm@acme.org", ChannelCapacity: 4, Workers: 3},
		h.cohorts, h.resolver, h.notifier, HTMLRenderer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.svc.now = func() time.Time { return fixedNow }
	h.svc.onRunDone = func(s RunSummary) { h.summaries <- s }
	return h
}

func (h *harness) waitRun(t *testing.T) RunSummary {
	t.Helper()
	select {
	case s := <-h.summaries:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return RunSummary{}
	}
}

func users(emails ...string) []core.UserRecord {
	out := make([]core.UserRecord, len(emails))
	for i, e := range emails {
		out[i] = core.UserRecord{Email: e, Name: e, Categories: map[string][]uint32{}}
	}
	return out
}

func TestWelcome_TwoUsersGetIdenticalBodies(t *testing.T) {
	stream := &core.SliceStream{Records: users("alice@acme.org", "bob@acme.org")}
	h := newHarness(stream)

	resp, err := h.svc.Welcome(context.Background(), &domain.WelcomeRequest{ID: "req-1", Interval: 7, ContentIDs: []uint32{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.ID)

	summary := h.waitRun(t)
	assert.Equal(t, int64(2), summary.Records)
	assert.Equal(t, int64(2), summary.Enqueued)
	assert.Equal(t, int64(2), summary.AcksOK)
	assert.NoError(t, summary.Err)
	assert.True(t, stream.Closed())

	msgs := h.notifier.messages()
	require.Len(t, msgs, 2)
	recipients := []string{msgs[0].Recipients[0], msgs[1].Recipients[0]}
	assert.ElementsMatch(t, []string{"alice@acme.org", "bob@acme.org"}, recipients)
	assert.Equal(t, msgs[0].Body, msgs[1].Body)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	for _, m := range msgs {
		assert.Equal(t, core.ChannelEmail, m.Kind)
		assert.Equal(t, "Welcome", m.Subject)
		assert.Equal(t, "crm@acme.org", m.Sender)
		assert.Contains(t, m.Body, "https://cdn.acme.org/3")
	}
	assert.Equal(t, int32(1), h.resolver.calls.Load(), "shared contents are resolved once")

	require.Len(t, h.cohorts.filters, 1)
	window := h.cohorts.filters[0].Timestamps["created_at"]
	assert.True(t, window.Lower.Equal(fixedNow.Add(-7*24*time.Hour)))
	assert.True(t, window.Upper.Equal(fixedNow.Add(-6*24*time.Hour)))
}

func TestRecall_UsesInactivityWindow(t *testing.T) {
	h := newHarness(&core.SliceStream{Records: users("carol@acme.org")})

	_, err := h.svc.Recall(context.Background(), &domain.RecallRequest{ID: "req-2", LastVisitInterval: 30, ContentIDs: []uint32{9}})
	require.NoError(t, err)
	summary := h.waitRun(t)
	assert.Equal(t, int64(1), summary.AcksOK)

	window := h.cohorts.filters[0].Timestamps["last_visited_at"]
	assert.True(t, window.Lower.Equal(fixedNow.Add(-30*24*time.Hour)))
	assert.True(t, window.Upper.Equal(fixedNow))
	assert.Equal(t, "Recall", h.notifier.messages()[0].Subject)
}

func TestRemind_EmptyCategoryProducesNoMessage(t *testing.T) {
	h := newHarness(&core.SliceStream{Records: users("dave@acme.org")})

	resp, err := h.svc.Remind(context.Background(), &domain.RemindRequest{ID: "req-3", LastVisitInterval: 30})
	require.NoError(t, err)
	assert.Equal(t, "req-3", resp.ID)

	summary := h.waitRun(t)
	assert.Equal(t, int64(1), summary.Records)
	assert.Equal(t, int64(1), summary.Skipped)
	assert.Equal(t, int64(0), summary.Enqueued)
	assert.Empty(t, h.notifier.messages())
	assert.Equal(t, int32(0), h.resolver.calls.Load())
}

func TestRemind_PerRecordResolutionFailureIsIsolated(t *testing.T) {
	records := []core.UserRecord{
		{Email: "erin@acme.org", Categories: map[string][]uint32{core.CategoryStartedButNotFinished: {1, 2}}},
		{Email: "frank@acme.org", Categories: map[string][]uint32{core.CategoryStartedButNotFinished: {666}}},
		{Email: "grace@acme.org", Categories: map[string][]uint32{core.CategoryStartedButNotFinished: {3}}},
	}
	h := newHarness(&core.SliceStream{Records: records})
	h.resolver.failFor = map[uint32]bool{666: true}

	_, err := h.svc.Remind(context.Background(), &domain.RemindRequest{ID: "req-4", LastVisitInterval: 7})
	require.NoError(t, err)
	summary := h.waitRun(t)

	assert.Equal(t, int64(3), summary.Records)
	assert.Equal(t, int64(1), summary.Skipped)
	assert.Equal(t, int64(2), summary.Enqueued)
	assert.Equal(t, int32(3), h.resolver.calls.Load(), "contents are resolved per record")

	bodies := map[string]string{}
	for _, m := range h.notifier.messages() {
		bodies[m.Recipients[0]] = m.Body
	}
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies["erin@acme.org"], "content-2")
	assert.Contains(t, bodies["grace@acme.org"], "content-3")
	assert.NotContains(t, bodies["grace@acme.org"], "content-1")
}

func TestRun_CountsFailedAcks(t *testing.T) {
	h := newHarness(&core.SliceStream{Records: users("a@acme.org", "b@acme.org", "c@acme.org")})
	h.notifier.failFor = map[string]bool{"b@acme.org": true}

	_, err := h.svc.Welcome(context.Background(), &domain.WelcomeRequest{ID: "req-5", Interval: 1})
	require.NoError(t, err)
	summary := h.waitRun(t)

	assert.Equal(t, int64(3), summary.Enqueued)
	assert.Equal(t, int64(2), summary.AcksOK)
	assert.Equal(t, int64(1), summary.AcksFailed)
	assert.Equal(t, summary.Enqueued, summary.AcksOK+summary.AcksFailed)
}

func TestWelcome_EveryMatchedRecordGetsAMessage(t *testing.T) {
	h := newHarness(&core.SliceStream{Records: users("", "x@acme.org")})
	h.notifier.failFor = map[string]bool{"": true}

	_, err := h.svc.Welcome(context.Background(), &domain.WelcomeRequest{ID: "req-7", Interval: 7})
	require.NoError(t, err)
	summary := h.waitRun(t)

	assert.Equal(t, int64(2), summary.Records)
	assert.Equal(t, int64(0), summary.Skipped)
	assert.Equal(t, int64(2), summary.Enqueued)
	assert.Equal(t, int64(1), summary.AcksOK)
	assert.Equal(t, int64(1), summary.AcksFailed)
	require.Len(t, h.notifier.messages(), 2)
}

func TestRemind_RecordWithoutEmailStillProducesMessage(t *testing.T) {
	records := []core.UserRecord{
		{Categories: map[string][]uint32{core.CategoryStartedButNotFinished: {4}}},
	}
	h := newHarness(&core.SliceStream{Records: records})
	h.notifier.failFor = map[string]bool{"": true}

	_, err := h.svc.Remind(context.Background(), &domain.RemindRequest{ID: "req-8", LastVisitInterval: 7})
	require.NoError(t, err)
	summary := h.waitRun(t)

	assert.Equal(t, int64(0), summary.Skipped)
	assert.Equal(t, int64(1), summary.Enqueued)
	assert.Equal(t, int64(1), summary.AcksFailed)
	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{""}, msgs[0].Recipients)
}

func TestRun_DeliveryStreamFailureStopsCohortConsumption(t *testing.T) {
	stream := &endlessStream{}
	h := newHarness(stream)
	h.notifier.breakAfter = 5

	_, err := h.svc.Welcome(context.Background(), &domain.WelcomeRequest{ID: "req-6", Interval: 1})
	require.NoError(t, err)

	summary := h.waitRun(t)
	require.Error(t, summary.Err)
	assert.Equal(t, int64(5), summary.AcksOK)
	assert.True(t, stream.closed.Load(), "cohort stream must be released")

	readAtEnd := stream.read.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, readAtEnd, stream.read.Load(), "no reads after cancellation")
}

func TestShutdown_CancelsRunningDeliveries(t *testing.T) {
	stream := &endlessStream{}
	h := newHarness(stream)

	_, err := h.svc.Welcome(context.Background(), &domain.WelcomeRequest{ID: "req-7", Interval: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))
	h.waitRun(t)
	assert.True(t, stream.closed.Load())

	_, err = h.svc.Welcome(context.Background(), &domain.WelcomeRequest{ID: "req-8", Interval: 1})
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}

func TestSetupFailuresAreReturned(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		h := newHarness(&core.SliceStream{})
		_, err := h.svc.Welcome(context.Background(), &domain.WelcomeRequest{Interval: 1})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		assert.Empty(t, h.cohorts.filters)
	})

	t.Run("shared content lookup fails", func(t *testing.T) {
		h := newHarness(&core.SliceStream{Records: users("a@acme.org")})
		h.resolver.err = errors.New("connection refused")
		_, err := h.svc.Recall(context.Background(), &domain.RecallRequest{ID: "r", LastVisitInterval: 3, ContentIDs: []uint32{1}})
		assert.ErrorIs(t, err, domain.ErrContentUnavailable)
		assert.Empty(t, h.cohorts.filters, "cohort is not queried when contents are unavailable")
	})

	t.Run("cohort query fails", func(t *testing.T) {
		h := newHarness(nil)
		h.cohorts.err = domain.ErrCohortBackend
		_, err := h.svc.Remind(context.Background(), &domain.RemindRequest{ID: "r", LastVisitInterval: 3})
		assert.ErrorIs(t, err, domain.ErrCohortBackend)
	})

	t.Run("cohort fails on first read", func(t *testing.T) {
		stream := &core.SliceStream{Err: domain.ErrCohortBackend}
		h := newHarness(stream)
		_, err := h.svc.Remind(context.Background(), &domain.RemindRequest{ID: "r", LastVisitInterval: 3})
		assert.ErrorIs(t, err, domain.ErrCohortBackend)
		assert.True(t, stream.Closed())
	})

	t.Run("delivery stream cannot open", func(t *testing.T) {
		stream := &core.SliceStream{Records: users("a@acme.org")}
		h := newHarness(stream)
		h.notifier.openErr = errors.New("dial tcp: connection refused")
		_, err := h.svc.Remind(context.Background(), &domain.RemindRequest{ID: "r", LastVisitInterval: 3})
		assert.ErrorIs(t, err, domain.ErrDeliveryUnavailable)
		assert.True(t, stream.Closed())
	})
}

func TestPipeline_Backpressure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newPipeline(ctx, 2)

	require.NoError(t, p.enqueue(core.OutboundMessage{ID: "1"}))
	require.NoError(t, p.enqueue(core.OutboundMessage{ID: "2"}))

	third := make(chan error, 1)
	go func() { third <- p.enqueue(core.OutboundMessage{ID: "3"}) }()

	select {
	case err := <-third:
		t.Fatalf("third enqueue returned early with %v; it should wait for space", err)
	case <-time.After(100 * time.Millisecond):
	}

	first := <-p.queue
	assert.Equal(t, "1", first.ID)

	select {
	case err := <-third:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("third enqueue still blocked after space freed")
	}
	assert.Equal(t, "2", (<-p.queue).ID)
	assert.Equal(t, "3", (<-p.queue).ID)
}

func TestPipeline_EnqueueAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newPipeline(ctx, 1)
	require.NoError(t, p.enqueue(core.OutboundMessage{ID: "1"}))

	blocked := make(chan error, 1)
	go func() { blocked <- p.enqueue(core.OutboundMessage{ID: "2"}) }()
	cancel()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, domain.ErrSubmissionClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue did not observe cancellation")
	}
	assert.ErrorIs(t, p.enqueue(core.OutboundMessage{ID: "3"}), domain.ErrSubmissionClosed)
}

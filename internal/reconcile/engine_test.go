package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuehive/internal/apiclient"
	"queuehive/internal/journal"
	"queuehive/internal/metrics"
	"queuehive/internal/models"
	"queuehive/internal/realtime"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func pendingToken() models.Token {
	return models.Token{ID: 42, TokenNumber: 42, ServiceID: 3, UserID: 7, Status: models.StatusPending}
}

type harness struct {
	engine     *Engine
	backend    *fakeBackend
	subscriber *fakeSubscriber
	notes      *recorder
	journal    *journal.Memory
}

func newHarness(t *testing.T, opts Options, tokens ...models.Token) *harness {
	t.Helper()
	h := &harness{
		backend:    newFakeBackend(tokens...),
		subscriber: newFakeSubscriber(),
		notes:      &recorder{},
		journal:    &journal.Memory{},
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	opts.Notify = h.notes.notify
	opts.Journal = h.journal
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	h.engine = New(h.backend, h.subscriber, opts)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) snapshot(t *testing.T, id int64) Snapshot {
	t.Helper()
	snap, ok := h.engine.Snapshot(id)
	require.True(t, ok, "token %d not tracked", id)
	return snap
}

// pushSettled publishes a status changing push and waits for the refresh it
// schedules to finish.
func (h *harness) pushSettled(t *testing.T, id int64, topic, payload string) {
	t.Helper()
	tr := h.engine.lookup(id)
	require.NotNil(t, tr)
	before := h.backend.callCount()
	h.subscriber.publish(topic, payload)
	require.Eventually(t, func() bool { return h.backend.callCount() > before }, waitFor, tick)
	tr.fetchMu.Lock()
	tr.fetchMu.Unlock()
}

func withStatus(token models.Token, status models.Status) models.Token {
	token.Status = status
	return token
}

func TestStartTrackingSeedsAndSubscribes(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	h.backend.set(pendingToken(), 5)

	require.NoError(t, h.engine.StartTracking(context.Background(), 42))

	snap := h.snapshot(t, 42)
	assert.Equal(t, PhaseTracking, snap.Phase)
	assert.Equal(t, 42, snap.Token.TokenNumber)
	assert.True(t, snap.HasPosition)
	assert.Equal(t, 5, snap.Position)
	assert.False(t, snap.LastSyncedAt.IsZero())
	assert.Equal(t, []string{
		realtime.TopicQueueUpdates,
		"/topic/queue-updates/3",
		"/topic/tokenUpdates/3",
		"/topic/tokenUpdates/42",
	}, h.subscriber.topics())

	transitions := h.journal.Transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, models.Status(""), transitions[0].From)
	assert.Equal(t, models.StatusPending, transitions[0].To)
	assert.Equal(t, journal.SourceSeed, transitions[0].Source)
	assert.Equal(t, 1, h.notes.count())
}

func TestStartTrackingTwiceIsNoop(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	ctx := context.Background()
	require.NoError(t, h.engine.StartTracking(ctx, 42))
	subscribes, _ := h.subscriber.counts()
	calls := h.backend.callCount()

	require.NoError(t, h.engine.StartTracking(ctx, 42))
	again, _ := h.subscriber.counts()
	assert.Equal(t, subscribes, again)
	assert.Equal(t, calls, h.backend.callCount())
	assert.Equal(t, []int64{42}, h.engine.Tracked())
}

func TestStartTrackingRejectsUnknownToken(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.engine.StartTracking(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, apiclient.IsNotFound(err))
	_, ok := h.engine.Snapshot(99)
	assert.False(t, ok)
	subscribes, unsubscribes := h.subscriber.counts()
	assert.Equal(t, subscribes, unsubscribes)

	assert.Error(t, h.engine.StartTracking(context.Background(), 0))
}

func TestSeedNetworkFailureKeepsTracking(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	h.backend.fail(errNetwork)

	require.NoError(t, h.engine.StartTracking(context.Background(), 42))
	snap := h.snapshot(t, 42)
	assert.Equal(t, PhaseUnknown, snap.Phase)
	assert.Equal(t, 1, snap.Failures)

	h.backend.fail(nil)
	require.NoError(t, h.engine.Poll(context.Background(), 42))
	snap = h.snapshot(t, 42)
	assert.Equal(t, PhaseTracking, snap.Phase)
	assert.Equal(t, 0, snap.Failures)
	assert.Contains(t, h.subscriber.topics(), "/topic/queue-updates/3")
}

func TestPushIsForwardOnly(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))
	topic := "/topic/tokenUpdates/42"

	h.backend.set(withStatus(pendingToken(), models.StatusCalling), 1)
	h.pushSettled(t, 42, topic, `{"id":42,"status":"CALLING"}`)
	assert.Equal(t, models.StatusCalling, h.snapshot(t, 42).Token.Status)

	h.subscriber.publish(topic, `{"id":42,"status":"PENDING"}`)
	assert.Equal(t, models.StatusCalling, h.snapshot(t, 42).Token.Status, "regression must be ignored")

	h.backend.set(withStatus(pendingToken(), models.StatusSkipped), 0)
	h.pushSettled(t, 42, topic, `{"id":42,"status":"SKIPPED"}`)
	snap := h.snapshot(t, 42)
	assert.Equal(t, models.StatusSkipped, snap.Token.Status)
	assert.Equal(t, PhaseTracking, snap.Phase)

	h.backend.set(pendingToken(), 3)
	h.pushSettled(t, 42, topic, `{"id":42,"status":"PENDING"}`)
	assert.Equal(t, models.StatusPending, h.snapshot(t, 42).Token.Status, "requeue after skip is allowed")

	var pushed []models.Status
	for _, tr := range h.journal.Transitions() {
		if tr.Source == journal.SourcePush {
			pushed = append(pushed, tr.To)
		}
	}
	assert.Equal(t, []models.Status{models.StatusCalling, models.StatusSkipped, models.StatusPending}, pushed)
}

func TestDuplicateAndForeignPushesDoNotNotify(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))
	before := h.notes.count()

	h.subscriber.publish("/topic/tokenUpdates/42", `{"id":42,"status":"PENDING"}`)
	h.subscriber.publish("/topic/tokenUpdates/42", `{"id":41,"status":"CALLING"}`)
	h.subscriber.publish("/topic/tokenUpdates/42", `not json`)
	assert.Equal(t, before, h.notes.count())
	assert.Equal(t, models.StatusPending, h.snapshot(t, 42).Token.Status)
}

func TestPollWins(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	h.backend.set(pendingToken(), 5)
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))

	// The server still reports PENDING, so the refresh the push schedules
	// replaces the pushed CALLING.
	h.backend.set(pendingToken(), 2)
	h.pushSettled(t, 42, "/topic/tokenUpdates/42", `{"id":42,"status":"CALLING"}`)

	snap := h.snapshot(t, 42)
	assert.Equal(t, models.StatusPending, snap.Token.Status)
	assert.Equal(t, 2, snap.Position)
	assert.Equal(t, snap, h.notes.last())

	var seen []string
	for _, tr := range h.journal.Transitions() {
		seen = append(seen, string(tr.Source)+":"+string(tr.To))
	}
	assert.Equal(t, []string{"seed:PENDING", "push:CALLING", "refresh:PENDING"}, seen)
}

func TestPositionHiddenOutsideActiveStatuses(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	h.backend.set(pendingToken(), 5)
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))
	require.True(t, h.snapshot(t, 42).HasPosition)

	h.backend.set(withStatus(pendingToken(), models.StatusSkipped), 7)
	h.pushSettled(t, 42, "/topic/tokenUpdates/42", `{"id":42,"status":"SKIPPED"}`)
	snap := h.snapshot(t, 42)
	assert.Equal(t, models.StatusSkipped, snap.Token.Status)
	assert.False(t, snap.HasPosition)
	assert.Zero(t, snap.Position)

	require.NoError(t, h.engine.Refresh(context.Background(), 42))
	assert.False(t, h.snapshot(t, 42).HasPosition)
}

func TestDegradedAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(t, Options{RecoveryTimeout: time.Millisecond}, pendingToken())
	ctx := context.Background()
	require.NoError(t, h.engine.StartTracking(ctx, 42))

	h.backend.fail(errNetwork)
	for i := 1; i <= 2; i++ {
		require.Error(t, h.engine.Poll(ctx, 42))
		snap := h.snapshot(t, 42)
		assert.Equal(t, i, snap.Failures)
		assert.False(t, snap.Degraded, "after %d failures", i)
	}
	require.Error(t, h.engine.Poll(ctx, 42))
	snap := h.snapshot(t, 42)
	assert.Equal(t, 3, snap.Failures)
	assert.True(t, snap.Degraded)
	assert.Equal(t, PhaseTracking, snap.Phase, "degraded is not fatal")
	assert.True(t, h.notes.last().Degraded)

	h.backend.fail(nil)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, h.engine.Poll(ctx, 42))
	snap = h.snapshot(t, 42)
	assert.False(t, snap.Degraded)
	assert.Zero(t, snap.Failures)
}

func TestTerminalStatusTearsDown(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))
	subscribes, _ := h.subscriber.counts()

	h.subscriber.publish("/topic/tokenUpdates/42", `{"id":42,"status":"SERVED"}`)

	snap := h.snapshot(t, 42)
	assert.Equal(t, PhaseTerminal, snap.Phase)
	assert.Equal(t, models.StatusServed, snap.Token.Status)
	assert.False(t, snap.HasPosition)
	_, unsubscribes := h.subscriber.counts()
	assert.Equal(t, subscribes, unsubscribes)
	assert.Empty(t, h.subscriber.topics())

	pending := models.StatusPending
	h.engine.OnPushEvent(realtime.Event{
		Kind:  realtime.EventTokenUpdated,
		Patch: models.TokenPatch{ID: 42, Status: &pending},
	})
	after := h.snapshot(t, 42)
	assert.Equal(t, PhaseTerminal, after.Phase)
	assert.Equal(t, models.StatusServed, after.Token.Status)
	assert.Equal(t, snap.Token, after.Token)

	calls := h.backend.callCount()
	h.backend.set(withStatus(pendingToken(), models.StatusCalling), 1)
	require.ErrorIs(t, h.engine.Refresh(context.Background(), 42), ErrTerminal)
	require.ErrorIs(t, h.engine.Poll(context.Background(), 42), ErrTerminal)
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, calls, h.backend.callCount(), "terminal tokens are not polled")
	assert.Equal(t, models.StatusServed, h.snapshot(t, 42).Token.Status)

	h.engine.StopTracking(42)
	_, ok := h.engine.Snapshot(42)
	assert.False(t, ok)
}

func TestPollToTerminalTearsDown(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))

	cancelled := pendingToken()
	cancelled.Status = models.StatusCancelled
	h.backend.set(cancelled, 0)
	require.NoError(t, h.engine.Poll(context.Background(), 42))
	assert.Equal(t, PhaseTerminal, h.snapshot(t, 42).Phase)
	assert.Empty(t, h.subscriber.topics())
}

func TestStopTrackingIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))
	h.subscriber.mu.Lock()
	handler := h.subscriber.subs["/topic/tokenUpdates/42"][0].handler
	h.subscriber.mu.Unlock()
	subscribes, _ := h.subscriber.counts()

	h.engine.StopTracking(42)
	h.engine.StopTracking(42)

	_, unsubscribes := h.subscriber.counts()
	assert.Equal(t, subscribes, unsubscribes, "every subscription released exactly once")
	_, ok := h.engine.Snapshot(42)
	assert.False(t, ok)
	assert.True(t, errors.Is(h.engine.Poll(context.Background(), 42), ErrNotTracked))
	assert.True(t, errors.Is(h.engine.Refresh(context.Background(), 42), ErrNotTracked))

	before := h.notes.count()
	handler([]byte(`{"id":42,"status":"CALLING"}`))
	assert.Equal(t, before, h.notes.count(), "no notification after stop")

	h.engine.StopTracking(1234)
}

func TestStopTrackingWaitsForInFlightPoll(t *testing.T) {
	h := newHarness(t, Options{PollInterval: 5 * time.Millisecond}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))

	entered := make(chan struct{}, 1)
	h.backend.mu.Lock()
	h.backend.getToken = func(ctx context.Context, id int64) (models.Token, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return models.Token{}, ctx.Err()
	}
	h.backend.mu.Unlock()

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("poll loop never fetched")
	}
	before := h.notes.count()
	h.engine.StopTracking(42)
	assert.Equal(t, before, h.notes.count())
}

func TestQueueHintSchedulesRefresh(t *testing.T) {
	h := newHarness(t, Options{HintRatePerMinute: 600, HintBurst: 5}, pendingToken())
	h.backend.set(pendingToken(), 5)
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))

	h.backend.set(pendingToken(), 4)
	h.subscriber.publish("/topic/queue-updates/3", `{"tokenNumber":40,"serviceId":3}`)
	require.Eventually(t, func() bool { return h.snapshot(t, 42).Position == 4 }, waitFor, tick)

	calls := h.backend.callCount()
	h.subscriber.publish(realtime.TopicQueueUpdates, `{"tokenNumber":1,"serviceId":8}`)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.backend.callCount(), "hint for another service is ignored")
}

func TestHintsAreRateLimited(t *testing.T) {
	now := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, Options{HintRatePerMinute: 1, HintBurst: 1, Now: func() time.Time { return now }}, pendingToken())
	require.NoError(t, h.engine.StartTracking(context.Background(), 42))

	require.True(t, h.engine.limiter.allow("token:42"), "first call takes the only token")
	for i := 0; i < 5; i++ {
		h.engine.OnPushEvent(realtime.Event{Kind: realtime.EventQueueChanged, ServiceID: 3})
	}
	assert.Len(t, h.engine.lookup(42).hint, 0, "limited hints do not schedule refreshes")
}

func TestOnPushEventRoutesByToken(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken(), models.Token{ID: 43, TokenNumber: 43, ServiceID: 3, Status: models.StatusPending})
	ctx := context.Background()
	require.NoError(t, h.engine.StartTracking(ctx, 42))
	require.NoError(t, h.engine.StartTracking(ctx, 43))

	h.backend.set(models.Token{ID: 43, TokenNumber: 43, ServiceID: 3, Status: models.StatusCalling}, 0)
	before := h.backend.callCount()
	status := models.StatusCalling
	h.engine.OnPushEvent(realtime.Event{Kind: realtime.EventTokenUpdated, Patch: models.TokenPatch{ID: 43, Status: &status}})

	require.Eventually(t, func() bool { return h.backend.callCount() > before }, waitFor, tick)
	assert.Equal(t, models.StatusPending, h.snapshot(t, 42).Token.Status)
	assert.Equal(t, models.StatusCalling, h.snapshot(t, 43).Token.Status)
	assert.Equal(t, []int64{42, 43}, h.engine.Tracked())
}

func TestTickPollsEveryToken(t *testing.T) {
	h := newHarness(t, Options{}, pendingToken(), models.Token{ID: 43, TokenNumber: 43, ServiceID: 3, Status: models.StatusPending})
	ctx := context.Background()
	require.NoError(t, h.engine.StartTracking(ctx, 42))
	require.NoError(t, h.engine.StartTracking(ctx, 43))

	h.backend.fail(errNetwork)
	err := h.engine.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, h.snapshot(t, 42).Failures)
	assert.Equal(t, 1, h.snapshot(t, 43).Failures)
}

func TestPollOnlyWithoutSubscriber(t *testing.T) {
	backend := newFakeBackend(pendingToken())
	engine := New(backend, nil, Options{PollInterval: time.Hour})
	t.Cleanup(engine.Close)

	require.NoError(t, engine.StartTracking(context.Background(), 42))
	snap, ok := engine.Snapshot(42)
	require.True(t, ok)
	assert.Equal(t, PhaseTracking, snap.Phase)
}

package reconcile

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"queuehive/internal/journal"
	"queuehive/internal/metrics"
	"queuehive/internal/models"
	"queuehive/internal/realtime"
	"queuehive/internal/telemetry"
)

type fetchResult struct {
	token       models.Token
	position    int
	hasPosition bool
}

// tracker owns the state of one token. Lock order is fetchMu, notifyMu, mu.
type tracker struct {
	id      int64
	engine  *Engine
	breaker *gobreaker.CircuitBreaker

	// fetchMu serializes REST refreshes. notifyMu orders state commits with
	// their notifications and is the barrier StopTracking waits on.
	fetchMu  sync.Mutex
	notifyMu sync.Mutex

	mu                sync.Mutex
	phase             Phase
	token             models.Token
	position          int
	hasPosition       bool
	lastSynced        time.Time
	failures          int
	degraded          bool
	subs              map[string]Subscription
	serviceSubscribed bool
	closed            bool

	hint    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

func newTracker(e *Engine, id int64) *tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &tracker{
		id:      id,
		engine:  e,
		breaker: e.newBreaker("token-" + strconv.FormatInt(id, 10)),
		subs:    make(map[string]Subscription),
		hint:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (t *tracker) hintKey() string {
	return "token:" + strconv.FormatInt(t.id, 10)
}

func (t *tracker) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.engine.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			_ = t.refresh(t.ctx, journal.SourcePoll)
		case <-t.hint:
			_ = t.refresh(t.ctx, journal.SourceRefresh)
		}
	}
}

// poke schedules a refresh. Pending pokes coalesce into one.
func (t *tracker) poke() {
	select {
	case t.hint <- struct{}{}:
	default:
	}
}

func (t *tracker) subscribe(topic string) {
	subscriber := t.engine.subscriber
	if subscriber == nil {
		return
	}
	t.mu.Lock()
	_, exists := t.subs[topic]
	closed := t.closed
	t.mu.Unlock()
	if exists || closed {
		return
	}

	sub, err := subscriber.Subscribe(topic, t.onMessage)
	if err != nil {
		log.Warn().Err(err).Int64("token_id", t.id).Str("topic", topic).Msg("push subscribe failed, relying on polling")
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	t.subs[topic] = sub
	t.mu.Unlock()
}

func (t *tracker) subscribeService(serviceID int64) {
	for _, kind := range []realtime.TopicKind{realtime.KindServiceQueue, realtime.KindServiceTokens} {
		if topic, err := realtime.RouteTopic(kind, serviceID); err == nil {
			t.subscribe(topic)
		}
	}
	t.subscribe(realtime.TopicQueueUpdates)
}

func (t *tracker) onMessage(payload []byte) {
	if t.stopped.Load() {
		return
	}
	event, err := realtime.ParseEvent(payload)
	if err != nil {
		log.Warn().Err(err).Int64("token_id", t.id).Msg("dropping push payload")
		t.engine.opts.Metrics.PushEvent(metrics.PushParseError)
		return
	}
	if !t.engine.deliver(t, event) {
		t.engine.opts.Metrics.PushEvent(metrics.PushIgnored)
	}
}

// applyPush merges a pushed patch. Regressions are stale and dropped, an
// unchanged result is a duplicate. A push received before the first fetch
// only schedules one.
func (t *tracker) applyPush(patch models.TokenPatch) {
	m := t.engine.opts.Metrics
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if t.stopped.Load() {
		return
	}

	t.mu.Lock()
	switch t.phase {
	case PhaseUnknown:
		t.mu.Unlock()
		m.PushEvent(metrics.PushHint)
		t.poke()
		return
	case PhaseTerminal:
		t.mu.Unlock()
		m.PushEvent(metrics.PushIgnored)
		return
	}

	current := t.token
	next := current.Apply(patch)
	if next.Status != current.Status && !models.CanAdvance(current.Status, next.Status) {
		t.mu.Unlock()
		m.PushEvent(metrics.PushStale)
		log.Debug().Int64("token_id", t.id).Str("from", string(current.Status)).Str("to", string(next.Status)).Msg("stale push ignored")
		return
	}
	if next.Equal(current) {
		t.mu.Unlock()
		m.PushEvent(metrics.PushDuplicate)
		return
	}

	t.token = next
	t.lastSynced = t.engine.now()
	if !next.Status.Active() {
		t.position, t.hasPosition = 0, false
	}
	terminal := next.Status.Terminal()
	if terminal {
		t.phase = PhaseTerminal
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	m.PushEvent(metrics.PushApplied)
	t.emit(snap)
	statusChanged := next.Status != current.Status
	if statusChanged {
		t.engine.record(t.transition(next, current.Status, journal.SourcePush))
	}
	switch {
	case terminal:
		log.Info().Int64("token_id", t.id).Str("status", string(next.Status)).Msg("token reached terminal status")
		t.teardown()
	case statusChanged:
		t.poke()
	}
}

func (t *tracker) refresh(ctx context.Context, source journal.Source) error {
	t.fetchMu.Lock()
	defer t.fetchMu.Unlock()
	if t.stopped.Load() {
		return ErrNotTracked
	}

	ctx, span := telemetry.Tracer().Start(ctx, "reconcile.refresh", trace.WithAttributes(
		attribute.Int64("token.id", t.id),
		attribute.String("source", string(source)),
	))
	defer span.End()

	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.engine.fetchToken(ctx, t.id)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.fail(err)
		return err
	}
	t.commit(out.(fetchResult), source)
	return nil
}

func (e *Engine) fetchToken(ctx context.Context, id int64) (fetchResult, error) {
	token, err := e.fetcher.GetToken(ctx, id)
	if err != nil {
		return fetchResult{}, err
	}
	result := fetchResult{token: token}
	if token.Status.Active() {
		position, err := e.fetcher.GetQueuePosition(ctx, id)
		if err != nil {
			return fetchResult{}, err
		}
		result.position, result.hasPosition = position, true
	}
	return result, nil
}

// commit replaces the snapshot with fetched state. A terminal snapshot is
// kept as is until StopTracking.
func (t *tracker) commit(result fetchResult, source journal.Source) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if t.stopped.Load() {
		return
	}

	t.mu.Lock()
	if t.phase == PhaseTerminal {
		t.mu.Unlock()
		return
	}
	prevPhase, prev := t.phase, t.token
	t.token = result.token
	t.position, t.hasPosition = result.position, result.hasPosition
	t.lastSynced = t.engine.now()
	t.failures = 0
	t.setDegradedLocked(t.breaker.State() != gobreaker.StateClosed)
	terminal := result.token.Status.Terminal()
	if terminal {
		t.phase = PhaseTerminal
	} else {
		t.phase = PhaseTracking
	}
	subscribeService := !terminal && !t.serviceSubscribed && result.token.ServiceID > 0
	if subscribeService {
		t.serviceSubscribed = true
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.emit(snap)
	if prevPhase == PhaseUnknown || prev.Status != result.token.Status {
		t.engine.record(t.transition(result.token, prev.Status, source))
	}
	switch {
	case terminal:
		log.Info().Int64("token_id", t.id).Str("status", string(result.token.Status)).Msg("token reached terminal status")
		t.teardown()
	case subscribeService:
		t.subscribeService(result.token.ServiceID)
	}
}

func (t *tracker) fail(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	rejected := errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if t.stopped.Load() {
		return
	}
	t.mu.Lock()
	if !rejected {
		t.failures++
	}
	changed := t.setDegradedLocked(t.breaker.State() != gobreaker.StateClosed)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if !rejected {
		t.engine.opts.Metrics.PollFailure()
		log.Warn().Err(err).Int64("token_id", t.id).Int("failures", snap.Failures).Bool("degraded", snap.Degraded).Msg("token refresh failed")
	}
	if !rejected || changed {
		t.emit(snap)
	}
}

func (t *tracker) setDegradedLocked(degraded bool) bool {
	if t.degraded == degraded {
		return false
	}
	t.degraded = degraded
	if degraded {
		t.engine.opts.Metrics.DegradedDelta(1)
	} else {
		t.engine.opts.Metrics.DegradedDelta(-1)
	}
	return true
}

// emit must be called with notifyMu held.
func (t *tracker) emit(snap Snapshot) {
	if t.stopped.Load() || t.engine.opts.Notify == nil {
		return
	}
	t.engine.opts.Notify(snap)
}

// teardown stops polling and releases subscriptions. It does not wait for
// the loop, so it is safe to call from the loop itself.
func (t *tracker) teardown() {
	t.cancel()
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.closed = true
	t.mu.Unlock()
	for topic, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("push unsubscribe")
		}
	}
	t.engine.limiter.forget(t.hintKey())
}

func (t *tracker) stop() {
	t.stopped.Store(true)
	t.teardown()
	<-t.done
	// Wait out a notification that started before stopped was set.
	t.notifyMu.Lock()
	t.notifyMu.Unlock()

	t.mu.Lock()
	t.setDegradedLocked(false)
	t.mu.Unlock()
}

func (t *tracker) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		TokenID:      t.id,
		Phase:        t.phase,
		Token:        t.token,
		LastSyncedAt: t.lastSynced,
		Degraded:     t.degraded,
		Failures:     t.failures,
	}
	if t.hasPosition && t.token.Status.Active() {
		snap.Position, snap.HasPosition = t.position, true
	}
	if t.token.ServiceType != nil {
		serviceType := *t.token.ServiceType
		snap.Token.ServiceType = &serviceType
	}
	return snap
}

func (t *tracker) transition(token models.Token, from models.Status, source journal.Source) journal.Transition {
	return journal.Transition{
		TokenID:     t.id,
		TokenNumber: token.TokenNumber,
		ServiceID:   token.ServiceID,
		From:        from,
		To:          token.Status,
		Source:      source,
		ObservedAt:  t.engine.now(),
	}
}

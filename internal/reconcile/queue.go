package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"queuehive/internal/metrics"
	"queuehive/internal/models"
	"queuehive/internal/realtime"
	"queuehive/internal/telemetry"
)

// QueueWatcher keeps the active queue of one service in sync for admin
// boards. It follows the tracker's rules: the poll result always replaces
// the snapshot and pushes are only hints.
type QueueWatcher struct {
	engine    *Engine
	serviceID int64
	notify    func(QueueSnapshot)
	breaker   *gobreaker.CircuitBreaker

	fetchMu  sync.Mutex
	notifyMu sync.Mutex

	mu       sync.Mutex
	snapshot QueueSnapshot
	subs     map[string]Subscription
	closed   bool

	hint     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  atomic.Bool
	stopOnce sync.Once
}

// WatchService starts watching serviceID and seeds the snapshot before it
// returns. notify may be nil.
func (e *Engine) WatchService(ctx context.Context, serviceID int64, notify func(QueueSnapshot)) (*QueueWatcher, error) {
	serviceTopic, err := realtime.RouteTopic(realtime.KindServiceQueue, serviceID)
	if err != nil {
		return nil, fmt.Errorf("watch service: %w", err)
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	w := &QueueWatcher{
		engine:    e,
		serviceID: serviceID,
		notify:    notify,
		breaker:   e.newBreaker("service-" + strconv.FormatInt(serviceID, 10)),
		snapshot:  QueueSnapshot{ServiceID: serviceID},
		subs:      make(map[string]Subscription),
		hint:      make(chan struct{}, 1),
		ctx:       watchCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	e.mu.Lock()
	e.watchers[w] = struct{}{}
	e.mu.Unlock()

	w.subscribe(serviceTopic)
	if topic, err := realtime.RouteTopic(realtime.KindServiceTokens, serviceID); err == nil {
		w.subscribe(topic)
	}
	w.subscribe(realtime.TopicQueueUpdates)
	go w.loop()

	if err := w.Refresh(ctx); err != nil {
		if fatalFetch(err) {
			w.Stop()
			return nil, fmt.Errorf("watch service %d: %w", serviceID, err)
		}
		log.Warn().Err(err).Int64("service_id", serviceID).Msg("queue seed failed, polling will retry")
	}
	log.Info().Int64("service_id", serviceID).Msg("watching service queue")
	return w, nil
}

func (w *QueueWatcher) ServiceID() int64 {
	return w.serviceID
}

func (w *QueueWatcher) hintKey() string {
	return "service:" + strconv.FormatInt(w.serviceID, 10)
}

func (w *QueueWatcher) subscribe(topic string) {
	subscriber := w.engine.subscriber
	if subscriber == nil {
		return
	}
	sub, err := subscriber.Subscribe(topic, w.onMessage)
	if err != nil {
		log.Warn().Err(err).Int64("service_id", w.serviceID).Str("topic", topic).Msg("push subscribe failed, relying on polling")
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	w.subs[topic] = sub
	w.mu.Unlock()
}

func (w *QueueWatcher) onMessage(payload []byte) {
	if w.stopped.Load() {
		return
	}
	event, err := realtime.ParseEvent(payload)
	if err != nil {
		log.Warn().Err(err).Int64("service_id", w.serviceID).Msg("dropping push payload")
		w.engine.opts.Metrics.PushEvent(metrics.PushParseError)
		return
	}
	if !w.deliver(event) {
		w.engine.opts.Metrics.PushEvent(metrics.PushIgnored)
	}
}

// deliver turns a relevant event into a rate limited refresh.
func (w *QueueWatcher) deliver(event realtime.Event) bool {
	if w.stopped.Load() {
		return false
	}
	switch event.Kind {
	case realtime.EventQueueChanged:
		if event.ServiceID != 0 && event.ServiceID != w.serviceID {
			return false
		}
	case realtime.EventTokenUpdated:
		if event.ServiceID != w.serviceID && !w.holds(event.Patch.ID) {
			return false
		}
	default:
		return false
	}
	if !w.engine.limiter.allow(w.hintKey()) {
		w.engine.opts.Metrics.PushEvent(metrics.PushIgnored)
		return true
	}
	w.engine.opts.Metrics.PushEvent(metrics.PushHint)
	select {
	case w.hint <- struct{}{}:
	default:
	}
	return true
}

func (w *QueueWatcher) holds(tokenID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, token := range w.snapshot.Tokens {
		if token.ID == tokenID {
			return true
		}
	}
	return false
}

func (w *QueueWatcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.engine.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		case <-w.hint:
		}
		_ = w.Refresh(w.ctx)
	}
}

// Refresh fetches the active queue now.
func (w *QueueWatcher) Refresh(ctx context.Context) error {
	w.fetchMu.Lock()
	defer w.fetchMu.Unlock()
	if w.stopped.Load() {
		return ErrNotTracked
	}

	ctx, span := telemetry.Tracer().Start(ctx, "reconcile.refresh", trace.WithAttributes(
		attribute.Int64("service.id", w.serviceID),
	))
	defer span.End()

	out, err := w.breaker.Execute(func() (interface{}, error) {
		return w.engine.fetcher.ListActiveTokens(ctx, w.serviceID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.fail(err)
		return err
	}
	w.commit(out.([]models.Token))
	return nil
}

func (w *QueueWatcher) commit(tokens []models.Token) {
	sorted := append([]models.Token(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TokenNumber != sorted[j].TokenNumber {
			return sorted[i].TokenNumber < sorted[j].TokenNumber
		}
		return sorted[i].ID < sorted[j].ID
	})
	calling := 0
	for _, token := range sorted {
		if token.Status == models.StatusCalling {
			calling++
		}
	}
	if calling > 1 {
		log.Warn().Int64("service_id", w.serviceID).Int("calling", calling).Msg("server reported more than one CALLING token")
	}

	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	if w.stopped.Load() {
		return
	}
	w.mu.Lock()
	wasDegraded := w.snapshot.Degraded
	w.snapshot = QueueSnapshot{
		ServiceID:       w.serviceID,
		Tokens:          sorted,
		MultipleCalling: calling > 1,
		Synced:          true,
		LastSyncedAt:    w.engine.now(),
		Degraded:        w.breaker.State() != gobreaker.StateClosed,
	}
	w.degradedDelta(wasDegraded, w.snapshot.Degraded)
	snap := w.copyLocked()
	w.mu.Unlock()
	w.emit(snap)
}

func (w *QueueWatcher) fail(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	rejected := errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)

	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	if w.stopped.Load() {
		return
	}
	w.mu.Lock()
	if !rejected {
		w.snapshot.Failures++
	}
	wasDegraded := w.snapshot.Degraded
	w.snapshot.Degraded = w.breaker.State() != gobreaker.StateClosed
	w.degradedDelta(wasDegraded, w.snapshot.Degraded)
	snap := w.copyLocked()
	w.mu.Unlock()

	if !rejected {
		w.engine.opts.Metrics.PollFailure()
		log.Warn().Err(err).Int64("service_id", w.serviceID).Int("failures", snap.Failures).Bool("degraded", snap.Degraded).Msg("queue refresh failed")
	}
	if !rejected || wasDegraded != snap.Degraded {
		w.emit(snap)
	}
}

func (w *QueueWatcher) degradedDelta(was, now bool) {
	switch {
	case !was && now:
		w.engine.opts.Metrics.DegradedDelta(1)
	case was && !now:
		w.engine.opts.Metrics.DegradedDelta(-1)
	}
}

func (w *QueueWatcher) emit(snap QueueSnapshot) {
	if w.notify == nil || w.stopped.Load() {
		return
	}
	w.notify(snap)
}

func (w *QueueWatcher) Snapshot() QueueSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.copyLocked()
}

func (w *QueueWatcher) copyLocked() QueueSnapshot {
	snap := w.snapshot
	snap.Tokens = append([]models.Token(nil), w.snapshot.Tokens...)
	return snap
}

// Stop ends the watcher synchronously. It is safe to call more than once.
func (w *QueueWatcher) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.cancel()

		w.engine.mu.Lock()
		delete(w.engine.watchers, w)
		w.engine.mu.Unlock()

		w.mu.Lock()
		subs := w.subs
		w.subs = nil
		w.closed = true
		if w.snapshot.Degraded {
			w.engine.opts.Metrics.DegradedDelta(-1)
		}
		w.mu.Unlock()
		for topic, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				log.Debug().Err(err).Str("topic", topic).Msg("push unsubscribe")
			}
		}
		w.engine.limiter.forget(w.hintKey())

		<-w.done
		w.notifyMu.Lock()
		w.notifyMu.Unlock()
		log.Info().Int64("service_id", w.serviceID).Msg("stopped watching service queue")
	})
}

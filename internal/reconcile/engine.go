// Package reconcile merges push events and polled REST state into one view
// per tracked token. Polling is authoritative: a fetched snapshot replaces
// whatever push delivered, while pushes only ever move a token forward.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"queuehive/internal/journal"
	"queuehive/internal/metrics"
	"queuehive/internal/models"
	"queuehive/internal/realtime"
)

const (
	defaultPollInterval     = 10 * time.Second
	defaultFailureThreshold = 3
)

// Fetcher is the part of the REST client the engine reads through.
type Fetcher interface {
	GetToken(ctx context.Context, id int64) (models.Token, error)
	GetQueuePosition(ctx context.Context, id int64) (int, error)
	ListActiveTokens(ctx context.Context, serviceID int64) ([]models.Token, error)
}

type Options struct {
	PollInterval time.Duration
	// FailureThreshold consecutive fetch failures mark a snapshot degraded.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before the next
	// fetch is let through. Defaults to half the poll interval so every tick
	// tries the backend again.
	RecoveryTimeout time.Duration

	HintRatePerMinute int
	HintBurst         int

	// Notify receives every snapshot change. It runs with the tracker's
	// notification lock held and must not call StopTracking.
	Notify  func(Snapshot)
	Journal journal.Recorder
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Engine struct {
	fetcher    Fetcher
	subscriber Subscriber
	opts       Options
	limiter    *hintLimiter

	mu       sync.Mutex
	trackers map[int64]*tracker
	watchers map[*QueueWatcher]struct{}
}

func New(fetcher Fetcher, subscriber Subscriber, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = opts.PollInterval / 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		fetcher:    fetcher,
		subscriber: subscriber,
		opts:       opts,
		limiter:    newHintLimiter(opts.HintRatePerMinute, opts.HintBurst, opts.Now),
		trackers:   make(map[int64]*tracker),
		watchers:   make(map[*QueueWatcher]struct{}),
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Now()
}

func (e *Engine) newBreaker(name string) *gobreaker.CircuitBreaker {
	threshold := uint32(e.opts.FailureThreshold)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     e.opts.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Debug().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("sync breaker state")
		},
	})
}

// StartTracking moves tokenID from Unknown to Tracking: it subscribes to the
// token topic, starts the poll loop and seeds the snapshot synchronously.
// Tracking an id twice is a no-op. A seed that fails with not found or an
// auth error undoes the tracking and is returned; other seed failures are
// left to the poll loop.
func (e *Engine) StartTracking(ctx context.Context, tokenID int64) error {
	topic, err := realtime.RouteTopic(realtime.KindTokenStatus, tokenID)
	if err != nil {
		return fmt.Errorf("track token: %w", err)
	}

	e.mu.Lock()
	if _, ok := e.trackers[tokenID]; ok {
		e.mu.Unlock()
		return nil
	}
	t := newTracker(e, tokenID)
	e.trackers[tokenID] = t
	e.mu.Unlock()
	e.opts.Metrics.TrackedDelta(1)

	t.subscribe(topic)
	go t.loop()

	if err := t.refresh(ctx, journal.SourceSeed); err != nil {
		if fatalFetch(err) {
			e.StopTracking(tokenID)
			return fmt.Errorf("track token %d: %w", tokenID, err)
		}
		log.Warn().Err(err).Int64("token_id", tokenID).Msg("seed fetch failed, polling will retry")
	}
	log.Info().Int64("token_id", tokenID).Msg("tracking token")
	return nil
}

// StopTracking removes the token from any state. When it returns the poll
// loop has exited, every subscription is released and no further
// notification for the token will fire. Stopping an untracked id is a no-op.
func (e *Engine) StopTracking(tokenID int64) {
	e.mu.Lock()
	t, ok := e.trackers[tokenID]
	if ok {
		delete(e.trackers, tokenID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	t.stop()
	e.opts.Metrics.TrackedDelta(-1)
	log.Info().Int64("token_id", tokenID).Msg("stopped tracking token")
}

// Poll runs one poll tick for tokenID.
func (e *Engine) Poll(ctx context.Context, tokenID int64) error {
	return e.refresh(ctx, tokenID, journal.SourcePoll)
}

// Refresh fetches tokenID now, outside the poll schedule.
func (e *Engine) Refresh(ctx context.Context, tokenID int64) error {
	return e.refresh(ctx, tokenID, journal.SourceRefresh)
}

func (e *Engine) refresh(ctx context.Context, tokenID int64, source journal.Source) error {
	t := e.lookup(tokenID)
	if t == nil {
		return ErrNotTracked
	}
	if t.snapshot().Phase == PhaseTerminal {
		return ErrTerminal
	}
	return t.refresh(ctx, source)
}

// Tick polls every tracked token once.
func (e *Engine) Tick(ctx context.Context) error {
	var errs []error
	for _, id := range e.Tracked() {
		err := e.Poll(ctx, id)
		if err != nil && !errors.Is(err, ErrNotTracked) && !errors.Is(err, ErrTerminal) {
			errs = append(errs, fmt.Errorf("token %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// OnPushEvent feeds a decoded push event to every tracker and watcher it
// concerns. Subscriptions opened by the engine call this path themselves.
func (e *Engine) OnPushEvent(event realtime.Event) {
	e.mu.Lock()
	trackers := make([]*tracker, 0, len(e.trackers))
	for _, t := range e.trackers {
		trackers = append(trackers, t)
	}
	watchers := make([]*QueueWatcher, 0, len(e.watchers))
	for w := range e.watchers {
		watchers = append(watchers, w)
	}
	e.mu.Unlock()

	handled := false
	for _, t := range trackers {
		if e.deliver(t, event) {
			handled = true
		}
	}
	for _, w := range watchers {
		if w.deliver(event) {
			handled = true
		}
	}
	if !handled {
		e.opts.Metrics.PushEvent(metrics.PushIgnored)
	}
}

func (e *Engine) deliver(t *tracker, event realtime.Event) bool {
	switch event.Kind {
	case realtime.EventTokenUpdated:
		if event.Patch.ID != t.id {
			return false
		}
		t.applyPush(event.Patch)
		return true
	case realtime.EventQueueChanged:
		snap := t.snapshot()
		if snap.Phase == PhaseTerminal {
			return false
		}
		if event.ServiceID != 0 && snap.Token.ServiceID != 0 && event.ServiceID != snap.Token.ServiceID {
			return false
		}
		if !e.limiter.allow(t.hintKey()) {
			e.opts.Metrics.PushEvent(metrics.PushIgnored)
			return true
		}
		e.opts.Metrics.PushEvent(metrics.PushHint)
		t.poke()
		return true
	default:
		return false
	}
}

func (e *Engine) lookup(tokenID int64) *tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trackers[tokenID]
}

// Snapshot returns a copy of the token's reconciled state.
func (e *Engine) Snapshot(tokenID int64) (Snapshot, bool) {
	t := e.lookup(tokenID)
	if t == nil {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Tracked lists tracked token ids in ascending order.
func (e *Engine) Tracked() []int64 {
	e.mu.Lock()
	ids := make([]int64, 0, len(e.trackers))
	for id := range e.trackers {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close stops every tracker and watcher.
func (e *Engine) Close() {
	for _, id := range e.Tracked() {
		e.StopTracking(id)
	}
	e.mu.Lock()
	watchers := make([]*QueueWatcher, 0, len(e.watchers))
	for w := range e.watchers {
		watchers = append(watchers, w)
	}
	e.mu.Unlock()
	for _, w := range watchers {
		w.Stop()
	}
}

func (e *Engine) record(t journal.Transition) {
	if e.opts.Journal == nil {
		return
	}
	if err := e.opts.Journal.Record(context.Background(), t); err != nil {
		log.Warn().Err(err).Int64("token_id", t.TokenID).Msg("journal record failed")
	}
}

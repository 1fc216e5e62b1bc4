// Package journal records status transitions observed by the client so queue
// behaviour can be summarized later without access to the backend database.
package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"queuehive/internal/models"
)

type Source string

const (
	SourceSeed    Source = "seed"
	SourcePoll    Source = "poll"
	SourcePush    Source = "push"
	SourceRefresh Source = "refresh"
)

// Transition is one observed status change. From is empty for the first
// observation of a token.
type Transition struct {
	TokenID     int64
	TokenNumber int
	ServiceID   int64
	From        models.Status
	To          models.Status
	Source      Source
	ObservedAt  time.Time
}

type Recorder interface {
	Record(ctx context.Context, transition Transition) error
}

// ServiceSummary aggregates the transitions recorded for one service.
type ServiceSummary struct {
	ServiceID   int64
	Tokens      int
	Served      int
	Skipped     int
	Cancelled   int
	AvgWait     time.Duration
	LastChanged time.Time
}

const recordTimeout = 5 * time.Second

// Async hands transitions to a Recorder on its own goroutine so callers on
// the push path never wait on storage. Transitions are dropped when the
// buffer is full.
type Async struct {
	recorder Recorder
	queue    chan Transition
	dropped  atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(recorder Recorder, buffer int) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{recorder: recorder, queue: make(chan Transition, buffer)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for transition := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := a.recorder.Record(ctx, transition); err != nil {
			log.Warn().Err(err).Int64("token_id", transition.TokenID).Msg("journal record failed")
		}
		cancel()
	}
}

// Record never blocks. It returns nil even when the transition is dropped,
// including after Close.
func (a *Async) Record(_ context.Context, transition Transition) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return nil
	}
	select {
	case a.queue <- transition:
	default:
		a.dropped.Add(1)
	}
	return nil
}

func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close flushes queued transitions and stops the worker.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Memory keeps transitions in process. It backs tests and the journal
// command when no database is configured.
type Memory struct {
	mu          sync.Mutex
	transitions []Transition
}

func (m *Memory) Record(_ context.Context, transition Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, transition)
	return nil
}

func (m *Memory) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.transitions...)
}

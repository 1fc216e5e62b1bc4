// Package view turns user intents into REST calls and reconciled state into
// text. It holds no token state of its own: everything it shows comes from
// the reconcile engine.
package view

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"queuehive/internal/apiclient"
	"queuehive/internal/models"
	"queuehive/internal/reconcile"
	"queuehive/internal/session"
)

type Intent string

const (
	IntentJoin     Intent = "join"
	IntentCallNext Intent = "call-next"
	IntentServe    Intent = "serve"
	IntentSkip     Intent = "skip"
	IntentCancel   Intent = "cancel"
)

// API is the subset of the REST facade the intents call.
type API interface {
	CreateToken(ctx context.Context, userID, serviceID int64) (models.Token, error)
	CallNext(ctx context.Context, serviceID int64) (models.Token, error)
	MarkServed(ctx context.Context, id int64) (models.Token, error)
	SkipToken(ctx context.Context, id int64) (models.Token, error)
	CancelToken(ctx context.Context, id int64) (models.Token, error)
}

// Tracker is the part of the reconcile engine the binding drives.
type Tracker interface {
	StartTracking(ctx context.Context, tokenID int64) error
	Refresh(ctx context.Context, tokenID int64) error
}

// QueueRefresher is satisfied by *reconcile.QueueWatcher.
type QueueRefresher interface {
	ServiceID() int64
	Refresh(ctx context.Context) error
}

type Identities interface {
	Current() (session.Identity, bool)
}

type Options struct {
	// OnNeedsLogin is called with the login route after an authentication
	// failure.
	OnNeedsLogin func(route string)
}

type Binding struct {
	api        API
	tracker    Tracker
	identities Identities
	opts       Options
	notices    *Notices

	mu     sync.Mutex
	busy   map[string]struct{}
	queues map[int64]QueueRefresher

	needsLogin atomic.Bool
}

func NewBinding(api API, tracker Tracker, identities Identities, opts Options) *Binding {
	return &Binding{
		api:        api,
		tracker:    tracker,
		identities: identities,
		opts:       opts,
		notices:    &Notices{},
		busy:       make(map[string]struct{}),
		queues:     make(map[int64]QueueRefresher),
	}
}

func (b *Binding) Notices() *Notices {
	return b.notices
}

// AttachQueue registers a queue view so intents touching its service
// refresh it.
func (b *Binding) AttachQueue(queue QueueRefresher) {
	b.mu.Lock()
	b.queues[queue.ServiceID()] = queue
	b.mu.Unlock()
}

func (b *Binding) DetachQueue(serviceID int64) {
	b.mu.Lock()
	delete(b.queues, serviceID)
	b.mu.Unlock()
}

// Enabled reports whether the control for intent on target accepts input.
func (b *Binding) Enabled(intent Intent, target int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, busy := b.busy[controlKey(intent, target)]
	return !busy
}

// NeedsLogin reports whether an authentication failure was seen since the
// last ResetLogin.
func (b *Binding) NeedsLogin() bool {
	return b.needsLogin.Load()
}

func (b *Binding) ResetLogin() {
	b.needsLogin.Store(false)
}

// HandleAuthFailure is meant for apiclient.Options.OnAuthFailure.
func (b *Binding) HandleAuthFailure(apiErr *apiclient.Error) {
	if b.needsLogin.Swap(true) {
		return
	}
	log.Warn().Int("status", apiErr.StatusCode).Msg("authentication required")
	b.notices.Push(Notice{Level: LevelError, Message: "Your session has ended. Please log in again.", Err: apiErr})
	if b.opts.OnNeedsLogin != nil {
		b.opts.OnNeedsLogin(RouteLogin)
	}
}

// JoinQueue takes a token for the current user and starts tracking it.
func (b *Binding) JoinQueue(ctx context.Context, serviceID int64) (models.Token, error) {
	identity, ok := b.identities.Current()
	if !ok {
		return models.Token{}, ErrNoSession
	}
	token, err := b.run(ctx, IntentJoin, serviceID, func(ctx context.Context) (models.Token, error) {
		return b.api.CreateToken(ctx, identity.UserID, serviceID)
	})
	if err != nil {
		return models.Token{}, err
	}
	if err := b.tracker.StartTracking(ctx, token.ID); err != nil {
		b.notices.Push(Notice{Level: LevelError, Intent: IntentJoin, Target: serviceID, Message: err.Error(), Err: apiclient.Normalize(err)})
		return token, fmt.Errorf("track joined token: %w", err)
	}
	b.refreshQueue(ctx, serviceID)
	return token, nil
}

// CallNext calls the next PENDING token of the service. A zero token means
// the queue was empty.
func (b *Binding) CallNext(ctx context.Context, serviceID int64) (models.Token, error) {
	token, err := b.run(ctx, IntentCallNext, serviceID, func(ctx context.Context) (models.Token, error) {
		return b.api.CallNext(ctx, serviceID)
	})
	if err != nil {
		return models.Token{}, err
	}
	if token.ID == 0 {
		b.notices.Push(Notice{Level: LevelInfo, Intent: IntentCallNext, Target: serviceID, Message: "No tokens waiting."})
	} else {
		b.refreshToken(ctx, token.ID)
	}
	b.refreshQueue(ctx, serviceID)
	return token, nil
}

func (b *Binding) MarkServed(ctx context.Context, tokenID int64) (models.Token, error) {
	return b.tokenAction(ctx, IntentServe, tokenID, b.api.MarkServed)
}

func (b *Binding) Skip(ctx context.Context, tokenID int64) (models.Token, error) {
	return b.tokenAction(ctx, IntentSkip, tokenID, b.api.SkipToken)
}

func (b *Binding) Cancel(ctx context.Context, tokenID int64) (models.Token, error) {
	return b.tokenAction(ctx, IntentCancel, tokenID, b.api.CancelToken)
}

func (b *Binding) tokenAction(ctx context.Context, intent Intent, tokenID int64, call func(context.Context, int64) (models.Token, error)) (models.Token, error) {
	token, err := b.run(ctx, intent, tokenID, func(ctx context.Context) (models.Token, error) {
		return call(ctx, tokenID)
	})
	if err != nil {
		return models.Token{}, err
	}
	b.refreshToken(ctx, tokenID)
	b.refreshQueue(ctx, token.ServiceID)
	return token, nil
}

// run disables the control for the duration of call. Failures are
// normalized and queued as notices; local state is left alone.
func (b *Binding) run(ctx context.Context, intent Intent, target int64, call func(context.Context) (models.Token, error)) (models.Token, error) {
	key := controlKey(intent, target)
	b.mu.Lock()
	if _, busy := b.busy[key]; busy {
		b.mu.Unlock()
		return models.Token{}, ErrControlBusy
	}
	b.busy[key] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.busy, key)
		b.mu.Unlock()
	}()

	token, err := call(ctx)
	if err != nil {
		apiErr := apiclient.Normalize(err)
		var validation apiclient.ValidationErrors
		message := apiErr.Message
		if errors.As(err, &validation) {
			message = validation.Error()
		}
		log.Warn().Str("intent", string(intent)).Int64("target", target).Int("status", apiErr.StatusCode).Msg(message)
		b.notices.Push(Notice{Level: LevelError, Intent: intent, Target: target, Message: message, Err: apiErr})
		return models.Token{}, err
	}
	return token, nil
}

func (b *Binding) refreshToken(ctx context.Context, tokenID int64) {
	err := b.tracker.Refresh(ctx, tokenID)
	if err != nil && !errors.Is(err, reconcile.ErrNotTracked) && !errors.Is(err, reconcile.ErrTerminal) {
		log.Debug().Err(err).Int64("token_id", tokenID).Msg("refresh after intent failed")
	}
}

func (b *Binding) refreshQueue(ctx context.Context, serviceID int64) {
	b.mu.Lock()
	queue, ok := b.queues[serviceID]
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := queue.Refresh(ctx); err != nil {
		log.Debug().Err(err).Int64("service_id", serviceID).Msg("queue refresh after intent failed")
	}
}

func controlKey(intent Intent, target int64) string {
	return string(intent) + ":" + strconv.FormatInt(target, 10)
}

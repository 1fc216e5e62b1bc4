package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/config"
	"queuehive/internal/journal"
	"queuehive/internal/journal/postgres"
	"queuehive/internal/metrics"
	"queuehive/internal/session"
	"queuehive/internal/view"
)

var (
	errNotLoggedIn  = errors.New("not logged in: run 'queuehive login'")
	errSessionEnded = errors.New("session ended: run 'queuehive login'")
	errForbidden    = errors.New("access denied")
)

// app holds the process wide dependencies. They are built on first use so
// that commands like --help never touch the session backend.
type app struct {
	cfg     config.Config
	metrics *metrics.Metrics

	once       sync.Once
	initErr    error
	sessions   *session.Store
	api        *apiclient.Client
	onAuthFail func(*apiclient.Error)

	closers []func()
}

func newApp(cfg config.Config) *app {
	return &app{cfg: cfg, metrics: metrics.New()}
}

func (a *app) init(ctx context.Context) error {
	a.once.Do(func() {
		backend, err := a.sessionBackend(ctx)
		if err != nil {
			a.initErr = err
			return
		}
		a.sessions = session.NewStore(backend)
		if err := a.sessions.Init(ctx); err != nil {
			log.Warn().Err(err).Msg("stored session discarded")
		}
		a.api = apiclient.New(apiclient.Options{
			BaseURL:     a.cfg.APIBaseURL,
			Timeout:     a.cfg.RequestTimeout,
			Credentials: a.sessions.BearerToken,
			OnAuthFailure: func(apiErr *apiclient.Error) {
				if a.onAuthFail != nil {
					a.onAuthFail(apiErr)
				}
			},
			Metrics: a.metrics,
		})
	})
	return a.initErr
}

func (a *app) sessionBackend(ctx context.Context) (session.Backend, error) {
	switch a.cfg.SessionBackend {
	case "redis":
		backend, err := session.NewRedisBackend(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, a.cfg.RedisKey)
		if err != nil {
			return nil, fmt.Errorf("session backend: %w", err)
		}
		a.closers = append(a.closers, func() { _ = backend.Close() })
		return backend, nil
	case "memory":
		return session.NewMemoryBackend(), nil
	default:
		return session.NewFileBackend(a.cfg.SessionPath), nil
	}
}

// client returns the REST client, building it on first use.
func (a *app) client(ctx context.Context) (*apiclient.Client, error) {
	if err := a.init(ctx); err != nil {
		return nil, err
	}
	return a.api, nil
}

// identity returns the current session or an error telling the user to log
// in.
func (a *app) identity(ctx context.Context) (session.Identity, error) {
	if err := a.init(ctx); err != nil {
		return session.Identity{}, err
	}
	identity, ok := a.sessions.Current()
	if !ok {
		return session.Identity{}, errNotLoggedIn
	}
	return identity, nil
}

// authorize returns the current session when its role may open route.
func (a *app) authorize(ctx context.Context, route string) (session.Identity, error) {
	identity, err := a.identity(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	switch view.Guard(route, identity) {
	case "":
		return identity, nil
	case view.RouteLogin:
		return session.Identity{}, errNotLoggedIn
	default:
		return session.Identity{}, fmt.Errorf("%w: role %s cannot open %s, your home is %s", errForbidden, identity.Role, route, view.HomeRoute(identity.Role))
	}
}

// guarded makes every command in the tree check route before it runs.
func (a *app) guarded(route string, commands []*cli.Command) []*cli.Command {
	for _, command := range commands {
		command.Subcommands = a.guarded(route, command.Subcommands)
		if command.Run == nil {
			continue
		}
		run := command.Run
		command.Run = func(ctx context.Context, args []string) error {
			if _, err := a.authorize(ctx, route); err != nil {
				return err
			}
			return run(ctx, args)
		}
	}
	return commands
}

// openJournal opens the transition journal: Postgres when a DSN is configured,
// memory otherwise.
func (a *app) openJournal(ctx context.Context) (journal.Recorder, error) {
	if a.cfg.JournalDSN == "" {
		return &journal.Memory{}, nil
	}
	store, err := a.journalStore(ctx)
	if err != nil {
		return nil, err
	}
	async := journal.NewAsync(store, 256)
	a.closers = append(a.closers, async.Close)
	return async, nil
}

func (a *app) journalStore(ctx context.Context) (*postgres.Store, error) {
	if a.cfg.JournalDSN == "" {
		return nil, fmt.Errorf("journal: QUEUEHIVE_JOURNAL_DSN is not set")
	}
	store, err := postgres.Open(ctx, a.cfg.JournalDSN)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return store, nil
}

// serveMetrics exposes /metrics until ctx ends when an address is set.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
			log.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server failed")
		}
	}()
}

// close runs closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"queuehive/internal/cli"
	"queuehive/internal/models"
	"queuehive/internal/realtime"
	"queuehive/internal/reconcile"
	"queuehive/internal/session"
	"queuehive/internal/tui"
	"queuehive/internal/view"
)

// liveSession is the push connection, engine and binding shared by the
// interactive commands.
type liveSession struct {
	identity session.Identity
	push     *realtime.Client
	engine   *reconcile.Engine
	binding  *view.Binding
	states   *tui.Feed[realtime.State]
	// redirects carries the login route after the backend rejects the
	// session, so the running program can exit.
	redirects *tui.Feed[string]
}

func (a *app) openLive(ctx context.Context, route string, notify func(reconcile.Snapshot)) (*liveSession, error) {
	identity, err := a.authorize(ctx, route)
	if err != nil {
		return nil, err
	}
	recorder, err := a.openJournal(ctx)
	if err != nil {
		return nil, err
	}

	live := &liveSession{
		identity:  identity,
		states:    tui.NewFeed[realtime.State](4),
		redirects: tui.NewFeed[string](1),
	}
	push, err := realtime.Dial(ctx, realtime.Options{
		URL:               a.cfg.WebsocketURL,
		Token:             identity.Token,
		ReconnectDelay:    a.cfg.ReconnectDelay,
		ReconnectAttempts: a.cfg.ReconnectAttempts,
		Metrics:           a.metrics,
		OnStateChange:     live.states.Publish,
	})
	if err != nil {
		if realtime.IsAuth(err) {
			return nil, fmt.Errorf("push connection refused the session, run 'queuehive login': %w", err)
		}
		log.Warn().Err(err).Msg("push unavailable, falling back to polling")
	} else {
		live.push = push
	}

	live.engine = reconcile.New(a.api, reconcile.FromRealtime(live.push), reconcile.Options{
		PollInterval:      a.cfg.PollInterval,
		FailureThreshold:  a.cfg.FailureThreshold,
		HintRatePerMinute: a.cfg.HintRatePerMinute,
		HintBurst:         a.cfg.HintBurst,
		Notify:            notify,
		Journal:           recorder,
		Metrics:           a.metrics,
	})
	live.binding = view.NewBinding(a.api, live.engine, a.sessions, view.Options{
		OnNeedsLogin: live.redirects.Publish,
	})
	a.onAuthFail = live.binding.HandleAuthFailure
	return live, nil
}

func (l *liveSession) stateChannel() <-chan realtime.State {
	if l.push == nil {
		return nil
	}
	return l.states.C()
}

func (l *liveSession) close() {
	l.engine.Close()
	if l.push != nil {
		if err := l.push.Close(); err != nil && !errors.Is(err, realtime.ErrClosed) {
			log.Debug().Err(err).Msg("push close")
		}
	}
}

func runProgram(ctx context.Context, model tea.Model) error {
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	if ended, ok := final.(interface{ LoginRequired() string }); ok && ended.LoginRequired() != "" {
		return errSessionEnded
	}
	return nil
}

func watchCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow tokens live (defaults to your active tokens)",
		Usage:   "queuehive watch [tokenId...]",
		Run: func(ctx context.Context, args []string) error {
			ids := make([]int64, 0, len(args))
			for i := range args {
				id, err := cli.ArgID(args, i, "tokenId")
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			snapshots := tui.NewFeed[reconcile.Snapshot](64)
			live, err := a.openLive(ctx, view.RouteUserDashboard, snapshots.Publish)
			if err != nil {
				return err
			}
			defer live.close()

			if len(ids) == 0 {
				tokens, err := a.api.ListUserTokens(ctx, live.identity.UserID)
				if err != nil {
					return err
				}
				for _, token := range tokens {
					ids = append(ids, token.ID)
				}
			}
			if len(ids) == 0 {
				return cli.Usagef("no active tokens: join a queue with 'queuehive tokens join <serviceId>'")
			}

			initial := make([]reconcile.Snapshot, 0, len(ids))
			for _, id := range ids {
				if err := live.engine.StartTracking(ctx, id); err != nil {
					return err
				}
				if snap, ok := live.engine.Snapshot(id); ok {
					initial = append(initial, snap)
				}
			}
			a.serveMetrics(ctx)

			return runProgram(ctx, tui.NewWatchModel(ctx, tui.WatchConfig{
				Snapshots: snapshots.C(),
				States:    live.stateChannel(),
				Actions:   live.binding,
				Refresher: live.engine,
				Redirects: live.redirects.C(),
				Initial:   initial,
			}))
		},
	}
}

func boardCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "board",
		Summary: "Run the live queue board of a service",
		Usage:   "queuehive board <serviceId>",
		Run: func(ctx context.Context, args []string) error {
			serviceID, err := cli.ArgID(args, 0, "serviceId")
			if err != nil {
				return err
			}
			live, err := a.openLive(ctx, view.RouteCompanyDashboard, nil)
			if err != nil {
				return err
			}
			defer live.close()

			var service models.Service
			if service, err = a.api.GetService(ctx, serviceID); err != nil {
				return err
			}

			queue := tui.NewFeed[reconcile.QueueSnapshot](16)
			watcher, err := live.engine.WatchService(ctx, serviceID, queue.Publish)
			if err != nil {
				return err
			}
			live.binding.AttachQueue(watcher)
			a.serveMetrics(ctx)

			return runProgram(ctx, tui.NewBoardModel(ctx, tui.BoardConfig{
				ServiceID:   serviceID,
				ServiceName: service.Name,
				Snapshots:   queue.C(),
				Actions:     live.binding,
				Queue:       watcher,
				Redirects:   live.redirects.C(),
				Initial:     watcher.Snapshot(),
			}))
		},
	}
}

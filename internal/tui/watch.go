// Package tui holds the bubbletea models behind the watch and board
// commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"queuehive/internal/models"
	"queuehive/internal/realtime"
	"queuehive/internal/reconcile"
	"queuehive/internal/view"
)

const actionTimeout = 15 * time.Second

const sessionEnded = "Session ended. Run 'queuehive login'."

// TokenActions is the part of view.Binding the watch screen uses.
type TokenActions interface {
	Cancel(ctx context.Context, tokenID int64) (models.Token, error)
	Notices() *view.Notices
}

type TokenRefresher interface {
	Refresh(ctx context.Context, tokenID int64) error
}

type actionMsg struct {
	err error
}

type WatchConfig struct {
	Snapshots <-chan reconcile.Snapshot
	States    <-chan realtime.State
	Actions   TokenActions
	Refresher TokenRefresher
	// Redirects receives the login route once the session is rejected.
	Redirects <-chan string
	// Initial seeds the screen before the first notification.
	Initial []reconcile.Snapshot
}

// WatchModel shows the user's tracked tokens as they change.
type WatchModel struct {
	ctx      context.Context
	cfg      WatchConfig
	order    []int64
	snaps    map[int64]reconcile.Snapshot
	selected int
	state    string
	notices  []view.Notice
	busy     bool
	width    int
	login    string
}

func NewWatchModel(ctx context.Context, cfg WatchConfig) WatchModel {
	model := WatchModel{
		ctx:   ctx,
		cfg:   cfg,
		snaps: make(map[int64]reconcile.Snapshot),
		state: "polling only",
	}
	if cfg.States != nil {
		model.state = realtime.StateReconnecting.String()
	}
	for _, snap := range cfg.Initial {
		model.apply(snap)
	}
	return model
}

func (model WatchModel) Init() tea.Cmd {
	return tea.Batch(listen(model.cfg.Snapshots), listen(model.cfg.States), listenLogin(model.cfg.Redirects))
}

func (model WatchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)
	case tea.WindowSizeMsg:
		model.width = message.Width
	case feedMsg[reconcile.Snapshot]:
		model.apply(message.value)
		model.drainNotices()
		return model, listen(model.cfg.Snapshots)
	case feedMsg[realtime.State]:
		model.state = message.value.String()
		return model, listen(model.cfg.States)
	case actionMsg:
		model.busy = false
		model.drainNotices()
	case loginMsg:
		model.login = message.route
		model.drainNotices()
		return model, tea.Quit
	}
	return model, nil
}

// LoginRequired returns the route to send the user to when the program ended
// because the session was rejected.
func (model WatchModel) LoginRequired() string {
	return model.login
}

func (model WatchModel) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.String() {
	case "q", "ctrl+c", "esc":
		return model, tea.Quit
	case "j", "down":
		if model.selected < len(model.order)-1 {
			model.selected++
		}
	case "k", "up":
		if model.selected > 0 {
			model.selected--
		}
	case "r":
		if id, ok := model.current(); ok && model.cfg.Refresher != nil {
			return model, model.refresh(id)
		}
	case "x":
		id, ok := model.current()
		if !ok || model.busy || model.cfg.Actions == nil {
			return model, nil
		}
		snap := model.snaps[id]
		if snap.Phase != reconcile.PhaseTracking || snap.Token.Status.Terminal() {
			return model, nil
		}
		model.busy = true
		return model, model.cancel(id)
	}
	return model, nil
}

func (model WatchModel) refresh(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(model.ctx, actionTimeout)
		defer cancel()
		return actionMsg{err: model.cfg.Refresher.Refresh(ctx, id)}
	}
}

func (model WatchModel) cancel(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(model.ctx, actionTimeout)
		defer cancel()
		_, err := model.cfg.Actions.Cancel(ctx, id)
		return actionMsg{err: err}
	}
}

func (model *WatchModel) apply(snap reconcile.Snapshot) {
	if _, ok := model.snaps[snap.TokenID]; !ok {
		model.order = append(model.order, snap.TokenID)
	}
	model.snaps[snap.TokenID] = snap
}

func (model *WatchModel) drainNotices() {
	if model.cfg.Actions == nil {
		return
	}
	model.notices = appendNotices(model.notices, model.cfg.Actions.Notices())
}

func (model WatchModel) current() (int64, bool) {
	if model.selected < 0 || model.selected >= len(model.order) {
		return 0, false
	}
	return model.order[model.selected], true
}

func (model WatchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("QueueHive tokens"))
	b.WriteString(" ")
	b.WriteString(faintStyle.Render(model.state))
	b.WriteString("\n\n")

	if len(model.order) == 0 {
		b.WriteString(faintStyle.Render("No tokens tracked."))
		b.WriteString("\n")
	}
	for i, id := range model.order {
		snap := model.snaps[id]
		line := view.RenderToken(snap)
		prefix := "  "
		switch {
		case i == model.selected:
			prefix = "> "
			line = selectedStyle.Render(line)
		case snap.Phase != reconcile.PhaseUnknown:
			line = statusStyle(snap.Token.Status).Render(line)
		}
		b.WriteString(prefix + line + "\n")
		if snap.Phase == reconcile.PhaseTracking && !snap.LastSyncedAt.IsZero() {
			b.WriteString(faintStyle.Render(fmt.Sprintf("    synced %s", snap.LastSyncedAt.Format("15:04:05"))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	for _, notice := range model.notices {
		b.WriteString(renderNotice(notice))
		b.WriteString("\n")
	}
	if model.login != "" {
		b.WriteString(errorStyle.Render(sessionEnded))
		b.WriteString("\n")
	}
	b.WriteString(faintStyle.Render("j/k select  r refresh  x cancel  q quit"))
	return b.String()
}

func renderNotice(notice view.Notice) string {
	if notice.Level == view.LevelError {
		return errorStyle.Render("! " + notice.Message)
	}
	return infoStyle.Render("i " + notice.Message)
}

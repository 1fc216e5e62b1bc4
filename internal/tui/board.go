package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"queuehive/internal/models"
	"queuehive/internal/reconcile"
	"queuehive/internal/view"
)

// BoardActions is the part of view.Binding the admin board uses.
type BoardActions interface {
	CallNext(ctx context.Context, serviceID int64) (models.Token, error)
	MarkServed(ctx context.Context, tokenID int64) (models.Token, error)
	Skip(ctx context.Context, tokenID int64) (models.Token, error)
	Notices() *view.Notices
}

type QueueRefresher interface {
	Refresh(ctx context.Context) error
}

type BoardConfig struct {
	ServiceID   int64
	ServiceName string
	Snapshots   <-chan reconcile.QueueSnapshot
	Actions     BoardActions
	Queue       QueueRefresher
	Redirects   <-chan string
	Initial     reconcile.QueueSnapshot
}

// BoardModel is the company admin view of one service queue.
type BoardModel struct {
	ctx     context.Context
	cfg     BoardConfig
	snap    reconcile.QueueSnapshot
	notices []view.Notice
	busy    bool
	login   string
}

func NewBoardModel(ctx context.Context, cfg BoardConfig) BoardModel {
	return BoardModel{ctx: ctx, cfg: cfg, snap: cfg.Initial}
}

func (model BoardModel) Init() tea.Cmd {
	return tea.Batch(listen(model.cfg.Snapshots), listenLogin(model.cfg.Redirects))
}

func (model BoardModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)
	case feedMsg[reconcile.QueueSnapshot]:
		model.snap = message.value
		model.drainNotices()
		return model, listen(model.cfg.Snapshots)
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

func (model *BoardModel) drainNotices() {
	if model.cfg.Actions == nil {
		return
	}
	model.notices = appendNotices(model.notices, model.cfg.Actions.Notices())
}

func (model BoardModel) LoginRequired() string {
	return model.login
}

func (model BoardModel) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := message.String()
	switch key {
	case "q", "ctrl+c", "esc":
		return model, tea.Quit
	case "r":
		if model.cfg.Queue == nil {
			return model, nil
		}
		return model, model.run(func(ctx context.Context) error { return model.cfg.Queue.Refresh(ctx) })
	}
	if model.busy {
		return model, nil
	}

	switch key {
	case "n":
		model.busy = true
		return model, model.run(func(ctx context.Context) error {
			_, err := model.cfg.Actions.CallNext(ctx, model.cfg.ServiceID)
			return err
		})
	case "s", "x":
		calling := model.snap.Calling()
		if len(calling) == 0 {
			return model, nil
		}
		id := calling[0].ID
		action := model.cfg.Actions.MarkServed
		if key == "x" {
			action = model.cfg.Actions.Skip
		}
		model.busy = true
		return model, model.run(func(ctx context.Context) error {
			_, err := action(ctx, id)
			return err
		})
	}
	return model, nil
}

func (model BoardModel) run(call func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(model.ctx, actionTimeout)
		defer cancel()
		return actionMsg{err: call(ctx)}
	}
}

func (model BoardModel) View() string {
	var b strings.Builder
	title := fmt.Sprintf("Service %d", model.cfg.ServiceID)
	if model.cfg.ServiceName != "" {
		title = model.cfg.ServiceName
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString(" ")
	b.WriteString(faintStyle.Render(fmt.Sprintf("%d waiting", model.snap.Waiting())))
	if model.snap.Degraded {
		b.WriteString(" ")
		b.WriteString(warnStyle.Render(view.DegradedMarker))
	}
	b.WriteString("\n\n")

	if model.snap.MultipleCalling {
		b.WriteString(warnStyle.Render("More than one token is CALLING."))
		b.WriteString("\n")
	}
	switch {
	case !model.snap.Synced:
		b.WriteString(faintStyle.Render("Loading queue..."))
		b.WriteString("\n")
	case len(model.snap.Tokens) == 0:
		b.WriteString(faintStyle.Render("Queue is empty."))
		b.WriteString("\n")
	}
	for _, token := range model.snap.Tokens {
		marker := "  "
		if token.Status == models.StatusCalling {
			marker = "> "
		}
		line := fmt.Sprintf("Token %d | %s", token.TokenNumber, token.Status)
		b.WriteString(marker + statusStyle(token.Status).Render(line) + "\n")
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
	b.WriteString(faintStyle.Render("n call next  s served  x skip  r refresh  q quit"))
	return b.String()
}

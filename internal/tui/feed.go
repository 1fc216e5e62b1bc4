package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"queuehive/internal/view"
)

// Feed carries engine notifications into a bubbletea program. Publish never
// blocks: when the buffer is full the oldest value is dropped, which is
// safe because every value is a full snapshot.
type Feed[T any] struct {
	ch chan T
}

func NewFeed[T any](size int) *Feed[T] {
	if size <= 0 {
		size = 16
	}
	return &Feed[T]{ch: make(chan T, size)}
}

func (f *Feed[T]) Publish(value T) {
	for {
		select {
		case f.ch <- value:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

func (f *Feed[T]) C() <-chan T {
	return f.ch
}

type feedMsg[T any] struct {
	value T
}

// listen returns a command that waits for the next value on ch.
func listen[T any](ch <-chan T) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		value, ok := <-ch
		if !ok {
			return nil
		}
		return feedMsg[T]{value: value}
	}
}

// loginMsg ends a program after the backend rejected the session.
type loginMsg struct {
	route string
}

func listenLogin(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		route, ok := <-ch
		if !ok {
			return nil
		}
		return loginMsg{route: route}
	}
}

func appendNotices(notices []view.Notice, source *view.Notices) []view.Notice {
	notices = append(notices, source.Drain()...)
	if len(notices) > 3 {
		notices = notices[len(notices)-3:]
	}
	return notices
}

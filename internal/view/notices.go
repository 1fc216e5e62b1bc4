package view

import (
	"sync"
	"time"

	"queuehive/internal/apiclient"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a transient message for the user. Err is set for failures and
// always holds the normalized error.
type Notice struct {
	Level   Level
	Intent  Intent
	Target  int64
	Message string
	Err     *apiclient.Error
	At      time.Time
}

type Notices struct {
	mu    sync.Mutex
	items []Notice
}

func (n *Notices) Push(notice Notice) {
	if notice.At.IsZero() {
		notice.At = time.Now()
	}
	n.mu.Lock()
	n.items = append(n.items, notice)
	n.mu.Unlock()
}

// Drain returns the queued notices in order and empties the queue.
func (n *Notices) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	items := n.items
	n.items = nil
	return items
}

func (n *Notices) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

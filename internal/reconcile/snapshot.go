package reconcile

import (
	"time"

	"queuehive/internal/models"
)

type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseTracking
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseTracking:
		return "tracking"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the reconciled state of one token. Position is only
// meaningful when HasPosition is set, which never happens outside PENDING
// and CALLING.
type Snapshot struct {
	TokenID      int64
	Phase        Phase
	Token        models.Token
	Position     int
	HasPosition  bool
	LastSyncedAt time.Time
	Degraded     bool
	Failures     int
}

// QueueSnapshot is the reconciled active queue of one service.
type QueueSnapshot struct {
	ServiceID       int64
	Tokens          []models.Token
	MultipleCalling bool
	Synced          bool
	LastSyncedAt    time.Time
	Degraded        bool
	Failures        int
}

func (s QueueSnapshot) Calling() []models.Token {
	var calling []models.Token
	for _, token := range s.Tokens {
		if token.Status == models.StatusCalling {
			calling = append(calling, token)
		}
	}
	return calling
}

func (s QueueSnapshot) Waiting() int {
	waiting := 0
	for _, token := range s.Tokens {
		if token.Status == models.StatusPending {
			waiting++
		}
	}
	return waiting
}

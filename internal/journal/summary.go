package journal

import (
	"sort"
	"time"

	"queuehive/internal/models"
)

type tokenHistory struct {
	serviceID   int64
	pendingAt   time.Time
	callingAt   time.Time
	served      bool
	skipped     bool
	cancelled   bool
	lastChanged time.Time
}

// Summarize folds transitions observed at or after since into per-service
// summaries ordered by service id. Wait time runs from the first PENDING
// observation to the first CALLING one.
func Summarize(transitions []Transition, since time.Time) []ServiceSummary {
	tokens := map[int64]*tokenHistory{}
	for _, tr := range transitions {
		if tr.ObservedAt.Before(since) {
			continue
		}
		h, ok := tokens[tr.TokenID]
		if !ok {
			h = &tokenHistory{serviceID: tr.ServiceID}
			tokens[tr.TokenID] = h
		}
		switch tr.To {
		case models.StatusPending:
			if h.pendingAt.IsZero() || tr.ObservedAt.Before(h.pendingAt) {
				h.pendingAt = tr.ObservedAt
			}
		case models.StatusCalling:
			if h.callingAt.IsZero() || tr.ObservedAt.Before(h.callingAt) {
				h.callingAt = tr.ObservedAt
			}
		case models.StatusServed:
			h.served = true
		case models.StatusSkipped:
			h.skipped = true
		case models.StatusCancelled:
			h.cancelled = true
		}
		if tr.ObservedAt.After(h.lastChanged) {
			h.lastChanged = tr.ObservedAt
		}
	}

	services := map[int64]*ServiceSummary{}
	waits := map[int64][]time.Duration{}
	for _, h := range tokens {
		s, ok := services[h.serviceID]
		if !ok {
			s = &ServiceSummary{ServiceID: h.serviceID}
			services[h.serviceID] = s
		}
		s.Tokens++
		if h.served {
			s.Served++
		}
		if h.skipped {
			s.Skipped++
		}
		if h.cancelled {
			s.Cancelled++
		}
		if !h.pendingAt.IsZero() && !h.callingAt.IsZero() {
			waits[h.serviceID] = append(waits[h.serviceID], h.callingAt.Sub(h.pendingAt))
		}
		if h.lastChanged.After(s.LastChanged) {
			s.LastChanged = h.lastChanged
		}
	}

	out := make([]ServiceSummary, 0, len(services))
	for id, s := range services {
		if w := waits[id]; len(w) > 0 {
			var total time.Duration
			for _, d := range w {
				total += d
			}
			s.AvgWait = total / time.Duration(len(w))
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out
}

// Summaries makes Memory usable wherever a postgres store is.
func (m *Memory) Summaries(since time.Time) []ServiceSummary {
	return Summarize(m.Transitions(), since)
}

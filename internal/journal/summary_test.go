package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuehive/internal/models"
)

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	transitions := []Transition{
		{TokenID: 1, ServiceID: 3, To: models.StatusPending, ObservedAt: at(0)},
		{TokenID: 1, ServiceID: 3, From: models.StatusPending, To: models.StatusCalling, ObservedAt: at(10)},
		{TokenID: 1, ServiceID: 3, From: models.StatusCalling, To: models.StatusServed, ObservedAt: at(15)},
		{TokenID: 2, ServiceID: 3, To: models.StatusPending, ObservedAt: at(1)},
		{TokenID: 2, ServiceID: 3, From: models.StatusPending, To: models.StatusCalling, ObservedAt: at(21)},
		{TokenID: 2, ServiceID: 3, From: models.StatusCalling, To: models.StatusSkipped, ObservedAt: at(25)},
		{TokenID: 3, ServiceID: 4, To: models.StatusPending, ObservedAt: at(2)},
		{TokenID: 3, ServiceID: 4, From: models.StatusPending, To: models.StatusCancelled, ObservedAt: at(3)},
		{TokenID: 9, ServiceID: 4, To: models.StatusPending, ObservedAt: base.Add(-time.Hour)},
	}

	got := Summarize(transitions, base)
	require.Len(t, got, 2)

	assert.Equal(t, ServiceSummary{
		ServiceID:   3,
		Tokens:      2,
		Served:      1,
		Skipped:     1,
		AvgWait:     15 * time.Minute,
		LastChanged: at(25),
	}, got[0])
	assert.Equal(t, ServiceSummary{
		ServiceID:   4,
		Tokens:      1,
		Cancelled:   1,
		LastChanged: at(3),
	}, got[1])
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Empty(t, Summarize(nil, time.Time{}))
}

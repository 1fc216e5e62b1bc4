package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuehive/internal/models"
)

type blockingRecorder struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Transition
	err     error
}

func (r *blockingRecorder) Record(_ context.Context, transition Transition) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, transition)
	return r.err
}

func (r *blockingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestAsyncDeliversInOrder(t *testing.T) {
	rec := &blockingRecorder{}
	async := NewAsync(rec, 8)
	for i := 1; i <= 3; i++ {
		require.NoError(t, async.Record(context.Background(), Transition{TokenID: int64(i), To: models.StatusPending}))
	}
	async.Close()

	require.Equal(t, 3, rec.count())
	for i, tr := range rec.got {
		assert.Equal(t, int64(i+1), tr.TokenID)
	}
	assert.Zero(t, async.Dropped())
}

func TestAsyncDropsWhenFull(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	async := NewAsync(rec, 1)

	// The worker takes the first transition and blocks, the second fills the
	// buffer, the third is dropped.
	require.NoError(t, async.Record(context.Background(), Transition{TokenID: 1}))
	require.Eventually(t, func() bool { return len(async.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, async.Record(context.Background(), Transition{TokenID: 2}))
	require.NoError(t, async.Record(context.Background(), Transition{TokenID: 3}))
	assert.Equal(t, int64(1), async.Dropped())

	close(rec.release)
	async.Close()
	assert.Equal(t, 2, rec.count())

	require.NoError(t, async.Record(context.Background(), Transition{TokenID: 4}))
	assert.Equal(t, int64(2), async.Dropped())
	async.Close()
}

func TestAsyncRecordRacesClose(t *testing.T) {
	rec := &blockingRecorder{}
	async := NewAsync(rec, 4)

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, async.Record(context.Background(), Transition{TokenID: int64(i)}))
			}
		}()
	}
	async.Close()
	wg.Wait()

	assert.Equal(t, int64(writers*perWriter), int64(rec.count())+async.Dropped())
}

func TestAsyncSurvivesRecorderErrors(t *testing.T) {
	rec := &blockingRecorder{err: errors.New("db down")}
	async := NewAsync(rec, 4)
	require.NoError(t, async.Record(context.Background(), Transition{TokenID: 1}))
	require.NoError(t, async.Record(context.Background(), Transition{TokenID: 2}))
	async.Close()
	assert.Equal(t, 2, rec.count())
}

func TestMemory(t *testing.T) {
	var m Memory
	require.NoError(t, m.Record(context.Background(), Transition{TokenID: 9, From: models.StatusPending, To: models.StatusCalling}))
	got := m.Transitions()
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusCalling, got[0].To)
}

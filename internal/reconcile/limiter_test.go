package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHintLimiter(t *testing.T) {
	start := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	now := start
	limiter := newHintLimiter(60, 2, func() time.Time { return now })

	steps := []struct {
		name   string
		at     time.Duration
		key    string
		forget bool
		want   bool
	}{
		{name: "first of burst", key: "token:1", want: true},
		{name: "second of burst", key: "token:1", want: true},
		{name: "burst spent", key: "token:1", want: false},
		{name: "independent key", key: "token:2", want: true},
		{name: "refill after one interval", at: time.Second, key: "token:1", want: true},
		{name: "empty again", at: time.Second, key: "token:1", want: false},
		{name: "long idle banks only the burst", at: time.Hour, key: "token:2", want: true},
		{name: "second after idle", at: time.Hour, key: "token:2", want: true},
		{name: "third after idle", at: time.Hour, key: "token:2", want: false},
		{name: "fresh after forget", at: time.Second, key: "token:1", forget: true, want: true},
	}
	for _, step := range steps {
		now = start.Add(step.at)
		if step.forget {
			limiter.forget(step.key)
		}
		assert.Equal(t, step.want, limiter.allow(step.key), step.name)
	}
}

package reconcile

import (
	"sync"
	"time"
)

// hintLimiter spaces queue hints per key. Each tracked token or watched
// service earns one refresh per interval and may bank up to burst of them,
// so a storm of hints turns into a bounded number of REST refreshes.
//
// For every key it keeps the time at which the key's allowance is fully
// spent. A hint is allowed when that time is no further ahead of now than
// the burst window.
type hintLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	spent    map[string]time.Time
}

func newHintLimiter(perMinute, burst int, now func() time.Time) *hintLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 3
	}
	if now == nil {
		now = time.Now
	}
	interval := time.Minute / time.Duration(perMinute)
	return &hintLimiter{
		interval: interval,
		window:   interval * time.Duration(burst-1),
		now:      now,
		spent:    make(map[string]time.Time),
	}
}

func (l *hintLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	spent, ok := l.spent[key]
	if !ok || spent.Before(now) {
		spent = now
	}
	if spent.Sub(now) > l.window {
		return false
	}
	l.spent[key] = spent.Add(l.interval)
	return true
}

// forget drops the key once its tracker or watcher is gone.
func (l *hintLimiter) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.spent, key)
}

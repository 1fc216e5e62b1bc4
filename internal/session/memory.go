package session

import (
	"context"
	"maps"
	"sync"
)

type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[string]string{}}
}

func (b *MemoryBackend) Load(ctx context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.values), nil
}

func (b *MemoryBackend) Save(ctx context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = maps.Clone(values)
	return nil
}

func (b *MemoryBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = map[string]string{}
	return nil
}

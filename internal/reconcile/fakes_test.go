package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"

	"queuehive/internal/apiclient"
	"queuehive/internal/models"
)

var errNetwork = &apiclient.Error{
	StatusCode: 0,
	Message:    "No response from server. Please check your network connection.",
	Kind:       apiclient.KindNetwork,
	Err:        errors.New("connection refused"),
}

// fakeBackend serves tokens from memory. Tests swap state or inject errors
// between calls.
type fakeBackend struct {
	mu        sync.Mutex
	tokens    map[int64]models.Token
	positions map[int64]int
	active    map[int64][]models.Token
	err       error
	calls     int

	getToken func(ctx context.Context, id int64) (models.Token, error)
}

func newFakeBackend(tokens ...models.Token) *fakeBackend {
	b := &fakeBackend{
		tokens:    make(map[int64]models.Token),
		positions: make(map[int64]int),
		active:    make(map[int64][]models.Token),
	}
	for _, token := range tokens {
		b.tokens[token.ID] = token
	}
	return b
}

func (b *fakeBackend) GetToken(ctx context.Context, id int64) (models.Token, error) {
	b.mu.Lock()
	b.calls++
	hook, err := b.getToken, b.err
	token, ok := b.tokens[id]
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, id)
	}
	if err != nil {
		return models.Token{}, err
	}
	if !ok {
		return models.Token{}, &apiclient.Error{StatusCode: 404, Message: "Token not found", Kind: apiclient.KindServer}
	}
	return token, nil
}

func (b *fakeBackend) GetQueuePosition(ctx context.Context, id int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	return b.positions[id], nil
}

func (b *fakeBackend) ListActiveTokens(ctx context.Context, serviceID int64) ([]models.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return append([]models.Token(nil), b.active[serviceID]...), nil
}

func (b *fakeBackend) set(token models.Token, position int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token.ID] = token
	b.positions[token.ID] = position
}

func (b *fakeBackend) setActive(serviceID int64, tokens ...models.Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[serviceID] = tokens
}

func (b *fakeBackend) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakeSubscriber struct {
	mu           sync.Mutex
	subs         map[string][]*fakeSub
	subscribes   int
	unsubscribes int
}

type fakeSub struct {
	parent  *fakeSubscriber
	topic   string
	handler func([]byte)
	once    sync.Once
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[string][]*fakeSub)}
}

func (s *fakeSubscriber) Subscribe(topic string, handler func([]byte)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &fakeSub{parent: s, topic: topic, handler: handler}
	s.subs[topic] = append(s.subs[topic], sub)
	s.subscribes++
	return sub, nil
}

func (f *fakeSub) Unsubscribe() error {
	f.once.Do(func() {
		s := f.parent
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribes++
		subs := s.subs[f.topic]
		for i, sub := range subs {
			if sub == f {
				s.subs[f.topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.subs[f.topic]) == 0 {
			delete(s.subs, f.topic)
		}
	})
	return nil
}

func (s *fakeSubscriber) publish(topic, payload string) {
	s.mu.Lock()
	handlers := make([]func([]byte), 0, len(s.subs[topic]))
	for _, sub := range s.subs[topic] {
		handlers = append(handlers, sub.handler)
	}
	s.mu.Unlock()
	for _, handler := range handlers {
		handler([]byte(payload))
	}
}

func (s *fakeSubscriber) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (s *fakeSubscriber) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes, s.unsubscribes
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) notify(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

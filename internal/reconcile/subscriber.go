package reconcile

import "queuehive/internal/realtime"

type Subscription interface {
	Unsubscribe() error
}

// Subscriber is the push channel. A nil Subscriber leaves the engine in
// poll-only mode.
type Subscriber interface {
	Subscribe(topic string, handler func([]byte)) (Subscription, error)
}

type realtimeSubscriber struct {
	client *realtime.Client
}

// FromRealtime adapts a transport client. It returns nil for a nil client.
func FromRealtime(client *realtime.Client) Subscriber {
	if client == nil {
		return nil
	}
	return realtimeSubscriber{client: client}
}

func (s realtimeSubscriber) Subscribe(topic string, handler func([]byte)) (Subscription, error) {
	sub, err := s.client.Subscribe(topic, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

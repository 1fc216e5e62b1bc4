package realtime

import "fmt"

// TopicQueueUpdates is the global broadcast the backend publishes every queue
// change to.
const TopicQueueUpdates = "/topic/queue-updates"

// Token updates are keyed by token id on some backend versions and by service
// id on others. Both share one destination prefix.
const topicTokenUpdates = "/topic/tokenUpdates"

type TopicKind int

const (
	KindServiceQueue TopicKind = iota + 1
	KindTokenStatus
	KindServiceTokens
)

func (k TopicKind) String() string {
	switch k {
	case KindServiceQueue:
		return "service_queue"
	case KindTokenStatus:
		return "token_status"
	case KindServiceTokens:
		return "service_tokens"
	default:
		return fmt.Sprintf("TopicKind(%d)", int(k))
	}
}

// RouteTopic maps a domain subject to the topic the backend publishes it on.
func RouteTopic(kind TopicKind, key int64) (string, error) {
	if key <= 0 {
		return "", fmt.Errorf("route %s: invalid key %d", kind, key)
	}
	switch kind {
	case KindServiceQueue:
		return fmt.Sprintf("%s/%d", TopicQueueUpdates, key), nil
	case KindTokenStatus, KindServiceTokens:
		return fmt.Sprintf("%s/%d", topicTokenUpdates, key), nil
	default:
		return "", fmt.Errorf("route: unknown topic kind %s", kind)
	}
}

package realtime

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

// broker is an in-process SockJS endpoint speaking enough STOMP 1.2 for the
// client: CONNECT, SUBSCRIBE, UNSUBSCRIBE, DISCONNECT and receipts.
type broker struct {
	token  string
	server *httptest.Server

	mu       sync.Mutex
	reject   bool
	connects int
	sessions []*brokerSession
	commands []string
}

type brokerSession struct {
	session sockjs.Session
	writeMu sync.Mutex
	writer  *frame.Writer

	mu   sync.Mutex
	subs map[string]string
}

type sessionWriter struct {
	session sockjs.Session
}

func (w sessionWriter) Write(p []byte) (int, error) {
	if err := w.session.Send(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func newBroker(t *testing.T, token string) *broker {
	t.Helper()
	b := &broker{token: token}
	b.server = httptest.NewServer(sockjs.NewHandler("/ws", sockjs.DefaultOptions, b.handle))
	t.Cleanup(b.server.Close)
	return b
}

func (b *broker) url() string {
	return b.server.URL + "/ws"
}

func (b *broker) handle(session sockjs.Session) {
	bs := &brokerSession{session: session, subs: make(map[string]string)}
	bs.writer = frame.NewWriter(sessionWriter{session: session})

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		for {
			msg, err := session.Recv()
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write([]byte(msg)); err != nil {
				return
			}
		}
	}()

	reader := frame.NewReader(pr)
	for {
		f, err := reader.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		b.record(f.Command)

		switch f.Command {
		case "CONNECT", "STOMP":
			b.mu.Lock()
			rejected := b.reject || f.Header.Get("Authorization") != "Bearer "+b.token
			if !rejected {
				b.connects++
				b.sessions = append(b.sessions, bs)
			}
			b.mu.Unlock()
			if rejected {
				bs.send(frame.New("ERROR", "message", "Access denied: invalid token"))
				continue
			}
			bs.send(frame.New("CONNECTED", "version", "1.2", "heart-beat", "0,0"))
		case "SUBSCRIBE":
			bs.mu.Lock()
			bs.subs[f.Header.Get("destination")] = f.Header.Get("id")
			bs.mu.Unlock()
		case "UNSUBSCRIBE":
			bs.mu.Lock()
			for dest, id := range bs.subs {
				if id == f.Header.Get("id") {
					delete(bs.subs, dest)
				}
			}
			bs.mu.Unlock()
		}

		if receipt := f.Header.Get("receipt"); receipt != "" {
			bs.send(frame.New("RECEIPT", "receipt-id", receipt))
		}
		if f.Command == "DISCONNECT" {
			return
		}
	}
}

func (bs *brokerSession) send(f *frame.Frame) {
	bs.writeMu.Lock()
	defer bs.writeMu.Unlock()
	_ = bs.writer.Write(f)
}

func (b *broker) record(command string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, command)
}

func (b *broker) count(command string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.commands {
		if c == command {
			n++
		}
	}
	return n
}

func (b *broker) setReject(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject = reject
}

func (b *broker) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *broker) latest() *brokerSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

// subscribed reports whether the most recent connection holds a
// subscription for dest.
func (b *broker) subscribed(dest string) bool {
	bs := b.latest()
	if bs == nil {
		return false
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.subs[dest]
	return ok
}

func (b *broker) publish(dest string, body []byte) int {
	b.mu.Lock()
	sessions := append([]*brokerSession(nil), b.sessions...)
	b.mu.Unlock()

	sent := 0
	for _, bs := range sessions {
		bs.mu.Lock()
		id, ok := bs.subs[dest]
		bs.mu.Unlock()
		if !ok {
			continue
		}
		f := frame.New("MESSAGE",
			"destination", dest,
			"subscription", id,
			"message-id", uuid.NewString(),
			"content-type", "application/json")
		f.Body = body
		bs.send(f)
		sent++
	}
	return sent
}

// drop closes every live session from the server side.
func (b *broker) drop() {
	b.mu.Lock()
	sessions := append([]*brokerSession(nil), b.sessions...)
	b.mu.Unlock()
	for _, bs := range sessions {
		_ = bs.session.Close(3000, "restart")
	}
}

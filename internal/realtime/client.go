package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"queuehive/internal/metrics"
)

const (
	defaultReconnectDelay    = 5 * time.Second
	defaultReconnectAttempts = 10
	disconnectTimeout        = 2 * time.Second
)

type State int

const (
	StateConnected State = iota + 1
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Options struct {
	// URL is the SockJS endpoint, e.g. http://localhost:8080/ws.
	URL   string
	Token string

	ReconnectDelay    time.Duration
	ReconnectAttempts int

	Dialer        *websocket.Dialer
	Metrics       *metrics.Metrics
	OnStateChange func(State)
}

// Client is one authenticated STOMP session over SockJS. Topics are
// multiplexed over it and handlers survive reconnects.
type Client struct {
	opts Options
	hub  *hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conn   *stomp.Conn
	raw    *sockjsConn
	subs   map[string]*stomp.Subscription
	closed bool
}

// Dial opens the channel and authenticates. A failure is returned as a
// *ConnectionError and is not retried; retries only apply to a channel that
// was established once and then dropped.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultReconnectAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: openTimeout}
	}

	c := &Client{opts: opts, hub: newHub(), subs: make(map[string]*stomp.Subscription)}
	raw, conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn, c.raw = conn, raw

	c.wg.Add(1)
	go c.supervise(raw)
	log.Info().Str("url", opts.URL).Msg("realtime connected")
	c.notify(StateConnected)
	return c, nil
}

func (c *Client) connect(ctx context.Context) (*sockjsConn, *stomp.Conn, error) {
	raw, err := dialSockJS(ctx, c.opts.Dialer, c.opts.URL, c.opts.Token)
	if err != nil {
		return nil, nil, err
	}
	connOpts := []func(*stomp.Conn) error{stomp.ConnOpt.HeartBeat(0, 0)}
	if c.opts.Token != "" {
		connOpts = append(connOpts, stomp.ConnOpt.Header("Authorization", "Bearer "+c.opts.Token))
	}
	conn, err := stomp.Connect(raw, connOpts...)
	if err != nil {
		_ = raw.Close()
		return nil, nil, &ConnectionError{Op: "stomp connect", Auth: authRejection(err), Err: err}
	}
	return raw, conn, nil
}

// authRejection classifies a STOMP ERROR frame received in reply to CONNECT.
func authRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"auth", "denied", "forbidden", "jwt", "token"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Subscribe registers handler for topic. The first handler for a topic opens
// the STOMP subscription that all later handlers share. Handlers run on the
// client's dispatch goroutine for that topic.
func (c *Client) Subscribe(topic string, handler func([]byte)) (*Subscription, error) {
	if topic == "" || handler == nil {
		return nil, errors.New("realtime: subscribe needs a topic and a handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	id, first := c.hub.register(topic, handler)
	if first && c.conn != nil {
		if err := c.subscribeLocked(topic); err != nil {
			c.hub.unregister(topic, id)
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	log.Debug().Str("topic", topic).Uint64("handler", id).Msg("realtime subscribe")
	return &Subscription{client: c, topic: topic, id: id}, nil
}

func (c *Client) subscribeLocked(topic string) error {
	sub, err := c.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return err
	}
	c.subs[topic] = sub
	c.wg.Add(1)
	go c.pump(topic, sub)
	return nil
}

func (c *Client) pump(topic string, sub *stomp.Subscription) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if msg.Err != nil {
				log.Debug().Err(msg.Err).Str("topic", topic).Msg("realtime subscription ended")
				return
			}
			c.hub.broadcast(topic, msg.Body)
		}
	}
}

func (c *Client) release(topic string, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hub.unregister(topic, id) {
		return nil
	}
	sub := c.subs[topic]
	delete(c.subs, topic)
	if sub == nil || c.closed {
		return nil
	}
	// UNSUBSCRIBE waits on the broker; handlers are already detached.
	go func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("realtime unsubscribe")
		}
	}()
	log.Debug().Str("topic", topic).Msg("realtime topic released")
	return nil
}

// Topics lists the topics with at least one local handler.
func (c *Client) Topics() []string {
	return c.hub.topicList()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) supervise(raw *sockjsConn) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-raw.Done():
		}
		if c.ctx.Err() != nil {
			return
		}
		log.Warn().Err(raw.Err()).Msg("realtime connection lost")

		c.mu.Lock()
		if conn := c.conn; conn != nil {
			_ = conn.MustDisconnect()
		}
		c.conn, c.raw = nil, nil
		c.subs = make(map[string]*stomp.Subscription)
		c.mu.Unlock()
		c.notify(StateReconnecting)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}

		next, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Error().Err(err).Int("attempts", c.opts.ReconnectAttempts).Msg("realtime reconnect gave up")
				c.opts.Metrics.Reconnect("gave_up")
				c.notify(StateDisconnected)
			}
			return
		}
		raw = next
	}
}

func (c *Client) reconnect() (*sockjsConn, error) {
	attempt := 0
	op := func() (*sockjsConn, error) {
		attempt++
		raw, conn, err := c.connect(c.ctx)
		if err != nil {
			c.opts.Metrics.Reconnect("failed")
			log.Warn().Err(err).Int("attempt", attempt).Msg("realtime reconnect failed")
			if IsAuth(err) || c.ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			_ = conn.MustDisconnect()
			_ = raw.Close()
			return nil, backoff.Permanent(ErrClosed)
		}
		c.conn, c.raw = conn, raw
		for _, topic := range c.hub.topicList() {
			if err := c.subscribeLocked(topic); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("realtime resubscribe")
			}
		}
		return raw, nil
	}

	raw, err := backoff.Retry(c.ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.ReconnectDelay)),
		backoff.WithMaxTries(uint(c.opts.ReconnectAttempts)),
	)
	if err != nil {
		return nil, err
	}
	c.opts.Metrics.Reconnect("ok")
	log.Info().Int("attempt", attempt).Int("topics", len(c.hub.topicList())).Msg("realtime reconnected")
	c.notify(StateConnected)
	return raw, nil
}

func (c *Client) notify(state State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}

// Close sends DISCONNECT, waits briefly for the receipt and closes the
// socket. Calling it again returns nil.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, raw := c.conn, c.raw
	c.conn, c.raw = nil, nil
	c.subs = make(map[string]*stomp.Subscription)
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		done := make(chan error, 1)
		go func() { done <- conn.Disconnect() }()
		select {
		case err := <-done:
			if err != nil {
				log.Debug().Err(err).Msg("realtime disconnect")
			}
		case <-time.After(disconnectTimeout):
			_ = conn.MustDisconnect()
		}
	}
	if raw != nil {
		_ = raw.Close()
	}
	c.wg.Wait()
	c.notify(StateDisconnected)
	log.Info().Msg("realtime disconnected")
	return nil
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	client *Client
	topic  string
	id     uint64

	once sync.Once
	err  error
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe detaches the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.client.release(s.topic, s.id)
	})
	return s.err
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const openTimeout = 10 * time.Second

// CloseFrame is the reason carried by a SockJS "c" frame.
type CloseFrame struct {
	Code   int
	Reason string
}

func (c *CloseFrame) Error() string {
	return fmt.Sprintf("sockjs closed: %d %s", c.Code, c.Reason)
}

// sockjsConn exposes a SockJS websocket session as a byte stream so a STOMP
// client can run over it. Every Write becomes one SockJS message and every
// received message is appended to the read side in order.
type sockjsConn struct {
	ws *websocket.Conn
	pr *io.PipeReader
	pw *io.PipeWriter

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// sessionURL turns the configured endpoint into a SockJS raw-session URL:
// {endpoint}/{server}/{session}/websocket on the ws or wss scheme.
func sessionURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	server := fmt.Sprintf("%03d", rand.IntN(1000))
	session := strings.ReplaceAll(uuid.NewString(), "-", "")
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + server + "/" + session + "/websocket"
	return u.String(), nil
}

func dialSockJS(ctx context.Context, dialer *websocket.Dialer, endpoint, token string) (*sockjsConn, error) {
	target, err := sessionURL(endpoint)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &ConnectionError{Op: "handshake", Auth: true, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return nil, &ConnectionError{Op: "handshake", Err: err}
	}

	deadline := time.Now().Add(openTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	if string(data) != "o" {
		ws.Close()
		if closeErr := parseClose(data); closeErr != nil {
			return nil, &ConnectionError{Op: "open", Auth: closeErr.Code == 4001 || closeErr.Code == 4003, Err: closeErr}
		}
		return nil, &ConnectionError{Op: "open", Err: fmt.Errorf("unexpected frame %q", data)}
	}
	_ = ws.SetReadDeadline(time.Time{})

	pr, pw := io.Pipe()
	conn := &sockjsConn{ws: ws, pr: pr, pw: pw, done: make(chan struct{})}
	go conn.readLoop()
	return conn, nil
}

func (c *sockjsConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closeWith(err)
			return
		}
		if len(data) == 0 {
			continue
		}
		switch data[0] {
		case 'h', 'o':
		case 'a':
			var messages []string
			if err := json.Unmarshal(data[1:], &messages); err != nil {
				c.closeWith(fmt.Errorf("sockjs: bad message frame: %w", err))
				return
			}
			for _, msg := range messages {
				if _, err := c.pw.Write([]byte(msg)); err != nil {
					c.closeWith(err)
					return
				}
			}
		case 'm':
			var msg string
			if err := json.Unmarshal(data[1:], &msg); err != nil {
				c.closeWith(fmt.Errorf("sockjs: bad message frame: %w", err))
				return
			}
			if _, err := c.pw.Write([]byte(msg)); err != nil {
				c.closeWith(err)
				return
			}
		case 'c':
			closeErr := parseClose(data)
			if closeErr == nil {
				closeErr = &CloseFrame{Code: 0, Reason: string(data)}
			}
			c.closeWith(closeErr)
			return
		}
	}
}

func parseClose(data []byte) *CloseFrame {
	if len(data) == 0 || data[0] != 'c' {
		return nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data[1:], &parts); err != nil || len(parts) != 2 {
		return nil
	}
	frame := &CloseFrame{}
	if err := json.Unmarshal(parts[0], &frame.Code); err != nil {
		return nil
	}
	_ = json.Unmarshal(parts[1], &frame.Reason)
	return frame
}

func (c *sockjsConn) Read(p []byte) (int, error) {
	return c.pr.Read(p)
}

func (c *sockjsConn) Write(p []byte) (int, error) {
	select {
	case <-c.done:
		return 0, c.closedErr()
	default:
	}
	payload, err := json.Marshal([]string{string(p)})
	if err != nil {
		return 0, err
	}
	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.closeWith(err)
		return 0, err
	}
	return len(p), nil
}

func (c *sockjsConn) Close() error {
	c.closeWith(nil)
	return nil
}

// Done is closed once the session has ended for any reason.
func (c *sockjsConn) Done() <-chan struct{} {
	return c.done
}

// Err is the reason the session ended, nil for a local Close.
func (c *sockjsConn) Err() error {
	<-c.done
	return c.err
}

func (c *sockjsConn) closedErr() error {
	if c.err != nil {
		return c.err
	}
	return io.ErrClosedPipe
}

func (c *sockjsConn) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.pw.CloseWithError(err)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

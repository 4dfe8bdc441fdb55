// File: tcp/client.go
// Package tcp
// Author: momentics <momentics@gmail.com>
//
// Client dials a single outbound TCP connection and, unlike the teacher's
// client/client.go (WebSocket-specific, with its own reconnect/backoff
// loop baked into connect()), exposes ReconnectAsync as a first-class
// operation per the original_source CppServer TCPClient design.
package tcp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
)

// Client manages a single reconnecting outbound TCP connection.
type Client struct {
	addr string
	svc  *core.Service
	sink api.SessionSink
	opts api.Options

	mu      sync.Mutex
	session *Session

	reconnecting atomic.Bool
}

// NewClient constructs a Client targeting addr. It does not dial until
// ConnectAsync or ConnectSync is called.
func NewClient(addr string, svc *core.Service, sink api.SessionSink, opts api.Options) *Client {
	return &Client{addr: addr, svc: svc, sink: sink, opts: opts}
}

// ConnectSync dials addr and blocks until the socket is established (or
// an error occurs), then starts the session's callback pipeline.
func (c *Client) ConnectSync(ctx context.Context) error {
	if c.sink.OnConnecting != nil {
		c.sink.OnConnecting()
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "dial failed", err)
	}
	sess := newSession(conn, c.svc, c.sink, c.opts)

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	sess.start()
	return nil
}

// ConnectAsync dials in a new goroutine, delivering OnError
// through the session sink on failure rather than returning it directly.
func (c *Client) ConnectAsync() {
	go func() {
		if err := c.ConnectSync(context.Background()); err != nil {
			if c.sink.OnError != nil {
				c.sink.OnError(err)
			}
		}
	}()
}

// Session returns the current underlying session, or nil if never
// connected.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Send forwards to the current session, returning false if not connected.
func (c *Client) Send(p []byte) bool {
	s := c.Session()
	if s == nil {
		return false
	}
	return s.Send(p)
}

// Disconnect closes the current session.
func (c *Client) Disconnect() bool {
	s := c.Session()
	if s == nil {
		return false
	}
	return s.Disconnect()
}

// ReconnectAsync closes the current session (if any) and redials after
// delay, guarding against overlapping reconnect attempts. Grounded on
// original_source/CppServer's TCPClient::ReconnectAsync, which the
// distilled spec dropped but is a natural extension of ConnectAsync.
func (c *Client) ReconnectAsync(delay time.Duration) {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.reconnecting.Store(false)
		c.Disconnect()
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := c.ConnectSync(context.Background()); err != nil {
			if c.sink.OnError != nil {
				c.sink.OnError(err)
			}
		}
	}()
}

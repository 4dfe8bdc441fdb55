// File: tlsnet/client.go
// Package tlsnet
// Author: momentics <momentics@gmail.com>

package tlsnet

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/tcp"
)

// Client dials a plain TCP connection and completes a client-side TLS
// handshake before handing off to a tcp.Session.
type Client struct {
	addr   string
	svc    *core.Service
	sink   api.SessionSink
	opts   api.Options
	tlsCfg *tls.Config

	mu      sync.Mutex
	session *Session
}

// NewClient constructs a Client targeting addr.
func NewClient(addr string, svc *core.Service, sink api.SessionSink, opts api.Options, tlsCfg *tls.Config) *Client {
	return &Client{addr: addr, svc: svc, sink: sink, opts: opts, tlsCfg: tlsCfg}
}

// ConnectSync dials, performs the TLS handshake, and starts the session.
func (c *Client) ConnectSync(ctx context.Context) error {
	if c.sink.OnConnecting != nil {
		c.sink.OnConnecting()
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "dial failed", err)
	}
	tlsConn, err := wrapDialed(ctx, conn, c.tlsCfg)
	if err != nil {
		return err
	}
	sess := tcp.NewSessionFromConn(tlsConn, c.svc, c.sink, c.opts)

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	sess.Start()
	return nil
}

// ConnectAsync dials in the background, reporting failures via the
// session sink instead of a returned error.
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

// File: ws/client.go
// Package ws
// Author: momentics <momentics@gmail.com>
//
// Client dials a TCP connection, performs the RFC 6455 client handshake,
// and wraps the result in a Session, grounded on the teacher's
// client/client.go dialAndHandshake but split into the reusable
// BuildClientHeaders/SerializeClientRequest/VerifyServerHandshake
// primitives in handshake.go.
package ws

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/tcp"
)

// Client manages a single reconnecting outbound WebSocket connection.
type Client struct {
	addr string
	svc  *core.Service
	sink api.WSSink
	opts api.Options

	mu      sync.Mutex
	session *Session

	reconnecting atomic.Bool
}

// NewClient constructs a Client targeting addr, which may be a bare
// host:port (path defaults to "/") or a ws://host/path URL.
func NewClient(addr string, svc *core.Service, sink api.WSSink, opts api.Options) *Client {
	return &Client{addr: addr, svc: svc, sink: sink, opts: opts.WithDefaults()}
}

// ConnectSync dials, performs the handshake, and starts the session.
func (c *Client) ConnectSync(ctx context.Context) error {
	host, path, err := splitAddr(c.addr)
	if err != nil {
		return err
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "dial failed", err)
	}

	headers, key, err := BuildClientHeaders(host)
	if err != nil {
		conn.Close()
		return err
	}
	if c.sink.OnWSConnecting != nil {
		c.sink.OnWSConnecting(headers)
	}
	if _, err := conn.Write(SerializeClientRequest(path, headers)); err != nil {
		conn.Close()
		return api.NewError(api.ErrCodeTransport, "write upgrade request failed", err)
	}
	br := bufio.NewReader(conn)
	respHeaders, err := VerifyServerHandshake(br, key)
	if err != nil {
		conn.Close()
		return err
	}

	wsConn := net.Conn(&bufferedConn{Conn: conn, r: br})
	wsSess, sinkBuilder := NewSession(RoleClient, c.sink, c.opts)
	wsSess.connHeaders = respHeaders
	sess := tcp.NewSessionFromConn(wsConn, c.svc, api.SessionSink{}, c.opts)
	sess.SetSink(sinkBuilder(sess))

	c.mu.Lock()
	c.session = wsSess
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

// ReconnectAsync closes the current session (if any) and redials after
// delay, mirroring tcp.Client.ReconnectAsync for the WebSocket layer.
func (c *Client) ReconnectAsync(delay time.Duration) {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.reconnecting.Store(false)
		if s := c.Session(); s != nil {
			s.Close(CloseNormal, "reconnecting")
		}
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

func splitAddr(addr string) (host, path string, err error) {
	if !strings.Contains(addr, "://") {
		return addr, "/", nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", api.NewError(api.ErrCodeProtocol, "invalid websocket url", err)
	}
	path = u.RequestURI()
	if path == "" {
		path = "/"
	}
	return u.Host, path, nil
}

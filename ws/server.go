// File: ws/server.go
// Package ws
// Author: momentics <momentics@gmail.com>
//
// Server performs the RFC 6455 upgrade handshake on every accepted
// connection before handing it to a Session, grounded on the teacher's
// transport/tcp/listener.go accept-then-handshake flow. Handshake work
// happens inside a custom net.Listener (upgradeListener) so tcp.Server's
// ordinary accept loop, session table, and multicast fan-out are reused
// unmodified — only the listener differs from plain tcp.Server.
package ws

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/tcp"
)

// Server upgrades every accepted TCP connection to a WebSocket session.
type Server struct {
	svc              *core.Service
	sink             api.ServerSink
	wsSink           func(*Session) api.WSSink
	opts             api.Options
	handshakeTimeout time.Duration

	inner *tcp.Server
}

// NewServer constructs a Server. wsSink is called once per accepted
// connection, with that connection's Session already constructed, so
// the returned WSSink's callbacks can close over it to reply.
func NewServer(svc *core.Service, sink api.ServerSink, wsSink func(*Session) api.WSSink, opts api.Options, handshakeTimeout time.Duration) *Server {
	return &Server{
		svc:              svc,
		sink:             sink,
		wsSink:           wsSink,
		opts:             opts.WithDefaults(),
		handshakeTimeout: handshakeTimeout,
	}
}

// Start binds addr behind an upgrade-performing listener.
func (srv *Server) Start(addr string) error {
	srv.inner = tcp.NewServer(srv.svc, srv.sink, func(raw *tcp.Session) api.SessionSink {
		if pc, ok := raw.Conn().(*pendingConn); ok {
			return pc.sinkBuilder(raw)
		}
		// Only reachable if some other listener implementation is ever
		// substituted for upgradeListener; keeps this closure total.
		wsSess, sinkBuilder := NewSession(RoleServer, api.WSSink{}, srv.opts)
		wsSess.sink = srv.wsSink(wsSess)
		return sinkBuilder(raw)
	}, srv.opts)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "listen failed", err)
	}
	hl := newUpgradeListener(ln, srv.handshakeTimeout, srv.opts, srv.wsSink, func(err error) {
		if srv.sink.OnError != nil {
			srv.sink.OnError(err)
		}
	})
	return srv.inner.StartWithListener(hl)
}

// Sessions returns the underlying tcp.Server's connected sessions.
func (srv *Server) Sessions() []*tcp.Session { return srv.inner.Sessions() }

// Stop closes the listener and every connected session.
func (srv *Server) Stop() error { return srv.inner.Stop() }

// DisconnectAll forcibly closes every connected session's underlying
// transport, mirroring CppServer's WSServer::CloseAll used by the
// random-churn scenario. It does not perform the RFC 6455 close
// handshake; use each Session's own Close for a graceful shutdown.
func (srv *Server) DisconnectAll() { srv.inner.DisconnectAll() }

// Addr returns the bound listen address.
func (srv *Server) Addr() string { return srv.inner.Addr() }

// MulticastText frames msg as a single text message and fans it out to
// every connected session, mirroring original_source/CppServer's
// WSServer::MulticastText that the distilled spec dropped.
func (srv *Server) MulticastText(msg string) {
	buf, err := EncodeFrame(nil, OpText, []byte(msg), true, false)
	if err != nil {
		return
	}
	srv.inner.Multicast(buf)
}

// MulticastBinary is MulticastText's binary-opcode counterpart.
func (srv *Server) MulticastBinary(payload []byte) {
	buf, err := EncodeFrame(nil, OpBinary, payload, true, false)
	if err != nil {
		return
	}
	srv.inner.Multicast(buf)
}

// upgradeListener performs the WebSocket HTTP upgrade handshake off the
// accept path: raw connections are accepted immediately by an internal
// goroutine and handed off to their own handshake goroutine, so a slow or
// stalled peer's handshake round-trip never blocks tcp.Server.acceptLoop
// from accepting the next pending connection. This mirrors the teacher's
// transport/tcp/listener.go, which spawns "go handleConn(conn, ...)" per
// accepted connection for the same reason.
type upgradeListener struct {
	net.Listener
	handshakeTimeout time.Duration
	opts             api.Options
	wsSink           func(*Session) api.WSSink
	onError          func(error)

	ready     chan net.Conn
	errCh     chan error
	stopCh    chan struct{}
	closeOnce sync.Once
}

func newUpgradeListener(ln net.Listener, handshakeTimeout time.Duration, opts api.Options, wsSink func(*Session) api.WSSink, onError func(error)) *upgradeListener {
	l := &upgradeListener{
		Listener:         ln,
		handshakeTimeout: handshakeTimeout,
		opts:             opts,
		wsSink:           wsSink,
		onError:          onError,
		ready:            make(chan net.Conn),
		errCh:            make(chan error, 1),
		stopCh:           make(chan struct{}),
	}
	go l.acceptRaw()
	return l
}

func (l *upgradeListener) acceptRaw() {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			select {
			case l.errCh <- err:
			case <-l.stopCh:
			}
			return
		}
		go l.handshake(conn)
	}
}

// handshake runs the upgrade round-trip for a single accepted connection
// in its own goroutine. On success it hands the wrapped connection,
// already carrying its bound sinkBuilder, to Accept via ready.
func (l *upgradeListener) handshake(conn net.Conn) {
	if l.handshakeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(l.handshakeTimeout))
	}
	br := bufio.NewReader(conn)
	reqHeaders, err := ParseServerHandshake(br)
	if err != nil {
		conn.Close()
		if l.onError != nil {
			l.onError(err)
		}
		return
	}

	wsSess, sinkBuilder := NewSession(RoleServer, api.WSSink{}, l.opts)
	wsSess.connHeaders = reqHeaders
	sink := l.wsSink(wsSess)
	if sink.OnWSConnecting != nil {
		sink.OnWSConnecting(reqHeaders)
	}
	wsSess.sink = sink

	if _, err := conn.Write(BuildServerHandshakeResponse(reqHeaders)); err != nil {
		conn.Close()
		if l.onError != nil {
			l.onError(err)
		}
		return
	}
	conn.SetDeadline(time.Time{})

	wrapped := &pendingConn{
		Conn:        &bufferedConn{Conn: conn, r: br},
		sinkBuilder: sinkBuilder,
	}
	select {
	case l.ready <- wrapped:
	case <-l.stopCh:
		conn.Close()
	}
}

func (l *upgradeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case err := <-l.errCh:
		return nil, err
	}
}

func (l *upgradeListener) Close() error {
	l.closeOnce.Do(func() { close(l.stopCh) })
	return l.Listener.Close()
}

// pendingConn carries an already-upgraded connection's bound sink builder
// from upgradeListener's handshake goroutine to tcp.Server.adopt, since
// Accept returns only a net.Conn.
type pendingConn struct {
	net.Conn
	sinkBuilder func(*tcp.Session) api.SessionSink
}

// bufferedConn preserves any bytes ParseServerHandshake's bufio.Reader
// buffered past the request but did not consume (pipelined frame data
// arriving in the same TCP segment as the handshake).
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if c.r.Buffered() > 0 {
		return c.r.Read(p)
	}
	return c.Conn.Read(p)
}

// File: tcp/session.go
// Package tcp
// Author: momentics <momentics@gmail.com>
//
// Session wraps a net.Conn with the lifecycle state machine, strand-
// serialized callback delivery, and double-buffered send region required
// by spec §4.2/§4.3. Unlike the teacher's transport/tcp/listener.go
// (which drives a bespoke WebSocket-only handshake directly off
// net.Conn), Session is protocol-agnostic: ws.Session and tlsnet.Session
// both build on top of it.
package tcp

import (
	"crypto/rand"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/buffer"
	"github.com/momentics/netreactor/core"
)

// State enumerates the session lifecycle from spec §4.2.
type State int32

const (
	StatePending State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "pending"
	}
}

// Session is a single full-duplex TCP connection, either accepted by a
// Server or created by a Client.
type Session struct {
	ID     api.SessionID
	conn   net.Conn
	svc    *core.Service
	strand *core.Strand
	sink   api.SessionSink
	opts   api.Options

	state atomic.Int32

	sendMu  sync.Mutex
	send    *buffer.SendRegion
	writing bool

	recv *buffer.RecvRegion

	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64

	closeOnce sync.Once
}

// NewSessionFromConn wraps an already-connected net.Conn (including a
// completed *tls.Conn, which satisfies net.Conn) into a Session without
// starting it. Exposed for tlsnet, whose sessions differ from plain TCP
// only in how the connection came to exist.
func NewSessionFromConn(conn net.Conn, svc *core.Service, sink api.SessionSink, opts api.Options) *Session {
	return newSession(conn, svc, sink, opts)
}

// Start transitions an externally-constructed session (see
// NewSessionFromConn) to connected and launches its receive loop.
func (s *Session) Start() { s.start() }

// SetSink rebinds the session's event sink; used by two-phase
// construction patterns where the sink needs a reference to the session
// itself (see ws.Client.ConnectSync).
func (s *Session) SetSink(sink api.SessionSink) { s.sink = sink }

// newSession wraps an already-connected conn. Not exported: constructed
// by Server.adopt, Client.ConnectSync and NewSessionFromConn.
func newSession(conn net.Conn, svc *core.Service, sink api.SessionSink, opts api.Options) *Session {
	s := &Session{
		ID:     newSessionID(),
		conn:   conn,
		svc:    svc,
		strand: core.NewStrand(svc),
		sink:   sink,
		opts:   opts,
		send:   buffer.NewSendRegion(opts.SendBufferLimit),
		recv:   buffer.NewRecvRegion(opts.ReceiveBufferInitial, opts.ReceiveBufferLimit),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func newSessionID() api.SessionID {
	var id api.SessionID
	_, _ = rand.Read(id[:])
	return id
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Connected reports whether the session can currently send/receive.
func (s *Session) Connected() bool { return s.State() == StateConnected }

// BytesSent/BytesReceived expose running counters for metrics (spec §9).
func (s *Session) BytesSent() uint64     { return s.bytesSent.Load() }
func (s *Session) BytesReceived() uint64 { return s.bytesRecv.Load() }

// start transitions the session to connected and launches its receive
// loop. Called by the owner (Server or Client) once the socket is ready.
func (s *Session) start() {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		return
	}
	if s.opts.NoDelay {
		if tc, ok := s.conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
	}
	if s.opts.KeepAlive {
		if tc, ok := s.conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
		}
	}
	s.strand.Post(func() {
		if s.sink.OnConnected != nil {
			s.sink.OnConnected()
		}
	})
	go s.receiveLoop()
}

// Send queues p onto the session's send region and, if nothing is
// currently in flight, schedules a flush on the strand. Returns false if
// the send-region high-water mark would be crossed (spec §4.3,
// backpressure) or the session is not connected.
func (s *Session) Send(p []byte) bool {
	if !s.Connected() {
		return false
	}
	cp := append([]byte(nil), p...)
	s.sendMu.Lock()
	ok := s.send.Append(cp)
	overflow := s.send.ConsumeOverflow()
	shouldFlush := ok && !s.writing
	if shouldFlush {
		s.writing = true
	}
	s.sendMu.Unlock()

	if overflow {
		s.strand.Post(func() {
			if s.sink.OnError != nil {
				s.sink.OnError(api.ErrOverflow)
			}
		})
		return false
	}
	if shouldFlush {
		s.strand.Post(s.flush)
	}
	return ok
}

// flush drains the send region's ready bytes to the kernel, re-arming
// itself until both regions are empty (spec §4.3's main/flush swap).
func (s *Session) flush() {
	for {
		s.sendMu.Lock()
		chunk := s.send.Ready()
		if len(chunk) == 0 {
			s.writing = false
			s.sendMu.Unlock()
			s.strand.Post(func() {
				if s.sink.OnEmpty != nil {
					s.sink.OnEmpty()
				}
			})
			return
		}
		s.sendMu.Unlock()

		n, err := s.conn.Write(chunk)
		if n > 0 {
			s.sendMu.Lock()
			s.send.Advance(n)
			pending := s.send.Pending()
			s.sendMu.Unlock()
			s.bytesSent.Add(uint64(n))
			if s.sink.OnSent != nil {
				s.sink.OnSent(n, pending)
			}
		}
		if err != nil {
			s.sendMu.Lock()
			s.writing = false
			s.sendMu.Unlock()
			s.reportError(api.NewError(api.ErrCodeTransport, "write failed", err))
			return
		}
	}
}

// receiveLoop reads from the socket and delivers OnReceived on the
// session's strand until the connection closes or errors.
func (s *Session) receiveLoop() {
	for {
		buf := s.recv.Bytes()
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.bytesRecv.Add(uint64(n))
			data := append([]byte(nil), buf[:n]...)
			s.strand.Post(func() {
				if s.sink.OnReceived != nil {
					s.sink.OnReceived(data)
				}
			})
			if !s.recv.GrowIfFull(n) {
				s.reportError(api.NewError(api.ErrCodeResource, "receive buffer limit reached", nil))
				s.Disconnect()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				s.reportError(api.NewError(api.ErrCodeTransport, "read failed", err))
			}
			s.Disconnect()
			return
		}
	}
}

func (s *Session) reportError(err error) {
	s.strand.Post(func() {
		if s.sink.OnError != nil {
			s.sink.OnError(err)
		}
	})
}

// Disconnect closes the session exactly once, delivering
// OnDisconnecting/OnDisconnected in order (spec §4.2 lifecycle).
func (s *Session) Disconnect() bool {
	old := s.state.Swap(int32(StateDisconnecting))
	if State(old) == StateDisconnected || State(old) == StatePending {
		s.state.Store(old)
		return false
	}
	s.closeOnce.Do(func() {
		s.strand.Post(func() {
			if s.sink.OnDisconnecting != nil {
				s.sink.OnDisconnecting()
			}
		})
		_ = s.conn.Close()
		s.state.Store(int32(StateDisconnected))
		s.strand.Post(func() {
			if s.sink.OnDisconnected != nil {
				s.sink.OnDisconnected()
			}
		})
	})
	return true
}

// RemoteAddr/LocalAddr expose the underlying socket addresses.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *Session) LocalAddr() net.Addr  { return s.conn.LocalAddr() }

// Conn exposes the raw connection adopted by this session, letting a
// caller's tcp.Server sink-builder closure type-assert on a wrapper the
// listener attached (e.g. ws.pendingConn) before the generic adopt path
// ever constructs a Session.
func (s *Session) Conn() net.Conn { return s.conn }

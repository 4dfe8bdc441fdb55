// File: tcp/server.go
// Package tcp
// Author: momentics <momentics@gmail.com>
//
// Server accepts inbound TCP connections and fans each one out into its
// own Session, grounded on the teacher's transport/tcp/listener.go accept
// loop but generalized past the WebSocket-only handshake: protocol
// upgrade (if any) is layered on top by ws.Server.
package tcp

import (
	"context"
	"net"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
)

// Server accepts connections on a listening socket and tracks the set of
// currently-connected sessions for multicast and administrative queries.
type Server struct {
	svc  *core.Service
	sink api.ServerSink
	opts api.Options

	// newSessionSink builds the per-session SessionSink; supplied by
	// higher layers (e.g. ws.Server) that need to observe session events
	// before they reach the application.
	newSessionSink func(*Session) api.SessionSink

	ln net.Listener

	mu       sync.RWMutex
	sessions map[api.SessionID]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewServer constructs a Server bound to svc's worker pool. sessionSink
// may be nil, in which case sessions receive no per-session callbacks
// beyond what Server itself wires (an OnDisconnected hook that drops the
// session from the server's table) — callers typically pass a closure
// capturing their own per-connection handler.
func NewServer(svc *core.Service, sink api.ServerSink, sessionSink func(*Session) api.SessionSink, opts api.Options) *Server {
	return &Server{
		svc:            svc,
		sink:           sink,
		opts:           opts,
		newSessionSink: sessionSink,
		sessions:       make(map[api.SessionID]*Session),
	}
}

// Start binds addr and launches the accept loop.
func (srv *Server) Start(addr string) error {
	lc := net.ListenConfig{Control: controlFor(srv.opts)}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "listen failed", err)
	}
	return srv.StartWithListener(ln)
}

// StartWithListener launches the accept loop over an already-bound
// listener, letting callers (e.g. tlsnet.Server) supply a
// tls.NewListener wrapping the raw socket.
func (srv *Server) StartWithListener(ln net.Listener) error {
	srv.mu.Lock()
	srv.ln = ln
	srv.mu.Unlock()
	srv.stopCh = make(chan struct{})
	srv.wg.Add(1)
	go srv.acceptLoop()

	if srv.sink.OnStarted != nil {
		srv.sink.OnStarted()
	}
	return nil
}

// acceptLoop pre-creates nothing (Go's net package has no "next session"
// concept to pre-arm the way ASIO's acceptor does); each Accept directly
// yields a ready net.Conn that is wrapped and started immediately.
func (srv *Server) acceptLoop() {
	defer srv.wg.Done()
	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			select {
			case <-srv.stopCh:
				return
			default:
			}
			if srv.sink.OnError != nil {
				srv.sink.OnError(api.NewError(api.ErrCodeTransport, "accept failed", err))
			}
			continue
		}
		srv.adopt(conn)
	}
}

func (srv *Server) adopt(conn net.Conn) {
	// Two-phase construction: the caller's sink closure typically needs
	// the *Session to reference (e.g. to call Send from OnReceived), so
	// the session is built first with an empty sink, then rebound below.
	sess := newSession(conn, srv.svc, api.SessionSink{}, srv.opts)
	sink := api.SessionSink{}
	if srv.newSessionSink != nil {
		sink = srv.newSessionSink(sess)
	}
	wrapped := sink
	userDisconnected := sink.OnDisconnected
	wrapped.OnDisconnected = func() {
		srv.remove(sess.ID)
		if userDisconnected != nil {
			userDisconnected()
		}
	}
	sess.sink = wrapped

	srv.mu.Lock()
	srv.sessions[sess.ID] = sess
	srv.mu.Unlock()

	if srv.sink.OnConnected != nil {
		id := sess.ID
		srv.svc.Post(func() { srv.sink.OnConnected(id) })
	}
	sess.start()
}

func (srv *Server) remove(id api.SessionID) {
	srv.mu.Lock()
	delete(srv.sessions, id)
	srv.mu.Unlock()
	if srv.sink.OnDisconnected != nil {
		srv.svc.Post(func() { srv.sink.OnDisconnected(id) })
	}
}

// Addr returns the bound listen address, or "" before Start completes.
func (srv *Server) Addr() string {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	if srv.ln == nil {
		return ""
	}
	return srv.ln.Addr().String()
}

// FindSession returns the session for id, if currently connected.
func (srv *Server) FindSession(id api.SessionID) (*Session, bool) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	s, ok := srv.sessions[id]
	return s, ok
}

// Sessions returns a snapshot slice of all currently-connected sessions.
func (srv *Server) Sessions() []*Session {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	out := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		out = append(out, s)
	}
	return out
}

// Multicast broadcasts p to every connected session, appending directly
// to each session's send region rather than deferring through
// Service.Post: a deferred post could run after a subsequent direct
// Send on the same session issued from this same call site, reversing
// the order the caller observed. Session.Send is itself non-blocking
// (it only appends to the send region and arms a flush), so a slow
// peer's socket cannot stall delivery to the rest. eapache/queue snapshots
// the session set before iterating so a concurrent connect/disconnect
// cannot skip or duplicate a session mid fan-out.
func (srv *Server) Multicast(p []byte) {
	fanout := queue.New()
	srv.mu.RLock()
	for _, s := range srv.sessions {
		fanout.Add(s)
	}
	srv.mu.RUnlock()

	for fanout.Length() > 0 {
		s := fanout.Remove().(*Session)
		s.Send(p)
	}
}

// DisconnectAll closes every currently-connected session.
func (srv *Server) DisconnectAll() {
	for _, s := range srv.Sessions() {
		s.Disconnect()
	}
}

// Stop closes the listener and every connected session, then waits for
// the accept loop to exit.
func (srv *Server) Stop() error {
	if srv.stopCh == nil {
		return api.ErrNotRunning
	}
	close(srv.stopCh)
	err := srv.ln.Close()
	srv.wg.Wait()
	srv.DisconnectAll()
	if srv.sink.OnStopped != nil {
		srv.sink.OnStopped()
	}
	return err
}

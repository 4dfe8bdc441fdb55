// File: tlsnet/server.go
// Package tlsnet
// Author: momentics <momentics@gmail.com>
//
// Server accepts plain TCP connections and performs the server-side TLS
// handshake before handing each session to the application, reusing
// tcp.Server's accept loop, session table, and multicast fan-out.
package tlsnet

import (
	"crypto/tls"
	"net"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/tcp"
)

// Server wraps a tcp.Server behind a handshakeListener, so every session
// tcp.Server ever adopts is already TLS-terminated.
type Server struct {
	inner  *tcp.Server
	sink   api.ServerSink
	tlsCfg *tls.Config
	opts   api.Options
}

// NewServer constructs a TLS-terminating server. sessionSink builds the
// per-session sink exactly as in tcp.NewServer.
func NewServer(svc *core.Service, sink api.ServerSink, sessionSink func(*tcp.Session) api.SessionSink, opts api.Options, tlsCfg *tls.Config) *Server {
	opts = opts.WithDefaults()
	return &Server{
		inner:  tcp.NewServer(svc, sink, sessionSink, opts),
		sink:   sink,
		tlsCfg: tlsCfg,
		opts:   opts,
	}
}

// Start binds addr behind a TLS-terminating listener.
func (srv *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "listen failed", err)
	}
	hl := newHandshakeListener(ln, srv.tlsCfg, srv.opts.TLSHandshakeTimeout, func(err error) {
		if srv.sink.OnError != nil {
			srv.sink.OnError(api.NewError(api.ErrCodeTLS, "handshake failed", err))
		}
	})
	return srv.inner.StartWithListener(hl)
}

// Stop closes the listener and every connected session.
func (srv *Server) Stop() error { return srv.inner.Stop() }

// Sessions returns a snapshot of currently-connected sessions.
func (srv *Server) Sessions() []*tcp.Session { return srv.inner.Sessions() }

// Multicast broadcasts p to every connected session.
func (srv *Server) Multicast(p []byte) { srv.inner.Multicast(p) }

// Addr returns the bound listen address.
func (srv *Server) Addr() string { return srv.inner.Addr() }

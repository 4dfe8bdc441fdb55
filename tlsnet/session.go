// File: tlsnet/session.go
// Package tlsnet
// Author: momentics <momentics@gmail.com>
//
// tlsnet layers crypto/tls over tcp, presenting the identical L1 contract
// (Session/Server/Client with the same lifecycle, send region, and
// strand-serialized callbacks) as package tcp, matching spec §4.2's
// requirement that "TLS sessions expose the same session interface as
// plain TCP sessions, differing only in construction". Grounded on the
// teacher's use of net.Conn-shaped wrapping throughout transport/tcp:
// tls.Conn already satisfies net.Conn, so tcp.Session is reused verbatim
// once the handshake completes.
package tlsnet

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/tcp"
)

// Session is a type alias for tcp.Session: once a *tls.Conn completes its
// handshake it is indistinguishable from any other net.Conn to the
// session/backpressure/strand machinery.
type Session = tcp.Session

// wrapAccepted performs the server-side TLS handshake over an already
// accepted plain connection.
func wrapAccepted(ctx context.Context, conn net.Conn, cfg *tls.Config) (net.Conn, error) {
	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, api.NewError(api.ErrCodeTLS, "server handshake failed", err)
	}
	return tlsConn, nil
}

// wrapDialed performs the client-side TLS handshake over an already
// dialed plain connection.
func wrapDialed(ctx context.Context, conn net.Conn, cfg *tls.Config) (net.Conn, error) {
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, api.NewError(api.ErrCodeTLS, "client handshake failed", err)
	}
	return tlsConn, nil
}

// File: tlsnet/listener.go
// Package tlsnet
// Author: momentics <momentics@gmail.com>
//
// handshakeListener wraps a raw net.Listener so that Accept only ever
// returns fully-handshaked connections, rather than relying on
// crypto/tls's lazy per-Conn handshake (which would otherwise surface
// handshake failures as ordinary read errors deep inside a Session's
// receive loop, misclassified as transport errors instead of TLS ones).
//
// The handshake itself runs off the raw accept path: acceptRaw accepts
// connections as fast as the kernel hands them over and spawns a
// per-connection handshake goroutine, so a slow or stalled TLS peer
// blocks only its own goroutine, never tcp.Server.acceptLoop's single
// serial Accept call. This mirrors the teacher's transport/tcp/listener.go,
// which spawns "go handleConn(conn, ...)" per accepted connection for the
// same reason, and matches ws.Server's upgradeListener redesign.
package tlsnet

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"
)

type handshakeListener struct {
	net.Listener
	cfg     *tls.Config
	timeout time.Duration
	onError func(error)

	ready     chan net.Conn
	errCh     chan error
	stopCh    chan struct{}
	closeOnce sync.Once
}

func newHandshakeListener(ln net.Listener, cfg *tls.Config, timeout time.Duration, onError func(error)) *handshakeListener {
	l := &handshakeListener{
		Listener: ln,
		cfg:      cfg,
		timeout:  timeout,
		onError:  onError,
		ready:    make(chan net.Conn),
		errCh:    make(chan error, 1),
		stopCh:   make(chan struct{}),
	}
	go l.acceptRaw()
	return l
}

func (l *handshakeListener) acceptRaw() {
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

func (l *handshakeListener) handshake(conn net.Conn) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	tlsConn, err := wrapAccepted(ctx, conn, l.cfg)
	if err != nil {
		// A failed handshake on one connection must not abort the
		// accept loop; the raw accept path already moved on.
		if l.onError != nil {
			l.onError(err)
		}
		return
	}
	select {
	case l.ready <- tlsConn:
	case <-l.stopCh:
		tlsConn.Close()
	}
}

func (l *handshakeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case err := <-l.errCh:
		return nil, err
	}
}

func (l *handshakeListener) Close() error {
	l.closeOnce.Do(func() { close(l.stopCh) })
	return l.Listener.Close()
}

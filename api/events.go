// File: api/events.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Event-sink contracts (§6). The core never assumes a concrete sink
// implementation: every component that emits events accepts a capability
// record — a struct of function values — supplied by the embedder at
// construction. Any field left nil is simply not called.

package api

import (
	"net"
	"time"
)

// ServiceSink receives lifecycle and scheduling events from a core.Service.
type ServiceSink struct {
	OnThreadInitialize func()
	OnThreadCleanup    func()
	OnStarted          func()
	OnStopped          func()
	OnIdle             func()
	OnError            func(err error)
}

// SessionSink receives lifecycle and I/O events from a stream session
// (tcp.Session, tlsnet.Session, and anything embedding them).
type SessionSink struct {
	OnConnecting    func()
	OnConnected     func()
	OnDisconnecting func()
	OnDisconnected  func()
	OnReceived      func(buf []byte)
	OnSent          func(sent int, pending int)
	OnEmpty         func()
	OnError         func(err error)
}

// ServerSink receives lifecycle and fan-out events from a stream server.
type ServerSink struct {
	OnStarted      func()
	OnStopped      func()
	OnConnected    func(sessionID SessionID)
	OnDisconnected func(sessionID SessionID)
	OnError        func(err error)
}

// WSSink receives WebSocket-layer events, layered atop a SessionSink.
type WSSink struct {
	OnWSConnecting   func(headers map[string][]string)
	OnWSConnected    func(headers map[string][]string)
	OnWSDisconnected func()
	OnWSReceived     func(payload []byte, isText bool)
	OnWSPing         func(payload []byte)
	OnWSPong         func(payload []byte)
	OnWSClose        func(code int, reason string)
	OnError          func(err error)
}

// DatagramSink receives events from a connectionless udp.Socket, whose
// receive events must carry the sender address unlike a stream Session.
type DatagramSink struct {
	OnReceived func(buf []byte, from net.Addr)
	OnError    func(err error)
}

// SessionID is a stable 128-bit session identifier (spec §3, "Session").
type SessionID [16]byte

// Metrics is a point-in-time snapshot that callers assemble and pass to
// control.MetricsRegistry.Observe; no server or client returns one.
type Metrics struct {
	Sessions        int
	BytesSent       uint64
	BytesReceived   uint64
	StartedAt       time.Time
	ErrorsObserved  uint64
}

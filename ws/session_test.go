package ws_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/ws"
)

func newTestService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewService(2, api.ServiceSink{})
	require.True(t, svc.Start(false))
	t.Cleanup(func() { svc.Stop() })
	return svc
}

func serverAddr(t *testing.T, srv *ws.Server) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a := srv.Addr(); a != "" {
			return a
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never bound a listen address")
	return ""
}

// TestEchoTextMessage verifies a complete unfragmented text message
// round-trips through the upgrade handshake and framing layer intact.
func TestEchoTextMessage(t *testing.T) {
	svc := newTestService(t)

	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{
			OnWSReceived: func(payload []byte, isText bool) { s.SendText(string(payload)) },
		}
	}, api.Default(), time.Second)

	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	received := make(chan string, 1)
	client := ws.NewClient(addr, svc, api.WSSink{
		OnWSReceived: func(payload []byte, isText bool) {
			received <- string(payload)
		},
	}, api.Default())
	require.NoError(t, client.ConnectSync(context.Background()))
	t.Cleanup(func() { client.Session().Close(ws.CloseNormal, "") })

	require.True(t, client.Session().SendText("hello ws"))

	select {
	case msg := <-received:
		require.Equal(t, "hello ws", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}
}

// TestFragmentedMessageReassembly verifies a message larger than the
// fragment threshold is split into continuation frames and reassembled
// on the receiving side without loss or reordering.
func TestFragmentedMessageReassembly(t *testing.T) {
	svc := newTestService(t)

	opts := api.Default()
	opts.WSFragmentThresh = 16

	receivedCh := make(chan []byte, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{
			OnWSReceived: func(payload []byte, isText bool) {
				receivedCh <- append([]byte(nil), payload...)
			},
		}
	}, opts, time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	client := ws.NewClient(addr, svc, api.WSSink{}, opts)
	require.NoError(t, client.ConnectSync(context.Background()))
	t.Cleanup(func() { client.Session().Close(ws.CloseNormal, "") })

	payload := strings.Repeat("abcdefgh", 20) // 160 bytes, well over threshold
	require.True(t, client.Session().SendText(payload))

	select {
	case got := <-receivedCh:
		require.Equal(t, payload, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("fragmented message never reassembled")
	}
}

// TestPingPong verifies a ping elicits an automatic pong from the peer.
func TestPingPong(t *testing.T) {
	svc := newTestService(t)

	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{}
	}, api.Default(), time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	pongCh := make(chan []byte, 1)
	client := ws.NewClient(addr, svc, api.WSSink{
		OnWSPong: func(payload []byte) { pongCh <- payload },
	}, api.Default())
	require.NoError(t, client.ConnectSync(context.Background()))
	t.Cleanup(func() { client.Session().Close(ws.CloseNormal, "") })

	client.Session().Ping([]byte("ping-payload"))

	select {
	case got := <-pongCh:
		require.Equal(t, "ping-payload", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("pong never arrived")
	}
}

// TestCloseHandshake verifies an initiated close is echoed by the peer
// and both sides observe OnWSClose.
func TestCloseHandshake(t *testing.T) {
	svc := newTestService(t)

	serverClosed := make(chan int, 1)
	srv := ws.NewServer(svc, api.ServerSink{}, func(s *ws.Session) api.WSSink {
		return api.WSSink{
			OnWSClose: func(code int, reason string) { serverClosed <- code },
		}
	}, api.Default(), time.Second)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	clientClosed := make(chan int, 1)
	client := ws.NewClient(addr, svc, api.WSSink{
		OnWSClose: func(code int, reason string) { clientClosed <- code },
	}, api.Default())
	require.NoError(t, client.ConnectSync(context.Background()))

	client.Session().Close(ws.CloseNormal, "bye")

	select {
	case code := <-serverClosed:
		require.Equal(t, ws.CloseNormal, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed close")
	}
}
